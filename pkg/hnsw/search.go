package hnsw

import (
	"container/heap"

	"github.com/surgedb/surgedb/pkg/errs"
)

// Result is one search hit: the InternalId and its distance to the query.
type Result struct {
	ID       uint32
	Distance float32
}

// Search performs spec.md §4.4's k-NN search: descend greedily from the
// top layer to layer 1, then run a bounded best-first search at layer 0
// with capacity max(efSearch, k). Tombstoned nodes may still be visited
// during traversal (spec.md §9 item 2) but are filtered out of the
// returned top-k; callers needing "only live" results at a fixed width
// should pass a wide enough ef.
func (g *Graph) Search(query []float32, k, efSearch int, vs VectorSource) ([]Result, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if !g.hasEntry {
		return nil, errs.New(errs.EmptyIndex, "search", nil)
	}

	ef := efSearch
	if ef < k {
		ef = k
	}

	ep := g.entryPoint
	for layer := g.maxLayer; layer > 0; layer-- {
		ep = g.greedyDescend(query, ep, layer, vs)
	}

	entry := []item{{id: ep, dist: g.distOrInf(query, ep, vs)}}
	candidates := g.searchLayer(query, entry, ef, 0, vs)

	out := make([]Result, 0, k)
	for _, c := range candidates {
		if int(c.id) < len(g.nodes) && !g.nodes[c.id].alive {
			continue
		}
		out = append(out, Result{ID: c.id, Distance: c.dist})
		if len(out) == k {
			break
		}
	}
	return out, nil
}

// searchLayer is the bounded best-first search of spec.md §4.4: a
// min-heap of candidates to expand and a max-heap of the current best ef
// results, terminating when the best remaining candidate is worse than
// the worst current result. Implemented iteratively per spec.md §9
// "Recursive descent... do not use recursion."
func (g *Graph) searchLayer(query []float32, entryPoints []item, ef, layer int, vs VectorSource) []item {
	visited := make(map[uint32]bool, ef*2)
	candidates := &minHeap{}
	results := &maxHeap{}

	for _, e := range entryPoints {
		if visited[e.id] {
			continue
		}
		visited[e.id] = true
		heap.Push(candidates, e)
		heap.Push(results, e)
	}

	for candidates.Len() > 0 {
		if results.Len() >= ef {
			top := (*candidates)[0]
			worst := (*results)[0]
			if less(worst, top) {
				break
			}
		}
		cur := heap.Pop(candidates).(item)
		if int(cur.id) >= len(g.nodes) || layer > g.nodes[cur.id].maxLayer {
			continue
		}
		for _, n := range g.nodes[cur.id].neighbors[layer] {
			if visited[n] {
				continue
			}
			visited[n] = true
			d := g.distOrInf(query, n, vs)
			cand := item{id: n, dist: d}
			if results.Len() < ef {
				heap.Push(candidates, cand)
				heap.Push(results, cand)
			} else if less(cand, (*results)[0]) {
				heap.Push(candidates, cand)
				heap.Push(results, cand)
				heap.Pop(results)
			}
		}
	}

	out := make([]item, results.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(results).(item)
	}
	return out
}

// Package bruteforce implements the exhaustive linear-scan search of
// spec.md §1's Non-goals: "Exact (brute-force) search is supported only
// as a fallback and a correctness oracle, not a production path." It
// never builds an index; every call walks the full storage backend.
//
// Grounded on the teacher's pkg/index/flat.go FlatIndex.Search (now
// removed from the tree, see DESIGN.md): the same bounded max-heap
// top-k selection, adapted from a map[string][]float32 + string ids to
// spec.md §4.3's InternalId-addressed storage.Backend contract so the
// oracle exercises the exact same storage rows the HNSW graph does.
package bruteforce

import (
	"container/heap"

	"github.com/surgedb/surgedb/pkg/distance"
	"github.com/surgedb/surgedb/pkg/hnsw"
	"github.com/surgedb/surgedb/pkg/storage"
)

// Search scans every row in backend and returns the k closest to query
// under metric m, ascending by distance, tie-broken by ascending
// InternalId. alive, if non-nil, is consulted to skip tombstoned rows —
// bruteforce itself has no notion of liveness, only storage does.
func Search(backend storage.Backend, m distance.Metric, query []float32, k int, alive func(id uint32) bool) []hnsw.Result {
	if k <= 0 {
		return nil
	}
	h := &maxHeap{}
	heap.Init(h)

	n := backend.Len()
	for id := 0; id < n; id++ {
		if alive != nil && !alive(uint32(id)) {
			continue
		}
		d, ok := backend.Distance(m, query, uint32(id))
		if !ok {
			continue
		}
		item := hnsw.Result{ID: uint32(id), Distance: d}
		if h.Len() < k {
			heap.Push(h, item)
		} else if less(item, (*h)[0]) {
			heap.Pop(h)
			heap.Push(h, item)
		}
	}

	out := make([]hnsw.Result, h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(h).(hnsw.Result)
	}
	return out
}

// less orders by ascending distance, then ascending InternalId — the same
// deterministic tie-break spec.md §4.2's rerank step uses.
func less(a, b hnsw.Result) bool {
	if a.Distance != b.Distance {
		return a.Distance < b.Distance
	}
	return a.ID < b.ID
}

// maxHeap keeps the current top-k with the worst (largest distance, or
// on a tie the largest InternalId) at the root, so it's the cheap one to
// evict when a closer candidate arrives.
type maxHeap []hnsw.Result

func (h maxHeap) Len() int { return len(h) }
func (h maxHeap) Less(i, j int) bool {
	return less(h[j], h[i]) // inverted: root is the worst
}
func (h maxHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *maxHeap) Push(x any) { *h = append(*h, x.(hnsw.Result)) }

func (h *maxHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

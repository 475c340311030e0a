package hnsw

// Insert adds a new node for id with vector vec, per spec.md §4.4's
// insertion algorithm. vs resolves distances against storage; id must
// already exist in storage (the collection assigns InternalIds before
// calling Insert).
func (g *Graph) Insert(id uint32, vec []float32, vs VectorSource) {
	g.mu.Lock()
	defer g.mu.Unlock()

	rng := perInsertRNG(g.params.Seed, id)
	level := drawLevel(rng, g.ml)

	for int(id) >= len(g.nodes) {
		g.nodes = append(g.nodes, node{})
	}
	neighbors := make([][]uint32, level+1)
	for l := range neighbors {
		neighbors[l] = make([]uint32, 0, g.capAt(l))
	}
	g.nodes[id] = node{maxLayer: level, neighbors: neighbors, alive: true}

	if !g.hasEntry {
		g.hasEntry = true
		g.entryPoint = id
		g.maxLayer = level
		return
	}

	ep := g.entryPoint
	// Step 2: greedily descend from currentMaxLayer down to level+1,
	// always moving toward whichever single neighbor is strictly closer.
	for lc := g.maxLayer; lc > level; lc-- {
		ep = g.greedyDescend(vec, ep, lc, vs)
	}

	// Step 3: from min(level, currentMaxLayer) down to 0, search with
	// ef_construction, pick the best M/M0 neighbors, and link both ways.
	entryPoints := []item{{id: ep, dist: g.distOrInf(vec, ep, vs)}}
	top := minInt(level, g.maxLayer)
	for lc := top; lc >= 0; lc-- {
		candidates := g.searchLayer(vec, entryPoints, g.params.EfConstruction, lc, vs)
		cap := g.capAt(lc)
		selected := selectBest(candidates, cap)

		for _, n := range selected {
			g.nodes[id].neighbors[lc] = append(g.nodes[id].neighbors[lc], n.id)
			g.addAndPruneReverse(n.id, id, lc, vs)
		}
		if len(selected) > 0 {
			entryPoints = selected
		}
	}

	if level > g.maxLayer {
		g.maxLayer = level
		g.entryPoint = id
	}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// greedyDescend performs one layer's worth of step-2 descent: starting
// from ep, repeatedly moves to the neighbor that strictly decreases
// distance to query, iteratively (never recursively, per spec.md §9).
func (g *Graph) greedyDescend(query []float32, ep uint32, layer int, vs VectorSource) uint32 {
	best := ep
	bestDist := g.distOrInf(query, ep, vs)
	for {
		improved := false
		if layer <= g.nodes[best].maxLayer {
			for _, n := range g.nodes[best].neighbors[layer] {
				d := g.distOrInf(query, n, vs)
				if d < bestDist {
					bestDist = d
					best = n
					improved = true
				}
			}
		}
		if !improved {
			return best
		}
	}
}

func (g *Graph) distOrInf(query []float32, id uint32, vs VectorSource) float32 {
	d, ok := vs.Distance(g.params.Metric, query, id)
	if !ok {
		return maxFloat32
	}
	return d
}

const maxFloat32 = float32(3.4028235e+38)

// addAndPruneReverse links neighborID -> newID at layer (the reverse
// edge), then prunes neighborID's list at that layer back to its cap if
// needed, keeping the cap nearest-to-neighborID's-own-vector, per
// spec.md §4.4 step 3.
func (g *Graph) addAndPruneReverse(neighborID, newID uint32, layer int, vs VectorSource) {
	if int(neighborID) >= len(g.nodes) || layer > g.nodes[neighborID].maxLayer {
		return
	}
	list := g.nodes[neighborID].neighbors[layer]
	for _, existing := range list {
		if existing == newID {
			return
		}
	}
	list = append(list, newID)
	cap := g.capAt(layer)
	if len(list) > cap {
		nv, ok := vs.Get(neighborID)
		if ok {
			cands := make([]item, len(list))
			for i, n := range list {
				cands[i] = item{id: n, dist: g.distOrInf(nv, n, vs)}
			}
			best := selectBest(cands, cap)
			list = list[:0]
			for _, b := range best {
				list = append(list, b.id)
			}
		} else {
			list = list[:cap]
		}
	}
	g.nodes[neighborID].neighbors[layer] = list
}

// selectBest keeps the m candidates with smallest distance, tie-broken by
// InternalId ascending, sorted ascending. Grounded on the teacher's
// selectNeighborsHeuristic but using the spec's plain nearest-m rule
// (spec.md §4.4 step 3: "select the M (or M0 at layer 0) best candidates").
func selectBest(candidates []item, m int) []item {
	sorted := make([]item, len(candidates))
	copy(sorted, candidates)
	insertionSort(sorted)
	if len(sorted) > m {
		sorted = sorted[:m]
	}
	return sorted
}

// insertionSort is fine here: candidate lists are bounded by ef, a small
// constant, so O(n^2) in the worst case is still cheap and keeps the code
// free of a second heap type.
func insertionSort(items []item) {
	for i := 1; i < len(items); i++ {
		for j := i; j > 0 && less(items[j], items[j-1]); j-- {
			items[j], items[j-1] = items[j-1], items[j]
		}
	}
}

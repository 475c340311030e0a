// Package hnsw implements the layered proximity graph of spec.md §4.4:
// construction, bounded best-first search, and neighbor pruning, storing
// only dense InternalIds in an arena so the graph's cycles never become
// Go ownership cycles (spec.md §9 "Cyclic graph").
//
// Grounded on the teacher's pkg/index/hnsw.go (HNSW/HNSWNode, now removed
// from the tree, see DESIGN.md) for the overall insert/search shape,
// generalized from a map[string]*HNSWNode with embedded vectors to an
// arena indexed by storage.InternalId that delegates every distance
// computation to a VectorSource so the graph never touches raw floats
// except for the query itself.
package hnsw

import (
	"math"
	"math/rand"
	"sync"

	"github.com/surgedb/surgedb/pkg/distance"
	"github.com/surgedb/surgedb/pkg/errs"
)

// VectorSource is the read contract the graph needs from a storage
// backend: distance-to-query and the node's own vector for pruning, per
// spec.md §4.3/§9 "the index must not know whether it is reading f32,
// SQ8, Binary, or mmap-backed data."
type VectorSource interface {
	Distance(m distance.Metric, query []float32, id uint32) (float32, bool)
	Get(id uint32) ([]float32, bool)
}

// Params are the per-collection HNSW tuning knobs of spec.md §4.4.
type Params struct {
	M              int
	M0             int
	EfConstruction int
	EfSearch       int
	Seed           int64
	Metric         distance.Metric
}

// DefaultParams mirrors the teacher's NewHNSW defaults, generalized to
// the spec's M0 = 2*M convention.
func DefaultParams(metric distance.Metric) Params {
	return Params{M: 16, M0: 32, EfConstruction: 200, EfSearch: 50, Seed: 1, Metric: metric}
}

// Validate enforces spec.md §7's InvalidHnswParam checks.
func (p Params) Validate() error {
	if p.M <= 0 || p.M0 <= 0 || p.EfConstruction <= 0 || p.EfSearch <= 0 {
		return errs.New(errs.InvalidHnswParam, "validate", nil, "params", p)
	}
	if p.M0 < p.M {
		return errs.New(errs.InvalidHnswParam, "validate", nil, "reason", "m0 must be >= m")
	}
	return nil
}

// node is one arena entry. Neighbors[l] holds InternalIds, never pointers
// — breaking ownership cycles per spec.md §9.
type node struct {
	maxLayer  int
	neighbors [][]uint32 // len == maxLayer+1
	alive     bool       // false once the slot belongs to a deleted/replaced vector
}

// Graph is the HNSW index. It owns no vectors; every distance computation
// goes through a VectorSource supplied by the caller (the collection),
// per spec.md §4.3's storage/index separation.
type Graph struct {
	mu sync.RWMutex

	params Params
	ml     float64 // 1/ln(M), spec.md §4.4

	nodes        []node
	entryPoint   uint32
	hasEntry     bool
	maxLayer     int
	tombstones   int
}

// New creates an empty graph with the given parameters. Params.Validate
// is the caller's responsibility (the collection validates config once at
// creation, per spec.md §3 "config is immutable after creation").
func New(p Params) *Graph {
	return &Graph{
		params: p,
		ml:     1.0 / math.Log(float64(maxInt(p.M, 2))),
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Len returns the number of arena slots, including tombstoned ones.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// EntryPoint returns the current entry point, per spec.md §4.4 invariant 1.
func (g *Graph) EntryPoint() (uint32, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.entryPoint, g.hasEntry
}

// perInsertRNG derives a deterministic RNG from the graph's seed and the
// new node's id, per spec.md §4.4 "deterministic RNG seed (per-insert,
// derived from a collection seed and the new InternalId)."
func perInsertRNG(seed int64, id uint32) *rand.Rand {
	mixed := seed ^ (int64(id)*0x9E3779B97F4A7C15 + 1)
	return rand.New(rand.NewSource(mixed))
}

// drawLevel implements L = floor(-ln(U(0,1)) * ml), spec.md §4.4 step 1.
func drawLevel(rng *rand.Rand, ml float64) int {
	u := rng.Float64()
	for u == 0 {
		u = rng.Float64()
	}
	return int(math.Floor(-math.Log(u) * ml))
}

// capAt returns the neighbor cap for layer l: M0 at layer 0, M above.
func (g *Graph) capAt(layer int) int {
	if layer == 0 {
		return g.params.M0
	}
	return g.params.M
}

// NodeMaxLayer reports a node's top layer, used by the snapshot writer to
// walk topology. ok is false for an id never inserted.
func (g *Graph) NodeMaxLayer(id uint32) (int, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if int(id) >= len(g.nodes) {
		return 0, false
	}
	return g.nodes[id].maxLayer, true
}

// NeighborsAt returns a copy of id's neighbor list at layer, for topology
// snapshotting.
func (g *Graph) NeighborsAt(id uint32, layer int) []uint32 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if int(id) >= len(g.nodes) || layer >= len(g.nodes[id].neighbors) {
		return nil
	}
	out := make([]uint32, len(g.nodes[id].neighbors[layer]))
	copy(out, g.nodes[id].neighbors[layer])
	return out
}

// TombstoneRatio reports tombstones/(live+tombstones) for the rebuild
// policy decided in SPEC_FULL.md §8 item 2.
func (g *Graph) TombstoneRatio() float64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	total := len(g.nodes)
	if total == 0 {
		return 0
	}
	return float64(g.tombstones) / float64(total)
}

// Tombstone marks id's node as dead: it stays in the arena (so other
// nodes' neighbor lists remain valid indices) and is skipped by search
// results, per spec.md §3/§9 item 2. It stays traversable, and later
// inserts do not exclude it when choosing or linking neighbors.
func (g *Graph) Tombstone(id uint32) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if int(id) >= len(g.nodes) || !g.nodes[id].alive {
		return
	}
	g.nodes[id].alive = false
	g.tombstones++
	if g.hasEntry && g.entryPoint == id {
		g.reassignEntryPoint()
	}
}

// reassignEntryPoint scans for any live node, preferring the highest
// layer, after the current entry point is tombstoned. Caller holds mu.
func (g *Graph) reassignEntryPoint() {
	best := uint32(0)
	bestLayer := -1
	found := false
	for i := range g.nodes {
		if !g.nodes[i].alive {
			continue
		}
		if g.nodes[i].maxLayer > bestLayer {
			bestLayer = g.nodes[i].maxLayer
			best = uint32(i)
			found = true
		}
	}
	g.hasEntry = found
	if found {
		g.entryPoint = best
		g.maxLayer = bestLayer
	} else {
		g.maxLayer = 0
	}
}

// LoadNode reconstructs a node during snapshot recovery, bypassing the
// insertion algorithm entirely — the snapshot already contains the final
// topology (spec.md §4.5 "HNSW topology (node-by-node...)").
func (g *Graph) LoadNode(id uint32, maxLayer int, neighbors [][]uint32, alive bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for int(id) >= len(g.nodes) {
		g.nodes = append(g.nodes, node{})
	}
	g.nodes[id] = node{maxLayer: maxLayer, neighbors: neighbors, alive: alive}
	if !alive {
		g.tombstones++
	}
}

// SetEntryPoint restores the entry point during recovery.
func (g *Graph) SetEntryPoint(id uint32, maxLayer int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.entryPoint = id
	g.hasEntry = true
	g.maxLayer = maxLayer
}

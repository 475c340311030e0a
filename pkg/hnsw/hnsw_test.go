package hnsw

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/surgedb/surgedb/pkg/distance"
	"github.com/surgedb/surgedb/pkg/errs"
	"github.com/surgedb/surgedb/pkg/storage"
)

func buildGraph(t *testing.T, dim int, vecs [][]float32, p Params) (*Graph, *storage.F32Store) {
	t.Helper()
	s := storage.NewF32Store(dim)
	g := New(p)
	for _, v := range vecs {
		id, err := s.Insert(v)
		require.NoError(t, err)
		g.Insert(id, v, s)
	}
	return g, s
}

func TestSearchEmptyIndex(t *testing.T) {
	g := New(DefaultParams(distance.Cosine))
	s := storage.NewF32Store(3)
	_, err := g.Search([]float32{1, 2, 3}, 1, 10, s)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.EmptyIndex))
}

func TestSearchFindsExactSelf(t *testing.T) {
	vecs := [][]float32{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
	p := DefaultParams(distance.Cosine)
	g, s := buildGraph(t, 3, vecs, p)

	res, err := g.Search([]float32{1, 0, 0}, 1, 50, s)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, uint32(0), res[0].ID)
	assert.InDelta(t, 0, float64(res[0].Distance), 1e-6)
}

func TestInsertionDeterministicWithSameSeed(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	vecs := make([][]float32, 50)
	for i := range vecs {
		vecs[i] = []float32{rng.Float32(), rng.Float32(), rng.Float32()}
	}
	p := DefaultParams(distance.Euclidean)

	g1, s1 := buildGraph(t, 3, vecs, p)
	g2, s2 := buildGraph(t, 3, vecs, p)

	q := []float32{0.5, 0.5, 0.5}
	r1, err := g1.Search(q, 5, 50, s1)
	require.NoError(t, err)
	r2, err := g2.Search(q, 5, 50, s2)
	require.NoError(t, err)
	assert.Equal(t, r1, r2)
}

func TestDimensionGuardLeavesNothingOnMismatch(t *testing.T) {
	s := storage.NewF32Store(3)
	_, err := s.Insert([]float32{1, 2})
	require.Error(t, err)
	assert.Equal(t, 0, s.Len())
}

func TestTombstoneExcludedFromResults(t *testing.T) {
	vecs := make([][]float32, 10)
	for i := range vecs {
		vecs[i] = []float32{float32(i), 0, 0}
	}
	p := DefaultParams(distance.Euclidean)
	g, s := buildGraph(t, 3, vecs, p)

	for i := uint32(0); i < 5; i++ {
		g.Tombstone(i)
	}

	res, err := g.Search([]float32{0, 0, 0}, 10, 50, s)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(res), 5)
	for _, r := range res {
		assert.GreaterOrEqual(t, r.ID, uint32(5))
	}
}

func TestRecallMonotonicWithEf(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	dim := 16
	vecs := make([][]float32, 300)
	for i := range vecs {
		v := make([]float32, dim)
		for d := range v {
			v[d] = rng.Float32()
		}
		vecs[i] = v
	}
	p := DefaultParams(distance.Euclidean)
	p.EfConstruction = 64
	g, s := buildGraph(t, dim, vecs, p)

	query := vecs[0]
	trueTop := bruteForceTopK(s, distance.Euclidean, query, 10, len(vecs))

	recallAt := func(ef int) float64 {
		res, err := g.Search(query, 10, ef, s)
		require.NoError(t, err)
		hit := 0
		seen := map[uint32]bool{}
		for _, r := range res {
			seen[r.ID] = true
		}
		for _, id := range trueTop {
			if seen[id] {
				hit++
			}
		}
		return float64(hit) / 10
	}

	lowRecall := recallAt(10)
	highRecall := recallAt(200)
	assert.GreaterOrEqual(t, highRecall, lowRecall)
}

func bruteForceTopK(s *storage.F32Store, m distance.Metric, query []float32, k, n int) []uint32 {
	type pair struct {
		id   uint32
		dist float32
	}
	all := make([]pair, 0, n)
	for i := 0; i < n; i++ {
		d, ok := s.Distance(m, query, uint32(i))
		if ok {
			all = append(all, pair{uint32(i), d})
		}
	}
	for i := 1; i < len(all); i++ {
		for j := i; j > 0 && all[j].dist < all[j-1].dist; j-- {
			all[j], all[j-1] = all[j-1], all[j]
		}
	}
	if len(all) > k {
		all = all[:k]
	}
	out := make([]uint32, len(all))
	for i, p := range all {
		out[i] = p.id
	}
	return out
}

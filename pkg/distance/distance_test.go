package distance

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosineKnownValue(t *testing.T) {
	apple := []float32{1, 0, 0}
	query := []float32{0.9, 0.1, 0}
	d := Compute(Cosine, query, apple)
	want := 1 - 0.9/math.Sqrt(0.82)
	assert.InDelta(t, want, float64(d), 1e-4)
}

func TestEuclideanSquared(t *testing.T) {
	a := []float32{0, 0}
	b := []float32{3, 4}
	assert.Equal(t, float32(25), Compute(Euclidean, a, b))
}

func TestDotProductNegated(t *testing.T) {
	a := []float32{1, 2}
	b := []float32{3, 4}
	assert.Equal(t, float32(-11), Compute(DotProduct, a, b))
}

func TestCosineZeroNormNoNaN(t *testing.T) {
	zero := []float32{0, 0, 0}
	other := []float32{1, 2, 3}
	d := Compute(Cosine, zero, other)
	require.False(t, math.IsNaN(float64(d)))
	assert.Equal(t, maxDistance, d)
}

func TestNaNTreatedAsMaxDistance(t *testing.T) {
	nanVec := []float32{float32(math.NaN()), 1, 2}
	other := []float32{1, 2, 3}
	for _, m := range []Metric{Cosine, Euclidean, DotProduct} {
		d := Compute(m, nanVec, other)
		assert.False(t, math.IsNaN(float64(d)))
		assert.Equal(t, maxDistance, d)
	}
}

func TestParseMetric(t *testing.T) {
	m, ok := ParseMetric("euclidean")
	require.True(t, ok)
	assert.Equal(t, Euclidean, m)

	_, ok = ParseMetric("bogus")
	assert.False(t, ok)
}

func TestCommutativity(t *testing.T) {
	a := []float32{1, 2, 3}
	b := []float32{4, -1, 2}
	for _, m := range []Metric{Cosine, Euclidean} {
		assert.InDelta(t, float64(Compute(m, a, b)), float64(Compute(m, b, a)), 1e-6)
	}
}

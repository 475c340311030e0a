package bruteforce

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/surgedb/surgedb/pkg/distance"
	"github.com/surgedb/surgedb/pkg/storage"
)

func TestSearchReturnsExactNearestAscending(t *testing.T) {
	s := storage.NewF32Store(3)
	rows := [][]float32{
		{1, 0, 0},
		{0.9, 0.1, 0},
		{0, 1, 0},
		{0, 0, 1},
	}
	for _, r := range rows {
		_, err := s.Insert(r)
		require.NoError(t, err)
	}

	out := Search(s, distance.Euclidean, []float32{1, 0, 0}, 2, nil)
	require.Len(t, out, 2)
	assert.Equal(t, uint32(0), out[0].ID)
	assert.Equal(t, uint32(1), out[1].ID)
	assert.Less(t, out[0].Distance, out[1].Distance)
}

func TestSearchSkipsTombstonedRows(t *testing.T) {
	s := storage.NewF32Store(3)
	_, _ = s.Insert([]float32{1, 0, 0})
	_, _ = s.Insert([]float32{0.99, 0, 0})

	alive := func(id uint32) bool { return id != 0 }
	out := Search(s, distance.Euclidean, []float32{1, 0, 0}, 1, alive)
	require.Len(t, out, 1)
	assert.Equal(t, uint32(1), out[0].ID)
}

func TestSearchKGreaterThanSizeReturnsAll(t *testing.T) {
	s := storage.NewF32Store(2)
	_, _ = s.Insert([]float32{0, 0})
	_, _ = s.Insert([]float32{1, 1})

	out := Search(s, distance.Euclidean, []float32{0, 0}, 10, nil)
	assert.Len(t, out, 2)
}

func TestSearchZeroKReturnsEmpty(t *testing.T) {
	s := storage.NewF32Store(2)
	_, _ = s.Insert([]float32{0, 0})
	out := Search(s, distance.Euclidean, []float32{0, 0}, 0, nil)
	assert.Empty(t, out)
}

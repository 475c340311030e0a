package storage

import (
	"sync"

	"github.com/surgedb/surgedb/pkg/distance"
)

// F32Store is the plain in-memory backend: a contiguous D*N float buffer
// addressed by row index, per spec.md §4.3. Growth is geometric courtesy
// of Go's append, mirroring the teacher's row-append pattern in store.go.
type F32Store struct {
	mu   sync.RWMutex
	dim  int
	data []float32 // len == rows*dim
	rows int
}

// NewF32Store creates an empty plain-f32 backend for vectors of the given
// dimension.
func NewF32Store(dim int) *F32Store {
	return &F32Store{dim: dim}
}

func (s *F32Store) Dim() int { return s.dim }

func (s *F32Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rows
}

func (s *F32Store) Insert(vec []float32) (InternalId, error) {
	if len(vec) != s.dim {
		return 0, dimErr("insert", len(vec), s.dim)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id := InternalId(s.rows)
	s.data = append(s.data, vec...)
	s.rows++
	return id, nil
}

func (s *F32Store) Get(id InternalId) ([]float32, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if int(id) >= s.rows {
		return nil, false
	}
	out := make([]float32, s.dim)
	copy(out, s.data[int(id)*s.dim:int(id)*s.dim+s.dim])
	return out, true
}

func (s *F32Store) Distance(m distance.Metric, query []float32, id InternalId) (float32, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if int(id) >= s.rows {
		return 0, false
	}
	row := s.data[int(id)*s.dim : int(id)*s.dim+s.dim]
	return distance.Compute(m, query, row), true
}

func (s *F32Store) Close() error { return nil }

// Bytes reports the raw buffer size for compression-ratio comparisons.
func (s *F32Store) Bytes() (quantized, metadata, originals int64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.data)) * 4, 0, 0
}

// LoadF32Store reconstructs a plain backend from flat row-major data
// read back from a snapshot, avoiding a row-by-row Insert/dimension-check
// round trip for every vector.
func LoadF32Store(dim int, rows int, data []float32) *F32Store {
	return &F32Store{dim: dim, rows: rows, data: data}
}

package storage

import (
	"sync"

	"github.com/surgedb/surgedb/pkg/distance"
	"github.com/surgedb/surgedb/pkg/quantization"
)

// Quantization selects the codec a QuantizedStore uses.
type Quantization int

const (
	SQ8 Quantization = iota
	Binary
)

// QuantizedStore holds parallel arrays keyed by InternalId — quantized
// payload, per-vector codec metadata, and optionally the unquantized
// originals — per spec.md §4.3.
type QuantizedStore struct {
	mu            sync.RWMutex
	dim           int
	mode          Quantization
	keepOriginals bool

	sq8    []quantization.SQ8Vector
	binary []quantization.BinaryVector
	orig   [][]float32
}

// NewQuantizedStore creates an empty quantized backend. keepOriginals
// enables the rerank pipeline of spec.md §4.2.
func NewQuantizedStore(dim int, mode Quantization, keepOriginals bool) *QuantizedStore {
	return &QuantizedStore{dim: dim, mode: mode, keepOriginals: keepOriginals}
}

func (s *QuantizedStore) Dim() int { return s.dim }

func (s *QuantizedStore) Mode() Quantization { return s.mode }

func (s *QuantizedStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.len()
}

func (s *QuantizedStore) len() int {
	switch s.mode {
	case Binary:
		return len(s.binary)
	default:
		return len(s.sq8)
	}
}

func (s *QuantizedStore) Insert(vec []float32) (InternalId, error) {
	if len(vec) != s.dim {
		return 0, dimErr("insert", len(vec), s.dim)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id := InternalId(s.len())
	switch s.mode {
	case Binary:
		s.binary = append(s.binary, quantization.BinaryEncode(vec))
	default:
		s.sq8 = append(s.sq8, quantization.Sq8Encode(vec))
	}
	if s.keepOriginals {
		cp := make([]float32, len(vec))
		copy(cp, vec)
		s.orig = append(s.orig, cp)
	}
	return id, nil
}

func (s *QuantizedStore) Get(id InternalId) ([]float32, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.keepOriginals {
		if int(id) >= len(s.orig) {
			return nil, false
		}
		out := make([]float32, s.dim)
		copy(out, s.orig[id])
		return out, true
	}
	switch s.mode {
	case Binary:
		if int(id) >= len(s.binary) {
			return nil, false
		}
		return s.binary[id].Decode(), true
	default:
		if int(id) >= len(s.sq8) {
			return nil, false
		}
		return s.sq8[id].Decode(), true
	}
}

func (s *QuantizedStore) GetOriginal(id InternalId) ([]float32, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.keepOriginals || int(id) >= len(s.orig) {
		return nil, false
	}
	out := make([]float32, s.dim)
	copy(out, s.orig[id])
	return out, true
}

func (s *QuantizedStore) HasOriginals() bool { return s.keepOriginals }

// Distance computes the asymmetric distance between an unquantized query
// and the stored quantized row, per spec.md §4.2.
func (s *QuantizedStore) Distance(m distance.Metric, query []float32, id InternalId) (float32, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch s.mode {
	case Binary:
		if int(id) >= len(s.binary) {
			return 0, false
		}
		return quantization.DistanceBinaryHamming(query, s.binary[id]), true
	default:
		if int(id) >= len(s.sq8) {
			return 0, false
		}
		return s.sq8[id].AsymmetricDistance(m, query), true
	}
}

func (s *QuantizedStore) Close() error { return nil }

// RawSQ8 returns the underlying SQ8 payloads for snapshotting, empty
// unless Mode() == SQ8.
func (s *QuantizedStore) RawSQ8() []quantization.SQ8Vector {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]quantization.SQ8Vector, len(s.sq8))
	copy(out, s.sq8)
	return out
}

// RawBinary returns the underlying Binary payloads for snapshotting,
// empty unless Mode() == Binary.
func (s *QuantizedStore) RawBinary() []quantization.BinaryVector {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]quantization.BinaryVector, len(s.binary))
	copy(out, s.binary)
	return out
}

// RawOriginals returns the kept unquantized vectors, empty unless
// HasOriginals().
func (s *QuantizedStore) RawOriginals() [][]float32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([][]float32, len(s.orig))
	copy(out, s.orig)
	return out
}

// LoadQuantizedStore reconstructs a QuantizedStore from snapshot payload
// without re-running the quantizer, so recovered bytes are bit-identical
// to what was written (spec.md §8 "Checkpoint + reopen... bit-identical").
func LoadQuantizedStore(dim int, mode Quantization, keepOriginals bool, sq8 []quantization.SQ8Vector, binary []quantization.BinaryVector, orig [][]float32) *QuantizedStore {
	return &QuantizedStore{dim: dim, mode: mode, keepOriginals: keepOriginals, sq8: sq8, binary: binary, orig: orig}
}

// Bytes reports quantized/metadata/originals footprint for spec.md §4.2's
// reported compression ratio.
func (s *QuantizedStore) Bytes() (quantized, metadata, originals int64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch s.mode {
	case Binary:
		for _, b := range s.binary {
			quantized += int64(b.ByteSize())
		}
	default:
		for _, q := range s.sq8 {
			quantized += int64(len(q.Codes))
			metadata += 8 // min+max float32
		}
	}
	if s.keepOriginals {
		originals = int64(len(s.orig)) * int64(s.dim) * 4
	}
	return
}

// Package storage implements the three vector storage backends from
// spec.md §4.3 — plain f32, quantized (SQ8/Binary), memory-mapped —
// behind one read contract so the HNSW index never knows which one it is
// talking to.
//
// Grounded on the teacher's store.go getOrCreateKey/row layout idea
// (now removed, see DESIGN.md) generalized into Backend, and on
// other_examples' shibudb vector_storage.go for the append-only-file +
// offset-map shape reused by the mmap backend.
package storage

import (
	"fmt"

	"github.com/surgedb/surgedb/pkg/distance"
)

// InternalId is the dense, monotonically assigned row index spec.md §3
// defines; backends use it as the sole addressing key.
type InternalId = uint32

// Backend is the read/write contract every storage variant implements.
// The index only ever calls Get and Distance (spec.md §4.3); Insert and
// Close belong to the collection's write path.
type Backend interface {
	// Dim returns the fixed vector dimension.
	Dim() int
	// Len returns the number of rows ever inserted, including tombstoned
	// ones — storage itself does not know about tombstones, only the
	// collection's ID map does (spec.md §4.3).
	Len() int
	// Insert appends vec as a new row and returns its InternalId.
	Insert(vec []float32) (InternalId, error)
	// Get returns a copy of the row at id, suitable for returning to a
	// caller after releasing the collection lock (spec.md §5 "Buffers
	// returned from get_vector_data are copies").
	Get(id InternalId) ([]float32, bool)
	// Distance computes the configured metric between query and the row
	// at id. For quantized backends this is the asymmetric distance.
	Distance(m distance.Metric, query []float32, id InternalId) (float32, bool)
	// Close releases any OS resources (file descriptors, mappings).
	Close() error
}

// OriginalsBackend is implemented by quantized backends that retained the
// unquantized vectors (keep_originals), enabling the rerank pipeline of
// spec.md §4.2.
type OriginalsBackend interface {
	Backend
	GetOriginal(id InternalId) ([]float32, bool)
	HasOriginals() bool
}

// ByteFootprint is implemented by backends that can report their on-disk
// or in-memory size for the compression-ratio reporting of spec.md §4.2.
type ByteFootprint interface {
	Bytes() (quantized, metadata, originals int64)
}

func dimErr(op string, got, want int) error {
	return fmt.Errorf("storage: %s: dimension mismatch: got %d want %d", op, got, want)
}

package storage

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"

	mmap "github.com/blevesearch/mmap-go"

	"github.com/surgedb/surgedb/internal/encoding"
	"github.com/surgedb/surgedb/internal/format"
	"github.com/surgedb/surgedb/pkg/distance"
)

// mmapHeaderSize is magic(8) + version(4) + dim(4) + count(4) + crc(4).
const mmapHeaderSize = 8 + 4 + 4 + 4 + 4

// growthFactor controls how aggressively the backing file is extended so
// every insert doesn't trigger its own remap.
const growthFactor = 1.5
const minRows = 64

// MmapStore is the row-major f32 backend backed by a memory-mapped file,
// per spec.md §4.3. Writes extend the file, remapping when the mapping is
// smaller than the new row. Reads are not zero-copy: Get and Distance
// both decode the row out of the mapping into a freshly allocated slice.
//
// Grounded on github.com/blevesearch/mmap-go (carried into the pack via
// the bleve stack in Aman-CERP-amanmcp/ihavespoons-zrok) and on
// other_examples' shibudb vector_storage.go append-only-file pattern for
// the grow-by-remap discipline.
type MmapStore struct {
	mu       sync.RWMutex
	f        *os.File
	m        mmap.MMap
	dim      int
	rows     int // logical row count
	capRows  int // rows the current mapping can hold
}

// OpenMmapStore opens (creating if absent) the backing file at path for
// vectors of the given dimension, restoring rows/capacity from the header
// if the file already exists and is non-empty.
func OpenMmapStore(path string, dim int) (*MmapStore, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("storage: open mmap file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	s := &MmapStore{f: f, dim: dim}
	if info.Size() == 0 {
		if err := s.growTo(minRows); err != nil {
			f.Close()
			return nil, err
		}
		s.writeHeader()
		return s, nil
	}
	if err := s.mapExisting(); err != nil {
		f.Close()
		return nil, err
	}
	return s, nil
}

func (s *MmapStore) mapExisting() error {
	info, err := s.f.Stat()
	if err != nil {
		return err
	}
	m, err := mmap.Map(s.f, mmap.RDWR, 0)
	if err != nil {
		return fmt.Errorf("storage: mmap: %w", err)
	}
	s.m = m
	if len(m) < mmapHeaderSize {
		return fmt.Errorf("storage: mmap file truncated: %d bytes", len(m))
	}
	if string(m[0:8]) != string(format.Magic[:]) {
		return fmt.Errorf("storage: mmap file bad magic")
	}
	version := binary.LittleEndian.Uint32(m[8:12])
	if version > format.Version {
		return fmt.Errorf("storage: mmap file unsupported version %d", version)
	}
	dim := int(binary.LittleEndian.Uint32(m[12:16]))
	if dim != s.dim {
		return fmt.Errorf("storage: mmap file dimension %d does not match configured dimension %d", dim, s.dim)
	}
	count := int(binary.LittleEndian.Uint32(m[16:20]))
	crc := binary.LittleEndian.Uint32(m[20:24])
	if crc != format.CRC32(m[0:20]) {
		return fmt.Errorf("storage: mmap header checksum mismatch")
	}
	s.rows = count
	s.capRows = (int(info.Size()) - mmapHeaderSize) / (s.dim * 4)
	return nil
}

func (s *MmapStore) writeHeader() {
	copy(s.m[0:8], format.Magic[:])
	binary.LittleEndian.PutUint32(s.m[8:12], format.Version)
	binary.LittleEndian.PutUint32(s.m[12:16], uint32(s.dim))
	binary.LittleEndian.PutUint32(s.m[16:20], uint32(s.rows))
	crc := format.CRC32(s.m[0:20])
	binary.LittleEndian.PutUint32(s.m[20:24], crc)
}

// growTo unmaps (if mapped), truncates the file to hold capRows rows, and
// remaps.
func (s *MmapStore) growTo(capRows int) error {
	if s.m != nil {
		if err := s.m.Unmap(); err != nil {
			return fmt.Errorf("storage: unmap: %w", err)
		}
		s.m = nil
	}
	size := int64(mmapHeaderSize) + int64(capRows)*int64(s.dim)*4
	if err := s.f.Truncate(size); err != nil {
		return fmt.Errorf("storage: truncate: %w", err)
	}
	m, err := mmap.Map(s.f, mmap.RDWR, 0)
	if err != nil {
		return fmt.Errorf("storage: remap: %w", err)
	}
	s.m = m
	s.capRows = capRows
	return nil
}

func (s *MmapStore) Dim() int { return s.dim }

func (s *MmapStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rows
}

func (s *MmapStore) rowOffset(id InternalId) int {
	return mmapHeaderSize + int(id)*s.dim*4
}

func (s *MmapStore) Insert(vec []float32) (InternalId, error) {
	if len(vec) != s.dim {
		return 0, dimErr("insert", len(vec), s.dim)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rows >= s.capRows {
		newCap := int(float64(s.capRows) * growthFactor)
		if newCap <= s.capRows {
			newCap = s.capRows + minRows
		}
		if err := s.growTo(newCap); err != nil {
			return 0, err
		}
	}
	id := InternalId(s.rows)
	off := s.rowOffset(id)
	encoding.PutVector(s.m[off:off+s.dim*4], vec)
	s.rows++
	s.writeHeader()
	return id, nil
}

func (s *MmapStore) Get(id InternalId) ([]float32, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if int(id) >= s.rows {
		return nil, false
	}
	off := s.rowOffset(id)
	v, err := encoding.GetVector(s.m[off:off+s.dim*4], s.dim)
	if err != nil {
		return nil, false
	}
	return v, true
}

func (s *MmapStore) Distance(m distance.Metric, query []float32, id InternalId) (float32, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if int(id) >= s.rows {
		return 0, false
	}
	off := s.rowOffset(id)
	row, err := encoding.GetVector(s.m[off:off+s.dim*4], s.dim)
	if err != nil {
		return 0, false
	}
	return distance.Compute(m, query, row), true
}

// Sync flushes the mapping to disk.
func (s *MmapStore) Sync() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.m == nil {
		return nil
	}
	return s.m.Flush()
}

func (s *MmapStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var err error
	if s.m != nil {
		if e := s.m.Flush(); e != nil {
			err = e
		}
		if e := s.m.Unmap(); e != nil && err == nil {
			err = e
		}
		s.m = nil
	}
	if e := s.f.Close(); e != nil && err == nil {
		err = e
	}
	return err
}

// Bytes reports the raw file footprint.
func (s *MmapStore) Bytes() (quantized, metadata, originals int64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(s.rows) * int64(s.dim) * 4, mmapHeaderSize, 0
}

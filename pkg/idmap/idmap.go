// Package idmap implements the bijection between external string IDs and
// dense internal indices, and the internal-ID -> metadata side map, per
// spec.md §3/§4.3. InternalIds are assigned monotonically and never
// reused within a collection's incarnation (SPEC_FULL.md §3.15); delete
// tombstones both directions instead of freeing the slot.
package idmap

import (
	"sync"

	"github.com/surgedb/surgedb/pkg/errs"
	"github.com/surgedb/surgedb/pkg/metadata"
)

// Map is the external<->internal bijection plus the metadata side map.
// It is not independently thread-safe against the collection's RWMutex —
// per spec.md §5 "a single reader-writer lock protecting storage + index
// + ID maps as one unit" — but carries its own mutex so it can also be
// exercised standalone (as these tests do) without a collection wrapper.
type Map struct {
	mu       sync.RWMutex
	extToInt map[string]uint32
	intToExt map[uint32]string
	meta     map[uint32]metadata.Doc
	alive    map[uint32]bool
	order    []uint32 // insertion order, for List
	next     uint32
}

// New creates an empty ID map.
func New() *Map {
	return &Map{
		extToInt: make(map[string]uint32),
		intToExt: make(map[uint32]string),
		meta:     make(map[uint32]metadata.Doc),
		alive:    make(map[uint32]bool),
	}
}

// Allocate assigns a fresh InternalId to ext and records its metadata.
// Fails with DuplicateId if ext already maps to a live record.
func (m *Map) Allocate(ext string, meta metadata.Doc) (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.extToInt[ext]; ok && m.alive[existing] {
		return 0, errs.New(errs.DuplicateId, "allocate", nil, "id", ext)
	}
	id := m.next
	m.next++
	m.extToInt[ext] = id
	m.intToExt[id] = ext
	m.meta[id] = meta
	m.alive[id] = true
	m.order = append(m.order, id)
	return id, nil
}

// AllocateAt restores a mapping at a specific InternalId during snapshot
// load and Rebuild, where the id is already fixed by the existing record
// rather than freshly assigned.
func (m *Map) AllocateAt(id uint32, ext string, meta metadata.Doc, alive bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.intToExt[id]; ok {
		delete(m.extToInt, old)
	}
	m.intToExt[id] = ext
	if alive {
		m.extToInt[ext] = id
	}
	m.meta[id] = meta
	m.alive[id] = alive
	m.order = append(m.order, id)
	if id >= m.next {
		m.next = id + 1
	}
}

// Lookup resolves ext to its InternalId, only if live.
func (m *Map) Lookup(ext string) (uint32, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.extToInt[ext]
	if !ok || !m.alive[id] {
		return 0, false
	}
	return id, true
}

// Resolve maps an InternalId back to its ExternalId, only if live — this
// is where a tombstoned HNSW search hit gets filtered out per spec.md §9
// item 2 ("searches... filter them out on external-ID lookup").
func (m *Map) Resolve(id uint32) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.alive[id] {
		return "", false
	}
	ext, ok := m.intToExt[id]
	return ext, ok
}

// Metadata returns the metadata attached to a live InternalId.
func (m *Map) Metadata(id uint32) (metadata.Doc, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.alive[id] {
		return nil, false
	}
	return m.meta[id], true
}

// SetMetadata replaces the metadata stored for id, whether or not id is
// live. Upsert does not use it: it always allocates a fresh InternalId.
func (m *Map) SetMetadata(id uint32, meta metadata.Doc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.meta[id] = meta
}

// Delete tombstones ext's mapping in both directions, preserving the
// slot, per spec.md §4.3. Returns the freed InternalId and true if ext
// was live.
func (m *Map) Delete(ext string) (uint32, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.extToInt[ext]
	if !ok || !m.alive[id] {
		return 0, false
	}
	m.alive[id] = false
	delete(m.extToInt, ext)
	return id, true
}

// Upsert implements SPEC_FULL.md §8 decision 1: a fresh InternalId is
// always allocated, and any existing live mapping for ext is tombstoned.
// Returns the new id, the old id (if ext was already live), and whether
// an old mapping existed.
func (m *Map) Upsert(ext string, meta metadata.Doc) (newId uint32, oldId uint32, hadOld bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.extToInt[ext]; ok && m.alive[existing] {
		oldId = existing
		hadOld = true
		m.alive[existing] = false
		delete(m.extToInt, ext)
	}
	newId = m.next
	m.next++
	m.extToInt[ext] = newId
	m.intToExt[newId] = ext
	m.meta[newId] = meta
	m.alive[newId] = true
	m.order = append(m.order, newId)
	return newId, oldId, hadOld
}

// Len returns the number of live records.
func (m *Map) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, a := range m.alive {
		if a {
			n++
		}
	}
	return n
}

// Entry is one (external id, metadata) pair returned by List.
type Entry struct {
	ExternalId string
	InternalId uint32
	Metadata   metadata.Doc
}

// List returns up to limit live entries starting at offset, in insertion
// order, per spec.md §4.6.
func (m *Map) List(offset, limit int) []Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Entry, 0, limit)
	skipped := 0
	for _, id := range m.order {
		if !m.alive[id] {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		out = append(out, Entry{ExternalId: m.intToExt[id], InternalId: id, Metadata: m.meta[id]})
		if len(out) == limit {
			break
		}
	}
	return out
}

// All returns every entry, live and tombstoned, in insertion order — used
// by the snapshot writer to serialize the full map (spec.md §4.5).
func (m *Map) All() []struct {
	InternalId uint32
	ExternalId string
	Metadata   metadata.Doc
	Alive      bool
} {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]struct {
		InternalId uint32
		ExternalId string
		Metadata   metadata.Doc
		Alive      bool
	}, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, struct {
			InternalId uint32
			ExternalId string
			Metadata   metadata.Doc
			Alive      bool
		}{InternalId: id, ExternalId: m.intToExt[id], Metadata: m.meta[id], Alive: m.alive[id]})
	}
	return out
}

// NextId reports the next InternalId that Allocate would hand out.
func (m *Map) NextId() uint32 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.next
}

// CheckBijection verifies external->internal and internal->external are
// mutually inverse on every live record — the property spec.md §8 names
// "ID bijection." Intended for tests and post-recovery validation.
func (m *Map) CheckBijection() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for ext, id := range m.extToInt {
		if !m.alive[id] {
			return errs.New(errs.IdMappingCorrupted, "check_bijection", nil, "external", ext, "reason", "maps to tombstoned internal id")
		}
		back, ok := m.intToExt[id]
		if !ok || back != ext {
			return errs.New(errs.IdMappingCorrupted, "check_bijection", nil, "external", ext, "internal", id)
		}
	}
	return nil
}

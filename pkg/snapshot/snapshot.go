// Package snapshot implements the checkpoint format of spec.md §4.5: a
// header, the two-directional ID map, the raw or quantized vector
// payload, the HNSW topology, and a trailing CRC32 over everything
// preceding. Writes go to a temp file and are atomically renamed into
// place so a crash mid-checkpoint never corrupts the previous snapshot.
//
// Grounded on other_examples' libravdb internal/index/hnsw format.go
// header/entry layout (see DESIGN.md) for the node-by-node topology
// section, and on internal/format for the common file header.
package snapshot

import (
	"os"
	"path/filepath"

	"github.com/surgedb/surgedb/internal/encoding"
	"github.com/surgedb/surgedb/internal/format"
	"github.com/surgedb/surgedb/pkg/distance"
	"github.com/surgedb/surgedb/pkg/errs"
	"github.com/surgedb/surgedb/pkg/hnsw"
	"github.com/surgedb/surgedb/pkg/idmap"
	"github.com/surgedb/surgedb/pkg/metadata"
	"github.com/surgedb/surgedb/pkg/quantization"
	"github.com/surgedb/surgedb/pkg/storage"
)

// BackendKind tags which storage variant produced the vector payload
// section, so Load knows how to parse it without guessing.
type BackendKind uint8

const (
	BackendF32 BackendKind = iota
	BackendSQ8
	BackendBinary
	BackendMmap
)

// IdEntry mirrors idmap.Map's internal state for one slot, live or
// tombstoned, per spec.md §4.5 "ID maps (two sides)".
type IdEntry struct {
	InternalId uint32
	ExternalId string
	Metadata   metadata.Doc
	Alive      bool
}

// GraphNode mirrors one HNSW arena slot: its top layer, liveness, and
// per-layer neighbor lists, per spec.md §4.5 "HNSW topology (node-by-node:
// max-layer, per-layer neighbor arrays)".
type GraphNode struct {
	MaxLayer  int
	Alive     bool
	Neighbors [][]uint32
}

// State is everything Write needs to serialize a consistent image of one
// collection. The caller (the collection, under its writer lock) is
// responsible for gathering a point-in-time-consistent set of these
// fields before calling Write.
type State struct {
	Dim           int
	Metric        distance.Metric
	Watermark     uint64
	HnswParams    hnsw.Params
	GraphMaxLayer int
	HasEntry      bool
	EntryPoint    uint32

	IdEntries []IdEntry
	Graph     []GraphNode

	BackendKind   BackendKind
	KeepOriginals bool
	Vectors       [][]float32            // BackendF32 / BackendMmap
	SQ8           []quantization.SQ8Vector // BackendSQ8
	Binary        []quantization.BinaryVector // BackendBinary
	Originals     [][]float32            // present when KeepOriginals
}

// Snapshot is the parsed result of Load: the same shape as State, ready
// for the collection to rebuild live storage.Backend / hnsw.Graph /
// idmap.Map objects from.
type Snapshot = State

// Write serializes state to path via a temp-file-then-rename, per
// spec.md §4.5 "Snapshots are written to a temp file and atomically
// renamed."
func Write(path string, state State) error {
	body := encodeBody(state)
	header := format.Header{Version: format.Version, Flags: uint32(state.BackendKind)}.Encode()

	buf := make([]byte, 0, len(header)+len(body)+4)
	buf = append(buf, header...)
	buf = append(buf, body...)
	crc := format.CRC32(buf)
	var crcBuf [4]byte
	encoding.PutUint32(crcBuf[:], crc)
	buf = append(buf, crcBuf[:]...)

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf, 0o644); err != nil {
		return errs.New(errs.Io, "snapshot_write_tmp", err, "path", tmp)
	}
	if err := os.Rename(tmp, path); err != nil {
		return errs.New(errs.Io, "snapshot_rename", err, "from", tmp, "to", path)
	}
	dir := filepath.Dir(path)
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}
	return nil
}

// Load reads and validates a snapshot file, returning an error satisfying
// errs.IsCorruption for any structural or checksum problem. A missing
// file is reported as errs.Io, not corruption — callers should fall back
// to an empty collection only on os.IsNotExist.
func Load(path string) (Snapshot, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, errs.New(errs.Io, "snapshot_read", err, "path", path)
	}
	if len(raw) < format.HeaderSize+4 {
		return Snapshot{}, errs.New(errs.SnapshotCorrupted, "snapshot_load", nil, "reason", "file too short")
	}

	body := raw[:len(raw)-4]
	wantCRC := encoding.GetUint32(raw[len(raw)-4:])
	if gotCRC := format.CRC32(body); gotCRC != wantCRC {
		return Snapshot{}, errs.New(errs.ChecksumMismatch, "snapshot_load", nil, "expected", wantCRC, "actual", gotCRC)
	}

	header, err := format.DecodeHeader(raw[:format.HeaderSize], format.Version)
	if err != nil {
		return Snapshot{}, errs.New(errs.SnapshotCorrupted, "snapshot_load_header", err)
	}

	st, err := decodeBody(BackendKind(header.Flags), raw[format.HeaderSize:len(raw)-4])
	if err != nil {
		return Snapshot{}, err
	}
	return st, nil
}

// BuildIdMap reconstructs an idmap.Map from the snapshot's entries,
// preserving InternalIds and tombstone state exactly.
func (s Snapshot) BuildIdMap() *idmap.Map {
	m := idmap.New()
	for _, e := range s.IdEntries {
		m.AllocateAt(e.InternalId, e.ExternalId, e.Metadata, e.Alive)
	}
	return m
}

// BuildGraph reconstructs an hnsw.Graph from the snapshot's topology.
func (s Snapshot) BuildGraph() *hnsw.Graph {
	g := hnsw.New(s.HnswParams)
	for id, n := range s.Graph {
		g.LoadNode(uint32(id), n.MaxLayer, n.Neighbors, n.Alive)
	}
	if s.HasEntry {
		g.SetEntryPoint(s.EntryPoint, s.GraphMaxLayer)
	}
	return g
}

// BuildPlainBackend reconstructs an in-memory F32 backend for
// BackendF32 snapshots. Mmap-backed collections rebuild their backend
// via storage.OpenMmapStore against the collection's own file instead of
// this snapshot's Vectors section; Write still records them for
// portability (e.g. copying a collection's data directory).
func (s Snapshot) BuildPlainBackend() storage.Backend {
	flat := make([]float32, 0, len(s.Vectors)*s.Dim)
	for _, v := range s.Vectors {
		flat = append(flat, v...)
	}
	return storage.LoadF32Store(s.Dim, len(s.Vectors), flat)
}

// BuildQuantizedBackend reconstructs a quantized backend for BackendSQ8
// or BackendBinary snapshots.
func (s Snapshot) BuildQuantizedBackend() storage.Backend {
	mode := storage.SQ8
	if s.BackendKind == BackendBinary {
		mode = storage.Binary
	}
	return storage.LoadQuantizedStore(s.Dim, mode, s.KeepOriginals, s.SQ8, s.Binary, s.Originals)
}

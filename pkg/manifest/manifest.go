// Package manifest implements manifest.bin, the small fixed-format file
// recording a collection's frozen configuration and incarnation identity,
// per spec.md §6's on-disk layout.
//
// Grounded on internal/format for the common header and on the teacher's
// store.go initialization path (see DESIGN.md) for the "read config once,
// at open, before anything else touches the directory" shape.
package manifest

import (
	"os"

	"github.com/google/uuid"

	"github.com/surgedb/surgedb/internal/encoding"
	"github.com/surgedb/surgedb/internal/format"
	"github.com/surgedb/surgedb/pkg/config"
	"github.com/surgedb/surgedb/pkg/distance"
	"github.com/surgedb/surgedb/pkg/errs"
)

// Manifest is a collection's frozen configuration plus the incarnation ID
// that disambiguates a dropped-and-recreated collection of the same name,
// per spec.md §3 "never reused within a collection's incarnation" and
// SPEC_FULL.md §3.15.
type Manifest struct {
	Config      config.Config
	Incarnation uuid.UUID
}

// New stamps a fresh random incarnation ID for a newly created collection.
func New(cfg config.Config) Manifest {
	return Manifest{Config: cfg, Incarnation: uuid.New()}
}

// Write serializes m to path, overwriting any existing manifest. Unlike
// the snapshot, the manifest is written once at creation and never again
// (config is immutable, per spec.md §3), so a plain write suffices — no
// temp-file dance is needed.
func Write(path string, m Manifest) error {
	c := m.Config
	var buf []byte
	var u32 [4]byte
	var u64 [8]byte

	encoding.PutUint32(u32[:], uint32(c.Dimensions))
	buf = append(buf, u32[:]...)
	buf = append(buf, byte(c.Metric))
	buf = append(buf, byte(c.Quantization))
	buf = append(buf, byte(c.Persistence))
	buf = append(buf, boolByte(c.KeepOriginals))
	encoding.PutUint32(u32[:], uint32(c.RerankMultiplier))
	buf = append(buf, u32[:]...)
	encoding.PutUint32(u32[:], uint32(c.M))
	buf = append(buf, u32[:]...)
	encoding.PutUint32(u32[:], uint32(c.M0))
	buf = append(buf, u32[:]...)
	encoding.PutUint32(u32[:], uint32(c.EfConstruction))
	buf = append(buf, u32[:]...)
	encoding.PutUint32(u32[:], uint32(c.EfSearch))
	buf = append(buf, u32[:]...)
	encoding.PutUint64(u64[:], uint64(c.Seed))
	buf = append(buf, u64[:]...)
	buf = append(buf, boolByte(c.SyncWrites))
	encoding.PutUint64(u64[:], uint64(c.CheckpointThreshold))
	buf = append(buf, u64[:]...)
	incBytes, err := m.Incarnation.MarshalBinary()
	if err != nil {
		return errs.New(errs.Io, "manifest_marshal_incarnation", err)
	}
	buf = append(buf, incBytes...)

	header := format.Header{Version: format.Version}.Encode()
	out := make([]byte, 0, len(header)+len(buf)+4)
	out = append(out, header...)
	out = append(out, buf...)
	crc := format.CRC32(out)
	var crcBuf [4]byte
	encoding.PutUint32(crcBuf[:], crc)
	out = append(out, crcBuf[:]...)

	if err := os.WriteFile(path, out, 0o644); err != nil {
		return errs.New(errs.Io, "manifest_write", err, "path", path)
	}
	return nil
}

// Load reads and validates the manifest at path.
func Load(path string) (Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, errs.New(errs.Io, "manifest_read", err, "path", path)
	}
	if len(raw) < format.HeaderSize+4 {
		return Manifest{}, errs.New(errs.SnapshotCorrupted, "manifest_load", nil, "reason", "file too short")
	}
	body := raw[:len(raw)-4]
	wantCRC := encoding.GetUint32(raw[len(raw)-4:])
	if got := format.CRC32(body); got != wantCRC {
		return Manifest{}, errs.New(errs.ChecksumMismatch, "manifest_load", nil, "expected", wantCRC, "actual", got)
	}
	if _, err := format.DecodeHeader(raw[:format.HeaderSize], format.Version); err != nil {
		return Manifest{}, errs.New(errs.UnsupportedVersion, "manifest_load_header", err)
	}

	b := raw[format.HeaderSize : len(raw)-4]
	const want = 4 + 1 + 1 + 1 + 1 + 4 + 4 + 4 + 4 + 4 + 8 + 1 + 8 + 16
	if len(b) < want {
		return Manifest{}, errs.New(errs.SnapshotCorrupted, "manifest_load", nil, "reason", "truncated body")
	}
	off := 0
	c := config.Config{}
	c.Dimensions = int(encoding.GetUint32(b[off:]))
	off += 4
	c.Metric = distance.Metric(b[off])
	off++
	c.Quantization = config.Quantization(b[off])
	off++
	c.Persistence = config.Persistence(b[off])
	off++
	c.KeepOriginals = b[off] != 0
	off++
	c.RerankMultiplier = int(encoding.GetUint32(b[off:]))
	off += 4
	c.M = int(encoding.GetUint32(b[off:]))
	off += 4
	c.M0 = int(encoding.GetUint32(b[off:]))
	off += 4
	c.EfConstruction = int(encoding.GetUint32(b[off:]))
	off += 4
	c.EfSearch = int(encoding.GetUint32(b[off:]))
	off += 4
	c.Seed = int64(encoding.GetUint64(b[off:]))
	off += 8
	c.SyncWrites = b[off] != 0
	off++
	c.CheckpointThreshold = int64(encoding.GetUint64(b[off:]))
	off += 8
	inc, err := uuid.FromBytes(b[off : off+16])
	if err != nil {
		return Manifest{}, errs.New(errs.SnapshotCorrupted, "manifest_load_incarnation", err)
	}

	return Manifest{Config: c, Incarnation: inc}, nil
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

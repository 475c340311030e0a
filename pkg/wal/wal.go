// Package wal implements the append-only write-ahead log of spec.md §4.5:
// length-prefixed, CRC32-checksummed records carrying Insert/Upsert/Delete
// mutations, with a torn-tail-tolerant recovery scan and fsync-on-demand
// durability.
//
// Grounded on other_examples' shibudb vector_storage.go append-only-file
// pattern (see DESIGN.md) and on the teacher's errors.go wrapping style,
// reworked around spec.md's exact record layout
// `[u32 length][u64 seq][u8 kind][payload][u32 crc32(length..payload)]`.
package wal

import (
	"io"
	"os"
	"sync"

	"github.com/surgedb/surgedb/internal/encoding"
	"github.com/surgedb/surgedb/internal/format"
	"github.com/surgedb/surgedb/pkg/errs"
	"github.com/surgedb/surgedb/pkg/metadata"
)

// fixedBodySize (seq + kind) is the fixed part of every frame's body,
// i.e. the number of bytes "length" itself describes beyond the payload.
const fixedBodySize = 8 + 1 // seq (u64) + kind (u8)
const lengthFieldSize = 4
const crcFieldSize = 4

// WAL is an open, append-ready write-ahead log file.
type WAL struct {
	mu         sync.Mutex
	f          *os.File
	path       string
	syncWrites bool
	nextSeq    uint64
	size       int64
}

// Scan reads path from the start and returns every structurally valid
// record in order, plus the byte offset at which the file should be
// truncated: the end of the last valid record. A short read, a length
// that overruns the file, or a CRC mismatch all mark the start of a torn
// tail and stop the scan without error, per spec.md §4.5 step 2 ("stop at
// the first torn/invalid record"). A missing file scans as empty.
func Scan(path string) ([]Record, int64, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, errs.New(errs.Io, "wal_scan_open", err, "path", path)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, 0, errs.New(errs.Io, "wal_scan_read", err, "path", path)
	}

	var records []Record
	var offset int64
	for {
		rec, next, ok := readFrame(data, offset)
		if !ok {
			break
		}
		records = append(records, rec)
		offset = next
	}
	return records, offset, nil
}

// readFrame attempts to decode one frame starting at offset. ok is false
// if the frame is absent (clean end of file) or structurally invalid
// (torn tail); in either case offset is left as the caller's truncation
// point and no error is raised, matching the "discard a torn tail
// silently" contract.
func readFrame(data []byte, offset int64) (Record, int64, bool) {
	o := int(offset)
	if o+lengthFieldSize > len(data) {
		return Record{}, offset, false
	}
	length := int(encoding.GetUint32(data[o:]))
	bodyStart := o + lengthFieldSize
	bodyEnd := bodyStart + length
	crcEnd := bodyEnd + crcFieldSize
	if length < fixedBodySize || crcEnd > len(data) {
		return Record{}, offset, false
	}

	frame := data[o:bodyEnd] // length field + body, the span the CRC covers
	wantCRC := encoding.GetUint32(data[bodyEnd:crcEnd])
	if got := format.CRC32(frame); got != wantCRC {
		return Record{}, offset, false
	}

	body := data[bodyStart:bodyEnd]
	seq := encoding.GetUint64(body[0:8])
	kind := Kind(body[8])
	rec, err := decodePayload(kind, body[fixedBodySize:])
	if err != nil {
		return Record{}, offset, false
	}
	rec.Seq = seq
	return rec, int64(crcEnd), true
}

// OpenAt opens (creating if absent) the WAL at path for appending,
// applying spec.md §4.5's recovery contract: scan the whole file, keep
// only records not yet reflected by the snapshot (seq >= watermark, where
// watermark is the count of records the snapshot already subsumes),
// truncate away anything from the end of the last structurally valid
// record onward (discarding any torn tail), and resume sequencing from
// the highest seq seen. A fresh collection with no prior checkpoint
// passes watermark 0 and gets every record back.
func OpenAt(path string, syncWrites bool, watermark uint64) (*WAL, []Record, error) {
	all, validSize, err := Scan(path)
	if err != nil {
		return nil, nil, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, nil, errs.New(errs.Io, "wal_open", err, "path", path)
	}
	if err := f.Truncate(validSize); err != nil {
		f.Close()
		return nil, nil, errs.New(errs.Io, "wal_truncate", err, "path", path)
	}
	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		f.Close()
		return nil, nil, errs.New(errs.Io, "wal_seek", err, "path", path)
	}

	var nextSeq uint64
	toApply := make([]Record, 0, len(all))
	for _, r := range all {
		if r.Seq >= nextSeq {
			nextSeq = r.Seq + 1
		}
		if r.Seq >= watermark {
			toApply = append(toApply, r)
		}
	}
	if nextSeq < watermark {
		nextSeq = watermark
	}

	return &WAL{f: f, path: path, syncWrites: syncWrites, nextSeq: nextSeq, size: validSize}, toApply, nil
}

// Open opens a fresh or already-empty WAL with no watermark, the common
// case right after Rotate or for a brand new collection.
func Open(path string, syncWrites bool) (*WAL, error) {
	w, _, err := OpenAt(path, syncWrites, 0)
	return w, err
}

// Append writes an Insert or Upsert record and returns its assigned
// sequence number.
func (w *WAL) Append(kind Kind, externalId string, vector []float32, meta metadata.Doc) (uint64, error) {
	return w.append(Record{Kind: kind, ExternalId: externalId, Vector: vector, Metadata: meta})
}

// AppendDelete writes a Delete record.
func (w *WAL) AppendDelete(externalId string) (uint64, error) {
	return w.append(Record{Kind: KindDelete, ExternalId: externalId})
}

func (w *WAL) append(r Record) (uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	r.Seq = w.nextSeq
	payload := encodePayload(r)

	body := make([]byte, 0, fixedBodySize+len(payload))
	var seqBuf [8]byte
	encoding.PutUint64(seqBuf[:], r.Seq)
	body = append(body, seqBuf[:]...)
	body = append(body, byte(r.Kind))
	body = append(body, payload...)

	frame := make([]byte, lengthFieldSize+len(body)+crcFieldSize)
	encoding.PutUint32(frame[0:4], uint32(len(body)))
	copy(frame[4:4+len(body)], body)
	crc := format.CRC32(frame[:4+len(body)])
	encoding.PutUint32(frame[4+len(body):], crc)

	n, err := w.f.Write(frame)
	if err != nil {
		return 0, errs.New(errs.Io, "wal_append", err, "path", w.path)
	}
	if w.syncWrites {
		if err := w.f.Sync(); err != nil {
			return 0, errs.New(errs.Io, "wal_fsync", err, "path", w.path)
		}
	}
	w.nextSeq++
	w.size += int64(n)
	return r.Seq, nil
}

// Sync flushes the OS buffer for the WAL file, used by an explicit
// checkpoint or sync() call regardless of sync_writes.
func (w *WAL) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.f.Sync(); err != nil {
		return errs.New(errs.Io, "wal_sync", err, "path", w.path)
	}
	return nil
}

// Size reports the current on-disk size in bytes, compared against
// checkpoint_threshold to trigger auto-checkpoint (spec.md §4.5).
func (w *WAL) Size() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.size
}

// NextSeq reports the sequence number the next Append will assign —
// the watermark a concurrent checkpoint should record.
func (w *WAL) NextSeq() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.nextSeq
}

// Path returns the WAL's file path.
func (w *WAL) Path() string { return w.path }

// Rotate closes the current file and replaces it with an empty one at
// the same path, per spec.md §4.5 step 4: "new records go to an empty
// file; the old one is deleted." Call only immediately after a
// successful checkpoint whose watermark covers every record written so
// far.
func (w *WAL) Rotate() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.f.Close(); err != nil {
		return errs.New(errs.Io, "wal_rotate_close", err, "path", w.path)
	}
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_TRUNC|os.O_RDWR, 0o644)
	if err != nil {
		return errs.New(errs.Io, "wal_rotate_reopen", err, "path", w.path)
	}
	w.f = f
	w.size = 0
	return nil
}

// Close releases the WAL's file descriptor.
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.f.Close(); err != nil {
		return errs.New(errs.Io, "wal_close", err, "path", w.path)
	}
	return nil
}

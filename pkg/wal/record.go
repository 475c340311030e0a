package wal

import (
	"github.com/surgedb/surgedb/internal/encoding"
	"github.com/surgedb/surgedb/pkg/errs"
	"github.com/surgedb/surgedb/pkg/metadata"
)

// Kind identifies the mutation a Record carries, per spec.md §4.5.
type Kind uint8

const (
	KindInsert Kind = iota
	KindUpsert
	KindDelete
)

func (k Kind) String() string {
	switch k {
	case KindInsert:
		return "Insert"
	case KindUpsert:
		return "Upsert"
	case KindDelete:
		return "Delete"
	default:
		return "Unknown"
	}
}

// Record is one decoded WAL entry: a monotonic sequence number, a kind,
// and the kind-specific payload. Vector and Metadata are only populated
// for Insert/Upsert.
type Record struct {
	Seq        uint64
	Kind       Kind
	ExternalId string
	Vector     []float32
	Metadata   metadata.Doc
}

// encodePayload serializes the kind-specific body. Insert and Upsert
// share a layout: external id, vector dimension, vector bytes, then a
// length-prefixed metadata blob (empty when nil). Delete carries only
// the external id.
func encodePayload(r Record) []byte {
	var buf []byte
	buf = encoding.PutString(buf, r.ExternalId)
	if r.Kind == KindDelete {
		return buf
	}
	var dimBuf [4]byte
	encoding.PutUint32(dimBuf[:], uint32(len(r.Vector)))
	buf = append(buf, dimBuf[:]...)
	buf = append(buf, encoding.EncodeVector(r.Vector)...)
	metaBytes, err := metadata.Marshal(r.Metadata)
	if err != nil {
		metaBytes = nil
	}
	buf = encoding.PutBytes(buf, metaBytes)
	return buf
}

// decodePayload is the inverse of encodePayload, given the already-known
// kind.
func decodePayload(kind Kind, payload []byte) (Record, error) {
	r := Record{Kind: kind}
	ext, off, err := encoding.GetString(payload, 0)
	if err != nil {
		return Record{}, errs.New(errs.WalCorrupted, "decode_payload", err)
	}
	r.ExternalId = ext
	if kind == KindDelete {
		return r, nil
	}
	if off+4 > len(payload) {
		return Record{}, errs.New(errs.WalCorrupted, "decode_payload", nil, "reason", "truncated vector dimension")
	}
	dim := int(encoding.GetUint32(payload[off:]))
	off += 4
	if off+dim*4 > len(payload) {
		return Record{}, errs.New(errs.WalCorrupted, "decode_payload", nil, "reason", "truncated vector body")
	}
	vec, err := encoding.GetVector(payload[off:off+dim*4], dim)
	if err != nil {
		return Record{}, errs.New(errs.WalCorrupted, "decode_payload", err)
	}
	r.Vector = vec
	off += dim * 4
	metaBytes, _, err := encoding.GetBytes(payload, off)
	if err != nil {
		return Record{}, errs.New(errs.WalCorrupted, "decode_payload", err)
	}
	doc, err := metadata.Unmarshal(metaBytes)
	if err != nil {
		return Record{}, errs.New(errs.WalCorrupted, "decode_payload", err)
	}
	r.Metadata = doc
	return r, nil
}

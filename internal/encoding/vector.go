// Package encoding provides the little-endian binary codecs shared by the
// WAL, snapshot and mmap storage formats: float32 vectors, uint32/uint64
// integers, and length-prefixed strings and byte blobs.
//
// Adapted from the teacher's internal/encoding/utils.go EncodeVector /
// DecodeVector (see DESIGN.md); reworked for the fixed-dimension,
// no-self-describing-length wire format spec.md §6 requires (dimension
// lives in the manifest/header, not per-record). Decoders copy out of
// their source buffer, so results never alias a memory-mapped slice.
package encoding

import (
	"encoding/binary"
	"fmt"
	"math"
)

// PutVector writes vec into dst (which must be len(vec)*4 bytes) as
// little-endian IEEE-754 binary32, per spec.md §6.
func PutVector(dst []byte, vec []float32) {
	for i, x := range vec {
		binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(x))
	}
}

// EncodeVector allocates and returns the little-endian encoding of vec.
func EncodeVector(vec []float32) []byte {
	out := make([]byte, len(vec)*4)
	PutVector(out, vec)
	return out
}

// GetVector decodes dim float32s from src (which must be at least dim*4
// bytes) into a freshly allocated slice.
func GetVector(src []byte, dim int) ([]float32, error) {
	if len(src) < dim*4 {
		return nil, fmt.Errorf("encoding: vector buffer too short: need %d bytes, have %d", dim*4, len(src))
	}
	out := make([]float32, dim)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(src[i*4:]))
	}
	return out, nil
}

// PutUint32 / PutUint64 are little-endian helpers kept alongside the
// vector codec so WAL/snapshot writers never reach for binary.Write's
// reflection-based path.
func PutUint32(dst []byte, v uint32) { binary.LittleEndian.PutUint32(dst, v) }
func PutUint64(dst []byte, v uint64) { binary.LittleEndian.PutUint64(dst, v) }
func GetUint32(src []byte) uint32    { return binary.LittleEndian.Uint32(src) }
func GetUint64(src []byte) uint64    { return binary.LittleEndian.Uint64(src) }

// PutString length-prefixes s with a uint32 and appends it to dst,
// returning the extended slice.
func PutString(dst []byte, s string) []byte {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(s)))
	dst = append(dst, lenBuf[:]...)
	dst = append(dst, s...)
	return dst
}

// GetString reads a uint32-length-prefixed string from src starting at
// offset, returning the string and the offset just past it.
func GetString(src []byte, offset int) (string, int, error) {
	if offset+4 > len(src) {
		return "", 0, fmt.Errorf("encoding: truncated string length at offset %d", offset)
	}
	n := int(binary.LittleEndian.Uint32(src[offset:]))
	offset += 4
	if offset+n > len(src) {
		return "", 0, fmt.Errorf("encoding: truncated string body at offset %d", offset)
	}
	return string(src[offset : offset+n]), offset + n, nil
}

// PutBytes length-prefixes b with a uint32 and appends it to dst.
func PutBytes(dst []byte, b []byte) []byte {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(b)))
	dst = append(dst, lenBuf[:]...)
	dst = append(dst, b...)
	return dst
}

// GetBytes reads a uint32-length-prefixed byte blob from src starting at
// offset, returning a copy of the bytes and the offset just past it.
func GetBytes(src []byte, offset int) ([]byte, int, error) {
	if offset+4 > len(src) {
		return nil, 0, fmt.Errorf("encoding: truncated bytes length at offset %d", offset)
	}
	n := int(binary.LittleEndian.Uint32(src[offset:]))
	offset += 4
	if offset+n > len(src) {
		return nil, 0, fmt.Errorf("encoding: truncated bytes body at offset %d", offset)
	}
	out := make([]byte, n)
	copy(out, src[offset:offset+n])
	return out, offset + n, nil
}

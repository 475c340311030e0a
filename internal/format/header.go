// Package format implements the common on-disk file header described by
// spec.md §6: an 8-byte magic, a u32 format version, a u32 flags field and
// a trailing u32 CRC32 over the header. manifest.bin and snapshot.bin open
// with this header before their body-specific layout; the mmap storage
// file writes its own header (same Magic and Version, then dimension,
// count and CRC32), and the WAL has no file header.
package format

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

// Magic is the 8-byte identifier prefixing every surgedb file, per
// spec.md §6.
var Magic = [8]byte{'S', 'U', 'R', 'G', 'E', 'D', 'B', 0}

// HeaderSize is the fixed encoded size of Header: 8 (magic) + 4 (version)
// + 4 (flags) + 4 (crc).
const HeaderSize = 8 + 4 + 4 + 4

// Version is the current format version this build writes and the
// highest version it will read.
const Version = uint32(1)

// Header is the common prefix of every surgedb file.
type Header struct {
	Version uint32
	Flags   uint32
}

// Encode serializes h to a HeaderSize byte buffer with a trailing CRC32
// over magic+version+flags.
func (h Header) Encode() []byte {
	buf := make([]byte, HeaderSize)
	copy(buf[0:8], Magic[:])
	binary.LittleEndian.PutUint32(buf[8:12], h.Version)
	binary.LittleEndian.PutUint32(buf[12:16], h.Flags)
	crc := crc32.ChecksumIEEE(buf[0:16])
	binary.LittleEndian.PutUint32(buf[16:20], crc)
	return buf
}

// DecodeHeader validates magic and CRC and returns the parsed Header.
func DecodeHeader(buf []byte, supportedVersion uint32) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, fmt.Errorf("format: header truncated: need %d bytes, have %d", HeaderSize, len(buf))
	}
	if string(buf[0:8]) != string(Magic[:]) {
		return Header{}, fmt.Errorf("format: bad magic %q", buf[0:8])
	}
	version := binary.LittleEndian.Uint32(buf[8:12])
	flags := binary.LittleEndian.Uint32(buf[12:16])
	wantCRC := binary.LittleEndian.Uint32(buf[16:20])
	gotCRC := crc32.ChecksumIEEE(buf[0:16])
	if wantCRC != gotCRC {
		return Header{}, fmt.Errorf("format: header checksum mismatch: want %d got %d", wantCRC, gotCRC)
	}
	if version > supportedVersion {
		return Header{}, fmt.Errorf("format: unsupported version %d (supported up to %d)", version, supportedVersion)
	}
	return Header{Version: version, Flags: flags}, nil
}

// CRC32 is a thin re-export so callers building record/body checksums
// don't need a second import of hash/crc32 with a different name.
func CRC32(b []byte) uint32 { return crc32.ChecksumIEEE(b) }

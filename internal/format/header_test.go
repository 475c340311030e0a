package format

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeHeaderRoundTrip(t *testing.T) {
	h := Header{Version: Version, Flags: 0x1}
	buf := h.Encode()
	assert.Len(t, buf, HeaderSize)

	got, err := DecodeHeader(buf, Version)
	require.NoError(t, err)
	assert.Equal(t, h, got)
}

func TestDecodeHeaderRejectsBadMagic(t *testing.T) {
	buf := Header{Version: Version}.Encode()
	buf[0] = 'X'
	_, err := DecodeHeader(buf, Version)
	assert.Error(t, err)
}

func TestDecodeHeaderRejectsChecksumMismatch(t *testing.T) {
	buf := Header{Version: Version}.Encode()
	buf[12] ^= 0xFF
	_, err := DecodeHeader(buf, Version)
	assert.Error(t, err)
}

func TestDecodeHeaderRejectsFutureVersion(t *testing.T) {
	buf := Header{Version: Version + 1}.Encode()
	_, err := DecodeHeader(buf, Version)
	assert.Error(t, err)
}

func TestDecodeHeaderRejectsTruncatedBuffer(t *testing.T) {
	_, err := DecodeHeader(make([]byte, HeaderSize-1), Version)
	assert.Error(t, err)
}

func TestCRC32MatchesIEEETable(t *testing.T) {
	assert.Equal(t, uint32(0xCBF43926), CRC32([]byte("123456789")))
}

package encoding

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeVectorRoundTrip(t *testing.T) {
	vec := []float32{1.5, -2.25, 0, 3.125}
	data := EncodeVector(vec)
	assert.Len(t, data, len(vec)*4)

	got, err := GetVector(data, len(vec))
	require.NoError(t, err)
	assert.Equal(t, vec, got)
}

func TestGetVectorRejectsTruncatedBuffer(t *testing.T) {
	_, err := GetVector(make([]byte, 4), 2)
	assert.Error(t, err)
}

func TestPutGetUint32AndUint64(t *testing.T) {
	var buf32 [4]byte
	PutUint32(buf32[:], 0xDEADBEEF)
	assert.Equal(t, uint32(0xDEADBEEF), GetUint32(buf32[:]))

	var buf64 [8]byte
	PutUint64(buf64[:], 0x0102030405060708)
	assert.Equal(t, uint64(0x0102030405060708), GetUint64(buf64[:]))
}

func TestPutGetStringRoundTrip(t *testing.T) {
	dst := PutString(nil, "hello")
	dst = PutString(dst, "world")

	s1, off, err := GetString(dst, 0)
	require.NoError(t, err)
	assert.Equal(t, "hello", s1)

	s2, off, err := GetString(dst, off)
	require.NoError(t, err)
	assert.Equal(t, "world", s2)
	assert.Equal(t, len(dst), off)
}

func TestGetStringRejectsTruncatedLength(t *testing.T) {
	_, _, err := GetString([]byte{1, 2}, 0)
	assert.Error(t, err)
}

func TestGetStringRejectsTruncatedBody(t *testing.T) {
	dst := PutString(nil, "hello")
	_, _, err := GetString(dst[:len(dst)-1], 0)
	assert.Error(t, err)
}

func TestPutGetBytesRoundTrip(t *testing.T) {
	dst := PutBytes(nil, []byte{1, 2, 3})
	got, off, err := GetBytes(dst, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, got)
	assert.Equal(t, len(dst), off)
}

func TestGetBytesReturnsACopyNotAView(t *testing.T) {
	dst := PutBytes(nil, []byte{9, 9, 9})
	got, _, err := GetBytes(dst, 0)
	require.NoError(t, err)
	got[0] = 0
	assert.Equal(t, byte(9), dst[4])
}

package metadata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	doc := Doc{"tag": "x", "count": float64(3), "nested": map[string]any{"ok": true}}
	data, err := Marshal(doc)
	require.NoError(t, err)

	got, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, doc, got)
}

func TestMarshalNilDocYieldsNilBytes(t *testing.T) {
	data, err := Marshal(nil)
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestUnmarshalEmptyYieldsNilDoc(t *testing.T) {
	doc, err := Unmarshal(nil)
	require.NoError(t, err)
	assert.Nil(t, doc)
}

func TestAlwaysMatchesEverything(t *testing.T) {
	assert.True(t, Always.Matches(nil))
	assert.True(t, Always.Matches(Doc{"a": 1}))
}

func TestMatcherFuncAdaptsPlainFunction(t *testing.T) {
	m := MatcherFunc(func(d Doc) bool { return d["tag"] == "keep" })
	assert.True(t, m.Matches(Doc{"tag": "keep"}))
	assert.False(t, m.Matches(Doc{"tag": "drop"}))
}

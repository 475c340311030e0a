package snapshot

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/surgedb/surgedb/pkg/distance"
	"github.com/surgedb/surgedb/pkg/hnsw"
	"github.com/surgedb/surgedb/pkg/metadata"
	"github.com/surgedb/surgedb/pkg/quantization"
	"github.com/surgedb/surgedb/pkg/storage"
)

func buildState(t *testing.T, kind BackendKind) State {
	t.Helper()
	dim := 4
	vecs := [][]float32{
		{1, 0, 0, 0},
		{0, 1, 0, 0},
		{0, 0, 1, 0},
	}
	params := hnsw.DefaultParams(distance.Cosine)

	st := State{
		Dim:           dim,
		Metric:        distance.Cosine,
		Watermark:     42,
		HnswParams:    params,
		GraphMaxLayer: 1,
		HasEntry:      true,
		EntryPoint:    0,
		IdEntries: []IdEntry{
			{InternalId: 0, ExternalId: "a", Metadata: metadata.Doc{"tag": "x"}, Alive: true},
			{InternalId: 1, ExternalId: "b", Metadata: nil, Alive: true},
			{InternalId: 2, ExternalId: "c", Metadata: nil, Alive: false},
		},
		Graph: []GraphNode{
			{MaxLayer: 1, Alive: true, Neighbors: [][]uint32{{1, 2}, {1}}},
			{MaxLayer: 0, Alive: true, Neighbors: [][]uint32{{0}}},
			{MaxLayer: 0, Alive: false, Neighbors: [][]uint32{{}}},
		},
		BackendKind: kind,
	}

	switch kind {
	case BackendSQ8:
		for _, v := range vecs {
			st.SQ8 = append(st.SQ8, quantization.Sq8Encode(v))
		}
	case BackendBinary:
		for _, v := range vecs {
			st.Binary = append(st.Binary, quantization.BinaryEncode(v))
		}
	default:
		st.Vectors = vecs
	}
	return st
}

func TestWriteLoadRoundTripPlain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.bin")
	st := buildState(t, BackendF32)
	require.NoError(t, Write(path, st))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, st.Dim, loaded.Dim)
	assert.Equal(t, st.Watermark, loaded.Watermark)
	assert.Equal(t, st.Vectors, loaded.Vectors)
	assert.Equal(t, st.IdEntries, loaded.IdEntries)
	assert.Equal(t, st.Graph, loaded.Graph)
	assert.Equal(t, st.HnswParams, loaded.HnswParams)

	backend := loaded.BuildPlainBackend()
	assert.Equal(t, 3, backend.Len())
	v, ok := backend.Get(0)
	require.True(t, ok)
	assert.Equal(t, []float32{1, 0, 0, 0}, v)
}

func TestWriteLoadRoundTripSQ8(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.bin")
	st := buildState(t, BackendSQ8)
	require.NoError(t, Write(path, st))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Len(t, loaded.SQ8, 3)
	assert.Equal(t, st.SQ8, loaded.SQ8)

	backend := loaded.BuildQuantizedBackend()
	assert.Equal(t, storage.SQ8, backend.(*storage.QuantizedStore).Mode())
}

func TestWriteLoadRoundTripBinary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.bin")
	st := buildState(t, BackendBinary)
	require.NoError(t, Write(path, st))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Len(t, loaded.Binary, 3)
	for i := range st.Binary {
		assert.Equal(t, st.Binary[i].Bytes(), loaded.Binary[i].Bytes())
	}
}

func TestLoadRejectsCorruptedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.bin")
	st := buildState(t, BackendF32)
	require.NoError(t, Write(path, st))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[len(data)-1] ^= 0xFF
	require.NoError(t, os.WriteFile(path, data, 0o644))

	_, err = Load(path)
	require.Error(t, err)
}

func TestBuildIdMapAndGraphReconstructBijectionAndTopology(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.bin")
	st := buildState(t, BackendF32)
	require.NoError(t, Write(path, st))
	loaded, err := Load(path)
	require.NoError(t, err)

	m := loaded.BuildIdMap()
	require.NoError(t, m.CheckBijection())
	assert.Equal(t, 2, m.Len())
	_, ok := m.Lookup("c")
	assert.False(t, ok, "c was tombstoned in the snapshot")

	g := loaded.BuildGraph()
	ep, hasEntry := g.EntryPoint()
	assert.True(t, hasEntry)
	assert.Equal(t, uint32(0), ep)
	assert.Equal(t, []uint32{1, 2}, g.NeighborsAt(0, 0))
}

package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/surgedb/surgedb/pkg/config"
	"github.com/surgedb/surgedb/pkg/distance"
)

func TestOpenCreateCollectionAndClose(t *testing.T) {
	e, err := Open(Options{Dir: t.TempDir()})
	require.NoError(t, err)

	h, err := e.Create("docs", config.DefaultConfig(4, distance.Cosine))
	require.NoError(t, err)
	require.NoError(t, h.Insert("a", []float32{1, 0, 0, 0}, nil))

	assert.Equal(t, []string{"docs"}, e.Collections())
	assert.NotNil(t, e.Metrics())

	require.NoError(t, e.Close())
}

func TestReopenExistingCollectionAcrossEngineInstances(t *testing.T) {
	dir := t.TempDir()
	e1, err := Open(Options{Dir: dir})
	require.NoError(t, err)
	h1, err := e1.Create("docs", config.DefaultConfig(3, distance.Cosine))
	require.NoError(t, err)
	require.NoError(t, h1.Insert("a", []float32{1, 0, 0}, nil))
	require.NoError(t, h1.Checkpoint())
	require.NoError(t, e1.Close())

	e2, err := Open(Options{Dir: dir})
	require.NoError(t, err)
	h2, err := e2.Collection("docs")
	require.NoError(t, err)
	assert.Equal(t, 1, h2.Len())
	require.NoError(t, e2.Close())
}

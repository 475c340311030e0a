package manager

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/surgedb/surgedb/pkg/config"
	"github.com/surgedb/surgedb/pkg/distance"
	"github.com/surgedb/surgedb/pkg/errs"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := New(t.TempDir(), Options{})
	require.NoError(t, err)
	return m
}

func TestCreateThenGetReturnsSameCollection(t *testing.T) {
	m := newTestManager(t)
	cfg := config.DefaultConfig(3, distance.Cosine)

	h1, err := m.Create("widgets", cfg)
	require.NoError(t, err)
	require.NoError(t, h1.Insert("a", []float32{1, 0, 0}, nil))

	h2, err := m.Get("widgets")
	require.NoError(t, err)
	defer h2.Release()

	assert.Equal(t, 1, h2.Len())
	h1.Release()
}

func TestCreateDuplicateNameFails(t *testing.T) {
	m := newTestManager(t)
	cfg := config.DefaultConfig(3, distance.Cosine)

	h, err := m.Create("dup", cfg)
	require.NoError(t, err)
	defer h.Release()

	_, err = m.Create("dup", cfg)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.DuplicateCollection))
}

func TestGetUnknownCollectionFails(t *testing.T) {
	m := newTestManager(t)
	_, err := m.Get("ghost")
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.CollectionNotFound))
}

func TestDropUnknownCollectionFails(t *testing.T) {
	m := newTestManager(t)
	err := m.Drop("ghost")
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.CollectionNotFound))
}

func TestListIsLexicographic(t *testing.T) {
	m := newTestManager(t)
	cfg := config.DefaultConfig(3, distance.Cosine)
	for _, name := range []string{"zeta", "alpha", "mid"} {
		h, err := m.Create(name, cfg)
		require.NoError(t, err)
		h.Release()
	}
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, m.List())
}

func TestDropIsDeferredUntilHandlesRelease(t *testing.T) {
	m := newTestManager(t)
	cfg := config.DefaultConfig(3, distance.Cosine)

	h1, err := m.Create("deferred", cfg)
	require.NoError(t, err)
	h2, err := m.Get("deferred")
	require.NoError(t, err)

	require.NoError(t, m.Drop("deferred"))
	assert.Empty(t, m.List(), "dropped collection must not be listed even while handles remain open")

	h1.Release()
	_, err = m.Get("deferred")
	assert.True(t, errs.Is(err, errs.CollectionNotFound), "collection stays pending until the last handle releases")

	h2.Release()
}

func TestCloseClosesEveryOpenCollection(t *testing.T) {
	m := newTestManager(t)
	cfg := config.DefaultConfig(3, distance.Cosine)

	h1, err := m.Create("one", cfg)
	require.NoError(t, err)
	h2, err := m.Create("two", cfg)
	require.NoError(t, err)
	_ = h1
	_ = h2

	require.NoError(t, m.Close())
	assert.Empty(t, m.List())
}

// TestCloseClosesInReverseCreationOrder verifies the ordering Close's doc
// comment promises: the most recently created collection is closed first.
func TestCloseClosesInReverseCreationOrder(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	m, err := New(t.TempDir(), Options{Logger: zap.New(core)})
	require.NoError(t, err)

	cfg := config.DefaultConfig(3, distance.Cosine)
	for _, name := range []string{"first", "second", "third"} {
		h, err := m.Create(name, cfg)
		require.NoError(t, err)
		h.Release()
	}

	require.NoError(t, m.Close())

	var closedOrder []string
	for _, entry := range logs.All() {
		if entry.Message != "collection closed" {
			continue
		}
		for _, f := range entry.Context {
			if f.Key == "collection" {
				closedOrder = append(closedOrder, f.String)
			}
		}
	}
	assert.Equal(t, []string{"third", "second", "first"}, closedOrder)
}

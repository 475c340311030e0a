package collection

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/surgedb/surgedb/pkg/config"
	"github.com/surgedb/surgedb/pkg/distance"
	"github.com/surgedb/surgedb/pkg/errs"
	"github.com/surgedb/surgedb/pkg/metadata"
)

func vec(x, y, z float32) []float32 { return []float32{x, y, z} }

func newTestCollection(t *testing.T, cfg config.Config) (*Collection, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "col")
	c, err := Create(dir, "t", cfg, Options{})
	require.NoError(t, err)
	return c, dir
}

func TestInsertAndSearchExactD3(t *testing.T) {
	cfg := config.DefaultConfig(3, distance.Euclidean)
	c, _ := newTestCollection(t, cfg)
	defer c.Close()

	require.NoError(t, c.Insert("a", vec(1, 0, 0), metadata.Doc{"tag": "x"}))
	require.NoError(t, c.Insert("b", vec(0, 1, 0), nil))
	require.NoError(t, c.Insert("c", vec(0, 0, 1), nil))

	res, err := c.Search(vec(1, 0, 0), 1, nil)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "a", res[0].ExternalId)
	assert.Equal(t, metadata.Doc{"tag": "x"}, res[0].Metadata)
}

func TestInsertRejectsDuplicateExternalId(t *testing.T) {
	cfg := config.DefaultConfig(3, distance.Cosine)
	c, _ := newTestCollection(t, cfg)
	defer c.Close()

	require.NoError(t, c.Insert("a", vec(1, 0, 0), nil))
	err := c.Insert("a", vec(0, 1, 0), nil)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.DuplicateId))
}

func TestInsertRejectsDimensionMismatch(t *testing.T) {
	cfg := config.DefaultConfig(3, distance.Cosine)
	c, _ := newTestCollection(t, cfg)
	defer c.Close()

	err := c.Insert("a", vec(1, 0, 0)[:2], nil)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.DimensionMismatch))
}

func TestDeleteThenRefillWithSameExternalId(t *testing.T) {
	cfg := config.DefaultConfig(3, distance.Euclidean)
	c, _ := newTestCollection(t, cfg)
	defer c.Close()

	require.NoError(t, c.Insert("a", vec(1, 0, 0), nil))
	ok, err := c.Delete("a")
	require.NoError(t, err)
	assert.True(t, ok)

	_, _, found := c.Get("a")
	assert.False(t, found, "deleted record must not be visible")

	require.NoError(t, c.Insert("a", vec(0, 1, 0), metadata.Doc{"v": 2}))
	got, meta, found := c.Get("a")
	require.True(t, found)
	assert.Equal(t, vec(0, 1, 0), got)
	assert.Equal(t, metadata.Doc{"v": 2}, meta)
}

func TestUpsertReplacesVectorAndTombstonesOld(t *testing.T) {
	cfg := config.DefaultConfig(3, distance.Euclidean)
	c, _ := newTestCollection(t, cfg)
	defer c.Close()

	require.NoError(t, c.Insert("a", vec(1, 0, 0), nil))
	require.NoError(t, c.Upsert("a", vec(0, 0, 1), metadata.Doc{"v": 9}))

	got, meta, found := c.Get("a")
	require.True(t, found)
	assert.Equal(t, vec(0, 0, 1), got)
	assert.Equal(t, metadata.Doc{"v": 9}, meta)
	assert.Equal(t, 1, c.Len())
}

func TestSearchHonorsMetadataFilter(t *testing.T) {
	cfg := config.DefaultConfig(3, distance.Euclidean)
	c, _ := newTestCollection(t, cfg)
	defer c.Close()

	require.NoError(t, c.Insert("a", vec(1, 0, 0), metadata.Doc{"group": "keep"}))
	require.NoError(t, c.Insert("b", vec(1, 0, 0.01), metadata.Doc{"group": "skip"}))

	filter := metadata.MatcherFunc(func(d metadata.Doc) bool { return d["group"] == "keep" })
	res, err := c.Search(vec(1, 0, 0), 2, filter)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "a", res[0].ExternalId)
}

func TestCheckpointThenReopenSearchIsBitIdentical(t *testing.T) {
	cfg := config.DefaultConfig(3, distance.Euclidean)
	c, dir := newTestCollection(t, cfg)

	require.NoError(t, c.Insert("a", vec(1, 0, 0), metadata.Doc{"tag": "a"}))
	require.NoError(t, c.Insert("b", vec(0, 1, 0), nil))
	require.NoError(t, c.Insert("c", vec(0, 0, 1), nil))

	before, err := c.Search(vec(0.9, 0.1, 0), 3, nil)
	require.NoError(t, err)

	require.NoError(t, c.Checkpoint())
	require.NoError(t, c.Close())

	reopened, err := Open(dir, "t", Options{})
	require.NoError(t, err)
	defer reopened.Close()

	after, err := reopened.Search(vec(0.9, 0.1, 0), 3, nil)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestReopenReplaysWalWrittenAfterLastCheckpoint(t *testing.T) {
	cfg := config.DefaultConfig(3, distance.Euclidean)
	c, dir := newTestCollection(t, cfg)

	require.NoError(t, c.Insert("a", vec(1, 0, 0), nil))
	require.NoError(t, c.Checkpoint())
	require.NoError(t, c.Insert("b", vec(0, 1, 0), nil))
	require.NoError(t, c.Close())

	reopened, err := Open(dir, "t", Options{})
	require.NoError(t, err)
	defer reopened.Close()

	assert.Equal(t, 2, reopened.Len())
	_, _, foundA := reopened.Get("a")
	_, _, foundB := reopened.Get("b")
	assert.True(t, foundA)
	assert.True(t, foundB)
}

func TestSQ8WithRerankRanksExactNearestFirst(t *testing.T) {
	cfg := config.DefaultConfig(8, distance.Euclidean)
	cfg.Quantization = config.SQ8
	cfg.KeepOriginals = true
	cfg.RerankMultiplier = 4
	c, _ := newTestCollection(t, cfg)
	defer c.Close()

	query := []float32{1, 0, 0, 0, 0, 0, 0, 0}
	require.NoError(t, c.Insert("near", query, nil))
	for i := 0; i < 20; i++ {
		v := make([]float32, 8)
		v[i%8] = 1
		v[(i+1)%8] = 0.3
		require.NoError(t, c.Insert(randExternal(i), v, nil))
	}

	res, err := c.Search(query, 1, nil)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "near", res[0].ExternalId)
}

func TestSearchExactMatchesIndexedSearchOnSmallSet(t *testing.T) {
	cfg := config.DefaultConfig(3, distance.Euclidean)
	c, _ := newTestCollection(t, cfg)
	defer c.Close()

	require.NoError(t, c.Insert("a", vec(1, 0, 0), nil))
	require.NoError(t, c.Insert("b", vec(0, 1, 0), nil))
	require.NoError(t, c.Insert("c", vec(0, 0, 1), nil))

	exact, err := c.SearchExact(vec(1, 0, 0), 1, nil)
	require.NoError(t, err)
	require.Len(t, exact, 1)
	assert.Equal(t, "a", exact[0].ExternalId)
	assert.InDelta(t, 0, exact[0].Distance, 1e-5)
}

func randExternal(i int) string {
	return "v" + string(rune('a'+i%26)) + string(rune('0'+i/26))
}

// TestMmapReopenWithoutCheckpointReplaysWalAgainstExistingRows reproduces a
// crash-recovery round-trip on an mmap-persisted collection: the backing
// file already holds a row for every historical insert by the time the WAL
// is replayed, so recovery must not call backend.Insert again for rows that
// are already physically on disk.
func TestMmapReopenWithoutCheckpointReplaysWalAgainstExistingRows(t *testing.T) {
	cfg := config.DefaultConfig(3, distance.Euclidean)
	cfg.Persistence = config.Mmap
	c, dir := newTestCollection(t, cfg)

	require.NoError(t, c.Insert("a", vec(1, 0, 0), metadata.Doc{"tag": "a"}))
	require.NoError(t, c.Insert("b", vec(0, 1, 0), nil))
	require.NoError(t, c.Insert("c", vec(0, 0, 1), nil))
	require.NoError(t, c.Close())

	reopened, err := Open(dir, "t", Options{})
	require.NoError(t, err)
	defer reopened.Close()

	assert.Equal(t, 3, reopened.Len())
	for _, want := range []string{"a", "b", "c"} {
		gotVec, _, found := reopened.Get(want)
		require.True(t, found, "id %q must resolve after reopen", want)
		assert.NotNil(t, gotVec)
	}

	res, err := reopened.Search(vec(1, 0, 0), 1, nil)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "a", res[0].ExternalId)
}

// TestMmapReopenAcrossMultipleIncarnationsStaysAligned exercises the same
// recovery path twice in a row: each reopen both replays a WAL written
// since the last open and appends fresh rows of its own, so the derived
// replay baseline must account for the mmap file's full cumulative history,
// not just the most recent incarnation.
func TestMmapReopenAcrossMultipleIncarnationsStaysAligned(t *testing.T) {
	cfg := config.DefaultConfig(3, distance.Euclidean)
	cfg.Persistence = config.Mmap
	c, dir := newTestCollection(t, cfg)

	require.NoError(t, c.Insert("a", vec(1, 0, 0), nil))
	require.NoError(t, c.Close())

	c2, err := Open(dir, "t", Options{})
	require.NoError(t, err)
	require.NoError(t, c2.Insert("b", vec(0, 1, 0), nil))
	require.NoError(t, c2.Close())

	c3, err := Open(dir, "t", Options{})
	require.NoError(t, err)
	defer c3.Close()

	assert.Equal(t, 2, c3.Len())
	_, _, foundA := c3.Get("a")
	_, _, foundB := c3.Get("b")
	assert.True(t, foundA)
	assert.True(t, foundB)

	res, err := c3.Search(vec(0, 1, 0), 1, nil)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "b", res[0].ExternalId)
}

// TestOpenFailsOnUnreadableSnapshotInsteadOfStartingEmpty guards against
// treating any snapshot read failure as "no snapshot." Only a genuinely
// absent file should fall back to an empty collection; here the snapshot
// path exists but isn't a regular file, so Open must surface the error
// instead of silently discarding the checkpointed data it points at.
func TestOpenFailsOnUnreadableSnapshotInsteadOfStartingEmpty(t *testing.T) {
	cfg := config.DefaultConfig(3, distance.Euclidean)
	c, dir := newTestCollection(t, cfg)

	require.NoError(t, c.Insert("a", vec(1, 0, 0), nil))
	require.NoError(t, c.Checkpoint())
	require.NoError(t, c.Close())

	snapPath := filepath.Join(dir, snapshotFile)
	require.NoError(t, os.Remove(snapPath))
	require.NoError(t, os.Mkdir(snapPath, 0o755))

	_, err := Open(dir, "t", Options{})
	require.Error(t, err)
	assert.False(t, errs.Is(err, errs.CollectionNotFound))
}

func TestNeedsRebuildAndRebuildClearsTombstonesWhilePreservingLiveData(t *testing.T) {
	cfg := config.DefaultConfig(3, distance.Euclidean)
	c, _ := newTestCollection(t, cfg)
	defer c.Close()

	require.NoError(t, c.Insert("a", vec(1, 0, 0), metadata.Doc{"tag": "a"}))
	require.NoError(t, c.Insert("b", vec(0, 1, 0), nil))
	require.NoError(t, c.Insert("c", vec(0, 0, 1), nil))
	assert.False(t, c.NeedsRebuild(), "fresh collection has no tombstones")

	ok, err := c.Delete("a")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = c.Delete("b")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, c.NeedsRebuild(), "2 of 3 nodes tombstoned should cross the default 0.3 threshold")

	require.NoError(t, c.Rebuild(context.Background()))
	assert.False(t, c.NeedsRebuild())
	assert.Equal(t, 1, c.Len())

	_, _, foundA := c.Get("a")
	_, _, foundB := c.Get("b")
	assert.False(t, foundA)
	assert.False(t, foundB)

	res, err := c.Search(vec(0, 0, 1), 1, nil)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "c", res[0].ExternalId)
}

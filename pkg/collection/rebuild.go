package collection

import (
	"context"

	"go.uber.org/zap"

	"github.com/surgedb/surgedb/pkg/hnsw"
	"github.com/surgedb/surgedb/pkg/idmap"
)

// RebuildPolicy governs when a collection is considered due for a
// rebuild: the threshold the graph's tombstone ratio
// (tombstones / (live + tombstones)) is compared against, per
// SPEC_FULL.md §8 decision 2.
type RebuildPolicy struct {
	Threshold float64
}

// DefaultRebuildPolicy matches SPEC_FULL.md §8 decision 2's default.
func DefaultRebuildPolicy() RebuildPolicy {
	return RebuildPolicy{Threshold: 0.3}
}

// NeedsRebuild reports whether the graph's tombstone ratio has reached
// the collection's configured rebuild threshold. It never triggers a
// rebuild itself — per SPEC_FULL.md §8 decision 2, rebuild is a
// stop-the-world, writer-exclusive operation the host decides when to
// call.
func (c *Collection) NeedsRebuild() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.graph.TombstoneRatio() >= c.rebuildPolicy.Threshold
}

// Rebuild re-inserts every live vector into a fresh HNSW graph and a
// fresh ID map, dropping every tombstoned slot's dead weight, then
// checkpoints the result, per SPEC_FULL.md §8 decision 2. Live
// InternalIds and their backend rows are left untouched — only the
// logical index structures (graph, ID map) are rebuilt, so every new
// graph node is produced by the normal insertion path and its
// neighbor lists contain no stale edges into tombstoned nodes.
func (c *Collection) Rebuild(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	live := c.ids.List(0, c.ids.Len())
	freshGraph := hnsw.New(c.cfg.HnswParams())
	freshIds := idmap.New()

	for _, e := range live {
		if err := ctx.Err(); err != nil {
			return err
		}
		vec, ok := c.backend.Get(e.InternalId)
		if !ok {
			continue
		}
		freshIds.AllocateAt(e.InternalId, e.ExternalId, e.Metadata, true)
		freshGraph.Insert(e.InternalId, vec, c.backend)
	}

	c.graph = freshGraph
	c.ids = freshIds
	c.logger.Info("collection rebuilt", zap.String("collection", c.name), zap.Int("live", len(live)))
	return c.checkpointLocked()
}

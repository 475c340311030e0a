package collection

import (
	"time"

	"github.com/surgedb/surgedb/pkg/bruteforce"
	"github.com/surgedb/surgedb/pkg/config"
	"github.com/surgedb/surgedb/pkg/errs"
	"github.com/surgedb/surgedb/pkg/idmap"
	"github.com/surgedb/surgedb/pkg/metadata"
	"github.com/surgedb/surgedb/pkg/storage"
	"github.com/surgedb/surgedb/pkg/wal"
)

// SearchResult is one ranked hit, mapped back from an InternalId to the
// caller-facing ExternalId/metadata per spec.md §4.6.
type SearchResult struct {
	ExternalId string
	Distance   float32
	Metadata   metadata.Doc
}

func (c *Collection) validateDim(vec []float32) error {
	if len(vec) != c.cfg.Dimensions {
		return errs.New(errs.DimensionMismatch, "validate", nil, "got", len(vec), "want", c.cfg.Dimensions)
	}
	return nil
}

// Insert adds a new vector under externalId, failing with DuplicateId if
// it already exists, per spec.md §4.6.
func (c *Collection) Insert(externalId string, vec []float32, meta metadata.Doc) error {
	if err := c.validateDim(vec); err != nil {
		c.observe("insert", err)
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.ids.Lookup(externalId); ok {
		err := errs.New(errs.DuplicateId, "insert", nil, "id", externalId)
		c.observe("insert", err)
		return err
	}

	if _, err := c.w.Append(wal.KindInsert, externalId, vec, meta); err != nil {
		c.observe("insert", err)
		return err
	}
	internalId, err := c.backend.Insert(vec)
	if err != nil {
		c.observe("insert", err)
		return err
	}
	if _, err := c.ids.Allocate(externalId, meta); err != nil {
		c.observe("insert", err)
		return err
	}
	c.graph.Insert(internalId, vec, c.backend)

	c.maybeAutoCheckpoint()
	c.observe("insert", nil)
	return nil
}

// Upsert replaces the vector (and metadata) for externalId, or inserts
// it fresh if absent. Per SPEC_FULL.md §8 decision 1, an upsert always
// allocates a new InternalId and tombstones the old one rather than
// mutating the graph node in place.
func (c *Collection) Upsert(externalId string, vec []float32, meta metadata.Doc) error {
	if err := c.validateDim(vec); err != nil {
		c.observe("upsert", err)
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.w.Append(wal.KindUpsert, externalId, vec, meta); err != nil {
		c.observe("upsert", err)
		return err
	}
	internalId, err := c.backend.Insert(vec)
	if err != nil {
		c.observe("upsert", err)
		return err
	}
	_, oldId, hadOld := c.ids.Upsert(externalId, meta)
	if hadOld {
		c.graph.Tombstone(oldId)
	}
	c.graph.Insert(internalId, vec, c.backend)

	c.maybeAutoCheckpoint()
	c.observe("upsert", nil)
	return nil
}

// Delete tombstones externalId's record, returning false if it was
// already absent.
func (c *Collection) Delete(externalId string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.ids.Lookup(externalId); !ok {
		c.observe("delete", nil)
		return false, nil
	}
	if _, err := c.w.AppendDelete(externalId); err != nil {
		c.observe("delete", err)
		return false, err
	}
	internalId, ok := c.ids.Delete(externalId)
	if !ok {
		c.observe("delete", nil)
		return false, nil
	}
	c.graph.Tombstone(internalId)

	c.maybeAutoCheckpoint()
	c.observe("delete", nil)
	return true, nil
}

// Get returns the vector and metadata stored for externalId, if present.
func (c *Collection) Get(externalId string) ([]float32, metadata.Doc, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	id, ok := c.ids.Lookup(externalId)
	if !ok {
		return nil, nil, false
	}
	vec, ok := c.backend.Get(id)
	if !ok {
		return nil, nil, false
	}
	meta, _ := c.ids.Metadata(id)
	return vec, meta, true
}

// Search performs spec.md §4.6's top-k query: HNSW search under the
// configured metric, the SQ8/Binary rerank pipeline when enabled, and
// the externally-supplied metadata filter. filter may be nil, meaning
// metadata.Always.
func (c *Collection) Search(query []float32, k int, filter metadata.Matcher) ([]SearchResult, error) {
	if err := c.validateDim(query); err != nil {
		c.observe("search", err)
		return nil, err
	}
	if filter == nil {
		filter = metadata.Always
	}
	start := time.Now()

	c.mu.RLock()
	defer c.mu.RUnlock()

	ef := c.cfg.EfSearch
	if ef < k {
		ef = k
	}
	fetchK := k
	rerank := c.cfg.Quantization != config.None && c.cfg.KeepOriginals && c.cfg.RerankMultiplier > 1
	if rerank {
		fetchK = k * c.cfg.RerankMultiplier
		if ef < fetchK {
			ef = fetchK
		}
	}

	hits, err := c.graph.Search(query, fetchK, ef, c.backend)
	if err != nil {
		if errs.Is(err, errs.EmptyIndex) {
			if c.metrics != nil {
				c.metrics.ObserveSearchLatency(c.name, time.Since(start))
			}
			return nil, nil
		}
		c.observe("search", err)
		return nil, err
	}

	if rerank {
		hits = c.rerank(query, hits)
	}

	out := make([]SearchResult, 0, k)
	for _, h := range hits {
		ext, ok := c.ids.Resolve(h.ID)
		if !ok {
			continue
		}
		meta, _ := c.ids.Metadata(h.ID)
		if !filter.Matches(meta) {
			continue
		}
		out = append(out, SearchResult{ExternalId: ext, Distance: h.Distance, Metadata: meta})
		if len(out) == k {
			break
		}
	}

	if c.metrics != nil {
		c.metrics.ObserveSearchLatency(c.name, time.Since(start))
	}
	c.observe("search", nil)
	return out, nil
}

// SearchExact runs spec.md §1's brute-force correctness oracle instead of
// the HNSW graph: an unindexed linear scan of every live row under the
// configured metric. Intended for debugging and recall validation, not a
// production query path — see SPEC_FULL.md §3.18.
func (c *Collection) SearchExact(query []float32, k int, filter metadata.Matcher) ([]SearchResult, error) {
	if err := c.validateDim(query); err != nil {
		c.observe("search_exact", err)
		return nil, err
	}
	if filter == nil {
		filter = metadata.Always
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	alive := func(id uint32) bool {
		_, ok := c.ids.Resolve(id)
		return ok
	}
	hits := bruteforce.Search(c.backend, c.cfg.Metric, query, c.backend.Len(), alive)

	out := make([]SearchResult, 0, k)
	for _, h := range hits {
		ext, ok := c.ids.Resolve(h.ID)
		if !ok {
			continue
		}
		meta, _ := c.ids.Metadata(h.ID)
		if !filter.Matches(meta) {
			continue
		}
		out = append(out, SearchResult{ExternalId: ext, Distance: h.Distance, Metadata: meta})
		if len(out) == k {
			break
		}
	}
	c.observe("search_exact", nil)
	return out, nil
}

// List returns up to limit (ExternalId, metadata) pairs starting at
// offset, in insertion order, per spec.md §4.6.
func (c *Collection) List(offset, limit int) []idmap.Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ids.List(offset, limit)
}

// Footprint reports the backend's byte usage for spec.md §4.2's
// compression-ratio reporting, if the backend supports it.
func (c *Collection) Footprint() (quantized, metadata, originals int64, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	bf, supported := c.backend.(storage.ByteFootprint)
	if !supported {
		return 0, 0, 0, false
	}
	q, m, o := bf.Bytes()
	return q, m, o, true
}

// Len reports the number of live records.
func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ids.Len()
}

// IsEmpty reports whether the collection has zero live records.
func (c *Collection) IsEmpty() bool { return c.Len() == 0 }

// Sync flushes the WAL to disk regardless of the sync_writes policy.
func (c *Collection) Sync() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.w.Sync()
}

func (c *Collection) observe(op string, err error) {
	if c.metrics == nil {
		return
	}
	code := ""
	if se, ok := err.(*errs.Error); ok {
		code = se.Code.String()
	}
	c.metrics.ObserveOp(c.name, op, code)
	c.metrics.SetVectorCount(c.name, c.ids.Len())
}

// applyRecord replays one WAL record during recovery, mirroring Insert/
// Upsert/Delete's effect on backend/graph/ids without re-appending to the
// WAL (the record is already durable) or re-validating input shape
// (already validated when it was first written). mmapReplayNext is
// non-nil only when the backend is memory-mapped, in which case the
// record's row is already physically present on disk and must not be
// inserted again — see Open's comment for why.
func (c *Collection) applyRecord(rec wal.Record, mmapReplayNext *storage.InternalId) error {
	switch rec.Kind {
	case wal.KindInsert:
		internalId, err := c.replayRowId(rec.Vector, mmapReplayNext)
		if err != nil {
			return err
		}
		if _, err := c.ids.Allocate(rec.ExternalId, rec.Metadata); err != nil {
			return err
		}
		c.graph.Insert(internalId, rec.Vector, c.backend)
	case wal.KindUpsert:
		internalId, err := c.replayRowId(rec.Vector, mmapReplayNext)
		if err != nil {
			return err
		}
		_, oldId, hadOld := c.ids.Upsert(rec.ExternalId, rec.Metadata)
		if hadOld {
			c.graph.Tombstone(oldId)
		}
		c.graph.Insert(internalId, rec.Vector, c.backend)
	case wal.KindDelete:
		if internalId, ok := c.ids.Delete(rec.ExternalId); ok {
			c.graph.Tombstone(internalId)
		}
	}
	return nil
}

// replayRowId returns the InternalId a replayed Insert/Upsert record
// occupies. For a memory-mapped backend the row was already written
// synchronously when the record was first applied, so the next id is
// simply read off mmapReplayNext and advanced; every other backend is
// rebuilt empty from the snapshot and genuinely needs the row inserted.
func (c *Collection) replayRowId(vec []float32, mmapReplayNext *storage.InternalId) (storage.InternalId, error) {
	if mmapReplayNext != nil {
		id := *mmapReplayNext
		*mmapReplayNext++
		return id, nil
	}
	return c.backend.Insert(vec)
}

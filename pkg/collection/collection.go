// Package collection implements the persistent collection of spec.md
// §4.6: binds storage + index + WAL + snapshot + ID maps behind one
// reader-writer lock, per spec.md §5 "a single reader-writer lock
// protecting storage + index + ID maps as one unit."
//
// Grounded on the teacher's store.go / pkg/core/store_init.go open/create
// lifecycle (now removed, see DESIGN.md) for the directory-per-collection
// shape, generalized to spec.md §6's manifest+wal+snapshot layout.
package collection

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/surgedb/surgedb/pkg/config"
	"github.com/surgedb/surgedb/pkg/errs"
	"github.com/surgedb/surgedb/pkg/hnsw"
	"github.com/surgedb/surgedb/pkg/idmap"
	"github.com/surgedb/surgedb/pkg/manifest"
	"github.com/surgedb/surgedb/pkg/metrics"
	"github.com/surgedb/surgedb/pkg/snapshot"
	"github.com/surgedb/surgedb/pkg/storage"
	"github.com/surgedb/surgedb/pkg/wal"
)

const (
	manifestFile = "manifest.bin"
	walFile      = "wal.log"
	snapshotFile = "snapshot.bin"
	mmapFile     = "vectors.mmap"
)

// Collection is one named, independently-configured index: the unit of
// durability and locking in spec.md §4.6/§5.
type Collection struct {
	mu sync.RWMutex

	name     string
	dir      string
	manifest manifest.Manifest
	cfg      config.Config

	backend storage.Backend
	graph   *hnsw.Graph
	ids     *idmap.Map
	w       *wal.WAL

	logger        *zap.Logger
	metrics       *metrics.Collector
	rebuildPolicy RebuildPolicy
}

// Options carries the ambient collaborators every collection shares, per
// SPEC_FULL.md §3.8/§3.14: a logger (nil-safe default zap.NewNop()) and
// the metrics collector owned by the library entry object. RebuildPolicy
// governs NeedsRebuild/Rebuild, per SPEC_FULL.md §8 decision 2.
type Options struct {
	Logger         *zap.Logger
	Metrics        *metrics.Collector
	RebuildPolicy  RebuildPolicy
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.RebuildPolicy.Threshold == 0 {
		o.RebuildPolicy = DefaultRebuildPolicy()
	}
	return o
}

// Create initializes a brand new collection directory: validates cfg,
// stamps a fresh incarnation ID, writes the manifest, and opens an empty
// WAL and backend.
func Create(dir, name string, cfg config.Config, opts Options) (*Collection, error) {
	opts = opts.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errs.New(errs.Io, "collection_create_mkdir", err, "dir", dir)
	}

	m := manifest.New(cfg)
	if err := manifest.Write(filepath.Join(dir, manifestFile), m); err != nil {
		return nil, err
	}

	backend, err := newBackend(dir, cfg)
	if err != nil {
		return nil, err
	}
	w, err := wal.Open(filepath.Join(dir, walFile), cfg.SyncWrites)
	if err != nil {
		backend.Close()
		return nil, err
	}

	c := &Collection{
		name:          name,
		dir:           dir,
		manifest:      m,
		cfg:           cfg,
		backend:       backend,
		graph:         hnsw.New(cfg.HnswParams()),
		ids:           idmap.New(),
		w:             w,
		logger:        opts.Logger,
		metrics:       opts.Metrics,
		rebuildPolicy: opts.RebuildPolicy,
	}
	c.logger.Info("collection created", zap.String("collection", name), zap.String("incarnation", m.Incarnation.String()))
	return c, nil
}

// Open loads an existing collection directory: reads the manifest, loads
// the most recent snapshot (if any), and replays the WAL forward from the
// snapshot's watermark, per spec.md §4.5's recovery pipeline.
func Open(dir, name string, opts Options) (*Collection, error) {
	opts = opts.withDefaults()
	m, err := manifest.Load(filepath.Join(dir, manifestFile))
	if err != nil {
		return nil, err
	}
	cfg := m.Config

	snapPath := filepath.Join(dir, snapshotFile)
	var watermark uint64
	var backend storage.Backend
	var graph *hnsw.Graph
	var ids *idmap.Map

	snap, err := snapshot.Load(snapPath)
	switch {
	case err == nil:
		watermark = snap.Watermark
		ids = snap.BuildIdMap()
		graph = snap.BuildGraph()
		if cfg.Persistence == config.Mmap {
			backend, err = storage.OpenMmapStore(filepath.Join(dir, mmapFile), cfg.Dimensions)
			if err != nil {
				return nil, err
			}
		} else if cfg.Quantization == config.None {
			backend = snap.BuildPlainBackend()
		} else {
			backend = snap.BuildQuantizedBackend()
		}
	case errors.Is(err, fs.ErrNotExist):
		// No snapshot file at all: start from an empty collection and
		// replay the whole WAL. A snapshot that exists but failed to
		// read (truncated write, disk error) must not be silently
		// treated the same way — that would present real data loss as a
		// fresh, empty collection.
		ids = idmap.New()
		graph = hnsw.New(cfg.HnswParams())
		backend, err = newBackend(dir, cfg)
		if err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	w, toApply, err := wal.OpenAt(filepath.Join(dir, walFile), cfg.SyncWrites, watermark)
	if err != nil {
		backend.Close()
		return nil, err
	}

	c := &Collection{
		name:          name,
		dir:           dir,
		manifest:      m,
		cfg:           cfg,
		backend:       backend,
		graph:         graph,
		ids:           ids,
		w:             w,
		logger:        opts.Logger,
		metrics:       opts.Metrics,
		rebuildPolicy: opts.RebuildPolicy,
	}

	// A memory-mapped backend writes every row synchronously at the time
	// of the original Insert/Upsert, so its file already holds a row for
	// every vector-bearing record about to be replayed here — unlike the
	// plain/quantized backends, which are rebuilt fresh from the
	// snapshot and genuinely need each replayed record inserted. Calling
	// backend.Insert again during replay would append duplicate rows and
	// desynchronize InternalIds from the idmap/graph rebuilt from the
	// snapshot (or from scratch). Instead, derive the InternalId each
	// replayed record already occupies by counting backward from the
	// backend's current row count.
	var mmapReplayNext *storage.InternalId
	if mmapStore, ok := backend.(*storage.MmapStore); ok {
		insertLike := 0
		for _, rec := range toApply {
			if rec.Kind == wal.KindInsert || rec.Kind == wal.KindUpsert {
				insertLike++
			}
		}
		total := mmapStore.Len()
		if total < insertLike {
			backend.Close()
			return nil, errs.New(errs.IndexCorrupted, "collection_open_mmap_replay", nil,
				"rows", total, "pending_inserts", insertLike)
		}
		next := storage.InternalId(total - insertLike)
		mmapReplayNext = &next
	}

	for _, rec := range toApply {
		if err := c.applyRecord(rec, mmapReplayNext); err != nil {
			c.logger.Error("recovery failed to apply wal record",
				zap.String("collection", name), zap.Uint64("seq", rec.Seq), zap.Error(err))
			return nil, err
		}
	}
	c.logger.Info("collection opened",
		zap.String("collection", name),
		zap.String("incarnation", m.Incarnation.String()),
		zap.Int("replayed", len(toApply)),
		zap.Int("len", c.ids.Len()))
	return c, nil
}

func newBackend(dir string, cfg config.Config) (storage.Backend, error) {
	switch {
	case cfg.Persistence == config.Mmap:
		return storage.OpenMmapStore(filepath.Join(dir, mmapFile), cfg.Dimensions)
	case cfg.Quantization == config.None:
		return storage.NewF32Store(cfg.Dimensions), nil
	default:
		return storage.NewQuantizedStore(cfg.Dimensions, cfg.StorageKind(), cfg.KeepOriginals), nil
	}
}

// Exists reports whether dir holds a collection directory (i.e. it has
// been through Create). Used by the manager to decide between opening an
// existing collection and reporting CollectionNotFound.
func Exists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, manifestFile))
	return err == nil
}

// Name returns the collection's name.
func (c *Collection) Name() string { return c.name }

// Dim returns the collection's fixed vector dimension.
func (c *Collection) Dim() int { return c.cfg.Dimensions }

// Config returns the collection's frozen configuration.
func (c *Collection) Config() config.Config { return c.cfg }

// Close flushes the WAL and releases the backend's OS resources, per
// spec.md §6's exit contract. It does not checkpoint; callers that need a
// durable image on close should call Checkpoint first.
func (c *Collection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var firstErr error
	if err := c.w.Sync(); err != nil {
		firstErr = err
	}
	if err := c.w.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := c.backend.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	c.logger.Info("collection closed", zap.String("collection", c.name))
	return firstErr
}

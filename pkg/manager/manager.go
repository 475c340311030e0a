// Package manager implements the collection manager of spec.md §4.7: a
// named map from collection name to collection handle, guarded by its own
// reader-writer lock per spec.md §5 ("Collection manager: a reader-writer
// lock around the name->handle map. Create/drop take the writer lock
// briefly; lookups take the reader lock").
//
// Grounded on the teacher's Store's top-level keyspace map (now removed,
// see DESIGN.md) for the name->handle shape, generalized to ref-counted
// handles and deferred drop per spec.md §4.7 "dropping a collection is
// physically deferred until all outstanding handles release."
package manager

import (
	"os"
	"path/filepath"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/surgedb/surgedb/pkg/collection"
	"github.com/surgedb/surgedb/pkg/config"
	"github.com/surgedb/surgedb/pkg/errs"
	"github.com/surgedb/surgedb/pkg/metrics"
)

// entry pairs a live collection with its ref count and a deferred-drop
// flag, per spec.md §4.7's ref-counted handle semantics.
type entry struct {
	col      *collection.Collection
	refs     int
	dropping bool
	seq      int // creation order, for reverse-order Close
}

// Manager owns every open collection under a root directory and confines
// collection lifecycle instead of exposing a language-level global, per
// spec.md §9 "Global mutable state." The library entry object is
// engine.Engine, which builds a Manager and hands it the shared metrics
// collector; a Manager built without one creates its own.
type Manager struct {
	mu            sync.RWMutex
	root          string
	entries       map[string]*entry
	nextSeq       int
	logger        *zap.Logger
	metrics       *metrics.Collector
	rebuildPolicy collection.RebuildPolicy
}

// Options carries the ambient collaborators shared by every collection the
// manager opens or creates.
type Options struct {
	Logger        *zap.Logger
	Metrics       *metrics.Collector
	RebuildPolicy collection.RebuildPolicy
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Metrics == nil {
		o.Metrics = metrics.New()
	}
	return o
}

// New creates a manager rooted at dir, one subdirectory per collection.
// It does not eagerly open any existing collections — Get opens each one
// from disk on first request, matching spec.md §4.7's explicit create/get contract.
func New(dir string, opts Options) (*Manager, error) {
	opts = opts.withDefaults()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errs.New(errs.Io, "manager_new_mkdir", err, "dir", dir)
	}
	return &Manager{
		root:          dir,
		entries:       make(map[string]*entry),
		logger:        opts.Logger,
		metrics:       opts.Metrics,
		rebuildPolicy: opts.RebuildPolicy,
	}, nil
}

// Metrics returns the manager's metrics collector; its Registry() is what
// the host's HTTP collaborator mounts, per SPEC_FULL.md §3.14.
func (m *Manager) Metrics() *metrics.Collector { return m.metrics }

func (m *Manager) collectionOptions() collection.Options {
	return collection.Options{Logger: m.logger, Metrics: m.metrics, RebuildPolicy: m.rebuildPolicy}
}

// Create makes a brand-new, empty collection, failing with
// DuplicateCollection if name is already known to the manager (open or
// dropping), per spec.md §4.7.
func (m *Manager) Create(name string, cfg config.Config) (*Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[name]; ok {
		return nil, errs.New(errs.DuplicateCollection, "manager_create", nil, "name", name)
	}
	col, err := collection.Create(filepath.Join(m.root, name), name, cfg, m.collectionOptions())
	if err != nil {
		return nil, err
	}
	e := &entry{col: col, refs: 1, seq: m.nextSeq}
	m.nextSeq++
	m.entries[name] = e
	return &Handle{mgr: m, name: name, Collection: col}, nil
}

// Get returns a shared handle to an already-open collection, or opens it
// fresh from disk the first time it's requested, failing with
// CollectionNotFound if the directory doesn't exist.
func (m *Manager) Get(name string) (*Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.entries[name]; ok {
		if e.dropping {
			return nil, errs.New(errs.CollectionNotFound, "manager_get", nil, "name", name)
		}
		e.refs++
		return &Handle{mgr: m, name: name, Collection: e.col}, nil
	}

	dir := filepath.Join(m.root, name)
	if !collection.Exists(dir) {
		return nil, errs.New(errs.CollectionNotFound, "manager_get", nil, "name", name)
	}
	col, err := collection.Open(dir, name, m.collectionOptions())
	if err != nil {
		return nil, err
	}
	e := &entry{col: col, refs: 1, seq: m.nextSeq}
	m.nextSeq++
	m.entries[name] = e
	return &Handle{mgr: m, name: name, Collection: col}, nil
}

// Drop marks name for removal, failing with CollectionNotFound if no
// collection of that name exists. A collection that is not open is
// removed at once; an open one is closed and its directory removed only
// once every outstanding Handle has been released, per spec.md §4.7.
func (m *Manager) Drop(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[name]
	if !ok {
		dir := filepath.Join(m.root, name)
		if !collection.Exists(dir) {
			return errs.New(errs.CollectionNotFound, "manager_drop", nil, "name", name)
		}
		if err := os.RemoveAll(dir); err != nil {
			return errs.New(errs.Io, "manager_drop_rmdir", err, "name", name)
		}
		return nil
	}
	e.dropping = true
	// Drop holds no handle of its own: balance the decrement releaseLocked
	// makes, so only outstanding handles keep the collection open.
	e.refs++
	return m.releaseLocked(name, e)
}

// release decrements name's ref count, finalizing (closing + removing the
// directory) once it reaches zero and dropping was requested.
func (m *Manager) release(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[name]
	if !ok {
		return
	}
	_ = m.releaseLocked(name, e)
}

func (m *Manager) releaseLocked(name string, e *entry) error {
	e.refs--
	if e.refs > 0 || !e.dropping {
		return nil
	}
	delete(m.entries, name)
	if err := e.col.Close(); err != nil {
		m.logger.Warn("error closing dropped collection", zap.String("collection", name), zap.Error(err))
	}
	if err := os.RemoveAll(filepath.Join(m.root, name)); err != nil {
		return errs.New(errs.Io, "manager_drop_rmdir", err, "name", name)
	}
	m.logger.Info("collection dropped", zap.String("collection", name))
	return nil
}

// List returns every known collection name in lexicographic order, per
// spec.md §4.7.
func (m *Manager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.entries))
	for name, e := range m.entries {
		if e.dropping {
			continue
		}
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Close closes every open collection in reverse creation order, collecting
// the first error while still closing the rest, per SPEC_FULL.md §3.16 /
// spec.md §6's exit contract. Collections are closed one at a time, in
// that order, rather than fanned out concurrently, since the ordering
// guarantee would otherwise be meaningless. It does not drop or delete
// any collection's on-disk data.
func (m *Manager) Close() error {
	m.mu.Lock()
	type ordered struct {
		name string
		e    *entry
	}
	all := make([]ordered, 0, len(m.entries))
	for name, e := range m.entries {
		all = append(all, ordered{name, e})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].e.seq > all[j].e.seq })
	m.entries = make(map[string]*entry)
	m.mu.Unlock()

	var g errgroup.Group
	g.SetLimit(1)
	for _, o := range all {
		o := o
		g.Go(func() error {
			if err := o.e.col.Close(); err != nil {
				m.logger.Warn("error closing collection", zap.String("collection", o.name), zap.Error(err))
				return err
			}
			return nil
		})
	}
	return g.Wait()
}

// Handle is a ref-counted lease on an open collection. Callers must call
// Release when finished; the collection stays open until every handle
// releases, even if Drop was called concurrently.
type Handle struct {
	mgr  *Manager
	name string
	*collection.Collection
}

// Release returns this handle to the manager, finalizing a pending Drop
// once the last outstanding handle releases.
func (h *Handle) Release() {
	h.mgr.release(h.name)
}

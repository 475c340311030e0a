// Package engine provides the library entry object spec.md §9 asks for:
// "the collection manager is process-scoped mutable state; confine it
// inside the library entry object that the host constructs and owns,
// with explicit lifecycle. Do not expose as a language-level global."
//
// Grounded on the teacher's core.SQLiteStore (now removed, see
// DESIGN.md) as the one object a host constructs, opens, and closes;
// generalized from a single SQLite-backed store to an owner of the
// collection manager and the shared metrics registry.
package engine

import (
	"go.uber.org/zap"

	"github.com/surgedb/surgedb/pkg/config"
	"github.com/surgedb/surgedb/pkg/manager"
	"github.com/surgedb/surgedb/pkg/metrics"
)

// Engine is the top-level handle a host process constructs once, holds
// for its lifetime, and closes on shutdown.
type Engine struct {
	mgr     *manager.Manager
	metrics *metrics.Collector
	logger  *zap.Logger
}

// Options configures a new Engine.
type Options struct {
	// Dir is the root directory holding one subdirectory per collection.
	Dir    string
	Logger *zap.Logger
}

// Open constructs an Engine rooted at opts.Dir, creating it if absent.
func Open(opts Options) (*Engine, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	m := metrics.New()
	mgr, err := manager.New(opts.Dir, manager.Options{Logger: logger, Metrics: m})
	if err != nil {
		return nil, err
	}
	return &Engine{mgr: mgr, metrics: m, logger: logger}, nil
}

// Create makes a new, empty named collection.
func (e *Engine) Create(name string, cfg config.Config) (*manager.Handle, error) {
	return e.mgr.Create(name, cfg)
}

// Collection returns a shared handle to name, opening it from disk on
// first use.
func (e *Engine) Collection(name string) (*manager.Handle, error) {
	return e.mgr.Get(name)
}

// Drop removes name once every outstanding handle has released.
func (e *Engine) Drop(name string) error {
	return e.mgr.Drop(name)
}

// Collections lists every known collection name, lexicographically.
func (e *Engine) Collections() []string {
	return e.mgr.List()
}

// Metrics exposes the process-wide prometheus registry so the host's own
// HTTP collaborator can mount /metrics. The core never serves it itself.
func (e *Engine) Metrics() *metrics.Collector {
	return e.metrics
}

// Close closes every open collection, per spec.md §6's exit contract.
func (e *Engine) Close() error {
	return e.mgr.Close()
}

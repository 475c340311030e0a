// Package metrics is the "metrics collaborator" of spec.md §5: "counters
// and latency accumulators... are atomics and do not participate in any
// lock." Built on github.com/prometheus/client_golang, whose CounterVec/
// HistogramVec are internally lock-free atomics, so calling into this
// package from inside a collection's read or write lock never adds
// contention. The core never starts an HTTP server; Engine.Metrics()
// returns the Collector, whose Registry() the host's transport mounts.
//
// Grounded on SPEC_FULL.md §3.14 and fyrsmithlabs-contextd's direct
// prometheus/client_golang dependency.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector owns one process-wide prometheus.Registry and the vectors
// every collection's operations feed into, labeled by collection name.
type Collector struct {
	registry *prometheus.Registry

	ops       *prometheus.CounterVec
	opErrors  *prometheus.CounterVec
	searchLat *prometheus.HistogramVec
	vectors   *prometheus.GaugeVec
}

// New creates a Collector with its own registry, ready to be mounted by
// the host's HTTP collaborator.
func New() *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{
		registry: reg,
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "surgedb",
			Name:      "collection_operations_total",
			Help:      "Count of collection operations by kind.",
		}, []string{"collection", "op"}),
		opErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "surgedb",
			Name:      "collection_operation_errors_total",
			Help:      "Count of failed collection operations by kind and error code.",
		}, []string{"collection", "op", "code"}),
		searchLat: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "surgedb",
			Name:      "search_latency_seconds",
			Help:      "Search call latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"collection"}),
		vectors: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "surgedb",
			Name:      "collection_vectors",
			Help:      "Live vector count per collection.",
		}, []string{"collection"}),
	}
	reg.MustRegister(c.ops, c.opErrors, c.searchLat, c.vectors)
	return c
}

// Registry exposes the underlying prometheus.Registry for the host's
// HTTP collaborator to mount at /metrics.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// ObserveOp records one operation, optionally tagged with the error code
// that failed it.
func (c *Collector) ObserveOp(collection, op string, errCode string) {
	if c == nil {
		return
	}
	c.ops.WithLabelValues(collection, op).Inc()
	if errCode != "" {
		c.opErrors.WithLabelValues(collection, op, errCode).Inc()
	}
}

// ObserveSearchLatency records one search call's wall-clock duration.
func (c *Collector) ObserveSearchLatency(collection string, d time.Duration) {
	if c == nil {
		return
	}
	c.searchLat.WithLabelValues(collection).Observe(d.Seconds())
}

// SetVectorCount publishes a collection's current live vector count.
func (c *Collector) SetVectorCount(collection string, n int) {
	if c == nil {
		return
	}
	c.vectors.WithLabelValues(collection).Set(float64(n))
}

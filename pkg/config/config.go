// Package config defines the per-collection configuration of spec.md §6
// ("Configuration options"), immutable once a collection is created and
// frozen into its manifest, per spec.md §3 "config is immutable after
// creation".
package config

import (
	"github.com/surgedb/surgedb/pkg/distance"
	"github.com/surgedb/surgedb/pkg/errs"
	"github.com/surgedb/surgedb/pkg/hnsw"
	"github.com/surgedb/surgedb/pkg/storage"
)

// Quantization selects whether and how vectors are compressed, per
// spec.md §6's `quantization` key.
type Quantization int

const (
	None Quantization = iota
	SQ8
	Binary
)

// Persistence selects which of spec.md §4.3's storage backends holds the
// unquantized (Quantization == None) vector payload: heap-resident or
// memory-mapped. Not one of spec.md §6's named configuration keys, but
// §4.3 "the choice is fixed at collection creation" requires the
// collection to pick one of the three backends somehow — DESIGN.md's
// open-question decisions expose it as an explicit Config field rather than inferring it
// from other settings. Quantized collections are always heap-resident;
// Mmap only applies when Quantization == None.
type Persistence int

const (
	InMemory Persistence = iota
	Mmap
)

// Config is the full set of recognized keys from spec.md §6.
type Config struct {
	Dimensions   int
	Metric       distance.Metric
	Quantization Quantization
	Persistence  Persistence

	KeepOriginals    bool
	RerankMultiplier int

	M              int
	M0             int
	EfConstruction int
	EfSearch       int
	Seed           int64

	SyncWrites          bool
	CheckpointThreshold int64
}

// DefaultConfig mirrors the teacher's DefaultConfig(path) convention,
// adapted to the dimension/metric a collection is actually created with;
// every other knob gets the spec's suggested defaults.
func DefaultConfig(dim int, metric distance.Metric) Config {
	hp := hnsw.DefaultParams(metric)
	return Config{
		Dimensions:          dim,
		Metric:              metric,
		Quantization:        None,
		KeepOriginals:       false,
		RerankMultiplier:    4,
		M:                   hp.M,
		M0:                  hp.M0,
		EfConstruction:      hp.EfConstruction,
		EfSearch:            hp.EfSearch,
		Seed:                hp.Seed,
		SyncWrites:          false,
		CheckpointThreshold: 64 << 20, // 64 MiB
	}
}

// HnswParams projects the graph-tuning subset of Config into hnsw.Params.
func (c Config) HnswParams() hnsw.Params {
	return hnsw.Params{M: c.M, M0: c.M0, EfConstruction: c.EfConstruction, EfSearch: c.EfSearch, Seed: c.Seed, Metric: c.Metric}
}

// StorageKind projects the quantization subset of Config into the
// storage.Quantization enum that storage.NewQuantizedStore takes.
func (c Config) StorageKind() storage.Quantization {
	if c.Quantization == Binary {
		return storage.Binary
	}
	return storage.SQ8
}

// Validate enforces spec.md §7's InvalidConfig / InvalidHnswParam checks.
func (c Config) Validate() error {
	if c.Dimensions <= 0 {
		return errs.New(errs.InvalidConfig, "validate", nil, "reason", "dimensions must be positive")
	}
	if c.Quantization != None {
		if c.RerankMultiplier < 1 {
			return errs.New(errs.InvalidConfig, "validate", nil, "reason", "rerank_multiplier must be >= 1")
		}
	}
	if c.CheckpointThreshold <= 0 {
		return errs.New(errs.InvalidConfig, "validate", nil, "reason", "checkpoint_threshold must be positive")
	}
	if c.Persistence == Mmap && c.Quantization != None {
		return errs.New(errs.InvalidConfig, "validate", nil, "reason", "mmap persistence only supports unquantized vectors")
	}
	return c.HnswParams().Validate()
}

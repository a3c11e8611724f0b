// Package memoria is the façade: a single "manager" entry
// point composing the store kernel, record layer, vector index, hybrid
// search, graph traversal, versioning, relationship registry, lifecycle
// hooks, and change stream behind an ergonomic top-level API: one
// struct holding every collaborator, constructed once at Open.
package memoria

import (
	"github.com/kittclouds/memoria/internal/lifecycle"
	"github.com/kittclouds/memoria/internal/search"
	"github.com/kittclouds/memoria/internal/vectorindex"
	"github.com/kittclouds/memoria/internal/versioning"
)

// Config is the single explicit configuration record passed at Open —
// no string-keyed global lookup. It collects every tunable the
// subsystems expose.
type Config struct {
	// DSN is the SQLite data source the kernel opens; ":memory:" for an
	// ephemeral store, otherwise a file path.
	DSN string

	// EmbeddingDimension is the fixed D enforced by the vector index,
	// immutable for the life of the store.
	EmbeddingDimension int
	// DistanceMetric is the default metric for vector and hybrid search.
	DistanceMetric vectorindex.Metric

	Scoring search.ScoringConfig

	AutoVersioning    bool
	DeltaThreshold    int
	CompressionThresh int

	MaxBatchSize int

	Inference lifecycle.InferenceConfig

	// ChangeStreamCapacity bounds each subscriber's buffered channel.
	ChangeStreamCapacity int
	// HookConcurrency bounds the worker pool lifecycle hooks dispatch on.
	HookConcurrency int

	// Embedder and EntityExtractor are opaque collaborators supplied by
	// the caller; nil disables the behavior that needs them
	// (on-the-fly query embedding, automatic entity extraction).
	Embedder        search.Embedder
	EntityExtractor lifecycle.EntityExtractor
}

// DefaultConfig returns a Config with conservative defaults; callers
// override only what they need.
func DefaultConfig() Config {
	return Config{
		DSN:                  ":memory:",
		EmbeddingDimension:   384,
		DistanceMetric:       vectorindex.MetricCosine,
		Scoring:              search.DefaultScoringConfig(),
		AutoVersioning:       true,
		DeltaThreshold:       versioning.DefaultConfig().DeltaThreshold,
		CompressionThresh:    versioning.DefaultConfig().CompressionThreshold,
		MaxBatchSize:         100,
		Inference:            lifecycle.DefaultInferenceConfig(),
		ChangeStreamCapacity: 256,
		HookConcurrency:      4,
	}
}

func (c Config) versioningConfig() versioning.Config {
	return versioning.Config{DeltaThreshold: c.DeltaThreshold, CompressionThreshold: c.CompressionThresh}
}

package memoria

import (
	"github.com/kittclouds/memoria/internal/changestream"
	"github.com/kittclouds/memoria/internal/graph"
	"github.com/kittclouds/memoria/internal/lifecycle"
	"github.com/kittclouds/memoria/internal/memerr"
	"github.com/kittclouds/memoria/internal/records"
	"github.com/kittclouds/memoria/internal/search"
	"github.com/kittclouds/memoria/internal/vectorindex"
	"github.com/kittclouds/memoria/internal/versioning"
)

// Aliases for the internal types that appear in Manager's API, so callers
// outside this module can name them without importing internal packages.

type (
	Memory              = records.Memory
	Entity              = records.Entity
	Relationship        = records.Relationship
	Vector              = records.Vector
	Version             = records.Version
	Snapshot            = records.Snapshot
	RelationshipTypeDef = records.RelationshipTypeDef
	MemoryType          = records.MemoryType
	Priority            = records.Priority

	MemoryFilter       = records.MemoryFilter
	EntityFilter       = records.EntityFilter
	RelationshipFilter = records.RelationshipFilter
	VectorFilter       = records.VectorFilter
	PropertyEQ         = records.PropertyEQ

	SearchMode    = search.Mode
	SearchResult  = search.Result
	ScoringConfig = search.ScoringConfig
	DecayFunction = search.DecayFunction
	Embedder      = search.Embedder

	Metric             = vectorindex.Metric
	VectorSearchParams = vectorindex.SearchParams
	ScoredVector       = vectorindex.ScoredVector

	MemoryGraph = graph.MemoryGraph
	GraphPath   = graph.Path

	VersionChange = versioning.Change
	RestoreMode   = versioning.RestoreMode

	ChangeEvent  = changestream.Event
	ChangeAction = changestream.Action
	ChangeTable  = changestream.Table
	Subscription = changestream.Subscription

	EntityExtractor = lifecycle.EntityExtractor
	ExtractedEntity = lifecycle.ExtractedEntity
	InferenceConfig = lifecycle.InferenceConfig

	Error     = memerr.Error
	ErrorKind = memerr.Kind
)

const (
	ModeText   = search.ModeText
	ModeVector = search.ModeVector
	ModeHybrid = search.ModeHybrid

	DecayNone        = search.DecayNone
	DecayLinear      = search.DecayLinear
	DecayExponential = search.DecayExponential
	DecayLogarithmic = search.DecayLogarithmic

	MetricCosine     = vectorindex.MetricCosine
	MetricEuclidean  = vectorindex.MetricEuclidean
	MetricDotProduct = vectorindex.MetricDotProduct
	MetricManhattan  = vectorindex.MetricManhattan

	PriorityLow      = records.PriorityLow
	PriorityNormal   = records.PriorityNormal
	PriorityHigh     = records.PriorityHigh
	PriorityCritical = records.PriorityCritical

	MemoryTypeFact        = records.MemoryTypeFact
	MemoryTypePreference  = records.MemoryTypePreference
	MemoryTypeObservation = records.MemoryTypeObservation

	RestoreOverwrite        = versioning.Overwrite
	RestoreCreateNewVersion = versioning.CreateNewVersion

	ActionCreate = changestream.ActionCreate
	ActionUpdate = changestream.ActionUpdate
	ActionDelete = changestream.ActionDelete

	TableMemory       = changestream.TableMemory
	TableEntity       = changestream.TableEntity
	TableRelationship = changestream.TableRelationship
	TableVector       = changestream.TableVector
	TableVersion      = changestream.TableVersion
)

// Sentinel errors for errors.Is kind matching.
var (
	ErrNotFound          = memerr.ErrNotFound
	ErrAlreadyExists     = memerr.ErrAlreadyExists
	ErrValidation        = memerr.ErrValidation
	ErrEmptySearchQuery  = memerr.ErrEmptySearchQuery
	ErrMLNotConfigured   = memerr.ErrMLNotConfigured
	ErrTimeout           = memerr.ErrTimeout
	ErrTransactionFailed = memerr.ErrTransactionFailed
	ErrTypeInUse         = memerr.ErrTypeInUse
	ErrTypeNotFound      = memerr.ErrTypeNotFound
	ErrTypeAlreadyExists = memerr.ErrTypeAlreadyExists
)

// NewCustomMemoryType builds the open custom memory-type variant.
func NewCustomMemoryType(name string) MemoryType { return records.NewCustomMemoryType(name) }

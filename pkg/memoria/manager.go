package memoria

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/kittclouds/memoria/internal/changestream"
	"github.com/kittclouds/memoria/internal/graph"
	"github.com/kittclouds/memoria/internal/kernel"
	"github.com/kittclouds/memoria/internal/lifecycle"
	"github.com/kittclouds/memoria/internal/memerr"
	"github.com/kittclouds/memoria/internal/records"
	"github.com/kittclouds/memoria/internal/registry"
	"github.com/kittclouds/memoria/internal/search"
	"github.com/kittclouds/memoria/internal/vectorindex"
	"github.com/kittclouds/memoria/internal/versioning"
)

// Manager composes the kernel, vector index, search engine, graph
// traverser, version store, registry, lifecycle hooks, and change stream
// behind one entry point; internal/* packages are not meant to be
// imported directly by other binaries.
type Manager struct {
	cfg Config
	log *zap.SugaredLogger

	kernel   *kernel.Kernel
	vectors  *vectorindex.Index
	search   *search.Engine
	graph    *graph.Traverser
	versions *versioning.Store
	registry *registry.Registry
	hooks    *lifecycle.Hooks
	bus      *changestream.Bus
}

// Open wires every component together and starts the lifecycle hook
// dispatcher. Callers must Close the returned Manager when done.
func Open(cfg Config) (*Manager, error) {
	log := zap.NewNop().Sugar()
	return OpenWithLogger(cfg, log)
}

// OpenWithLogger is Open with an explicit *zap.SugaredLogger; Open
// itself wires a no-op logger.
func OpenWithLogger(cfg Config, log *zap.SugaredLogger) (*Manager, error) {
	if cfg.EmbeddingDimension <= 0 {
		return nil, memerr.Validation("embeddingDimension", "embedding_dimension must be positive")
	}
	if err := cfg.Scoring.Validate(); err != nil {
		return nil, err
	}

	bus := changestream.NewBus(cfg.ChangeStreamCapacity)
	k, err := kernel.Open(cfg.DSN, bus)
	if err != nil {
		return nil, err
	}

	vectors, err := vectorindex.Open(k.DB(), cfg.EmbeddingDimension, cfg.DistanceMetric)
	if err != nil {
		k.Close()
		return nil, err
	}

	scorer, err := search.NewScoreCalculator(cfg.Scoring)
	if err != nil {
		k.Close()
		return nil, err
	}
	engine := search.NewEngine(k, vectors, cfg.Embedder, scorer)

	traverser := graph.NewTraverser(k)
	versions := versioning.NewStore(k, cfg.versioningConfig())

	reg := registry.New(k, nowMillis).WithStorage(k)
	if _, err := reg.LoadFromStorage(); err != nil {
		k.Close()
		return nil, err
	}
	// The edge classes lifecycle hooks and graph traversal rely on are
	// always present so hook-written relationships satisfy the registry.
	for _, name := range []string{"contains", "relates", "inferred-relates"} {
		if reg.Exists(name) {
			continue
		}
		def, err := registry.NewDef(name, nowMillis())
		if err != nil {
			k.Close()
			return nil, err
		}
		if err := reg.Register(def); err != nil {
			k.Close()
			return nil, err
		}
	}

	m := &Manager{
		cfg: cfg, log: log,
		kernel: k, vectors: vectors, search: engine, graph: traverser,
		versions: versions, registry: reg, bus: bus,
	}

	var registeredHooks []lifecycle.Hook
	if cfg.AutoVersioning {
		registeredHooks = append(registeredHooks, lifecycle.NewAutoVersionHook(versions, nowMillis))
	}
	if cfg.EntityExtractor != nil {
		registeredHooks = append(registeredHooks, lifecycle.NewExtractionHook(cfg.EntityExtractor, k, nowMillis))
	}
	if cfg.Inference.Enabled {
		registeredHooks = append(registeredHooks, lifecycle.NewInferenceHook(k, entityLookup{k}, cfg.Inference))
	}
	m.hooks = lifecycle.New(bus, log, cfg.HookConcurrency, registeredHooks...)
	m.hooks.Start()

	return m, nil
}

// Close stops lifecycle hooks and closes the underlying database handle.
func (m *Manager) Close() error {
	m.hooks.Stop()
	return m.kernel.Close()
}

// entityLookup adapts the kernel to lifecycle.EntityCoReference by
// listing `contains` edges for a memory.
type entityLookup struct{ k *kernel.Kernel }

func (e entityLookup) EntitiesOf(memoryID string) ([]string, error) {
	rels, err := e.k.ListRelationships(records.RelationshipFilter{SourceID: &memoryID, RelationshipType: strPtr("contains")}, 0, 0)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(rels))
	for i, r := range rels {
		out[i] = r.TargetID
	}
	return out, nil
}

func strPtr(s string) *string { return &s }
func nowMillis() int64        { return time.Now().UnixMilli() }

// ctxGuard surfaces an already-cancelled context as Timeout before any
// kernel work starts, so every façade method observes cancellation at
// its first suspension point.
func ctxGuard(ctx context.Context) error {
	if ctx.Err() != nil {
		return memerr.Timeout()
	}
	return nil
}

// -- Memory CRUD --------------------------------------------------------

// MemoryOptions configures AddMemoryWithOptions.
type MemoryOptions struct {
	MemoryType records.MemoryType
	Priority   records.Priority
	Tags       []string
	Source     string
	ExpiresAt  *int64
	Properties []byte
}

// AddMemory is the simple ergonomic entry point: a plain fact with no
// extra attributes.
func (m *Manager) AddMemory(ctx context.Context, content string) (*records.Memory, error) {
	return m.AddMemoryWithOptions(ctx, content, MemoryOptions{MemoryType: records.MemoryTypeFact, Priority: records.PriorityNormal})
}

// AddMemoryWithOptions creates a memory record, routing through the record
// layer (publishing a Create event that drives lifecycle hooks).
func (m *Manager) AddMemoryWithOptions(ctx context.Context, content string, opts MemoryOptions) (*records.Memory, error) {
	if err := ctxGuard(ctx); err != nil {
		return nil, err
	}
	rec := &records.Memory{
		ID:         uuid.NewString(),
		Content:    content,
		MemoryType: opts.MemoryType,
		Priority:   opts.Priority,
		Tags:       opts.Tags,
		Source:     opts.Source,
		ExpiresAt:  opts.ExpiresAt,
		Properties: opts.Properties,
		CreatedAt:  nowMillis(),
	}
	if err := m.kernel.CreateMemory(rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// GetMemory retrieves a memory, bumping access_count/last_accessed
// best-effort in the background so the read is never delayed.
func (m *Manager) GetMemory(ctx context.Context, id string) (*records.Memory, error) {
	if err := ctxGuard(ctx); err != nil {
		return nil, err
	}
	mem, err := m.kernel.GetMemory(id)
	if err != nil {
		return nil, err
	}
	go func() {
		if err := m.kernel.TouchMemoryAccess(id); err != nil {
			m.log.Debugw("access bookkeeping failed", "memoryId", id, "error", err)
		}
	}()
	return mem, nil
}

func (m *Manager) UpdateMemory(ctx context.Context, mem *records.Memory) error {
	if err := ctxGuard(ctx); err != nil {
		return err
	}
	return m.kernel.UpdateMemory(mem)
}

func (m *Manager) DeleteMemory(ctx context.Context, id string) error {
	if err := ctxGuard(ctx); err != nil {
		return err
	}
	return m.kernel.DeleteMemory(id)
}

func (m *Manager) ListMemories(ctx context.Context, filter records.MemoryFilter, limit, offset int) ([]*records.Memory, error) {
	if err := ctxGuard(ctx); err != nil {
		return nil, err
	}
	return m.kernel.ListMemories(filter, limit, offset)
}

func (m *Manager) CountMemories(ctx context.Context, filter records.MemoryFilter) (int, error) {
	if err := ctxGuard(ctx); err != nil {
		return 0, err
	}
	return m.kernel.CountMemories(filter)
}

// -- Entities & relationships --------------------------------------------

func (m *Manager) CreateEntity(ctx context.Context, e *records.Entity) error {
	if err := ctxGuard(ctx); err != nil {
		return err
	}
	return m.kernel.CreateEntity(e)
}

func (m *Manager) UpsertEntity(ctx context.Context, e *records.Entity) error {
	if err := ctxGuard(ctx); err != nil {
		return err
	}
	return m.kernel.UpsertEntity(e)
}

func (m *Manager) GetEntity(ctx context.Context, id string) (*records.Entity, error) {
	if err := ctxGuard(ctx); err != nil {
		return nil, err
	}
	return m.kernel.GetEntity(id)
}

func (m *Manager) DeleteEntity(ctx context.Context, id string) error {
	if err := ctxGuard(ctx); err != nil {
		return err
	}
	return m.kernel.DeleteEntity(id)
}

func (m *Manager) ListEntities(ctx context.Context, filter records.EntityFilter, limit, offset int) ([]*records.Entity, error) {
	if err := ctxGuard(ctx); err != nil {
		return nil, err
	}
	return m.kernel.ListEntities(filter, limit, offset)
}

// CreateRelationship validates the relationship's type against the
// registry and its properties against the type's metadata schema before
// persisting.
func (m *Manager) CreateRelationship(ctx context.Context, r *records.Relationship) error {
	if err := ctxGuard(ctx); err != nil {
		return err
	}
	def, ok := m.registry.Get(r.RelationshipType)
	if !ok {
		return memerr.TypeNotFound(r.RelationshipType)
	}
	if len(def.MetadataSchema) > 0 {
		schema, err := registry.CompileMetadataSchema(def.MetadataSchema)
		if err != nil {
			return err
		}
		if err := registry.ValidateProperties(schema, r.Properties); err != nil {
			return err
		}
	}
	allowSelfLoop := def.CustomMetadata != nil && selfLoopPermitted(def)
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return m.kernel.CreateRelationship(r, allowSelfLoop)
}

func selfLoopPermitted(def *records.RelationshipTypeDef) bool {
	// Self-loops are opt-in per type via custom_metadata {"allowSelfLoop":true}.
	return gjson.GetBytes(def.CustomMetadata, "allowSelfLoop").Bool()
}

func (m *Manager) DeleteRelationship(ctx context.Context, id string) error {
	if err := ctxGuard(ctx); err != nil {
		return err
	}
	return m.kernel.DeleteRelationship(id)
}

func (m *Manager) ListRelationships(ctx context.Context, filter records.RelationshipFilter, limit, offset int) ([]*records.Relationship, error) {
	if err := ctxGuard(ctx); err != nil {
		return nil, err
	}
	return m.kernel.ListRelationships(filter, limit, offset)
}

// -- Relationship-type registry -------------------------------------------

// Register/Update/Delete/Seed mirror registrations to the persistence
// backend, so they observe cancellation like any other write.
func (m *Manager) RegisterRelationshipType(ctx context.Context, def *records.RelationshipTypeDef) error {
	if err := ctxGuard(ctx); err != nil {
		return err
	}
	return m.registry.Register(def)
}

func (m *Manager) UpdateRelationshipType(ctx context.Context, def *records.RelationshipTypeDef) error {
	if err := ctxGuard(ctx); err != nil {
		return err
	}
	return m.registry.Update(def)
}

func (m *Manager) DeleteRelationshipType(ctx context.Context, name string) error {
	if err := ctxGuard(ctx); err != nil {
		return err
	}
	return m.registry.Delete(name)
}

func (m *Manager) SeedCommonRelationshipTypes(ctx context.Context) error {
	if err := ctxGuard(ctx); err != nil {
		return err
	}
	return m.registry.SeedCommonTypes(nowMillis())
}

// The remaining registry reads never leave process memory (a mutex-guarded
// map lookup, no suspension point), so they take no context — see
// DESIGN.md's cancellation note.
func (m *Manager) GetRelationshipType(name string) (*records.RelationshipTypeDef, bool) {
	return m.registry.Get(name)
}

func (m *Manager) ListRelationshipTypes() []*records.RelationshipTypeDef { return m.registry.List() }

func (m *Manager) RelationshipTypeExists(name string) bool { return m.registry.Exists(name) }

func (m *Manager) CountRelationshipTypes() int { return m.registry.Count() }

// -- Search -----------------------------------------------------------------

// Search routes through the hybrid search engine.
func (m *Manager) Search(ctx context.Context, query string, mode search.Mode, limit int, filter records.MemoryFilter) ([]search.Result, error) {
	return m.search.Search(ctx, query, mode, limit, filter, nil)
}

// SearchWithVector is Search with a caller-supplied query vector, bypassing
// the embedder.
func (m *Manager) SearchWithVector(ctx context.Context, query string, vector []float32, limit int, filter records.MemoryFilter) ([]search.Result, error) {
	return m.search.Search(ctx, query, search.ModeVector, limit, filter, vector)
}

// UpsertVector stores an embedding for a memory (or any record id), used
// by callers that compute embeddings outside the façade.
func (m *Manager) UpsertVector(ctx context.Context, v *records.Vector) error {
	if err := ctxGuard(ctx); err != nil {
		return err
	}
	return m.vectors.Upsert(v)
}

func (m *Manager) GetVector(ctx context.Context, id string) (*records.Vector, error) {
	if err := ctxGuard(ctx); err != nil {
		return nil, err
	}
	return m.vectors.Get(id)
}

func (m *Manager) DeleteVector(ctx context.Context, id string) error {
	if err := ctxGuard(ctx); err != nil {
		return err
	}
	return m.vectors.Delete(id)
}

// SearchVectors runs raw k-NN against the vector index, bypassing BM25
// fusion entirely.
func (m *Manager) SearchVectors(ctx context.Context, query []float32, params vectorindex.SearchParams) ([]vectorindex.ScoredVector, error) {
	if err := ctxGuard(ctx); err != nil {
		return nil, err
	}
	return m.vectors.Search(query, params)
}

// -- Graph traversal ---------------------------------------------------------

func (m *Manager) GetMemorySubgraph(ctx context.Context, center string, depth int) (*graph.MemoryGraph, error) {
	if err := ctxGuard(ctx); err != nil {
		return nil, err
	}
	return m.graph.MemorySubgraph(center, depth)
}

func (m *Manager) FindPaths(ctx context.Context, from, to string, maxDepth int) ([]graph.Path, error) {
	if err := ctxGuard(ctx); err != nil {
		return nil, err
	}
	return m.graph.FindPaths(from, to, maxDepth)
}

func (m *Manager) FindConnected(ctx context.Context, id string, relType *string, maxDepth int) ([]string, error) {
	if err := ctxGuard(ctx); err != nil {
		return nil, err
	}
	return m.graph.FindConnected(id, relType, maxDepth)
}

// -- Versioning ---------------------------------------------------------------

func (m *Manager) GetVersion(ctx context.Context, memoryID, versionID string) (string, error) {
	if err := ctxGuard(ctx); err != nil {
		return "", err
	}
	return m.versions.GetVersion(memoryID, versionID)
}

func (m *Manager) GetMemoryAtTime(ctx context.Context, memoryID string, t time.Time) (string, bool, error) {
	if err := ctxGuard(ctx); err != nil {
		return "", false, err
	}
	return m.versions.GetMemoryAtTime(memoryID, t.UnixMilli())
}

func (m *Manager) Diff(ctx context.Context, memoryID, oldVersionID, newVersionID string) ([]versioning.Change, error) {
	if err := ctxGuard(ctx); err != nil {
		return nil, err
	}
	return m.versions.Diff(memoryID, oldVersionID, newVersionID)
}

// CreateSnapshot pins the current head version of each of memoryIDs, or
// of every memory in the store when memoryIDs is nil.
func (m *Manager) CreateSnapshot(ctx context.Context, description string, memoryIDs []string) (*records.Snapshot, error) {
	if err := ctxGuard(ctx); err != nil {
		return nil, err
	}
	if memoryIDs == nil {
		all, err := m.kernel.ListMemories(records.MemoryFilter{}, 0, 0)
		if err != nil {
			return nil, err
		}
		for _, mem := range all {
			memoryIDs = append(memoryIDs, mem.ID)
		}
	}
	return m.versions.CreateSnapshot(description, memoryIDs, nowMillis())
}

func (m *Manager) RestoreSnapshot(ctx context.Context, snapshotID string, mode versioning.RestoreMode) error {
	if err := ctxGuard(ctx); err != nil {
		return err
	}
	return m.versions.RestoreSnapshot(snapshotID, mode, nowMillis())
}

// CompactVersions removes obsolete versions of memoryID, or of every
// memory when memoryID is empty, returning the total count removed.
func (m *Manager) CompactVersions(ctx context.Context, memoryID string, keepRecent int, olderThan time.Time) (int, error) {
	if err := ctxGuard(ctx); err != nil {
		return 0, err
	}
	var ot int64
	if !olderThan.IsZero() {
		ot = olderThan.UnixMilli()
	}
	if memoryID != "" {
		return m.versions.CompactVersions(memoryID, keepRecent, ot)
	}

	all, err := m.kernel.ListMemories(records.MemoryFilter{}, 0, 0)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, mem := range all {
		if err := ctxGuard(ctx); err != nil {
			return total, err
		}
		n, err := m.versions.CompactVersions(mem.ID, keepRecent, ot)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// SweepExpired deletes every memory whose expires_at has passed,
// returning the ids removed.
func (m *Manager) SweepExpired(ctx context.Context) ([]string, error) {
	if err := ctxGuard(ctx); err != nil {
		return nil, err
	}
	return m.kernel.SweepExpiredMemories(nowMillis())
}

func (m *Manager) ValidateVersions(ctx context.Context, memoryID string) ([]string, error) {
	if err := ctxGuard(ctx); err != nil {
		return nil, err
	}
	return m.versions.ValidateVersions(memoryID)
}

func (m *Manager) RepairVersions(ctx context.Context, memoryID string) (repaired, unrepairable []string, err error) {
	if err := ctxGuard(ctx); err != nil {
		return nil, nil, err
	}
	return m.versions.RepairVersions(memoryID)
}

// -- Change stream ------------------------------------------------------------

// Subscribe returns a live subscription to the change stream, optionally
// filtered to a set of tables.
func (m *Manager) Subscribe(tables ...changestream.Table) *changestream.Subscription {
	return m.bus.Subscribe(tables...)
}

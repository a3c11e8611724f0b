package memoria

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kittclouds/memoria/internal/changestream"
	"github.com/kittclouds/memoria/internal/memerr"
	"github.com/kittclouds/memoria/internal/records"
	"github.com/kittclouds/memoria/internal/search"
	"github.com/kittclouds/memoria/internal/versioning"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	cfg := DefaultConfig()
	cfg.EmbeddingDimension = 4
	m, err := Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m
}

// Keyword search surfaces a memory by its content terms.
func TestSearchKeyword(t *testing.T) {
	m := newTestManager(t)
	ctx := t.Context()

	_, err := m.AddMemory(ctx, "the capital of France is Paris")
	require.NoError(t, err)
	_, err = m.AddMemory(ctx, "bananas are a good source of potassium")
	require.NoError(t, err)

	results, err := m.Search(ctx, "Paris capital", search.ModeText, 10, records.MemoryFilter{})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	require.Contains(t, results[0].Memory.Content, "Paris")
}

// Hybrid search on a store configured with a linear recency decay returns
// both keyword-matching memories; their relative order is not asserted.
func TestSearchHybridRecencyBoost(t *testing.T) {
	newTestManager(t)
	ctx := t.Context()

	cfg := DefaultConfig()
	cfg.EmbeddingDimension = 4
	cfg.Scoring.DecayFn = search.DecayLinear
	cfg.Scoring.DecayRate = 0.001
	cfg.Scoring.RecencyBoost = 100
	boosted, err := Open(cfg)
	require.NoError(t, err)
	defer boosted.Close()

	_, err = boosted.AddMemory(ctx, "quarterly revenue report")
	require.NoError(t, err)
	_, err = boosted.AddMemory(ctx, "quarterly revenue report quarterly revenue report")
	require.NoError(t, err)

	results, err := boosted.Search(ctx, "quarterly revenue", search.ModeHybrid, 10, records.MemoryFilter{})
	require.NoError(t, err)
	require.Len(t, results, 2)
}

// A versioning round-trip past the delta threshold still reconstructs
// every intermediate version exactly. Driven directly against the
// versioning store (bypassing the asynchronously dispatched auto-version
// hook) so reconstruction order is deterministic.
func TestVersioningRoundTripPastDeltaThreshold(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EmbeddingDimension = 4
	cfg.DeltaThreshold = 2
	cfg.AutoVersioning = false
	store, err := Open(cfg)
	require.NoError(t, err)
	defer store.Close()

	mem, err := store.AddMemory(t.Context(), "version zero")
	require.NoError(t, err)

	_, err = store.versions.CreateInitialVersion(mem.ID, mem.Content, 1)
	require.NoError(t, err)

	contents := []string{"version one", "version two", "version three", "version four"}
	var versionIDs []string
	for i, c := range contents {
		v, err := store.versions.CreateVersion(mem.ID, c, int64(i+2), false)
		require.NoError(t, err)
		versionIDs = append(versionIDs, v.VersionID)
	}

	for i, vID := range versionIDs {
		reconstructed, err := store.GetVersion(t.Context(), mem.ID, vID)
		require.NoError(t, err)
		require.Equal(t, contents[i], reconstructed)
	}
}

// Graph paths traverse entity-mediated edges between two memories that
// share no direct relationship.
func TestGraphPathsViaEntityMediatedEdges(t *testing.T) {
	m := newTestManager(t)
	ctx := t.Context()

	memA, err := m.AddMemory(ctx, "Alice works at Acme")
	require.NoError(t, err)
	memB, err := m.AddMemory(ctx, "Acme is hiring engineers")
	require.NoError(t, err)

	require.NoError(t, m.CreateEntity(ctx, &records.Entity{ID: "acme", EntityType: "organization"}))
	require.NoError(t, m.kernel.CreateRelationship(&records.Relationship{
		ID: "r1", SourceID: memA.ID, TargetID: "acme", RelationshipType: "contains",
	}, false))
	require.NoError(t, m.kernel.CreateRelationship(&records.Relationship{
		ID: "r2", SourceID: memB.ID, TargetID: "acme", RelationshipType: "contains",
	}, false))

	paths, err := m.FindPaths(ctx, memA.ID, memB.ID, 4)
	require.NoError(t, err)
	require.NotEmpty(t, paths)
}

// Change-stream events arrive in the order memories are written.
func TestChangeStreamOrdering(t *testing.T) {
	m := newTestManager(t)
	ctx := t.Context()

	sub := m.Subscribe(changestream.TableMemory)
	defer sub.Close()

	first, err := m.AddMemory(ctx, "first")
	require.NoError(t, err)
	second, err := m.AddMemory(ctx, "second")
	require.NoError(t, err)

	evt1, _, err := sub.Recv(ctx)
	require.NoError(t, err)
	evt2, _, err := sub.Recv(ctx)
	require.NoError(t, err)

	mem1 := evt1.Record.(*records.Memory)
	mem2 := evt2.Record.(*records.Memory)
	require.Equal(t, first.ID, mem1.ID)
	require.Equal(t, second.ID, mem2.ID)
}

// A transactional batch fails as a whole when a later op fails, and the
// memory created by an earlier op is rolled back.
func TestBatchTransactionalRollback(t *testing.T) {
	m := newTestManager(t)
	ctx := t.Context()

	ops := []BatchOp{
		{Kind: BatchCreateMemory, Content: "keep-or-rollback one"},
		{Kind: BatchCreateMemory, Content: "keep-or-rollback two"},
		{Kind: BatchDeleteMemory, TargetID: "does-not-exist"},
	}

	results, err := m.Batch(ctx, ops, true)
	require.Error(t, err)
	require.Len(t, results, 3)

	createdID := results[0].CreatedMemoryID
	require.NotEmpty(t, createdID)
	_, getErr := m.GetMemory(ctx, createdID)
	require.Error(t, getErr)
	kind, ok := memerr.Of(getErr)
	require.True(t, ok)
	require.Equal(t, memerr.KindNotFound, kind)
}

func TestBatchExceedsMaxSize(t *testing.T) {
	m := newTestManager(t)
	m.cfg.MaxBatchSize = 1

	ops := []BatchOp{
		{Kind: BatchCreateMemory, Content: "one"},
		{Kind: BatchCreateMemory, Content: "two"},
	}
	_, err := m.Batch(t.Context(), ops, false)
	require.Error(t, err)
	kind, _ := memerr.Of(err)
	require.Equal(t, memerr.KindValidation, kind)
}

func TestRestoreSnapshotOverwrite(t *testing.T) {
	m := newTestManager(t)
	ctx := t.Context()

	mem, err := m.AddMemory(ctx, "original content")
	require.NoError(t, err)

	// The auto-version hook runs asynchronously; wait for version[0]
	// before pinning it in a snapshot.
	require.Eventually(t, func() bool {
		chain, err := m.kernel.ListVersions(mem.ID)
		return err == nil && len(chain) > 0
	}, 2*time.Second, 10*time.Millisecond)

	snap, err := m.CreateSnapshot(ctx, "checkpoint", []string{mem.ID})
	require.NoError(t, err)

	mem.Content = "changed content"
	require.NoError(t, m.UpdateMemory(ctx, mem))

	require.NoError(t, m.RestoreSnapshot(ctx, snap.SnapshotID, versioning.Overwrite))

	restored, err := m.GetMemory(ctx, mem.ID)
	require.NoError(t, err)
	require.Equal(t, "original content", restored.Content)
}

func mustDef(name string, symmetric bool) *records.RelationshipTypeDef {
	return &records.RelationshipTypeDef{Name: name, Symmetric: symmetric, Version: 1}
}

// Deleting a relationship type that a stored relationship still uses is
// rejected with TypeInUse; deleting an unused one succeeds.
func TestRelationshipTypeInUse(t *testing.T) {
	m := newTestManager(t)
	ctx := t.Context()

	require.NoError(t, m.RegisterRelationshipType(ctx, mustDef("mentions", false)))

	memA, err := m.AddMemory(ctx, "note about Go")
	require.NoError(t, err)
	memB, err := m.AddMemory(ctx, "another note about Go")
	require.NoError(t, err)

	require.NoError(t, m.CreateRelationship(ctx, &records.Relationship{
		SourceID: memA.ID, TargetID: memB.ID, RelationshipType: "mentions",
	}))

	err = m.DeleteRelationshipType(ctx, "mentions")
	require.Error(t, err)
	kind, ok := memerr.Of(err)
	require.True(t, ok)
	require.Equal(t, memerr.KindTypeInUse, kind)

	require.NoError(t, m.RegisterRelationshipType(ctx, mustDef("unused", false)))
	require.NoError(t, m.DeleteRelationshipType(ctx, "unused"))
}

// A relationship using an unregistered type is rejected before it is
// persisted.
func TestCreateRelationshipUnknownType(t *testing.T) {
	m := newTestManager(t)
	ctx := t.Context()

	memA, err := m.AddMemory(ctx, "first")
	require.NoError(t, err)
	memB, err := m.AddMemory(ctx, "second")
	require.NoError(t, err)

	err = m.CreateRelationship(ctx, &records.Relationship{
		SourceID: memA.ID, TargetID: memB.ID, RelationshipType: "never-registered",
	})
	require.Error(t, err)
	kind, _ := memerr.Of(err)
	require.Equal(t, memerr.KindTypeNotFound, kind)
}

// Expired memories are removed by the sweep and survive until then.
func TestSweepExpired(t *testing.T) {
	m := newTestManager(t)
	ctx := t.Context()

	past := time.Now().Add(-time.Hour).UnixMilli()
	created := time.Now().Add(-2 * time.Hour).UnixMilli()
	expiring := &records.Memory{
		ID: "expiring", Content: "short-lived", MemoryType: records.MemoryTypeFact,
		CreatedAt: created, ExpiresAt: &past,
	}
	require.NoError(t, m.kernel.CreateMemory(expiring))

	_, err := m.AddMemory(ctx, "durable")
	require.NoError(t, err)

	removed, err := m.SweepExpired(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"expiring"}, removed)

	_, err = m.GetMemory(ctx, "expiring")
	require.Error(t, err)
}

// A cancelled context surfaces as Timeout before any kernel work runs.
func TestCancelledContextSurfacesTimeout(t *testing.T) {
	m := newTestManager(t)
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, err := m.AddMemory(ctx, "never stored")
	require.Error(t, err)
	kind, _ := memerr.Of(err)
	require.Equal(t, memerr.KindTimeout, kind)

	_, err = m.ListMemories(ctx, records.MemoryFilter{}, 0, 0)
	kind, _ = memerr.Of(err)
	require.Equal(t, memerr.KindTimeout, kind)

	_, err = m.Search(ctx, "anything", search.ModeText, 5, records.MemoryFilter{})
	kind, _ = memerr.Of(err)
	require.Equal(t, memerr.KindTimeout, kind)

	_, err = m.FindPaths(ctx, "a", "b", 2)
	kind, _ = memerr.Of(err)
	require.Equal(t, memerr.KindTimeout, kind)
}

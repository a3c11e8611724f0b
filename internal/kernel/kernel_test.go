package kernel

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kittclouds/memoria/internal/changestream"
	"github.com/kittclouds/memoria/internal/memerr"
	"github.com/kittclouds/memoria/internal/records"
)

func newTestKernel(t *testing.T) *Kernel {
	t.Helper()
	k, err := Open(":memory:", changestream.NewBus(64))
	require.NoError(t, err)
	t.Cleanup(func() { k.Close() })
	return k
}

func TestCreateAndGetMemory(t *testing.T) {
	k := newTestKernel(t)

	m := &records.Memory{ID: "m1", Content: "The capital of France is Paris", MemoryType: records.MemoryTypeFact}
	require.NoError(t, k.CreateMemory(m))

	got, err := k.GetMemory("m1")
	require.NoError(t, err)
	require.Equal(t, "The capital of France is Paris", got.Content)
	require.NotZero(t, got.CreatedAt)
}

func TestCreateMemoryEmptyContent(t *testing.T) {
	k := newTestKernel(t)
	err := k.CreateMemory(&records.Memory{ID: "m1"})
	require.Error(t, err)
	kind, ok := memerr.Of(err)
	require.True(t, ok)
	require.Equal(t, memerr.KindValidation, kind)
}

func TestCreateMemoryDuplicateID(t *testing.T) {
	k := newTestKernel(t)
	m := &records.Memory{ID: "dup", Content: "x"}
	require.NoError(t, k.CreateMemory(m))
	err := k.CreateMemory(&records.Memory{ID: "dup", Content: "y"})
	require.Error(t, err)
	kind, _ := memerr.Of(err)
	require.Equal(t, memerr.KindAlreadyExists, kind)
}

func TestDeleteMemoryNotFound(t *testing.T) {
	k := newTestKernel(t)
	err := k.DeleteMemory("missing")
	kind, _ := memerr.Of(err)
	require.Equal(t, memerr.KindNotFound, kind)
}

func TestListMemoriesFilterByType(t *testing.T) {
	k := newTestKernel(t)
	fact := records.MemoryTypeFact
	pref := records.MemoryTypePreference
	require.NoError(t, k.CreateMemory(&records.Memory{ID: "1", Content: "a", MemoryType: fact}))
	require.NoError(t, k.CreateMemory(&records.Memory{ID: "2", Content: "b", MemoryType: pref}))

	got, err := k.ListMemories(records.MemoryFilter{MemoryType: &fact}, 0, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "1", got[0].ID)
}

func TestChangeEventPublishedAfterWrite(t *testing.T) {
	bus := changestream.NewBus(8)
	k, err := Open(":memory:", bus)
	require.NoError(t, err)
	defer k.Close()

	sub := bus.Subscribe(changestream.TableMemory)
	defer sub.Close()

	require.NoError(t, k.CreateMemory(&records.Memory{ID: "m1", Content: "hello"}))

	evt, _, err := sub.Recv(t.Context())
	require.NoError(t, err)
	require.Equal(t, changestream.ActionCreate, evt.Action)
	require.Equal(t, changestream.TableMemory, evt.Table)
}

func TestRelationshipSelfLoopRejectedUnlessAllowed(t *testing.T) {
	k := newTestKernel(t)
	r := &records.Relationship{ID: "r1", SourceID: "a", TargetID: "a", RelationshipType: "KNOWS"}
	err := k.CreateRelationship(r, false)
	require.Error(t, err)

	require.NoError(t, k.CreateRelationship(r, true))
}

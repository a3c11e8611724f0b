package lifecycle

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kittclouds/memoria/internal/changestream"
	"github.com/kittclouds/memoria/internal/records"
)

type fakeVersionStore struct {
	initial []string
	updated []string
}

func (s *fakeVersionStore) CreateInitialVersion(memoryID, _ string, _ int64) (*records.Version, error) {
	s.initial = append(s.initial, memoryID)
	return &records.Version{VersionID: "v0", MemoryID: memoryID}, nil
}

func (s *fakeVersionStore) CreateVersion(memoryID, _ string, _ int64, _ bool) (*records.Version, error) {
	s.updated = append(s.updated, memoryID)
	return &records.Version{VersionID: "v1", MemoryID: memoryID}, nil
}

func TestAutoVersionHookCreateWritesInitialVersion(t *testing.T) {
	store := &fakeVersionStore{}
	hook := NewAutoVersionHook(store, func() int64 { return 1 })

	err := hook.HandleMemoryWrite(context.Background(), changestream.ActionCreate, &records.Memory{ID: "m1"})
	require.NoError(t, err)
	require.Equal(t, []string{"m1"}, store.initial)
	require.Empty(t, store.updated)
}

func TestAutoVersionHookUpdateAppendsVersion(t *testing.T) {
	store := &fakeVersionStore{}
	hook := NewAutoVersionHook(store, func() int64 { return 1 })

	err := hook.HandleMemoryWrite(context.Background(), changestream.ActionUpdate, &records.Memory{ID: "m1"})
	require.NoError(t, err)
	require.Empty(t, store.initial)
	require.Equal(t, []string{"m1"}, store.updated)
}

package lifecycle

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kittclouds/memoria/internal/changestream"
	"github.com/kittclouds/memoria/internal/records"
)

type fakeInferenceStore struct {
	memories  []*records.Memory
	rels      []*records.Relationship
	created   []*records.Relationship
}

func (s *fakeInferenceStore) ListMemories(records.MemoryFilter, int, int) ([]*records.Memory, error) {
	return s.memories, nil
}

func (s *fakeInferenceStore) ListRelationships(filter records.RelationshipFilter, _, _ int) ([]*records.Relationship, error) {
	var out []*records.Relationship
	for _, r := range s.rels {
		if filter.SourceID != nil && r.SourceID != *filter.SourceID {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *fakeInferenceStore) CreateRelationship(r *records.Relationship, _ bool) error {
	s.created = append(s.created, r)
	s.rels = append(s.rels, r)
	return nil
}

type fakeEntityCoReference struct {
	entities map[string][]string
}

func (f fakeEntityCoReference) EntitiesOf(memoryID string) ([]string, error) {
	return f.entities[memoryID], nil
}

func TestInferenceHookDisabledNoOp(t *testing.T) {
	store := &fakeInferenceStore{}
	hook := NewInferenceHook(store, nil, InferenceConfig{Enabled: false})
	err := hook.HandleMemoryWrite(context.Background(), changestream.ActionCreate, &records.Memory{ID: "m1"})
	require.NoError(t, err)
	require.Empty(t, store.created)
}

func TestInferenceHookCoReferenceAboveThreshold(t *testing.T) {
	store := &fakeInferenceStore{
		memories: []*records.Memory{
			{ID: "m1", CreatedAt: 1000},
			{ID: "m2", CreatedAt: 1000},
		},
	}
	entity := fakeEntityCoReference{entities: map[string][]string{
		"m1": {"acme"},
		"m2": {"acme"},
	}}
	hook := NewInferenceHook(store, entity, InferenceConfig{
		Enabled: true, ConfidenceThreshold: 0.1, MaxPerMemory: 5,
	})

	err := hook.HandleMemoryWrite(context.Background(), changestream.ActionCreate, store.memories[0])
	require.NoError(t, err)
	require.Len(t, store.created, 1)
	require.Equal(t, "m2", store.created[0].TargetID)
	require.Equal(t, inferredRelatesType, store.created[0].RelationshipType)
}

func TestInferenceHookRespectsMaxPerMemoryBudget(t *testing.T) {
	store := &fakeInferenceStore{
		memories: []*records.Memory{
			{ID: "m1", CreatedAt: 1000, Tags: []string{"x"}},
			{ID: "m2", CreatedAt: 1000, Tags: []string{"x"}},
			{ID: "m3", CreatedAt: 1000, Tags: []string{"x"}},
		},
	}
	hook := NewInferenceHook(store, nil, InferenceConfig{
		Enabled: true, ConfidenceThreshold: 0.1, MaxPerMemory: 1,
	})

	err := hook.HandleMemoryWrite(context.Background(), changestream.ActionCreate, store.memories[0])
	require.NoError(t, err)
	require.Len(t, store.created, 1)
}

func TestInferenceHookSkipsAlreadyLinkedTargets(t *testing.T) {
	store := &fakeInferenceStore{
		memories: []*records.Memory{
			{ID: "m1", CreatedAt: 1000, Tags: []string{"x"}},
			{ID: "m2", CreatedAt: 1000, Tags: []string{"x"}},
		},
		rels: []*records.Relationship{
			{ID: "existing", SourceID: "m1", TargetID: "m2", RelationshipType: inferredRelatesType},
		},
	}
	hook := NewInferenceHook(store, nil, InferenceConfig{
		Enabled: true, ConfidenceThreshold: 0.1, MaxPerMemory: 5,
	})

	err := hook.HandleMemoryWrite(context.Background(), changestream.ActionCreate, store.memories[0])
	require.NoError(t, err)
	require.Empty(t, store.created)
}

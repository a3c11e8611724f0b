package graph

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kittclouds/memoria/internal/records"
)

type memStore struct {
	memories      map[string]*records.Memory
	relationships []*records.Relationship
}

func (s *memStore) GetMemory(id string) (*records.Memory, error) {
	if m, ok := s.memories[id]; ok {
		return m, nil
	}
	return nil, assertNotFound{}
}

type assertNotFound struct{}

func (assertNotFound) Error() string { return "not found" }

func (s *memStore) ListRelationships(filter records.RelationshipFilter, limit, offset int) ([]*records.Relationship, error) {
	var out []*records.Relationship
	for _, r := range s.relationships {
		if filter.SourceID != nil && r.SourceID != *filter.SourceID {
			continue
		}
		if filter.TargetID != nil && r.TargetID != *filter.TargetID {
			continue
		}
		if filter.RelationshipType != nil && r.RelationshipType != *filter.RelationshipType {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// TestFindPathsSharedEntity checks that two memories sharing a
// contained entity must yield a path of length 2.
func TestFindPathsSharedEntity(t *testing.T) {
	store := &memStore{
		memories: map[string]*records.Memory{"m1": {ID: "m1"}, "m2": {ID: "m2"}},
		relationships: []*records.Relationship{
			{ID: "c1", SourceID: "m1", TargetID: "e1", RelationshipType: containsType},
			{ID: "c2", SourceID: "m2", TargetID: "e1", RelationshipType: containsType},
		},
	}
	tr := NewTraverser(store)

	paths, err := tr.FindPaths("m1", "m2", 3)
	require.NoError(t, err)
	require.NotEmpty(t, paths)
	require.Len(t, paths[0].Memories, 2)
}

func TestFindPathsSelfShortcut(t *testing.T) {
	store := &memStore{memories: map[string]*records.Memory{"m1": {ID: "m1"}}}
	tr := NewTraverser(store)

	paths, err := tr.FindPaths("m1", "m1", 3)
	require.NoError(t, err)
	require.Len(t, paths, 1)
	require.Equal(t, []string{"m1"}, paths[0].Memories)
}

func TestFindPathsNoRepeatMemory(t *testing.T) {
	store := &memStore{
		memories: map[string]*records.Memory{"m1": {ID: "m1"}, "m2": {ID: "m2"}, "m3": {ID: "m3"}},
		relationships: []*records.Relationship{
			{ID: "c1", SourceID: "m1", TargetID: "e1", RelationshipType: containsType},
			{ID: "c2", SourceID: "m2", TargetID: "e1", RelationshipType: containsType},
			{ID: "c3", SourceID: "m2", TargetID: "e2", RelationshipType: containsType},
			{ID: "c4", SourceID: "m3", TargetID: "e2", RelationshipType: containsType},
			{ID: "c5", SourceID: "m1", TargetID: "e2", RelationshipType: containsType},
		},
	}
	tr := NewTraverser(store)

	paths, err := tr.FindPaths("m1", "m3", 5)
	require.NoError(t, err)
	for _, p := range paths {
		seen := map[string]bool{}
		for _, m := range p.Memories {
			require.False(t, seen[m], "path revisits memory %s", m)
			seen[m] = true
		}
	}
}

func TestMemorySubgraphTerminates(t *testing.T) {
	store := &memStore{
		memories: map[string]*records.Memory{"m1": {ID: "m1"}, "m2": {ID: "m2"}},
		relationships: []*records.Relationship{
			{ID: "c1", SourceID: "m1", TargetID: "e1", RelationshipType: containsType},
			{ID: "c2", SourceID: "m2", TargetID: "e1", RelationshipType: containsType},
		},
	}
	tr := NewTraverser(store)

	g, err := tr.MemorySubgraph("m1", 2)
	require.NoError(t, err)
	require.Contains(t, g.Memories, "m2")
}

// Every route within the depth bound is reported: one direct shared-entity
// hop and one two-hop chain between the same endpoints.
func TestFindPathsEnumeratesAllRoutes(t *testing.T) {
	store := &memStore{
		memories: map[string]*records.Memory{"m1": {ID: "m1"}, "m2": {ID: "m2"}, "m3": {ID: "m3"}},
		relationships: []*records.Relationship{
			{ID: "c1", SourceID: "m1", TargetID: "e1", RelationshipType: containsType},
			{ID: "c2", SourceID: "m2", TargetID: "e1", RelationshipType: containsType},
			{ID: "c3", SourceID: "m2", TargetID: "e2", RelationshipType: containsType},
			{ID: "c4", SourceID: "m3", TargetID: "e2", RelationshipType: containsType},
			{ID: "c5", SourceID: "m1", TargetID: "e3", RelationshipType: containsType},
			{ID: "c6", SourceID: "m3", TargetID: "e3", RelationshipType: containsType},
		},
	}
	tr := NewTraverser(store)

	paths, err := tr.FindPaths("m1", "m3", 3)
	require.NoError(t, err)
	require.Len(t, paths, 2)
}

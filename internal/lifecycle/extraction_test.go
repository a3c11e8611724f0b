package lifecycle

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kittclouds/memoria/internal/changestream"
	"github.com/kittclouds/memoria/internal/records"
)

type fakeExtractor struct {
	entities []ExtractedEntity
}

func (f fakeExtractor) ExtractEntities(context.Context, string) ([]ExtractedEntity, error) {
	return f.entities, nil
}

type fakeEntityStore struct {
	entities []*records.Entity
	rels     []*records.Relationship
}

func (s *fakeEntityStore) UpsertEntity(e *records.Entity) error {
	s.entities = append(s.entities, e)
	return nil
}

func (s *fakeEntityStore) CreateRelationship(r *records.Relationship, _ bool) error {
	s.rels = append(s.rels, r)
	return nil
}

func (s *fakeEntityStore) ListRelationships(filter records.RelationshipFilter, _, _ int) ([]*records.Relationship, error) {
	var out []*records.Relationship
	for _, r := range s.rels {
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

func TestExtractionHookMaterializesContainsRelationships(t *testing.T) {
	extractor := fakeExtractor{entities: []ExtractedEntity{
		{EntityType: "organization", CanonicalName: "Acme", Properties: json.RawMessage(`{}`)},
	}}
	store := &fakeEntityStore{}
	hook := NewExtractionHook(extractor, store, func() int64 { return 42 })

	err := hook.HandleMemoryWrite(context.Background(), changestream.ActionCreate, &records.Memory{ID: "m1", Content: "Acme just shipped a release"})
	require.NoError(t, err)

	require.Len(t, store.entities, 1)
	require.Equal(t, "organization", store.entities[0].EntityType)

	require.Len(t, store.rels, 1)
	require.Equal(t, "m1", store.rels[0].SourceID)
	require.Equal(t, "contains", store.rels[0].RelationshipType)
	require.Equal(t, store.entities[0].ID, store.rels[0].TargetID)
}

func TestExtractionHookSkipsDuplicateContainsEdge(t *testing.T) {
	extractor := fakeExtractor{entities: []ExtractedEntity{
		{EntityType: "organization", CanonicalName: "Acme", Properties: json.RawMessage(`{}`)},
	}}
	store := &fakeEntityStore{}
	hook := NewExtractionHook(extractor, store, func() int64 { return 42 })

	mem := &records.Memory{ID: "m1", Content: "Acme just shipped a release"}
	require.NoError(t, hook.HandleMemoryWrite(context.Background(), changestream.ActionCreate, mem))
	require.NoError(t, hook.HandleMemoryWrite(context.Background(), changestream.ActionUpdate, mem))

	require.Len(t, store.entities, 2)
	require.Len(t, store.rels, 1)
}

func TestExtractionHookDeterministicEntityID(t *testing.T) {
	id1 := deterministicEntityID("organization", "Acme")
	id2 := deterministicEntityID("organization", "Acme")
	id3 := deterministicEntityID("organization", "Globex")
	require.Equal(t, id1, id2)
	require.NotEqual(t, id1, id3)
}

package lifecycle

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/kittclouds/memoria/internal/changestream"
	"github.com/kittclouds/memoria/internal/records"
)

// ExtractedEntity is a single entity surfaced from memory content by an
// EntityExtractor.
type ExtractedEntity struct {
	EntityType    string
	CanonicalName string
	Properties    json.RawMessage
}

// EntityExtractor is an opaque collaborator; callers supply any
// implementation (LLM-backed, rule-based, or a no-op).
type EntityExtractor interface {
	ExtractEntities(ctx context.Context, content string) ([]ExtractedEntity, error)
}

// EntityStore is the subset of internal/kernel.Kernel the extraction hook
// needs.
type EntityStore interface {
	UpsertEntity(e *records.Entity) error
	CreateRelationship(r *records.Relationship, allowSelfLoop bool) error
	ListRelationships(filter records.RelationshipFilter, limit, offset int) ([]*records.Relationship, error)
}

const containsType = "contains"

// ExtractionHook invokes an EntityExtractor on new/updated memory content
// and upserts "contains" relationships memory->entity for each result.
// Both Create and Update events run
// extraction again since edited content may mention different entities;
// an existing (source, target, contains) edge is left untouched rather
// than duplicated.
type ExtractionHook struct {
	extractor EntityExtractor
	store     EntityStore
	now       func() int64
}

func NewExtractionHook(extractor EntityExtractor, store EntityStore, now func() int64) *ExtractionHook {
	return &ExtractionHook{extractor: extractor, store: store, now: now}
}

func (h *ExtractionHook) Name() string { return "entity-extraction" }

func (h *ExtractionHook) HandleMemoryWrite(ctx context.Context, _ changestream.Action, m *records.Memory) error {
	entities, err := h.extractor.ExtractEntities(ctx, m.Content)
	if err != nil {
		return err
	}

	for _, ex := range entities {
		entityID := deterministicEntityID(ex.EntityType, ex.CanonicalName)
		entity := &records.Entity{
			ID:         entityID,
			EntityType: ex.EntityType,
			Properties: ex.Properties,
		}
		if err := h.store.UpsertEntity(entity); err != nil {
			return err
		}

		exists, err := h.containsEdgeExists(m.ID, entityID)
		if err != nil {
			return err
		}
		if exists {
			continue
		}

		rel := &records.Relationship{
			ID:               uuid.NewString(),
			SourceID:         m.ID,
			TargetID:         entityID,
			RelationshipType: containsType,
			CreatedAt:        h.now(),
		}
		if err := h.store.CreateRelationship(rel, false); err != nil {
			return err
		}
	}
	return nil
}

// containsEdgeExists reports whether a (memoryID, entityID, "contains")
// relationship is already persisted, so re-running extraction on an
// unchanged or re-saved memory upserts rather than duplicates the edge.
func (h *ExtractionHook) containsEdgeExists(memoryID, entityID string) (bool, error) {
	relType := containsType
	rels, err := h.store.ListRelationships(records.RelationshipFilter{
		SourceID:         &memoryID,
		TargetID:         &entityID,
		RelationshipType: &relType,
	}, 1, 0)
	if err != nil {
		return false, err
	}
	return len(rels) > 0, nil
}

// deterministicEntityID keys an entity by a hash of its type and
// canonical name, so repeated extraction of the same real-world entity
// upserts one row instead of duplicating it.
func deterministicEntityID(entityType, canonicalName string) string {
	sum := sha256.Sum256([]byte(entityType + "\x00" + canonicalName))
	return hex.EncodeToString(sum[:16])
}

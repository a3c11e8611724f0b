package lifecycle

import (
	"context"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/kittclouds/memoria/internal/changestream"
	"github.com/kittclouds/memoria/internal/records"
)

// InferenceStore is the subset of internal/kernel.Kernel the inference hook
// needs: enough to find candidate memories and entities co-mentioned with
// the one just written, and to persist any relationship that clears the
// confidence threshold.
type InferenceStore interface {
	ListMemories(filter records.MemoryFilter, limit, offset int) ([]*records.Memory, error)
	ListRelationships(filter records.RelationshipFilter, limit, offset int) ([]*records.Relationship, error)
	CreateRelationship(r *records.Relationship, allowSelfLoop bool) error
}

// InferenceConfig tunes strategy thresholds and the per-memory
// relationship budget.
type InferenceConfig struct {
	Enabled             bool
	ConfidenceThreshold float64
	TemporalWindowMs    int64
	MaxPerMemory        int
}

func DefaultInferenceConfig() InferenceConfig {
	return InferenceConfig{
		Enabled:             false,
		ConfidenceThreshold: 0.5,
		TemporalWindowMs:    5 * 60 * 1000,
		MaxPerMemory:        5,
	}
}

// inferredRelatesType names memory->memory edges the inference hook
// persists. It is deliberately distinct from internal/graph's
// entity<->entity "relates" edge class: directMemoryNeighbours in that
// package skips anything literally typed "relates" when walking direct
// memory<->memory edges, so reusing that string would make every
// inferred relationship invisible to FindPaths/FindConnected.
const inferredRelatesType = "inferred-relates"

// candidateRelationship is an inference strategy's proposal, carrying the
// confidence that decides whether it is persisted.
type candidateRelationship struct {
	targetID   string
	relType    string
	confidence float64
	strategy   string
}

// InferenceHook runs entity co-reference, temporal-proximity, and
// tag-overlap strategies over the freshly written memory against recent
// memories already in the store, persisting whichever candidates clear
// the confidence threshold, capped by a per-memory budget.
type InferenceHook struct {
	store  InferenceStore
	cfg    InferenceConfig
	entity EntityCoReference
}

// EntityCoReference looks up the entity ids a memory `contains`, used by
// the co-reference strategy to compare two memories' entity sets.
type EntityCoReference interface {
	EntitiesOf(memoryID string) ([]string, error)
}

func NewInferenceHook(store InferenceStore, entity EntityCoReference, cfg InferenceConfig) *InferenceHook {
	return &InferenceHook{store: store, cfg: cfg, entity: entity}
}

func (h *InferenceHook) Name() string { return "relationship-inference" }

func (h *InferenceHook) HandleMemoryWrite(_ context.Context, _ changestream.Action, m *records.Memory) error {
	if !h.cfg.Enabled {
		return nil
	}

	budget := h.cfg.MaxPerMemory
	if budget <= 0 {
		return nil
	}

	recent, err := h.store.ListMemories(records.MemoryFilter{}, 50, 0)
	if err != nil {
		return err
	}

	already, err := h.alreadyLinkedTargets(m.ID)
	if err != nil {
		return err
	}

	var candidates []candidateRelationship
	for _, other := range recent {
		if other.ID == m.ID || already[other.ID] {
			continue
		}
		if c, ok := h.coReference(m, other); ok {
			candidates = append(candidates, c)
		}
		if c, ok := h.temporalProximity(m, other); ok {
			candidates = append(candidates, c)
		}
		if c, ok := h.tagOverlap(m, other); ok {
			candidates = append(candidates, c)
		}
	}

	persisted := 0
	for _, c := range candidates {
		if persisted >= budget {
			break
		}
		if c.confidence < h.cfg.ConfidenceThreshold {
			continue
		}
		rel := &records.Relationship{
			ID:               uuid.NewString(),
			SourceID:         m.ID,
			TargetID:         c.targetID,
			RelationshipType: c.relType,
			Properties:       inferenceProperties(c),
			CreatedAt:        m.UpdatedAt,
		}
		if err := h.store.CreateRelationship(rel, false); err != nil {
			return err
		}
		already[c.targetID] = true
		persisted++
	}
	return nil
}

func (h *InferenceHook) alreadyLinkedTargets(memoryID string) (map[string]bool, error) {
	out := make(map[string]bool)
	rels, err := h.store.ListRelationships(records.RelationshipFilter{SourceID: &memoryID}, 0, 0)
	if err != nil {
		return nil, err
	}
	for _, r := range rels {
		out[r.TargetID] = true
	}
	return out, nil
}

// coReference proposes a relationship between two memories that mention
// at least one entity in common.
func (h *InferenceHook) coReference(m, other *records.Memory) (candidateRelationship, bool) {
	if h.entity == nil {
		return candidateRelationship{}, false
	}
	a, err := h.entity.EntitiesOf(m.ID)
	if err != nil || len(a) == 0 {
		return candidateRelationship{}, false
	}
	b, err := h.entity.EntitiesOf(other.ID)
	if err != nil || len(b) == 0 {
		return candidateRelationship{}, false
	}
	set := make(map[string]bool, len(a))
	for _, id := range a {
		set[id] = true
	}
	shared := 0
	for _, id := range b {
		if set[id] {
			shared++
		}
	}
	if shared == 0 {
		return candidateRelationship{}, false
	}
	denom := len(a)
	if len(b) > denom {
		denom = len(b)
	}
	confidence := float64(shared) / float64(denom)
	return candidateRelationship{targetID: other.ID, relType: inferredRelatesType, confidence: confidence, strategy: "co-reference"}, true
}

// temporalProximity proposes a relationship between memories created
// within the configured time window of one another.
func (h *InferenceHook) temporalProximity(m, other *records.Memory) (candidateRelationship, bool) {
	if h.cfg.TemporalWindowMs <= 0 {
		return candidateRelationship{}, false
	}
	delta := m.CreatedAt - other.CreatedAt
	if delta < 0 {
		delta = -delta
	}
	if delta > h.cfg.TemporalWindowMs {
		return candidateRelationship{}, false
	}
	confidence := 1 - float64(delta)/float64(h.cfg.TemporalWindowMs)
	return candidateRelationship{targetID: other.ID, relType: inferredRelatesType, confidence: confidence, strategy: "temporal-proximity"}, true
}

// tagOverlap proposes a relationship between memories sharing tags,
// scored by Jaccard similarity of their tag sets.
func (h *InferenceHook) tagOverlap(m, other *records.Memory) (candidateRelationship, bool) {
	if len(m.Tags) == 0 || len(other.Tags) == 0 {
		return candidateRelationship{}, false
	}
	set := make(map[string]bool, len(m.Tags))
	for _, t := range m.Tags {
		set[strings.ToLower(t)] = true
	}
	union := make(map[string]bool, len(set))
	for k := range set {
		union[k] = true
	}
	shared := 0
	for _, t := range other.Tags {
		lt := strings.ToLower(t)
		union[lt] = true
		if set[lt] {
			shared++
		}
	}
	if shared == 0 {
		return candidateRelationship{}, false
	}
	confidence := float64(shared) / float64(len(union))
	return candidateRelationship{targetID: other.ID, relType: inferredRelatesType, confidence: confidence, strategy: "tag-overlap"}, true
}

func inferenceProperties(c candidateRelationship) []byte {
	conf := strconv.FormatFloat(c.confidence, 'f', 4, 64)
	return []byte(`{"inferred":true,"strategy":"` + c.strategy + `","confidence":` + conf + `}`)
}

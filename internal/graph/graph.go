// Package graph implements bounded-depth subgraph extraction, BFS path
// finding, and entity-mediated connected-memory search over the kernel's
// relationship records.
package graph

import (
	"github.com/kittclouds/memoria/internal/records"
)

const (
	containsType = "contains" // memory -> entity
	relatesType  = "relates"  // entity -> entity (typed by relationship_type)
)

// Store is the subset of the kernel/record layer graph traversal needs.
type Store interface {
	ListRelationships(filter records.RelationshipFilter, limit, offset int) ([]*records.Relationship, error)
	GetMemory(id string) (*records.Memory, error)
}

// Traverser runs the graph operations over a kernel-backed Store.
type Traverser struct {
	store Store
}

func NewTraverser(store Store) *Traverser {
	return &Traverser{store: store}
}

// MemoryGraph is the result of MemorySubgraph.
type MemoryGraph struct {
	CenterID      string
	Memories      []string
	Relationships []*records.Relationship
}

func (t *Traverser) relationshipsBySourceType(sourceID, relType string) ([]*records.Relationship, error) {
	return t.store.ListRelationships(records.RelationshipFilter{SourceID: &sourceID, RelationshipType: strPtr(relType)}, 0, 0)
}

func (t *Traverser) relationshipsByTargetType(targetID, relType string) ([]*records.Relationship, error) {
	return t.store.ListRelationships(records.RelationshipFilter{TargetID: &targetID, RelationshipType: strPtr(relType)}, 0, 0)
}

// entitiesContainedBy returns the entity ids a memory `contains`.
func (t *Traverser) entitiesContainedBy(memoryID string) ([]string, error) {
	rels, err := t.relationshipsBySourceType(memoryID, containsType)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(rels))
	for i, r := range rels {
		out[i] = r.TargetID
	}
	return out, nil
}

// memoriesContaining returns the memory ids that `contain` an entity,
// along with the `contains` relationship objects connecting each one back
// to the entity.
func (t *Traverser) memoriesContaining(entityID string) ([]string, []*records.Relationship, error) {
	rels, err := t.relationshipsByTargetType(entityID, containsType)
	if err != nil {
		return nil, nil, err
	}
	out := make([]string, len(rels))
	for i, r := range rels {
		out[i] = r.SourceID
	}
	return out, rels, nil
}

// relatesNeighbours returns entities linked to entityID via `relates`
// edges in either direction.
func (t *Traverser) relatesNeighbours(entityID string) ([]string, []*records.Relationship, error) {
	var out []string
	var rels []*records.Relationship

	fwd, err := t.relationshipsBySourceType(entityID, relatesType)
	if err != nil {
		return nil, nil, err
	}
	for _, r := range fwd {
		out = append(out, r.TargetID)
		rels = append(rels, r)
	}

	rev, err := t.relationshipsByTargetType(entityID, relatesType)
	if err != nil {
		return nil, nil, err
	}
	for _, r := range rev {
		out = append(out, r.SourceID)
		rels = append(rels, r)
	}

	return out, rels, nil
}

// directMemoryNeighbours returns relationships directly between two
// memories (neither endpoint playing the role of an entity).
func (t *Traverser) directMemoryNeighbours(memoryID string, relType *string) ([]string, []*records.Relationship, error) {
	var out []string
	var rels []*records.Relationship

	filter := records.RelationshipFilter{SourceID: &memoryID, RelationshipType: relType}
	fwd, err := t.store.ListRelationships(filter, 0, 0)
	if err != nil {
		return nil, nil, err
	}
	for _, r := range fwd {
		if r.RelationshipType == containsType || r.RelationshipType == relatesType {
			continue
		}
		if _, err := t.store.GetMemory(r.TargetID); err == nil {
			out = append(out, r.TargetID)
			rels = append(rels, r)
		}
	}

	filter = records.RelationshipFilter{TargetID: &memoryID, RelationshipType: relType}
	rev, err := t.store.ListRelationships(filter, 0, 0)
	if err != nil {
		return nil, nil, err
	}
	for _, r := range rev {
		if r.RelationshipType == containsType || r.RelationshipType == relatesType {
			continue
		}
		if _, err := t.store.GetMemory(r.SourceID); err == nil {
			out = append(out, r.SourceID)
			rels = append(rels, r)
		}
	}

	return out, rels, nil
}

// MemorySubgraph extracts the subgraph around center within depth hops,
// following memory -contains-> entity -contains<- memory co-mentions and
// memory -contains-> entity -relates-> entity -contains<- memory chains.
// Cycles are prevented by a visited-memory set.
func (t *Traverser) MemorySubgraph(center string, depth int) (*MemoryGraph, error) {
	visited := map[string]bool{center: true}
	var relsCollected []*records.Relationship
	frontier := []string{center}

	for d := 0; d < depth && len(frontier) > 0; d++ {
		var next []string
		for _, memID := range frontier {
			entities, err := t.entitiesContainedBy(memID)
			if err != nil {
				return nil, err
			}
			containsRels, _ := t.relationshipsBySourceType(memID, containsType)
			relsCollected = append(relsCollected, containsRels...)

			for _, ent := range entities {
				// Memories co-mentioning this entity are one hop away.
				coMentions, coRels, err := t.memoriesContaining(ent)
				if err != nil {
					return nil, err
				}
				relsCollected = append(relsCollected, coRels...)
				for _, m := range coMentions {
					if !visited[m] {
						visited[m] = true
						next = append(next, m)
					}
				}

				neighbours, relatesRels, err := t.relatesNeighbours(ent)
				if err != nil {
					return nil, err
				}
				relsCollected = append(relsCollected, relatesRels...)

				for _, neighbourEnt := range neighbours {
					memsContaining, containingRels, err := t.memoriesContaining(neighbourEnt)
					if err != nil {
						return nil, err
					}
					relsCollected = append(relsCollected, containingRels...)
					for _, m := range memsContaining {
						if !visited[m] {
							visited[m] = true
							next = append(next, m)
						}
					}
				}
			}
		}
		frontier = next
	}

	memories := make([]string, 0, len(visited))
	for m := range visited {
		memories = append(memories, m)
	}

	return &MemoryGraph{CenterID: center, Memories: memories, Relationships: dedupRelationships(relsCollected)}, nil
}

// Path is an ordered sequence of memory ids connected by relationships.
type Path struct {
	Memories      []string
	Relationships []*records.Relationship
}

// FindPaths returns every memory-to-memory path from `from` to `to` within
// maxDepth hops via BFS, never revisiting a memory within one path.
func (t *Traverser) FindPaths(from, to string, maxDepth int) ([]Path, error) {
	if from == to {
		return []Path{{Memories: []string{from}}}, nil
	}

	// Termination needs no extra bound: a path never revisits a memory,
	// so every queued path is simple and at most maxDepth hops long, and
	// the queue drains once every simple path has been extended or
	// discarded.
	type frame struct {
		path Path
	}
	start := frame{path: Path{Memories: []string{from}}}
	queue := []frame{start}
	var results []Path

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		if len(cur.path.Memories)-1 >= maxDepth {
			continue
		}

		last := cur.path.Memories[len(cur.path.Memories)-1]
		neighbours, rels, err := t.entityMediatedAndDirectNeighbours(last, nil)
		if err != nil {
			return nil, err
		}

		for i, n := range neighbours {
			if containsMemory(cur.path.Memories, n) {
				continue
			}
			newMemories := append(append([]string{}, cur.path.Memories...), n)
			newRels := append(append([]*records.Relationship{}, cur.path.Relationships...), rels[i])
			newPath := Path{Memories: newMemories, Relationships: newRels}

			if n == to {
				results = append(results, newPath)
				continue
			}
			queue = append(queue, frame{path: newPath})
		}
	}

	return results, nil
}

// FindConnected returns every memory reachable from id within max_depth,
// optionally filtered to a single relationship_type across both the direct
// memory<->memory edges and the entity-mediated traversal.
func (t *Traverser) FindConnected(id string, relType *string, maxDepth int) ([]string, error) {
	visited := map[string]bool{id: true}
	frontier := []string{id}

	for d := 0; d < maxDepth && len(frontier) > 0; d++ {
		var next []string
		for _, memID := range frontier {
			neighbours, _, err := t.entityMediatedAndDirectNeighbours(memID, relType)
			if err != nil {
				return nil, err
			}
			for _, n := range neighbours {
				if !visited[n] {
					visited[n] = true
					next = append(next, n)
				}
			}
		}
		frontier = next
	}

	delete(visited, id)
	out := make([]string, 0, len(visited))
	for m := range visited {
		out = append(out, m)
	}
	return out, nil
}

// entityMediatedAndDirectNeighbours combines direct memory<->memory
// relationships with memory -contains-> entity -relates-> entity
// -contains<- memory chains, both optionally filtered to relType.
func (t *Traverser) entityMediatedAndDirectNeighbours(memID string, relType *string) ([]string, []*records.Relationship, error) {
	var out []string
	var rels []*records.Relationship

	direct, directRels, err := t.directMemoryNeighbours(memID, relType)
	if err != nil {
		return nil, nil, err
	}
	out = append(out, direct...)
	rels = append(rels, directRels...)

	entities, err := t.entitiesContainedBy(memID)
	if err != nil {
		return nil, nil, err
	}
	for _, ent := range entities {
		// Co-mention: another memory containing the same entity is a
		// neighbour through that shared entity. When a type filter is
		// given it applies to the connecting edge, which here is the
		// "contains" edge itself.
		if relType == nil || *relType == containsType {
			coMentions, coRels, err := t.memoriesContaining(ent)
			if err != nil {
				return nil, nil, err
			}
			for i, m := range coMentions {
				if m == memID {
					continue
				}
				out = append(out, m)
				rels = append(rels, coRels[i])
			}
		}

		neighbours, relatesRels, err := t.relatesNeighbours(ent)
		if err != nil {
			return nil, nil, err
		}
		for i, neighbourEnt := range neighbours {
			r := relatesRels[i]
			if relType != nil && r.RelationshipType != *relType {
				continue
			}
			mems, _, err := t.memoriesContaining(neighbourEnt)
			if err != nil {
				return nil, nil, err
			}
			for _, m := range mems {
				if m == memID {
					continue
				}
				out = append(out, m)
				rels = append(rels, r)
			}
		}
	}

	return out, rels, nil
}

func containsMemory(path []string, id string) bool {
	for _, p := range path {
		if p == id {
			return true
		}
	}
	return false
}

func dedupRelationships(rels []*records.Relationship) []*records.Relationship {
	seen := make(map[string]bool)
	var out []*records.Relationship
	for _, r := range rels {
		if r == nil || seen[r.ID] {
			continue
		}
		seen[r.ID] = true
		out = append(out, r)
	}
	return out
}

func strPtr(s string) *string { return &s }

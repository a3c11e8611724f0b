package memoria

import (
	"context"

	"github.com/kittclouds/memoria/internal/memerr"
	"github.com/kittclouds/memoria/internal/records"
)

// BatchOpKind selects which single-table mutation a BatchOp performs.
type BatchOpKind string

const (
	BatchCreateMemory         BatchOpKind = "createMemory"
	BatchUpdateMemory         BatchOpKind = "updateMemory"
	BatchUpdateMemoryMetadata BatchOpKind = "updateMemoryMetadata"
	BatchDeleteMemory         BatchOpKind = "deleteMemory"
	BatchCreateRelationship   BatchOpKind = "createRelationship"
	BatchUpdateRelationship   BatchOpKind = "updateRelationship"
	BatchDeleteRelationship   BatchOpKind = "deleteRelationship"
)

// BatchOp is one operation in a Batch call. Only the fields relevant to
// Kind need to be populated.
type BatchOp struct {
	Kind BatchOpKind

	// For BatchCreateMemory / BatchUpdateMemory.
	MemoryID      string
	Content       string
	MemoryOptions MemoryOptions

	// For BatchUpdateMemoryMetadata: replaces MemoryID's Properties/Tags
	// without touching Content.
	Properties []byte
	Tags       []string

	// For BatchCreateRelationship / BatchUpdateRelationship.
	Relationship *records.Relationship

	// For BatchDeleteMemory / BatchDeleteRelationship.
	TargetID string
}

// BatchResult reports the outcome of one BatchOp, in the same order as
// the input slice.
type BatchResult struct {
	CreatedMemoryID       string
	CreatedRelationshipID string
	Err                   error
}

// undoStep is a compensating action recorded as a Batch op succeeds, run
// in reverse if a later op in the same Batch call fails.
type undoStep struct {
	kind BatchOpKind
	id   string
}

// Batch executes ops in order, each against a single table. When
// transactional is true, any failure triggers a best-effort compensating
// delete, in reverse order, of every memory and relationship created
// earlier in this call; updates and deletes are not undone. There is no
// sql.Tx anywhere in this path; each op is its own kernel call
// (e.g. CreateMemory runs a single Exec), and SQLite's own per-statement
// atomicity is all that backs an individual op. The compensating delete
// is the only rollback mechanism across the batch.
func (m *Manager) Batch(ctx context.Context, ops []BatchOp, transactional bool) ([]BatchResult, error) {
	if len(ops) > m.cfg.MaxBatchSize {
		return nil, memerr.Validation("ops", "batch exceeds configured max_batch_size")
	}

	results := make([]BatchResult, len(ops))
	var undo []undoStep

	for i, op := range ops {
		if err := ctx.Err(); err != nil {
			results[i].Err = memerr.Timeout()
			if transactional {
				return results, m.rollbackErr(undo, results[i].Err)
			}
			continue
		}

		switch op.Kind {
		case BatchCreateMemory:
			mem, err := m.AddMemoryWithOptions(ctx, op.Content, op.MemoryOptions)
			if err != nil {
				results[i].Err = err
				if transactional {
					return results, m.rollbackErr(undo, err)
				}
				continue
			}
			results[i].CreatedMemoryID = mem.ID
			undo = append(undo, undoStep{kind: BatchDeleteMemory, id: mem.ID})

		case BatchUpdateMemory:
			mem, err := m.kernel.GetMemory(op.MemoryID)
			if err != nil {
				results[i].Err = err
				if transactional {
					return results, m.rollbackErr(undo, err)
				}
				continue
			}
			mem.Content = op.Content
			if err := m.kernel.UpdateMemory(mem); err != nil {
				results[i].Err = err
				if transactional {
					return results, m.rollbackErr(undo, err)
				}
				continue
			}

		case BatchUpdateMemoryMetadata:
			mem, err := m.kernel.GetMemory(op.MemoryID)
			if err != nil {
				results[i].Err = err
				if transactional {
					return results, m.rollbackErr(undo, err)
				}
				continue
			}
			mem.Properties = op.Properties
			mem.Tags = op.Tags
			if err := m.kernel.UpdateMemory(mem); err != nil {
				results[i].Err = err
				if transactional {
					return results, m.rollbackErr(undo, err)
				}
				continue
			}

		case BatchDeleteMemory:
			if err := m.kernel.DeleteMemory(op.TargetID); err != nil {
				results[i].Err = err
				if transactional {
					return results, m.rollbackErr(undo, err)
				}
				continue
			}

		case BatchCreateRelationship:
			if op.Relationship == nil {
				results[i].Err = memerr.Validation("relationship", "relationship payload is required")
				if transactional {
					return results, m.rollbackErr(undo, results[i].Err)
				}
				continue
			}
			if err := m.CreateRelationship(ctx, op.Relationship); err != nil {
				results[i].Err = err
				if transactional {
					return results, m.rollbackErr(undo, err)
				}
				continue
			}
			results[i].CreatedRelationshipID = op.Relationship.ID
			undo = append(undo, undoStep{kind: BatchDeleteRelationship, id: op.Relationship.ID})

		case BatchUpdateRelationship:
			if op.Relationship == nil {
				results[i].Err = memerr.Validation("relationship", "relationship payload is required")
				if transactional {
					return results, m.rollbackErr(undo, results[i].Err)
				}
				continue
			}
			if err := m.kernel.UpdateRelationship(op.Relationship); err != nil {
				results[i].Err = err
				if transactional {
					return results, m.rollbackErr(undo, err)
				}
				continue
			}

		case BatchDeleteRelationship:
			if err := m.kernel.DeleteRelationship(op.TargetID); err != nil {
				results[i].Err = err
				if transactional {
					return results, m.rollbackErr(undo, err)
				}
				continue
			}

		default:
			results[i].Err = memerr.Validation("kind", "unknown batch op kind")
			if transactional {
				return results, m.rollbackErr(undo, results[i].Err)
			}
		}
	}

	return results, nil
}

// rollbackErr undoes every recorded step in reverse order. The batch has
// already failed with cause, so the caller always gets TransactionFailed:
// Orphans lists whatever could not be undone (empty when the rollback
// fully succeeded) and the causing op error is wrapped underneath.
func (m *Manager) rollbackErr(undo []undoStep, cause error) error {
	var orphans []string
	for i := len(undo) - 1; i >= 0; i-- {
		step := undo[i]
		var err error
		switch step.kind {
		case BatchDeleteMemory:
			err = m.kernel.DeleteMemory(step.id)
		case BatchDeleteRelationship:
			err = m.kernel.DeleteRelationship(step.id)
		}
		if err != nil {
			orphans = append(orphans, step.id)
		}
	}
	e := memerr.TransactionFailed(orphans)
	e.Wrapped = cause
	return e
}

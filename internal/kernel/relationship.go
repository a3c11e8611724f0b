package kernel

import (
	"database/sql"
	"strings"

	"github.com/kittclouds/memoria/internal/changestream"
	"github.com/kittclouds/memoria/internal/memerr"
	"github.com/kittclouds/memoria/internal/records"
)

// CreateRelationship inserts a relationship row. allowSelfLoop is decided
// by the caller (the façade, after consulting the relationship-type
// registry) since the kernel itself does not know which types permit
// source_id == target_id.
func (k *Kernel) CreateRelationship(r *records.Relationship, allowSelfLoop bool) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if r.SourceID == r.TargetID && !allowSelfLoop {
		return memerr.Validation("targetId", "relationship source_id and target_id must differ")
	}

	now := nowMillis()
	if r.CreatedAt == 0 {
		r.CreatedAt = now
	}
	r.UpdatedAt = now

	_, err := k.db.Exec(`
		INSERT INTO relationships (id, source_id, target_id, relationship_type, properties, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.SourceID, r.TargetID, r.RelationshipType, jsonOrEmptyObject(r.Properties), r.CreatedAt, r.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return memerr.AlreadyExists("relationship", r.ID)
		}
		return memerr.Query(err)
	}

	k.publish(changestream.ActionCreate, changestream.TableRelationship, r)
	return nil
}

func (k *Kernel) UpdateRelationship(r *records.Relationship) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	r.UpdatedAt = nowMillis()
	res, err := k.db.Exec(`UPDATE relationships SET properties=?, updated_at=? WHERE id=?`,
		jsonOrEmptyObject(r.Properties), r.UpdatedAt, r.ID)
	if err != nil {
		return memerr.Query(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return memerr.NotFound("relationship", r.ID)
	}

	k.publish(changestream.ActionUpdate, changestream.TableRelationship, r)
	return nil
}

func (k *Kernel) GetRelationship(id string) (*records.Relationship, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	row := k.db.QueryRow(`SELECT id, source_id, target_id, relationship_type, properties, created_at, updated_at
		FROM relationships WHERE id=?`, id)
	r, err := scanRelationship(row)
	if err == sql.ErrNoRows {
		return nil, memerr.NotFound("relationship", id)
	}
	if err != nil {
		return nil, memerr.Query(err)
	}
	return r, nil
}

func (k *Kernel) DeleteRelationship(id string) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	res, err := k.db.Exec(`DELETE FROM relationships WHERE id=?`, id)
	if err != nil {
		return memerr.Query(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return memerr.NotFound("relationship", id)
	}
	k.publish(changestream.ActionDelete, changestream.TableRelationship, &records.Relationship{ID: id})
	return nil
}

func (k *Kernel) ListRelationships(filter records.RelationshipFilter, limit, offset int) ([]*records.Relationship, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	var clauses []string
	var args []any
	if len(filter.IDs) > 0 {
		ph := make([]string, len(filter.IDs))
		for i, id := range filter.IDs {
			ph[i] = "?"
			args = append(args, id)
		}
		clauses = append(clauses, "id IN ("+strings.Join(ph, ",")+")")
	}
	if filter.SourceID != nil {
		clauses = append(clauses, "source_id = ?")
		args = append(args, *filter.SourceID)
	}
	if filter.TargetID != nil {
		clauses = append(clauses, "target_id = ?")
		args = append(args, *filter.TargetID)
	}
	if filter.RelationshipType != nil {
		clauses = append(clauses, "relationship_type = ?")
		args = append(args, *filter.RelationshipType)
	}
	if filter.CreatedBefore != nil {
		clauses = append(clauses, "created_at < ?")
		args = append(args, *filter.CreatedBefore)
	}
	if filter.CreatedAfter != nil {
		clauses = append(clauses, "created_at > ?")
		args = append(args, *filter.CreatedAfter)
	}
	for _, p := range filter.Properties {
		clauses = append(clauses, "json_extract(properties, '$."+p.Path+"') = ?")
		args = append(args, p.Value)
	}

	q := `SELECT id, source_id, target_id, relationship_type, properties, created_at, updated_at FROM relationships`
	if len(clauses) > 0 {
		q += " WHERE " + strings.Join(clauses, " AND ")
	}
	q += " ORDER BY created_at DESC, id DESC"
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
		if offset > 0 {
			q += " OFFSET ?"
			args = append(args, offset)
		}
	}

	rows, err := k.db.Query(q, args...)
	if err != nil {
		return nil, memerr.Query(err)
	}
	defer rows.Close()

	var out []*records.Relationship
	for rows.Next() {
		r, err := scanRelationship(rows)
		if err != nil {
			return nil, memerr.Query(err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// CountRelationshipsByType is used by the registry's TypeInUse check
// before a type deletion is allowed.
func (k *Kernel) CountRelationshipsByType(relType string) (int, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	var n int
	err := k.db.QueryRow(`SELECT COUNT(*) FROM relationships WHERE relationship_type = ?`, relType).Scan(&n)
	if err != nil {
		return 0, memerr.Query(err)
	}
	return n, nil
}

func scanRelationship(row rowScanner) (*records.Relationship, error) {
	var r records.Relationship
	var propsJSON string
	if err := row.Scan(&r.ID, &r.SourceID, &r.TargetID, &r.RelationshipType, &propsJSON, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	if propsJSON != "" {
		r.Properties = []byte(propsJSON)
	}
	return &r, nil
}

package kernel

import (
	"database/sql"
	"strings"

	"github.com/kittclouds/memoria/internal/changestream"
	"github.com/kittclouds/memoria/internal/memerr"
	"github.com/kittclouds/memoria/internal/records"
)

func (k *Kernel) CreateEntity(e *records.Entity) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	now := nowMillis()
	if e.CreatedAt == 0 {
		e.CreatedAt = now
	}
	e.UpdatedAt = now

	_, err := k.db.Exec(`
		INSERT INTO entities (id, entity_type, properties, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, e.ID, e.EntityType, jsonOrEmptyObject(e.Properties), e.CreatedAt, e.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return memerr.AlreadyExists("entity", e.ID)
		}
		return memerr.Query(err)
	}

	k.publish(changestream.ActionCreate, changestream.TableEntity, e)
	return nil
}

func (k *Kernel) UpsertEntity(e *records.Entity) error {
	k.mu.Lock()
	now := nowMillis()
	var exists bool
	err := k.db.QueryRow(`SELECT 1 FROM entities WHERE id = ?`, e.ID).Scan(new(int))
	if err == sql.ErrNoRows {
		exists = false
	} else if err != nil {
		k.mu.Unlock()
		return memerr.Query(err)
	} else {
		exists = true
	}

	if !exists {
		e.CreatedAt = now
		e.UpdatedAt = now
		_, err := k.db.Exec(`
			INSERT INTO entities (id, entity_type, properties, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?)
		`, e.ID, e.EntityType, jsonOrEmptyObject(e.Properties), e.CreatedAt, e.UpdatedAt)
		k.mu.Unlock()
		if err != nil {
			return memerr.Query(err)
		}
		k.publish(changestream.ActionCreate, changestream.TableEntity, e)
		return nil
	}

	e.UpdatedAt = now
	_, err = k.db.Exec(`UPDATE entities SET entity_type=?, properties=?, updated_at=? WHERE id=?`,
		e.EntityType, jsonOrEmptyObject(e.Properties), e.UpdatedAt, e.ID)
	k.mu.Unlock()
	if err != nil {
		return memerr.Query(err)
	}
	k.publish(changestream.ActionUpdate, changestream.TableEntity, e)
	return nil
}

func (k *Kernel) GetEntity(id string) (*records.Entity, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	row := k.db.QueryRow(`SELECT id, entity_type, properties, created_at, updated_at FROM entities WHERE id=?`, id)
	e, err := scanEntity(row)
	if err == sql.ErrNoRows {
		return nil, memerr.NotFound("entity", id)
	}
	if err != nil {
		return nil, memerr.Query(err)
	}
	return e, nil
}

func (k *Kernel) DeleteEntity(id string) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	res, err := k.db.Exec(`DELETE FROM entities WHERE id=?`, id)
	if err != nil {
		return memerr.Query(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return memerr.NotFound("entity", id)
	}
	k.publish(changestream.ActionDelete, changestream.TableEntity, &records.Entity{ID: id})
	return nil
}

func (k *Kernel) ListEntities(filter records.EntityFilter, limit, offset int) ([]*records.Entity, error) {
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
	if filter.EntityType != nil {
		clauses = append(clauses, "entity_type = ?")
		args = append(args, *filter.EntityType)
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

	q := `SELECT id, entity_type, properties, created_at, updated_at FROM entities`
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

	var out []*records.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, memerr.Query(err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (k *Kernel) CountEntities(filter records.EntityFilter) (int, error) {
	list, err := k.ListEntities(filter, 0, 0)
	if err != nil {
		return 0, err
	}
	return len(list), nil
}

func scanEntity(row rowScanner) (*records.Entity, error) {
	var e records.Entity
	var propsJSON string
	if err := row.Scan(&e.ID, &e.EntityType, &propsJSON, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	if propsJSON != "" {
		e.Properties = []byte(propsJSON)
	}
	return &e, nil
}

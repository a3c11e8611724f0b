package kernel

import (
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/kittclouds/memoria/internal/changestream"
	"github.com/kittclouds/memoria/internal/memerr"
	"github.com/kittclouds/memoria/internal/records"
)

// CreateMemory inserts a new memory record. IDs are assigned by the caller
// (the façade generates them via uuid before calling down).
func (k *Kernel) CreateMemory(m *records.Memory) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if m.Content == "" {
		return memerr.Validation("content", "memory content must not be empty")
	}

	now := nowMillis()
	if m.CreatedAt == 0 {
		m.CreatedAt = now
	}
	if m.ExpiresAt != nil && *m.ExpiresAt <= m.CreatedAt {
		return memerr.Validation("expiresAt", "expires_at must be after created_at")
	}
	m.UpdatedAt = now
	m.LastAccessed = m.CreatedAt

	tagsJSON, err := jsonTags(m.Tags)
	if err != nil {
		return memerr.Storage(err)
	}

	_, err = k.db.Exec(`
		INSERT INTO memories (id, content, memory_type, priority, tags, source,
			access_count, created_at, updated_at, last_accessed, expires_at, properties)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, m.ID, m.Content, string(m.MemoryType), int(m.Priority), tagsJSON, m.Source,
		m.AccessCount, m.CreatedAt, m.UpdatedAt, m.LastAccessed, m.ExpiresAt, jsonOrEmptyObject(m.Properties))
	if err != nil {
		if isUniqueViolation(err) {
			return memerr.AlreadyExists("memory", m.ID)
		}
		return memerr.Query(err)
	}

	k.publish(changestream.ActionCreate, changestream.TableMemory, m)
	return nil
}

// UpdateMemory overwrites a memory's mutable fields in place, bumping
// updated_at. Callers needing version history go through
// internal/versioning, which calls CreateMemory/UpdateMemory and then
// records a version on top.
func (k *Kernel) UpdateMemory(m *records.Memory) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if m.Content == "" {
		return memerr.Validation("content", "memory content must not be empty")
	}

	m.UpdatedAt = nowMillis()
	tagsJSON, err := jsonTags(m.Tags)
	if err != nil {
		return memerr.Storage(err)
	}

	res, err := k.db.Exec(`
		UPDATE memories SET content=?, memory_type=?, priority=?, tags=?, source=?,
			access_count=?, updated_at=?, expires_at=?, properties=?
		WHERE id=?
	`, m.Content, string(m.MemoryType), int(m.Priority), tagsJSON, m.Source,
		m.AccessCount, m.UpdatedAt, m.ExpiresAt, jsonOrEmptyObject(m.Properties), m.ID)
	if err != nil {
		return memerr.Query(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return memerr.NotFound("memory", m.ID)
	}

	k.publish(changestream.ActionUpdate, changestream.TableMemory, m)
	return nil
}

// GetMemory retrieves a memory without touching access_count/last_accessed;
// the record layer is responsible for the best-effort access
// bookkeeping (access_count, last_accessed).
func (k *Kernel) GetMemory(id string) (*records.Memory, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.getMemoryLocked(id)
}

func (k *Kernel) getMemoryLocked(id string) (*records.Memory, error) {
	row := k.db.QueryRow(`
		SELECT id, content, memory_type, priority, tags, source, access_count,
			created_at, updated_at, last_accessed, expires_at, properties
		FROM memories WHERE id = ?
	`, id)
	m, err := scanMemory(row)
	if err == sql.ErrNoRows {
		return nil, memerr.NotFound("memory", id)
	}
	if err != nil {
		return nil, memerr.Query(err)
	}
	return m, nil
}

// TouchMemoryAccess increments access_count and sets last_accessed=now. It
// is invoked asynchronously by the record layer after a read, never
// delaying the read itself.
func (k *Kernel) TouchMemoryAccess(id string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	_, err := k.db.Exec(`UPDATE memories SET access_count = access_count + 1, last_accessed = ? WHERE id = ?`, nowMillis(), id)
	if err != nil {
		return memerr.Query(err)
	}
	return nil
}

// DeleteMemory removes a memory record (its versions are left to the
// versioning component to reap).
func (k *Kernel) DeleteMemory(id string) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	res, err := k.db.Exec(`DELETE FROM memories WHERE id = ?`, id)
	if err != nil {
		return memerr.Query(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return memerr.NotFound("memory", id)
	}

	k.publish(changestream.ActionDelete, changestream.TableMemory, &records.Memory{ID: id})
	return nil
}

// SweepExpiredMemories deletes every memory whose expires_at is at or
// before now, publishing a Delete event per record, and returns the ids
// removed.
func (k *Kernel) SweepExpiredMemories(now int64) ([]string, error) {
	k.mu.Lock()
	rows, err := k.db.Query(`SELECT id FROM memories WHERE expires_at IS NOT NULL AND expires_at <= ?`, now)
	if err != nil {
		k.mu.Unlock()
		return nil, memerr.Query(err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			k.mu.Unlock()
			return nil, memerr.Query(err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		k.mu.Unlock()
		return nil, memerr.Query(err)
	}
	rows.Close()

	var removed []string
	for _, id := range ids {
		if _, err := k.db.Exec(`DELETE FROM memories WHERE id = ?`, id); err != nil {
			k.mu.Unlock()
			return removed, memerr.Query(err)
		}
		removed = append(removed, id)
	}
	k.mu.Unlock()

	for _, id := range removed {
		k.publish(changestream.ActionDelete, changestream.TableMemory, &records.Memory{ID: id})
	}
	return removed, nil
}

// ListMemories applies filter, stably sorted by created_at descending,
// with optional limit/offset paging.
func (k *Kernel) ListMemories(filter records.MemoryFilter, limit, offset int) ([]*records.Memory, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	where, args := compileMemoryFilter(filter)
	q := `SELECT id, content, memory_type, priority, tags, source, access_count,
			created_at, updated_at, last_accessed, expires_at, properties
		FROM memories`
	if where != "" {
		q += " WHERE " + where
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

	var out []*records.Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, memerr.Query(err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// CountMemories returns the number of memories matching filter.
func (k *Kernel) CountMemories(filter records.MemoryFilter) (int, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	where, args := compileMemoryFilter(filter)
	q := `SELECT COUNT(*) FROM memories`
	if where != "" {
		q += " WHERE " + where
	}
	var n int
	if err := k.db.QueryRow(q, args...).Scan(&n); err != nil {
		return 0, memerr.Query(err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMemory(row rowScanner) (*records.Memory, error) {
	var m records.Memory
	var memType string
	var priority int
	var tagsJSON string
	var source sql.NullString
	var expiresAt sql.NullInt64
	var propsJSON string

	err := row.Scan(&m.ID, &m.Content, &memType, &priority, &tagsJSON, &source,
		&m.AccessCount, &m.CreatedAt, &m.UpdatedAt, &m.LastAccessed, &expiresAt, &propsJSON)
	if err != nil {
		return nil, err
	}
	m.MemoryType = records.MemoryType(memType)
	m.Priority = records.Priority(priority)
	m.Source = source.String
	if expiresAt.Valid {
		v := expiresAt.Int64
		m.ExpiresAt = &v
	}
	if tagsJSON != "" {
		_ = json.Unmarshal([]byte(tagsJSON), &m.Tags)
	}
	if propsJSON != "" {
		m.Properties = json.RawMessage(propsJSON)
	}
	return &m, nil
}

func compileMemoryFilter(f records.MemoryFilter) (string, []any) {
	var clauses []string
	var args []any

	if len(f.IDs) > 0 {
		ph := make([]string, len(f.IDs))
		for i, id := range f.IDs {
			ph[i] = "?"
			args = append(args, id)
		}
		clauses = append(clauses, "id IN ("+strings.Join(ph, ",")+")")
	}
	if f.ContentContains != "" {
		clauses = append(clauses, "content LIKE ?")
		args = append(args, "%"+f.ContentContains+"%")
	}
	if f.MemoryType != nil {
		clauses = append(clauses, "memory_type = ?")
		args = append(args, string(*f.MemoryType))
	}
	for _, tag := range f.TagsContainAny {
		clauses = append(clauses, "tags LIKE ?")
		args = append(args, "%\""+tag+"\"%")
	}
	if f.CreatedBefore != nil {
		clauses = append(clauses, "created_at < ?")
		args = append(args, *f.CreatedBefore)
	}
	if f.CreatedAfter != nil {
		clauses = append(clauses, "created_at > ?")
		args = append(args, *f.CreatedAfter)
	}
	for _, p := range f.Properties {
		clauses = append(clauses, "json_extract(properties, '$."+p.Path+"') = ?")
		args = append(args, p.Value)
	}

	return strings.Join(clauses, " AND "), args
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "unique")
}

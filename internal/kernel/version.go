package kernel

import (
	"database/sql"
	"encoding/json"

	"github.com/kittclouds/memoria/internal/changestream"
	"github.com/kittclouds/memoria/internal/memerr"
	"github.com/kittclouds/memoria/internal/records"
)

// InsertVersion persists a version row as-is; internal/versioning decides
// whether Content or Delta is populated and whether it is compressed.
func (k *Kernel) InsertVersion(v *records.Version) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if v.CreatedAt == 0 {
		v.CreatedAt = nowMillis()
	}

	_, err := k.db.Exec(`
		INSERT INTO versions (version_id, memory_id, seq_no, created_at, content, delta, base_version_id, is_delta, compressed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, v.VersionID, v.MemoryID, v.SeqNo, v.CreatedAt, nullIfEmpty(v.Content), nullIfEmpty(v.Delta),
		nullIfEmpty(v.BaseVersionID), boolToInt(v.IsDelta), boolToInt(v.Compressed))
	if err != nil {
		if isUniqueViolation(err) {
			return memerr.AlreadyExists("version", v.VersionID)
		}
		return memerr.Query(err)
	}

	k.publish(changestream.ActionCreate, changestream.TableVersion, v)
	return nil
}

func (k *Kernel) GetVersion(versionID string) (*records.Version, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	row := k.db.QueryRow(`SELECT version_id, memory_id, seq_no, created_at, content, delta, base_version_id, is_delta, compressed
		FROM versions WHERE version_id = ?`, versionID)
	v, err := scanVersion(row)
	if err == sql.ErrNoRows {
		return nil, memerr.NotFound("version", versionID)
	}
	if err != nil {
		return nil, memerr.Query(err)
	}
	return v, nil
}

// ListVersions returns every version of memoryID ordered by seq_no
// ascending (oldest first), the order version-chain reconstruction walks.
func (k *Kernel) ListVersions(memoryID string) ([]*records.Version, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	rows, err := k.db.Query(`SELECT version_id, memory_id, seq_no, created_at, content, delta, base_version_id, is_delta, compressed
		FROM versions WHERE memory_id = ? ORDER BY seq_no ASC`, memoryID)
	if err != nil {
		return nil, memerr.Query(err)
	}
	defer rows.Close()

	var out []*records.Version
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, memerr.Query(err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// GetVersionAtOrBefore returns the latest version of memoryID with
// created_at <= t, or nil if none exists.
func (k *Kernel) GetVersionAtOrBefore(memoryID string, t int64) (*records.Version, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	row := k.db.QueryRow(`SELECT version_id, memory_id, seq_no, created_at, content, delta, base_version_id, is_delta, compressed
		FROM versions WHERE memory_id = ? AND created_at <= ? ORDER BY seq_no DESC LIMIT 1`, memoryID, t)
	v, err := scanVersion(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, memerr.Query(err)
	}
	return v, nil
}

// DeleteVersion removes a single version row (used by compaction).
func (k *Kernel) DeleteVersion(versionID string) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	res, err := k.db.Exec(`DELETE FROM versions WHERE version_id = ?`, versionID)
	if err != nil {
		return memerr.Query(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return memerr.NotFound("version", versionID)
	}
	k.publish(changestream.ActionDelete, changestream.TableVersion, &records.Version{VersionID: versionID})
	return nil
}

// ReplaceVersionContent rewrites a version in place, used when promoting a
// delta to a full copy during compaction.
func (k *Kernel) ReplaceVersionContent(versionID, content string, compressed bool) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	res, err := k.db.Exec(`UPDATE versions SET content=?, delta=NULL, base_version_id=NULL, is_delta=0, compressed=? WHERE version_id=?`,
		content, boolToInt(compressed), versionID)
	if err != nil {
		return memerr.Query(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return memerr.NotFound("version", versionID)
	}
	return nil
}

func scanVersion(row rowScanner) (*records.Version, error) {
	var v records.Version
	var content, delta, base sql.NullString
	var isDelta, compressed int
	if err := row.Scan(&v.VersionID, &v.MemoryID, &v.SeqNo, &v.CreatedAt, &content, &delta, &base, &isDelta, &compressed); err != nil {
		return nil, err
	}
	v.Content = content.String
	v.Delta = delta.String
	v.BaseVersionID = base.String
	v.IsDelta = isDelta != 0
	v.Compressed = compressed != 0
	return &v, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// -- Snapshots --------------------------------------------------------------

func (k *Kernel) CreateSnapshot(s *records.Snapshot) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if s.CreatedAt == 0 {
		s.CreatedAt = nowMillis()
	}
	memIDs, err := json.Marshal(s.MemoryIDs)
	if err != nil {
		return memerr.Storage(err)
	}
	verMap, err := json.Marshal(s.VersionMap)
	if err != nil {
		return memerr.Storage(err)
	}

	_, err = k.db.Exec(`INSERT INTO snapshots (snapshot_id, description, created_at, memory_ids, version_map)
		VALUES (?, ?, ?, ?, ?)`, s.SnapshotID, s.Description, s.CreatedAt, string(memIDs), string(verMap))
	if err != nil {
		if isUniqueViolation(err) {
			return memerr.AlreadyExists("snapshot", s.SnapshotID)
		}
		return memerr.Query(err)
	}
	return nil
}

func (k *Kernel) GetSnapshot(id string) (*records.Snapshot, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	var s records.Snapshot
	var memIDs, verMap string
	var desc sql.NullString
	err := k.db.QueryRow(`SELECT snapshot_id, description, created_at, memory_ids, version_map FROM snapshots WHERE snapshot_id=?`, id).
		Scan(&s.SnapshotID, &desc, &s.CreatedAt, &memIDs, &verMap)
	if err == sql.ErrNoRows {
		return nil, memerr.NotFound("snapshot", id)
	}
	if err != nil {
		return nil, memerr.Query(err)
	}
	s.Description = desc.String
	_ = json.Unmarshal([]byte(memIDs), &s.MemoryIDs)
	_ = json.Unmarshal([]byte(verMap), &s.VersionMap)
	return &s, nil
}

package kernel

import (
	"database/sql"

	"github.com/kittclouds/memoria/internal/memerr"
	"github.com/kittclouds/memoria/internal/records"
)

// SaveRelationshipType upserts a registry entry to the optional persistence
// backend mirrored from internal/registry.
func (k *Kernel) SaveRelationshipType(t *records.RelationshipTypeDef) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	var inverse any
	if t.Inverse != nil {
		inverse = *t.Inverse
	}

	_, err := k.db.Exec(`
		INSERT INTO relationship_types (name, inverse, symmetric, transitive, metadata_schema, version, created_at, custom_metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET inverse=excluded.inverse, symmetric=excluded.symmetric,
			transitive=excluded.transitive, metadata_schema=excluded.metadata_schema,
			version=excluded.version, custom_metadata=excluded.custom_metadata
	`, t.Name, inverse, boolToInt(t.Symmetric), boolToInt(t.Transitive),
		nullIfEmpty(string(t.MetadataSchema)), t.Version, t.CreatedAt, nullIfEmpty(string(t.CustomMetadata)))
	if err != nil {
		return memerr.Query(err)
	}
	return nil
}

func (k *Kernel) DeleteRelationshipType(name string) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	_, err := k.db.Exec(`DELETE FROM relationship_types WHERE name = ?`, name)
	if err != nil {
		return memerr.Query(err)
	}
	return nil
}

// LoadAllRelationshipTypes returns every persisted registry entry, used at
// registry construction time when a storage backend is configured.
func (k *Kernel) LoadAllRelationshipTypes() ([]*records.RelationshipTypeDef, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	rows, err := k.db.Query(`SELECT name, inverse, symmetric, transitive, metadata_schema, version, created_at, custom_metadata FROM relationship_types`)
	if err != nil {
		return nil, memerr.Query(err)
	}
	defer rows.Close()

	var out []*records.RelationshipTypeDef
	for rows.Next() {
		var t records.RelationshipTypeDef
		var inverse, schema, custom sql.NullString
		var symmetric, transitive int
		if err := rows.Scan(&t.Name, &inverse, &symmetric, &transitive, &schema, &t.Version, &t.CreatedAt, &custom); err != nil {
			return nil, memerr.Query(err)
		}
		if inverse.Valid {
			v := inverse.String
			t.Inverse = &v
		}
		t.Symmetric = symmetric != 0
		t.Transitive = transitive != 0
		if schema.Valid {
			t.MetadataSchema = []byte(schema.String)
		}
		if custom.Valid {
			t.CustomMetadata = []byte(custom.String)
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}

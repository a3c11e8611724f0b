// Package kernel implements the store kernel: a single
// database handle, idempotent schema bootstrap, serialized per-record
// writes, and change-event publication after each write is durable.
//
// A sync.RWMutex-guarded *sql.DB with a const-schema-string bootstrap
// covering the five record tables (memory/entity/relationship/version/
// snapshot) plus relationship_types for the registry's optional
// persistence backend.
package kernel

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	_ "github.com/asg017/sqlite-vec-go-bindings/ncruces"
	_ "github.com/ncruces/go-sqlite3/driver"

	"github.com/kittclouds/memoria/internal/changestream"
	"github.com/kittclouds/memoria/internal/memerr"
)

const schema = `
CREATE TABLE IF NOT EXISTS memories (
    id TEXT PRIMARY KEY,
    content TEXT NOT NULL,
    memory_type TEXT NOT NULL,
    priority INTEGER NOT NULL DEFAULT 1,
    tags TEXT NOT NULL DEFAULT '[]',
    source TEXT,
    access_count INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,
    last_accessed INTEGER NOT NULL,
    expires_at INTEGER,
    properties TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_memories_type ON memories(memory_type);
CREATE INDEX IF NOT EXISTS idx_memories_priority ON memories(priority);
CREATE INDEX IF NOT EXISTS idx_memories_created ON memories(created_at);

CREATE TABLE IF NOT EXISTS entities (
    id TEXT PRIMARY KEY,
    entity_type TEXT NOT NULL,
    properties TEXT NOT NULL DEFAULT '{}',
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_entities_type ON entities(entity_type);
CREATE INDEX IF NOT EXISTS idx_entities_created ON entities(created_at);

CREATE TABLE IF NOT EXISTS relationships (
    id TEXT PRIMARY KEY,
    source_id TEXT NOT NULL,
    target_id TEXT NOT NULL,
    relationship_type TEXT NOT NULL,
    properties TEXT NOT NULL DEFAULT '{}',
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_rel_type ON relationships(relationship_type);
CREATE INDEX IF NOT EXISTS idx_rel_source ON relationships(source_id);
CREATE INDEX IF NOT EXISTS idx_rel_target ON relationships(target_id);

CREATE TABLE IF NOT EXISTS versions (
    version_id TEXT PRIMARY KEY,
    memory_id TEXT NOT NULL,
    seq_no INTEGER NOT NULL,
    created_at INTEGER NOT NULL,
    content TEXT,
    delta TEXT,
    base_version_id TEXT,
    is_delta INTEGER NOT NULL DEFAULT 0,
    compressed INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_versions_memory ON versions(memory_id, seq_no);
CREATE INDEX IF NOT EXISTS idx_versions_created ON versions(created_at);

CREATE TABLE IF NOT EXISTS snapshots (
    snapshot_id TEXT PRIMARY KEY,
    description TEXT,
    created_at INTEGER NOT NULL,
    memory_ids TEXT NOT NULL,
    version_map TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS relationship_types (
    name TEXT PRIMARY KEY,
    inverse TEXT,
    symmetric INTEGER NOT NULL DEFAULT 0,
    transitive INTEGER NOT NULL DEFAULT 0,
    metadata_schema TEXT,
    version INTEGER NOT NULL DEFAULT 1,
    created_at INTEGER NOT NULL,
    custom_metadata TEXT
);
`

// Kernel is the SQLite-backed store kernel.
type Kernel struct {
	mu  sync.RWMutex
	db  *sql.DB
	bus *changestream.Bus
}

// Open opens (or creates) the database at dsn and bootstraps the schema
// idempotently. bus receives a ChangeEvent after every durable memory,
// entity, relationship or version create/update/delete; snapshot and
// relationship-type writes, access-count touches and version promotion
// publish none.
func Open(dsn string, bus *changestream.Bus) (*Kernel, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, memerr.Connection(err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, memerr.Storage(fmt.Errorf("schema bootstrap: %w", err))
	}
	if bus == nil {
		bus = changestream.NewBus(256)
	}
	return &Kernel{db: db, bus: bus}, nil
}

// DB exposes the raw handle so sibling components (vectorindex) can share
// the same connection/schema lifetime.
func (k *Kernel) DB() *sql.DB { return k.db }

// Bus returns the change-event bus the kernel publishes to.
func (k *Kernel) Bus() *changestream.Bus { return k.bus }

// Close closes the underlying database handle.
func (k *Kernel) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (k *Kernel) publish(action changestream.Action, table changestream.Table, record any) {
	k.bus.Publish(changestream.Event{
		ID:     fmt.Sprintf("%s-%s-%d", table, action, nowNano()),
		Action: action,
		Table:  table,
		Record: record,
	})
}

func jsonOrEmptyObject(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "{}"
	}
	return string(raw)
}

func jsonTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

package lifecycle

import (
	"context"

	"github.com/kittclouds/memoria/internal/changestream"
	"github.com/kittclouds/memoria/internal/records"
)

// VersionStore is the subset of internal/versioning.Store an auto-version
// hook needs.
type VersionStore interface {
	CreateInitialVersion(memoryID, content string, now int64) (*records.Version, error)
	CreateVersion(memoryID, content string, now int64, forceFullCopy bool) (*records.Version, error)
}

// AutoVersionHook persists a version on every memory write when enabled
// by configuration.
type AutoVersionHook struct {
	versions VersionStore
	now      func() int64
}

func NewAutoVersionHook(versions VersionStore, now func() int64) *AutoVersionHook {
	return &AutoVersionHook{versions: versions, now: now}
}

func (h *AutoVersionHook) Name() string { return "auto-version" }

func (h *AutoVersionHook) HandleMemoryWrite(_ context.Context, action changestream.Action, m *records.Memory) error {
	now := h.now()
	if action == changestream.ActionCreate {
		_, err := h.versions.CreateInitialVersion(m.ID, m.Content, now)
		return err
	}
	_, err := h.versions.CreateVersion(m.ID, m.Content, now, false)
	return err
}

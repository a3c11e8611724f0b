package versioning

import (
	"github.com/google/uuid"

	"github.com/kittclouds/memoria/internal/memerr"
	"github.com/kittclouds/memoria/internal/records"
)

// RestoreMode selects how RestoreSnapshot applies a snapshot's recorded
// versions back onto live memories.
type RestoreMode int

const (
	// Overwrite replaces each memory's current content in place.
	Overwrite RestoreMode = iota
	// CreateNewVersion appends the snapshot's content as a fresh version
	// at the head of the chain, leaving history between them intact.
	CreateNewVersion
)

// CreateSnapshot records the current head version of each of memoryIDs
// under one named snapshot.
func (s *Store) CreateSnapshot(description string, memoryIDs []string, now int64) (*records.Snapshot, error) {
	versionMap := make(map[string]string, len(memoryIDs))
	for _, id := range memoryIDs {
		chain, err := s.kernel.ListVersions(id)
		if err != nil {
			return nil, err
		}
		if len(chain) == 0 {
			return nil, memerr.NotFound("version", id)
		}
		versionMap[id] = chain[len(chain)-1].VersionID
	}

	snap := &records.Snapshot{
		SnapshotID:  uuid.NewString(),
		Description: description,
		CreatedAt:   now,
		MemoryIDs:   memoryIDs,
		VersionMap:  versionMap,
	}
	if err := s.kernel.CreateSnapshot(snap); err != nil {
		return nil, err
	}
	return snap, nil
}

// RestoreSnapshot replays snapshotID's pinned content back onto its
// member memories, per mode.
func (s *Store) RestoreSnapshot(snapshotID string, mode RestoreMode, now int64) error {
	snap, err := s.kernel.GetSnapshot(snapshotID)
	if err != nil {
		return err
	}

	for _, memoryID := range snap.MemoryIDs {
		versionID, ok := snap.VersionMap[memoryID]
		if !ok {
			continue
		}
		content, err := s.GetVersion(memoryID, versionID)
		if err != nil {
			return err
		}

		mem, err := s.kernel.GetMemory(memoryID)
		if err != nil {
			return err
		}

		switch mode {
		case Overwrite:
			mem.Content = content
			mem.UpdatedAt = now
			if err := s.kernel.UpdateMemory(mem); err != nil {
				return err
			}
		case CreateNewVersion:
			mem.Content = content
			mem.UpdatedAt = now
			if err := s.kernel.UpdateMemory(mem); err != nil {
				return err
			}
			if _, err := s.CreateVersion(memoryID, content, now, false); err != nil {
				return err
			}
		}
	}
	return nil
}

// Package versioning implements per-memory version chains with
// snapshot-and-delta compression, point-in-time retrieval, diff, and
// compaction. Early versions in a chain are stored as full copies;
// once the chain outgrows the configured threshold, new versions become
// unified-diff deltas against the current head, compressed past a size
// threshold.
package versioning

import (
	"github.com/google/uuid"

	"github.com/kittclouds/memoria/internal/memerr"
	"github.com/kittclouds/memoria/internal/records"
)

// KernelStore is the subset of internal/kernel.Kernel the version store
// needs.
type KernelStore interface {
	InsertVersion(v *records.Version) error
	GetVersion(versionID string) (*records.Version, error)
	ListVersions(memoryID string) ([]*records.Version, error)
	GetVersionAtOrBefore(memoryID string, t int64) (*records.Version, error)
	DeleteVersion(versionID string) error
	ReplaceVersionContent(versionID, content string, compressed bool) error
	GetMemory(id string) (*records.Memory, error)
	UpdateMemory(m *records.Memory) error
	CreateSnapshot(s *records.Snapshot) error
	GetSnapshot(id string) (*records.Snapshot, error)
}

// Config tunes the versioning policy.
type Config struct {
	DeltaThreshold       int // chain length beyond which new versions are deltas
	CompressionThreshold int // byte size above which content is compressed
}

func DefaultConfig() Config {
	return Config{DeltaThreshold: 10, CompressionThreshold: 4096}
}

// Store manages version chains on top of a KernelStore.
type Store struct {
	kernel KernelStore
	cfg    Config
}

func NewStore(kernel KernelStore, cfg Config) *Store {
	return &Store{kernel: kernel, cfg: cfg}
}

func newVersionID() string { return uuid.NewString() }

// CreateInitialVersion writes version[0] as a full copy.
func (s *Store) CreateInitialVersion(memoryID, content string, now int64) (*records.Version, error) {
	v := &records.Version{
		VersionID: newVersionID(),
		MemoryID:  memoryID,
		SeqNo:     0,
		CreatedAt: now,
	}
	if err := s.storeContent(v, content); err != nil {
		return nil, err
	}
	if err := s.kernel.InsertVersion(v); err != nil {
		return nil, err
	}
	return v, nil
}

// CreateVersion writes the next version in memoryID's chain. It is a full
// copy iff the chain is shorter than DeltaThreshold or forceFullCopy is
// requested; otherwise it is a delta against the chain's current head.
func (s *Store) CreateVersion(memoryID, content string, now int64, forceFullCopy bool) (*records.Version, error) {
	chain, err := s.kernel.ListVersions(memoryID)
	if err != nil {
		return nil, err
	}

	v := &records.Version{
		VersionID: newVersionID(),
		MemoryID:  memoryID,
		SeqNo:     len(chain),
		CreatedAt: now,
	}

	if forceFullCopy || len(chain) < s.cfg.DeltaThreshold || len(chain) == 0 {
		if err := s.storeContent(v, content); err != nil {
			return nil, err
		}
	} else {
		base := chain[len(chain)-1]
		baseContent, err := s.Reconstruct(chain, base.VersionID)
		if err != nil {
			return nil, err
		}
		delta, err := computeDelta(baseContent, content)
		if err != nil {
			return nil, memerr.Storage(err)
		}
		v.IsDelta = true
		v.BaseVersionID = base.VersionID
		if err := s.storeDelta(v, delta); err != nil {
			return nil, err
		}
	}

	if err := s.kernel.InsertVersion(v); err != nil {
		return nil, err
	}
	return v, nil
}

// GetVersion reconstructs version[versionID] of memoryID; it walks back to the nearest full copy and applies
// deltas forward, deterministically.
func (s *Store) GetVersion(memoryID, versionID string) (string, error) {
	chain, err := s.kernel.ListVersions(memoryID)
	if err != nil {
		return "", err
	}
	return s.Reconstruct(chain, versionID)
}

// Reconstruct walks chain (ordered oldest-first) back from versionID to
// the nearest full copy, applying deltas forward.
func (s *Store) Reconstruct(chain []*records.Version, versionID string) (string, error) {
	byID := make(map[string]*records.Version, len(chain))
	for _, v := range chain {
		byID[v.VersionID] = v
	}
	target, ok := byID[versionID]
	if !ok {
		return "", memerr.NotFound("version", versionID)
	}

	var lineage []*records.Version
	cur := target
	for {
		lineage = append([]*records.Version{cur}, lineage...)
		if !cur.IsDelta {
			break
		}
		base, ok := byID[cur.BaseVersionID]
		if !ok {
			return "", memerr.Validation("baseVersionId", "delta's base version is missing from the chain")
		}
		cur = base
	}

	content, err := s.readContent(lineage[0])
	if err != nil {
		return "", err
	}
	for _, v := range lineage[1:] {
		delta, err := s.readDelta(v)
		if err != nil {
			return "", err
		}
		content, err = applyDelta(content, delta)
		if err != nil {
			return "", memerr.Storage(err)
		}
	}
	return content, nil
}

// GetMemoryAtTime returns the content of the latest version with
// created_at <= t, or ("", false, nil) if none exists.
func (s *Store) GetMemoryAtTime(memoryID string, t int64) (string, bool, error) {
	v, err := s.kernel.GetVersionAtOrBefore(memoryID, t)
	if err != nil {
		return "", false, err
	}
	if v == nil {
		return "", false, nil
	}
	chain, err := s.kernel.ListVersions(memoryID)
	if err != nil {
		return "", false, err
	}
	content, err := s.Reconstruct(chain, v.VersionID)
	if err != nil {
		return "", false, err
	}
	return content, true, nil
}

// Change is one line-level edit in a Diff result.
type Change struct {
	Op   string // "equal", "delete", "insert"
	Text string
}

// Diff returns a change list sufficient to transform oldVersionID's
// content into newVersionID's.
func (s *Store) Diff(memoryID, oldVersionID, newVersionID string) ([]Change, error) {
	chain, err := s.kernel.ListVersions(memoryID)
	if err != nil {
		return nil, err
	}
	oldContent, err := s.Reconstruct(chain, oldVersionID)
	if err != nil {
		return nil, err
	}
	newContent, err := s.Reconstruct(chain, newVersionID)
	if err != nil {
		return nil, err
	}
	return diffChanges(oldContent, newContent), nil
}

func (s *Store) storeContent(v *records.Version, content string) error {
	if len(content) > s.cfg.CompressionThreshold {
		compressed, err := compress(content)
		if err != nil {
			return memerr.Storage(err)
		}
		v.Content = compressed
		v.Compressed = true
	} else {
		v.Content = content
	}
	return nil
}

func (s *Store) storeDelta(v *records.Version, delta string) error {
	if len(delta) > s.cfg.CompressionThreshold {
		compressed, err := compress(delta)
		if err != nil {
			return memerr.Storage(err)
		}
		v.Delta = compressed
		v.Compressed = true
	} else {
		v.Delta = delta
	}
	return nil
}

func (s *Store) readContent(v *records.Version) (string, error) {
	if v.Compressed {
		return decompress(v.Content)
	}
	return v.Content, nil
}

func (s *Store) readDelta(v *records.Version) (string, error) {
	if v.Compressed {
		return decompress(v.Delta)
	}
	return v.Delta, nil
}

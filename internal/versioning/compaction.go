package versioning

import (
	"github.com/kittclouds/memoria/internal/memerr"
	"github.com/kittclouds/memoria/internal/records"
)

// CompactVersions removes obsolete versions of memoryID subject to the
// invariant that every remaining delta can still be reconstructed.
// keepRecent preserves the newest N versions
// unconditionally; olderThan (if non-zero) additionally bounds removal to
// versions created strictly before that time. A delta whose base would
// be removed is promoted to a full copy first. Returns the number of
// versions removed.
func (s *Store) CompactVersions(memoryID string, keepRecent int, olderThan int64) (int, error) {
	chain, err := s.kernel.ListVersions(memoryID)
	if err != nil {
		return 0, err
	}
	if len(chain) <= keepRecent {
		return 0, nil
	}

	cutoff := len(chain) - keepRecent
	removeSet := make(map[string]bool)
	for _, v := range chain[:cutoff] {
		if olderThan != 0 && v.CreatedAt >= olderThan {
			continue
		}
		removeSet[v.VersionID] = true
	}
	if len(removeSet) == 0 {
		return 0, nil
	}

	// A surviving delta whose base is about to go must become a full copy
	// first, while the base is still reconstructable.
	for _, v := range chain {
		if removeSet[v.VersionID] || !v.IsDelta {
			continue
		}
		if removeSet[v.BaseVersionID] {
			if err := s.PromoteVersionToFullCopy(chain, v.VersionID); err != nil {
				return 0, err
			}
		}
	}

	removed := 0
	for _, v := range chain {
		if !removeSet[v.VersionID] {
			continue
		}
		if err := s.kernel.DeleteVersion(v.VersionID); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// PromoteVersionToFullCopy rewrites versionID's stored row to hold its
// fully reconstructed content rather than a delta, so later compaction can
// safely remove its base without breaking the chain.
func (s *Store) PromoteVersionToFullCopy(chain []*records.Version, versionID string) error {
	content, err := s.Reconstruct(chain, versionID)
	if err != nil {
		return err
	}
	v := &records.Version{VersionID: versionID}
	if err := s.storeContent(v, content); err != nil {
		return err
	}
	return s.kernel.ReplaceVersionContent(versionID, v.Content, v.Compressed)
}

// ValidateVersions checks that every version in memoryID's chain
// reconstructs successfully and that every delta's base exists in the
// chain, returning the IDs of broken versions.
func (s *Store) ValidateVersions(memoryID string) ([]string, error) {
	chain, err := s.kernel.ListVersions(memoryID)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*records.Version, len(chain))
	for _, v := range chain {
		byID[v.VersionID] = v
	}

	var broken []string
	for _, v := range chain {
		if v.IsDelta {
			if _, ok := byID[v.BaseVersionID]; !ok {
				broken = append(broken, v.VersionID)
				continue
			}
		}
		if _, err := s.Reconstruct(chain, v.VersionID); err != nil {
			broken = append(broken, v.VersionID)
		}
	}
	return broken, nil
}

// RepairVersions promotes every delta flagged by ValidateVersions with a
// still-present but unreconstructable ancestry into a full copy when
// possible, and reports versions it could not repair (e.g. a missing base
// with no surviving reconstructable lineage at all).
func (s *Store) RepairVersions(memoryID string) (repaired, unrepairable []string, err error) {
	broken, err := s.ValidateVersions(memoryID)
	if err != nil {
		return nil, nil, err
	}
	if len(broken) == 0 {
		return nil, nil, nil
	}

	chain, err := s.kernel.ListVersions(memoryID)
	if err != nil {
		return nil, nil, err
	}

	for _, id := range broken {
		if err := s.PromoteVersionToFullCopy(chain, id); err != nil {
			unrepairable = append(unrepairable, id)
			continue
		}
		repaired = append(repaired, id)
	}
	if len(unrepairable) > 0 {
		return repaired, unrepairable, memerr.Storage(errRepairIncomplete)
	}
	return repaired, nil, nil
}

var errRepairIncomplete = versionRepairError{}

type versionRepairError struct{}

func (versionRepairError) Error() string {
	return "one or more versions could not be repaired"
}

package packument

import (
	"sort"

	"github.com/Masterminds/semver/v3"
)

// FindLatest returns the manifest of the version the "latest" dist-tag points
// at. Without that tag it falls back to the version with the most recent
// time-map entry, ignoring the synthetic "created" and "modified" keys.
// It returns nil when no version can be determined.
func FindLatest(doc *Packument) *Version {
	if doc == nil {
		return nil
	}
	if latest, ok := doc.DistTags["latest"]; ok && latest != "" {
		return doc.Versions[latest]
	}

	keys := make([]string, 0, len(doc.Time))
	for k := range doc.Time {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var (
		newest     string
		newestTime int64
		found      bool
	)
	for _, k := range keys {
		if k == "created" || k == "modified" {
			continue
		}
		t, ok := doc.VersionTime(k)
		if !ok {
			continue
		}
		if !found || t.UnixNano() > newestTime {
			newest, newestTime, found = k, t.UnixNano(), true
		}
	}
	if !found {
		return nil
	}
	return doc.Versions[newest]
}

// NewVersions returns the version keys present in next but not in prev,
// ordered by semantic version. Keys that are not valid semver sort after the
// valid ones, lexically.
func NewVersions(prev, next *Packument) []string {
	if next == nil {
		return nil
	}
	var added []string
	for v := range next.Versions {
		if prev != nil {
			if _, ok := prev.Versions[v]; ok {
				continue
			}
		}
		added = append(added, v)
	}
	sortVersions(added)
	return added
}

func sortVersions(versions []string) {
	sort.SliceStable(versions, func(i, j int) bool {
		vi, errI := semver.NewVersion(versions[i])
		vj, errJ := semver.NewVersion(versions[j])
		switch {
		case errI == nil && errJ == nil:
			return vi.LessThan(vj)
		case errI == nil:
			return true
		case errJ == nil:
			return false
		default:
			return versions[i] < versions[j]
		}
	})
}

package packument

import (
	"encoding/json"
	"time"
)

// Packument is the registry metadata document for a package.
//
// Only the fields consulted when authorizing a publish are decoded; the
// original request bytes are what gets relayed upstream.
type Packument struct {
	Name     string                     `json:"name"`
	DistTags map[string]string          `json:"dist-tags"`
	Versions map[string]*Version        `json:"versions"`
	Time     map[string]json.RawMessage `json:"time,omitempty"`
}

// Version is a single version manifest inside a packument.
type Version struct {
	Name       string         `json:"name"`
	Version    string         `json:"version"`
	Repository *RepositoryRef `json:"repository,omitempty"`
	PermsRepo  *RepositoryRef `json:"permsRepo,omitempty"`
}

// PermissionsRepository returns the repository used for permission checks:
// permsRepo when declared, otherwise repository.
func (v *Version) PermissionsRepository() *RepositoryRef {
	if v == nil {
		return nil
	}
	if v.PermsRepo != nil {
		return v.PermsRepo
	}
	return v.Repository
}

// Parse decodes a packument document. It fails only when data is not a JSON
// object; fields of an unexpected type are left empty.
func Parse(data []byte) (*Packument, error) {
	var doc Packument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// UnmarshalJSON decodes each known field on its own so that a mistyped
// sibling field (a "time" string, a numeric "version") never hides the
// repositories declared elsewhere in the document.
func (p *Packument) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	if fields == nil {
		return nil
	}
	*p = Packument{}
	decodeString(fields["name"], &p.Name)

	var tags map[string]json.RawMessage
	if json.Unmarshal(fields["dist-tags"], &tags) == nil && tags != nil {
		p.DistTags = make(map[string]string, len(tags))
		for tag, raw := range tags {
			var v string
			if decodeString(raw, &v) {
				p.DistTags[tag] = v
			}
		}
	}

	var versions map[string]json.RawMessage
	if json.Unmarshal(fields["versions"], &versions) == nil && versions != nil {
		p.Versions = make(map[string]*Version, len(versions))
		for key, raw := range versions {
			manifest := &Version{}
			if err := json.Unmarshal(raw, manifest); err != nil {
				manifest = &Version{}
			}
			p.Versions[key] = manifest
		}
	}

	var times map[string]json.RawMessage
	if json.Unmarshal(fields["time"], &times) == nil {
		p.Time = times
	}
	return nil
}

// UnmarshalJSON decodes a version manifest. Entries that are not objects
// decode to a manifest with no repository.
func (v *Version) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	*v = Version{}
	decodeString(fields["name"], &v.Name)
	decodeString(fields["version"], &v.Version)
	v.Repository = decodeRepository(fields["repository"])
	v.PermsRepo = decodeRepository(fields["permsRepo"])
	return nil
}

func decodeString(raw json.RawMessage, dst *string) bool {
	if len(raw) == 0 {
		return false
	}
	return json.Unmarshal(raw, dst) == nil
}

// decodeRepository returns nil for an absent or null field. Any other value
// yields a reference, possibly empty, so the version still counts as having
// declared one.
func decodeRepository(raw json.RawMessage) *RepositoryRef {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	ref := &RepositoryRef{}
	if err := ref.UnmarshalJSON(raw); err != nil {
		return &RepositoryRef{}
	}
	return ref
}

// Unpublished reports whether every version of the package was unpublished.
// The registry keeps the document but records an "unpublished" entry in the
// time map.
func (p *Packument) Unpublished() bool {
	if p == nil || p.Time == nil {
		return false
	}
	raw, ok := p.Time["unpublished"]
	if !ok {
		return false
	}
	return string(raw) != "null" && len(raw) > 0
}

// VersionTime returns the publish time recorded for version.
func (p *Packument) VersionTime(version string) (time.Time, bool) {
	raw, ok := p.Time[version]
	if !ok {
		return time.Time{}, false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// DistTagVersion returns the version manifest a dist-tag points at.
func (p *Packument) DistTagVersion(tag string) *Version {
	if p == nil || p.DistTags == nil || p.Versions == nil {
		return nil
	}
	v, ok := p.DistTags[tag]
	if !ok || v == "" {
		return nil
	}
	return p.Versions[v]
}

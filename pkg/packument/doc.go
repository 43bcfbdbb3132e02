// Package packument models npm registry metadata documents and the parts of
// them that matter when deciding whether a publish may go through.
//
// # Repository resolution
//
// The manifest "repository" field is either a string or a {type, url} object.
// ResolveGitHub normalizes both into an owner/repo identifier:
//
//	ref := packument.Shorthand("git+https://github.com/foo/bar.git")
//	repo, ok := packument.ResolveGitHub(ref)
//	// repo.Name == "foo/bar", repo.URL == "https://github.com/foo/bar"
//
// # Versions
//
// FindLatest picks the version an existing package is currently known by and
// NewVersions diffs two documents by version key.
package packument

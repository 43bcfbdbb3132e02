package packument

import (
	"bytes"
	"encoding/json"
	"net/url"
	"regexp"
	"strings"
)

// RepositoryRef is the npm "repository" manifest field. It is either a bare
// string (Shorthand) or a {type, url} object (Git); exactly one is set.
type RepositoryRef struct {
	Shorthand string
	Git       *GitRef
}

// GitRef is the structured form of a repository field.
type GitRef struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

// Shorthand returns a RepositoryRef for a bare string value.
func Shorthand(s string) *RepositoryRef {
	return &RepositoryRef{Shorthand: s}
}

// Git returns a RepositoryRef for a structured value.
func Git(typ, u string) *RepositoryRef {
	return &RepositoryRef{Git: &GitRef{Type: typ, URL: u}}
}

// UnmarshalJSON accepts a string or an object. Any other JSON value decodes
// to an empty reference, which never resolves.
func (r *RepositoryRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*r = RepositoryRef{}
	if len(data) == 0 {
		return nil
	}
	switch data[0] {
	case '"':
		return json.Unmarshal(data, &r.Shorthand)
	case '{':
		var obj map[string]interface{}
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		ref := &GitRef{}
		if t, ok := obj["type"].(string); ok {
			ref.Type = t
		}
		if u, ok := obj["url"].(string); ok {
			ref.URL = u
		}
		r.Git = ref
	}
	return nil
}

// MarshalJSON writes the reference back in the form it was declared.
func (r RepositoryRef) MarshalJSON() ([]byte, error) {
	if r.Git != nil {
		return json.Marshal(r.Git)
	}
	return json.Marshal(r.Shorthand)
}

// String returns the declared url.
func (r *RepositoryRef) String() string {
	if r == nil {
		return ""
	}
	if r.Git != nil {
		return r.Git.URL
	}
	return r.Shorthand
}

// GitHubRepo is a canonical GitHub repository identifier.
type GitHubRepo struct {
	// Name is "owner/repo".
	Name string `json:"name"`
	// URL is "https://github.com/owner/repo".
	URL string `json:"url"`
}

var (
	githubURLPattern = regexp.MustCompile(
		`^(?:https?://|git://|git\+ssh://|git\+https://|ssh://)?` +
			`(?:[^@/]+@)?` +
			`(gist\.github\.com|github\.com)` +
			`[:/]+([^/]+/[^/]+?)(?:/.*)?$`)
	gitSuffixPattern    = regexp.MustCompile(`\.git(#.*)?$`)
	ownerRepoShorthand  = regexp.MustCompile(`^[^/]+/[^/]+$`)
	shorthandWithSubdir = regexp.MustCompile(`^([A-Za-z0-9_.-]+/[A-Za-z0-9_.-]+)/(?:tree|blob)/`)
)

// ResolveGitHub normalizes a repository field into a GitHub owner/repo.
// The second return value is false when the field does not point at GitHub.
//
// A bare string is treated as {type: "git", url: s}. Only git references are
// eligible. Recognized forms include git+https://, git@github.com:, github.com
// without a scheme, trailing /tree/<branch>/<dir> segments, and the
// "owner/repo" shorthand that npm resolves to GitHub.
func ResolveGitHub(ref *RepositoryRef) (GitHubRepo, bool) {
	if ref == nil {
		return GitHubRepo{}, false
	}
	git := ref.Git
	if git == nil {
		if ref.Shorthand == "" {
			return GitHubRepo{}, false
		}
		git = &GitRef{Type: "git", URL: ref.Shorthand}
	}
	if git.Type != "git" || git.URL == "" {
		return GitHubRepo{}, false
	}

	if u, ok := githubURLFromGit(git.URL); ok {
		if !strings.HasPrefix(u, "https://github.com/") {
			return GitHubRepo{}, false
		}
		parsed, err := url.Parse(u)
		if err != nil {
			return GitHubRepo{}, false
		}
		return GitHubRepo{Name: strings.TrimPrefix(parsed.Path, "/"), URL: u}, true
	}

	raw := strings.TrimSpace(git.URL)
	if m := shorthandWithSubdir.FindStringSubmatch(raw); m != nil {
		raw = m[1]
	}
	if ownerRepoShorthand.MatchString(raw) {
		return GitHubRepo{Name: raw, URL: "https://github.com/" + raw}, true
	}
	return GitHubRepo{}, false
}

// githubURLFromGit extracts "https://<host>/<owner>/<repo>" from the many
// url shapes found in manifests. Path segments past owner/repo are dropped.
func githubURLFromGit(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if i := strings.Index(raw, "#"); i >= 0 {
		raw = raw[:i]
	}
	raw = strings.TrimSuffix(raw, "/")
	m := githubURLPattern.FindStringSubmatch(raw)
	if m == nil {
		return "", false
	}
	host, path := m[1], gitSuffixPattern.ReplaceAllString(m[2], "")
	if path == "" || strings.HasSuffix(path, "/") {
		return "", false
	}
	return "https://" + host + "/" + path, true
}

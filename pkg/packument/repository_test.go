package packument

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveGitHub(t *testing.T) {
	fooBar := GitHubRepo{Name: "foo/bar", URL: "https://github.com/foo/bar"}

	tests := []struct {
		name   string
		ref    *RepositoryRef
		want   GitHubRepo
		wantOK bool
	}{
		{"https url", Shorthand("https://github.com/foo/bar"), fooBar, true},
		{"git+https with .git", Git("git", "git+https://github.com/foo/bar.git"), fooBar, true},
		{"scp style", Git("git", "git@github.com:foo/bar.git"), fooBar, true},
		{"git+ssh", Git("git", "git+ssh://git@github.com/foo/bar.git"), fooBar, true},
		{"no scheme", Shorthand("github.com/foo/bar"), fooBar, true},
		{"trailing tree path", Shorthand("https://github.com/foo/bar/tree/main/packages/baz"), fooBar, true},
		{"fragment", Shorthand("https://github.com/foo/bar.git#main"), fooBar, true},
		{"owner/repo shorthand", Shorthand("foo/bar"), fooBar, true},
		{
			"shorthand with subdirectory",
			Git("git", "GoogleCloudPlatform/cloud-for-marketing/tree/master/marketing-analytics/activation/common-libs/nodejs-common"),
			GitHubRepo{
				Name: "GoogleCloudPlatform/cloud-for-marketing",
				URL:  "https://github.com/GoogleCloudPlatform/cloud-for-marketing",
			},
			true,
		},
		{"non-git type", Git("svn", "https://github.com/foo/bar"), GitHubRepo{}, false},
		{"other host", Shorthand("https://gitlab.com/foo/bar"), GitHubRepo{}, false},
		{"gist", Shorthand("https://gist.github.com/foo/abcdef"), GitHubRepo{}, false},
		{"too many segments", Shorthand("foo/bar/baz"), GitHubRepo{}, false},
		{"empty", Shorthand(""), GitHubRepo{}, false},
		{"nil", nil, GitHubRepo{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ResolveGitHub(tt.ref)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveGitHub_Idempotent(t *testing.T) {
	ref := Shorthand("git+https://github.com/foo/bar.git")
	first, ok1 := ResolveGitHub(ref)
	second, ok2 := ResolveGitHub(ref)
	assert.Equal(t, ok1, ok2)
	assert.Equal(t, first, second)
}

func TestRepositoryRef_UnmarshalJSON(t *testing.T) {
	var v Version
	require.NoError(t, json.Unmarshal([]byte(`{"version":"1.0.0","repository":"foo/bar"}`), &v))
	require.NotNil(t, v.Repository)
	assert.Equal(t, "foo/bar", v.Repository.Shorthand)
	assert.Nil(t, v.Repository.Git)

	v = Version{}
	require.NoError(t, json.Unmarshal([]byte(`{"repository":{"type":"git","url":"https://github.com/a/b"},"permsRepo":"c/d"}`), &v))
	require.NotNil(t, v.Repository.Git)
	assert.Equal(t, "git", v.Repository.Git.Type)
	assert.Equal(t, "c/d", v.PermissionsRepository().String())

	v = Version{}
	require.NoError(t, json.Unmarshal([]byte(`{"repository":42}`), &v))
	_, ok := ResolveGitHub(v.Repository)
	assert.False(t, ok)

	v = Version{}
	require.NoError(t, json.Unmarshal([]byte(`{"repository":null}`), &v))
	assert.Nil(t, v.PermissionsRepository())
}

func TestRepositoryRef_MarshalJSON(t *testing.T) {
	b, err := json.Marshal(Git("git", "https://github.com/a/b"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"git","url":"https://github.com/a/b"}`, string(b))

	b, err = json.Marshal(Shorthand("a/b"))
	require.NoError(t, err)
	assert.Equal(t, `"a/b"`, string(b))
}

package publish

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/publishgate/pkg/packument"
)

// ReleaseCandidates lists the tags that may back a release of version.
//
// Monorepo packages are tagged either release-please style
// ("<name>-v1.2.3", using the part after the scope) or lerna style
// ("@scope/name@1.2.3"). A bare "v1.2.3" never matches in that mode.
func ReleaseCandidates(name, version string, monorepo bool) []string {
	if !monorepo {
		return []string{"v" + version}
	}
	prefix := name
	if i := strings.Index(name, "/"); i >= 0 {
		prefix = name[i+1:]
	}
	return []string{
		prefix + "-v" + version,
		name + "@" + version,
	}
}

// enforceMatchingRelease requires a GitHub release or tag for the version
// being published. prev is the registry document before this publish, nil
// for a first publish. Errors that are not a *StatusError are internal
// failures.
func (e *Engine) enforceMatchingRelease(ctx context.Context, pkgName, repo, token string, prev *packument.Packument, body []byte, monorepo bool) error {
	var raw interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return err
	}
	obj, ok := raw.(map[string]interface{})
	if !ok {
		return Errorf(http.StatusBadRequest, "Release-backed tokens should be used exclusively for publication.")
	}
	if _, ok := obj["dist-tags"]; !ok {
		return Errorf(http.StatusBadRequest, "Release-backed tokens should be used exclusively for publication.")
	}

	next, err := packument.Parse(body)
	if err != nil {
		return err
	}
	tag := "latest"
	published := next.DistTagVersion(tag)
	if published == nil {
		tag = "next"
		published = next.DistTagVersion(tag)
	}
	if published == nil {
		return Errorf(http.StatusBadRequest, `No "latest" or "next" version found in packument.`)
	}
	version := published.Version
	if version == "" {
		version = next.DistTags[tag]
	}

	if prev != nil {
		added := packument.NewVersions(prev, next)
		if len(added) != 1 {
			return Errorf(http.StatusBadRequest,
				"No new versions found in packument. Release-backed tokens should be used exclusively for publication.")
		}
		version = added[0]
	}

	name := next.Name
	if name == "" {
		name = pkgName
	}
	candidates := ReleaseCandidates(name, version, monorepo)
	found, err := e.scm.FindRelease(ctx, repo, token, candidates)
	if err != nil {
		return err
	}
	if found == "" {
		return Errorf(http.StatusBadRequest,
			"matching release v%s not found for %s. Did not find any tags matching: %s",
			version, repo, strings.Join(candidates, ","))
	}
	e.logger.WithFields(logrus.Fields{
		"repo": repo,
		"tag":  found,
	}).Info("matching release found")
	return nil
}

package github

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

const (
	// MaxTagPages bounds the tag listing fallback. Together with
	// TagsPerPage it caps the scan at 1100 tags.
	MaxTagPages = 11
	// TagsPerPage is the page size used when listing tags.
	TagsPerPage = 100
)

// FindRelease returns the first candidate tag that has a release or, failing
// that, exists as a raw tag. It returns "" when nothing matched.
//
// Releases are checked first, one candidate at a time and in order. A failed
// release lookup is logged and the next candidate is tried. Tags are then
// listed page by page and every candidate is compared with every tag name.
// An error while listing tags aborts the search.
func (c *Client) FindRelease(ctx context.Context, repo, token string, candidates []string) (string, error) {
	for _, tag := range candidates {
		rel, err := c.GetReleaseByTag(ctx, repo, token, tag)
		if err != nil {
			c.logger.WithFields(logrus.Fields{
				"repo": repo,
				"tag":  tag,
			}).WithError(err).Warn("release lookup failed, trying next candidate")
			continue
		}
		if rel != nil {
			return tag, nil
		}
	}

	for page := 1; page <= c.maxPages; page++ {
		tags, err := c.ListTags(ctx, repo, token, page, TagsPerPage)
		if err != nil {
			return "", fmt.Errorf("listing tags for %s page %d: %w", repo, page, err)
		}
		for _, t := range tags {
			for _, candidate := range candidates {
				if t.Name == candidate {
					return candidate, nil
				}
			}
		}
	}
	return "", nil
}

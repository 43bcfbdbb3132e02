package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// DefaultAPIURL is the public GitHub REST endpoint.
const DefaultAPIURL = "https://api.github.com"

// ErrRepoNotFound is returned when the API answers 404 for a repository. For
// a user token this means the repository does not exist or the user cannot
// see it.
var ErrRepoNotFound = errors.New("repository not found")

// APIError is an unexpected HTTP status from the GitHub API.
type APIError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("github: unexpected http code = %d from %s", e.StatusCode, e.URL)
}

// Permissions are the caller's rights on a repository.
type Permissions struct {
	Admin bool `json:"admin"`
	Push  bool `json:"push"`
	Pull  bool `json:"pull"`
}

// CanPublish reports whether the permission set allows publishing.
func (p Permissions) CanPublish() bool {
	return p.Push || p.Admin
}

// Repository is the subset of GET /repos/{owner}/{repo} we consume.
type Repository struct {
	Name        string      `json:"name"`
	FullName    string      `json:"full_name"`
	Private     bool        `json:"private"`
	Permissions Permissions `json:"permissions"`
}

// Release is a GitHub release.
type Release struct {
	Name    string `json:"name"`
	TagName string `json:"tag_name"`
}

// Tag is an entry of the tag listing.
type Tag struct {
	Name string `json:"name"`
}

// User is the authenticated GitHub user.
type User struct {
	Login     string `json:"login"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url"`
	HTMLURL   string `json:"html_url"`
}

// Client talks to the GitHub REST API on behalf of a user token.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     logrus.FieldLogger
	maxPages   int
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the client used for API calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the logger.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithMaxTagPages overrides how many tag pages FindRelease scans.
func WithMaxTagPages(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxPages = n
		}
	}
}

// NewClient creates a client for the API rooted at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultAPIURL
	}
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: http.DefaultClient,
		logger:     logrus.StandardLogger(),
		maxPages:   MaxTagPages,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetRepository fetches a repository along with the token owner's
// permissions on it.
func (c *Client) GetRepository(ctx context.Context, repo, token string) (*Repository, error) {
	resp, err := c.get(ctx, "/repos/"+repo, nil, token)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, fmt.Errorf("repository %s: %w", repo, ErrRepoNotFound)
	default:
		return nil, apiError(resp)
	}

	var r Repository
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return nil, fmt.Errorf("failed to decode repository %s: %w", repo, err)
	}
	return &r, nil
}

// GetReleaseByTag fetches the release for tag. A missing release is not an
// error: it returns nil, nil.
func (c *Client) GetReleaseByTag(ctx context.Context, repo, token, tag string) (*Release, error) {
	resp, err := c.get(ctx, "/repos/"+repo+"/releases/tags/"+escapeTag(tag), nil, token)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, apiError(resp)
	}

	var rel Release
	if err := json.NewDecoder(resp.Body).Decode(&rel); err != nil {
		return nil, fmt.Errorf("failed to decode release %s: %w", tag, err)
	}
	if rel.TagName == "" {
		rel.TagName = tag
	}
	return &rel, nil
}

// ListTags returns one page of the repository's tags.
func (c *Client) ListTags(ctx context.Context, repo, token string, page, perPage int) ([]Tag, error) {
	q := url.Values{}
	q.Set("per_page", strconv.Itoa(perPage))
	q.Set("page", strconv.Itoa(page))

	resp, err := c.get(ctx, "/repos/"+repo+"/tags", q, token)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp)
	}

	var tags []Tag
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("failed to decode tags page %d: %w", page, err)
	}
	return tags, nil
}

// GetUser returns the user that owns token.
func (c *Client) GetUser(ctx context.Context, token string) (*User, error) {
	resp, err := c.get(ctx, "/user", nil, token)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp)
	}

	var u User
	if err := json.NewDecoder(resp.Body).Decode(&u); err != nil {
		return nil, fmt.Errorf("failed to decode user: %w", err)
	}
	return &u, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, token string) (*http.Response, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build github request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	req.Header.Set("User-Agent", "publishgate")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("github request %s failed: %w", path, err)
	}
	return resp, nil
}

// escapeTag escapes each path segment of tag. Slashes are kept so lerna
// style tags such as @scope/pkg@1.0.0 address the release directly.
func escapeTag(tag string) string {
	parts := strings.Split(tag, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

func apiError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return &APIError{
		StatusCode: resp.StatusCode,
		URL:        resp.Request.URL.Path,
		Body:       string(body),
	}
}

package registry

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/publishgate/pkg/packument"
)

// DefaultUpstreamURL is the public npm registry.
const DefaultUpstreamURL = "https://registry.npmjs.org"

// Error is an unexpected answer from the upstream registry.
type Error struct {
	Package    string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("registry: fetching %s: %v", e.Package, e.Err)
	}
	return fmt.Sprintf("registry: unexpected status code %d fetching %s", e.StatusCode, e.Package)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Client reads from the upstream registry.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	logger     logrus.FieldLogger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the client used for upstream calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the logger.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(c *Client) { c.logger = logger }
}

// NewClient creates a client for the registry at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultUpstreamURL
	}
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid registry url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid registry url: %q", baseURL)
	}
	c := &Client{
		baseURL:    u,
		httpClient: http.DefaultClient,
		logger:     logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the upstream registry root.
func (c *Client) BaseURL() *url.URL {
	u := *c.baseURL
	return &u
}

// Packument fetches the current document for name. It returns nil, nil when
// the registry does not know the package.
func (c *Client) Packument(ctx context.Context, name string) (*packument.Packument, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL.String()+"/"+EscapeName(name), nil)
	if err != nil {
		return nil, &Error{Package: name, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &Error{Package: name, Err: err}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, nil
	default:
		return nil, &Error{Package: name, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Package: name, StatusCode: resp.StatusCode, Err: err}
	}
	doc, err := packument.Parse(body)
	if err != nil {
		return nil, &Error{Package: name, StatusCode: resp.StatusCode, Err: fmt.Errorf("packument did not parse: %w", err)}
	}
	return doc, nil
}

// Proxy streams a read-only upstream resource at path (with its query) to w.
func (c *Client) Proxy(ctx context.Context, w http.ResponseWriter, path, rawQuery string) error {
	target := c.baseURL.String() + path
	if rawQuery != "" {
		target += "?" + rawQuery
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("failed to build proxy request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("proxy request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	copyHeaders(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		c.logger.WithError(err).WithField("path", path).Warn("error streaming proxied response")
	}
	return nil
}

// EscapeName encodes a package name for use as a registry path segment.
// Only the scope separator is escaped, matching what the npm CLI sends.
func EscapeName(name string) string {
	return strings.Replace(name, "/", "%2f", 1)
}

package registry

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/sirupsen/logrus"
)

// CodeSource produces one-time codes for the npm-otp header.
type CodeSource interface {
	Code() (string, error)
}

// hopHeaders are connection-scoped and never forwarded.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// Relay forwards an authorized request to the upstream registry with the
// service account credentials.
type Relay struct {
	upstream   *url.URL
	httpClient *http.Client
	npmToken   string
	otp        CodeSource
	logger     logrus.FieldLogger
}

// NewRelay creates a relay to the registry behind c.
func NewRelay(c *Client, npmToken string, otp CodeSource) *Relay {
	return &Relay{
		upstream:   c.BaseURL(),
		httpClient: c.httpClient,
		npmToken:   npmToken,
		otp:        otp,
		logger:     c.logger,
	}
}

// Forward sends r upstream at the same method, path and query and streams
// the registry's answer to w. When body is non-nil it is sent in place of
// r.Body, which has already been consumed.
//
// It returns the upstream status code. An error means nothing was written
// to w.
func (rl *Relay) Forward(ctx context.Context, w http.ResponseWriter, r *http.Request, body []byte) (int, error) {
	code, err := rl.otp.Code()
	if err != nil {
		return 0, fmt.Errorf("failed to generate otp code: %w", err)
	}

	target := *rl.upstream
	target.Path = singleJoin(rl.upstream.Path, r.URL.Path)
	target.RawPath = singleJoin(rl.upstream.EscapedPath(), r.URL.EscapedPath())
	target.RawQuery = r.URL.RawQuery

	var reqBody io.Reader
	contentLength := r.ContentLength
	if body != nil {
		reqBody = bytes.NewReader(body)
		contentLength = int64(len(body))
	} else if r.Body != nil && r.Body != http.NoBody {
		reqBody = r.Body
	}

	out, err := http.NewRequestWithContext(ctx, r.Method, target.String(), reqBody)
	if err != nil {
		return 0, fmt.Errorf("failed to build upstream request: %w", err)
	}
	out.Header = r.Header.Clone()
	removeHopHeaders(out.Header)
	out.Header.Set("Authorization", "Bearer "+rl.npmToken)
	out.Header.Set("npm-otp", code)
	out.Host = rl.upstream.Host
	if reqBody != nil {
		out.ContentLength = contentLength
	}

	resp, err := rl.httpClient.Do(out)
	if err != nil {
		return 0, fmt.Errorf("upstream request failed: %w", err)
	}
	defer resp.Body.Close()

	copyHeaders(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		rl.logger.WithError(err).WithFields(logrus.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
		}).Warn("error streaming upstream response")
	}
	return resp.StatusCode, nil
}

func copyHeaders(dst, src http.Header) {
	for k, vv := range src {
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
	removeHopHeaders(dst)
}

func removeHopHeaders(h http.Header) {
	for _, k := range hopHeaders {
		h.Del(k)
	}
}

func singleJoin(base, p string) string {
	switch {
	case base == "":
		return p
	case len(base) > 0 && base[len(base)-1] == '/' && len(p) > 0 && p[0] == '/':
		return base + p[1:]
	default:
		return base + p
	}
}

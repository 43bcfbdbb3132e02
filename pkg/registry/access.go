package registry

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// RequireTwoFactor marks pkg as requiring two-factor authentication for
// publishes, using the service account credentials. It returns the upstream
// status and body.
func (c *Client) RequireTwoFactor(ctx context.Context, pkg, npmToken, otpCode string) (int, []byte, error) {
	payload := []byte(`{"publish_requires_tfa":true}`)
	target := c.baseURL.String() + "/-/package/" + url.PathEscape(pkg) + "/access"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to build access request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+npmToken)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("npm-otp", otpCode)
	req.Header.Set("npm-session", strconv.FormatInt(time.Now().UnixNano(), 36))
	req.Header.Set("npm-in-ci", "false")
	req.Header.Set("Referer", "access 2fa-required "+pkg)
	req.Header.Set("User-Agent", "publishgate")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("access request for %s failed: %w", pkg, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read access response: %w", err)
	}
	return resp.StatusCode, body, nil
}

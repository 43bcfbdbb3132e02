package auth

import (
	"time"
)

const (
	// PrefixLength is the minimum number of leading characters a caller must
	// present to identify a publish key without revealing it.
	PrefixLength = 5

	// HandoffValidity bounds the window between starting and finishing a web login.
	HandoffValidity = 5 * time.Minute

	// TTLTokenLifetime is how long a "ttl" publish key stays valid.
	TTLTokenLifetime = 24 * time.Hour
)

// TokenType selects how a publish key is restricted when it is issued.
type TokenType string

const (
	// TokenTypePackage restricts the key to a single package.
	TokenTypePackage TokenType = "package"
	// TokenTypeTTL is an unrestricted key expiring after TTLTokenLifetime.
	TokenTypeTTL TokenType = "ttl"
	// TokenTypeRelease restricts the key to a package and requires a matching release.
	TokenTypeRelease TokenType = "release"
)

// Valid reports whether t is a known token type.
func (t TokenType) Valid() bool {
	switch t {
	case TokenTypePackage, TokenTypeTTL, TokenTypeRelease:
		return true
	}
	return false
}

// PublishKey is the credential an npm client presents to the proxy.
type PublishKey struct {
	Value        string     `json:"value"`
	Username     string     `json:"username"`
	Created      time.Time  `json:"created"`
	Package      string     `json:"package,omitempty"`
	Expiration   *time.Time `json:"expiration,omitempty"`
	ReleaseAs2FA bool       `json:"releaseAs2FA,omitempty"`
	Monorepo     bool       `json:"monorepo,omitempty"`
}

// Expired reports whether the key has an expiration at or before now.
func (k *PublishKey) Expired(now time.Time) bool {
	return k.Expiration != nil && !k.Expiration.After(now)
}

// Prefix returns the visible part of the key value.
func (k *PublishKey) Prefix() string {
	if len(k.Value) <= PrefixLength {
		return k.Value
	}
	return k.Value[:PrefixLength]
}

// CreatedMillis returns the creation time as unix milliseconds, the
// identifier used when a key is listed or revoked.
func (k *PublishKey) CreatedMillis() int64 {
	return k.Created.UnixMilli()
}

// Obfuscated returns a copy of the key whose value is reduced to its prefix.
func (k *PublishKey) Obfuscated() PublishKey {
	out := *k
	out.Value = k.Prefix()
	return out
}

// User links a GitHub login to the OAuth token used on its behalf.
type User struct {
	Name  string `json:"name"`
	Token string `json:"token"`
}

// HandoffKey carries a pending publish key between "npm login --auth-type=web"
// and the browser that completes the GitHub login.
type HandoffKey struct {
	ID       string    `json:"id"`
	Value    string    `json:"value"`
	Complete bool      `json:"complete"`
	Created  time.Time `json:"created"`
}

// Stale reports whether the handoff window has closed.
func (h *HandoffKey) Stale(now time.Time) bool {
	return now.Sub(h.Created) > HandoffValidity
}

package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// GenerateToken returns a new random publish key value.
func GenerateToken() string {
	return uuid.NewString()
}

// KeyOptions describes the restrictions placed on a new publish key.
type KeyOptions struct {
	Type     TokenType
	Package  string
	Monorepo bool
}

// NewPublishKey builds a key for username. Created is truncated to the
// millisecond so it round-trips through the listing API unchanged.
func NewPublishKey(username string, opts KeyOptions, now time.Time) (*PublishKey, error) {
	key := &PublishKey{
		Value:    GenerateToken(),
		Username: username,
		Created:  now.Truncate(time.Millisecond),
	}

	switch opts.Type {
	case TokenTypeTTL:
		exp := key.Created.Add(TTLTokenLifetime)
		key.Expiration = &exp
	case TokenTypePackage, TokenTypeRelease:
		if opts.Package == "" {
			return nil, fmt.Errorf("a package name is required for %s tokens", opts.Type)
		}
		key.Package = opts.Package
		key.ReleaseAs2FA = opts.Type == TokenTypeRelease
		key.Monorepo = opts.Type == TokenTypeRelease && opts.Monorepo
	default:
		return nil, fmt.Errorf("unknown token type %q", opts.Type)
	}

	return key, nil
}

// BearerToken extracts the credential from an Authorization header: the last
// space separated field, so both "Bearer x" and a bare "x" are accepted.
func BearerToken(header string) string {
	fields := strings.Fields(header)
	if len(fields) == 0 {
		return ""
	}
	return fields[len(fields)-1]
}

package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPublishKeyExpired(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Second)
	future := now.Add(time.Hour)

	tests := []struct {
		name       string
		expiration *time.Time
		want       bool
	}{
		{"no expiration", nil, false},
		{"expired", &past, true},
		{"expires exactly now", &now, true},
		{"valid", &future, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := &PublishKey{Value: "abc", Expiration: tt.expiration}
			assert.Equal(t, tt.want, key.Expired(now))
		})
	}
}

func TestPublishKeyObfuscated(t *testing.T) {
	created := time.UnixMilli(1714564800123)
	key := &PublishKey{
		Value:    "0123456789abcdef",
		Username: "octocat",
		Created:  created,
		Package:  "left-pad",
	}

	obf := key.Obfuscated()
	assert.Equal(t, "01234", obf.Value)
	assert.Equal(t, "left-pad", obf.Package)
	assert.Equal(t, int64(1714564800123), obf.CreatedMillis())
	// original untouched
	assert.Equal(t, "0123456789abcdef", key.Value)

	short := &PublishKey{Value: "abc"}
	assert.Equal(t, "abc", short.Prefix())
}

func TestHandoffKeyStale(t *testing.T) {
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	h := &HandoffKey{ID: "id", Value: "v", Created: created}

	assert.False(t, h.Stale(created.Add(HandoffValidity)))
	assert.True(t, h.Stale(created.Add(HandoffValidity+time.Millisecond)))
}

func TestTokenTypeValid(t *testing.T) {
	assert.True(t, TokenTypePackage.Valid())
	assert.True(t, TokenTypeTTL.Valid())
	assert.True(t, TokenTypeRelease.Valid())
	assert.False(t, TokenType("forever").Valid())
}

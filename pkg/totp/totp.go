// Package totp produces the one-time codes npm expects in the npm-otp header
// when the service account has two-factor authentication enabled.
package totp

import (
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp/totp"
)

// Generator produces codes for a single base32 secret.
type Generator struct {
	secret string
	now    func() time.Time
}

// NewGenerator validates secret and returns a generator for it.
func NewGenerator(secret string) (*Generator, error) {
	secret = strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(secret), " ", ""))
	if secret == "" {
		return nil, fmt.Errorf("otp secret is required")
	}
	g := &Generator{secret: secret, now: time.Now}
	if _, err := g.Code(); err != nil {
		return nil, fmt.Errorf("invalid otp secret: %w", err)
	}
	return g, nil
}

// Code returns the code for the current 30 second window.
func (g *Generator) Code() (string, error) {
	return totp.GenerateCode(g.secret, g.now())
}

// Package auth defines the credentials publishgate issues and the browser
// session used to obtain them.
//
// # Publish keys
//
// A PublishKey is the bearer token an npm client sends with
// "npm publish". It belongs to a GitHub login and may be restricted:
//
//	key, err := auth.NewPublishKey("octocat", auth.KeyOptions{
//		Type:    auth.TokenTypeRelease,
//		Package: "@scope/pkg",
//	}, time.Now())
//
// Token types:
//
//	package - only the named package may be published
//	ttl     - any package, expires after TTLTokenLifetime
//	release - only the named package, and each publish needs a matching
//	          GitHub release or tag
//
// Keys are never shown again after creation. Listings use Obfuscated, which
// keeps the first PrefixLength characters; the creation time in unix
// milliseconds plus the prefix identifies a key for revocation.
//
// # Handoff keys
//
// "npm login --auth-type=web" creates a HandoffKey and polls for it. The
// browser side completes it after the GitHub login, at which point its value
// becomes a publish key. Handoffs older than HandoffValidity are ignored.
//
// # Sessions
//
// SessionManager keeps the login website state in a signed JWT cookie:
//
//	sessions, _ := auth.NewSessionManager(secret, auth.DefaultSessionTTL, true)
//	s := sessions.Load(r)
//	s.Flash = "Logged in as " + login
//	_ = sessions.Save(w, s)
package auth

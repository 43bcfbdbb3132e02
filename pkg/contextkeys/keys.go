// Package contextkeys provides centralized context key definitions
//
// All context keys used across the application are defined here so that
// setters and readers agree on key and value type.
//
// USAGE PATTERN:
//
//	import "github.com/platinummonkey/publishgate/pkg/contextkeys"
//	ctx = contextkeys.WithRequestID(ctx, id)
//	id := contextkeys.GetRequestID(ctx)
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// RequestIDKey contains request ID string (UUID)
	// Set by: httputil.RequestIDMiddleware
	// Used by: Logger, error support ids
	// Type: string
	RequestIDKey Key = "request_id"

	// NamespaceKey contains the registry namespace taken from a /<ns>/_ns/ path
	// Set by: api.namespaceRewrite
	// Used by: login handoff (package hint on the login URL)
	// Type: string
	NamespaceKey Key = "namespace"

	// SessionKey contains *auth.Session for the login website
	// Set by: api.Server.withSession
	// Used by: account, token and logout handlers
	// Type: *auth.Session
	SessionKey Key = "session"
)

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// WithNamespace adds the registry namespace to the context
func WithNamespace(ctx context.Context, ns string) context.Context {
	return context.WithValue(ctx, NamespaceKey, ns)
}

// GetNamespace retrieves the registry namespace from context
func GetNamespace(ctx context.Context) string {
	if ns, ok := ctx.Value(NamespaceKey).(string); ok {
		return ns
	}
	return ""
}

// WithSession adds the login session to the context
func WithSession(ctx context.Context, session interface{}) context.Context {
	return context.WithValue(ctx, SessionKey, session)
}

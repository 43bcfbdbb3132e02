package audit

import (
	"time"
)

// EventType represents the category of audit event
type EventType string

const (
	// Login website events
	EventTypeLogin       EventType = "auth.login"
	EventTypeLoginFailed EventType = "auth.login_failed"
	EventTypeLogout      EventType = "auth.logout"

	// Publish key lifecycle
	EventTypeTokenCreate EventType = "auth.token_create"
	EventTypeTokenRevoke EventType = "auth.token_revoke"

	// Registry writes
	EventTypePublish          EventType = "publish.write"
	EventTypeRequireTwoFactor EventType = "publish.require_2fa"
)

// EventStatus represents the outcome of an event
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusFailure EventStatus = "failure"
	EventStatusDenied  EventStatus = "denied"
)

// StatusForCode maps an HTTP status to an event status.
func StatusForCode(code int) EventStatus {
	switch {
	case code >= 200 && code < 300:
		return EventStatusSuccess
	case code == 400 || code == 401 || code == 403 || code == 404:
		return EventStatusDenied
	default:
		return EventStatusFailure
	}
}

// Event is a single audit log entry.
type Event struct {
	ID        int64       `json:"id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Type      EventType   `json:"event_type"`
	Status    EventStatus `json:"status"`

	// Actor: the GitHub login, and the visible prefix of the publish key
	// involved, if any.
	Username    string `json:"username,omitempty"`
	TokenPrefix string `json:"token_prefix,omitempty"`

	Package string `json:"package,omitempty"`

	// Request context
	IPAddress  string `json:"ip_address,omitempty"`
	UserAgent  string `json:"user_agent,omitempty"`
	RequestID  string `json:"request_id,omitempty"`
	Method     string `json:"method,omitempty"`
	Path       string `json:"path,omitempty"`
	StatusCode int    `json:"status_code,omitempty"`

	Message  string                 `json:"message,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// SearchFilter narrows a Search. Zero fields match everything.
type SearchFilter struct {
	Username string
	Package  string
	Types    []EventType
	Status   EventStatus
	Since    *time.Time
	Until    *time.Time

	// Limit defaults to 100.
	Limit  int
	Offset int
}

// ExportFormat represents the format for exporting audit logs
type ExportFormat string

const (
	ExportFormatJSON   ExportFormat = "json"
	ExportFormatCSV    ExportFormat = "csv"
	ExportFormatNDJSON ExportFormat = "ndjson" // Newline-delimited JSON
)

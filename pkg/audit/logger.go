package audit

import (
	"context"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/publishgate/pkg/contextkeys"
	"github.com/platinummonkey/publishgate/pkg/middleware"
)

// Logger is the interface for audit logging
type Logger interface {
	// Log records an event. Implementations may fill in ID.
	Log(ctx context.Context, event *Event) error

	// Close closes the logger and flushes any buffered events
	Close() error
}

// Searcher is implemented by loggers that can read their events back.
type Searcher interface {
	Search(ctx context.Context, filter SearchFilter) ([]*Event, error)
}

// NewEvent builds an event stamped with the request's context: client
// address, user agent, request ID, method and path. r may be nil for
// events raised outside a request, such as the admin CLI.
func NewEvent(r *http.Request, eventType EventType, status EventStatus) *Event {
	event := &Event{
		Timestamp: time.Now().UTC(),
		Type:      eventType,
		Status:    status,
	}
	if r != nil {
		event.IPAddress = middleware.ClientIP(r)
		event.UserAgent = r.UserAgent()
		event.RequestID = contextkeys.GetRequestID(r.Context())
		event.Method = r.Method
		event.Path = r.URL.Path
	}
	return event
}

// NopLogger discards events.
type NopLogger struct{}

func (NopLogger) Log(context.Context, *Event) error { return nil }
func (NopLogger) Close() error                      { return nil }

// LogrusLogger writes each event as one structured log entry carrying
// audit=true, so log pipelines can route the trail separately.
type LogrusLogger struct {
	logger logrus.FieldLogger
}

// NewLogrusLogger creates an audit logger on top of logger.
func NewLogrusLogger(logger logrus.FieldLogger) *LogrusLogger {
	return &LogrusLogger{logger: logger}
}

func (l *LogrusLogger) Log(_ context.Context, event *Event) error {
	fields := logrus.Fields{
		"audit":      true,
		"event_type": event.Type,
		"status":     event.Status,
	}
	set := func(k, v string) {
		if v != "" {
			fields[k] = v
		}
	}
	set("user", event.Username)
	set("token_prefix", event.TokenPrefix)
	set("package", event.Package)
	set("ip", event.IPAddress)
	set("request_id", event.RequestID)
	set("method", event.Method)
	set("path", event.Path)
	if event.StatusCode != 0 {
		fields["status_code"] = event.StatusCode
	}
	for k, v := range event.Metadata {
		fields["meta_"+k] = v
	}

	entry := l.logger.WithFields(fields)
	msg := event.Message
	if msg == "" {
		msg = string(event.Type)
	}
	if event.Status == EventStatusSuccess {
		entry.Info(msg)
	} else {
		entry.Warn(msg)
	}
	return nil
}

func (l *LogrusLogger) Close() error { return nil }

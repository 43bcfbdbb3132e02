package api

import (
	"context"
	"net/http"

	"github.com/platinummonkey/publishgate/pkg/audit"
	"github.com/platinummonkey/publishgate/pkg/observability"
)

// record writes an audit event. A failing audit sink never fails the request.
func (s *Server) record(ctx context.Context, event *audit.Event) {
	if err := s.audit.Log(ctx, event); err != nil {
		observability.FromContext(ctx, s.logger).
			WithError(err).
			WithField("event_type", event.Type).
			Warn("failed to record audit event")
	}
}

// event starts an audit event for r attributed to user.
func (s *Server) event(r *http.Request, eventType audit.EventType, status audit.EventStatus, user string) *audit.Event {
	e := audit.NewEvent(r, eventType, status)
	e.Username = user
	return e
}

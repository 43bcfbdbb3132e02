// Package audit records who did what to publish keys and packages.
//
// Events cover the login website (login, failed login, logout), the publish
// key lifecycle (create, revoke) and registry writes (every authorization
// decision and the two-factor requirement set on new packages).
//
// Two loggers are provided. LogrusLogger writes each event as a structured
// log line tagged audit=true. DBLogger keeps events in the audit_events
// table of the PostgreSQL or SQLite database that holds the publish keys,
// and can search and prune them. MultiLogger fans out to both.
//
//	dbLog, err := audit.NewDBLogger(ctx, db, audit.DialectPostgres)
//	if err != nil {
//		return err
//	}
//	logger := audit.NewMultiLogger(audit.NewLogrusLogger(log), dbLog)
//
//	event := audit.NewEvent(r, audit.EventTypeTokenCreate, audit.EventStatusSuccess)
//	event.Username = "octocat"
//	event.Package = "left-pad"
//	_ = logger.Log(r.Context(), event)
//
// Retention plugs DBLogger into the maintenance sweeper so old events are
// pruned on the same schedule as expired keys.
package audit

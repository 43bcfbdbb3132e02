package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Dialects understood by DBLogger. They match the storage backends.
const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

var placeholder = regexp.MustCompile(`\$\d+`)

// DBLogger stores audit events in the service database, next to the
// publish keys.
type DBLogger struct {
	db      *sql.DB
	dialect string
}

// NewDBLogger creates a database-backed audit logger and creates the
// audit_events table if needed.
func NewDBLogger(ctx context.Context, db *sql.DB, dialect string) (*DBLogger, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if dialect != DialectPostgres && dialect != DialectSQLite {
		return nil, fmt.Errorf("unsupported audit dialect %q", dialect)
	}

	logger := &DBLogger{db: db, dialect: dialect}
	if err := logger.ensureTable(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure audit_events table: %w", err)
	}
	return logger, nil
}

func (l *DBLogger) ensureTable(ctx context.Context) error {
	id := "id BIGSERIAL PRIMARY KEY"
	if l.dialect == DialectSQLite {
		id = "id INTEGER PRIMARY KEY AUTOINCREMENT"
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS audit_events (
		` + id + `,
		ts_ms        BIGINT NOT NULL,
		event_type   VARCHAR(64) NOT NULL,
		status       VARCHAR(16) NOT NULL,
		username     VARCHAR(255) NOT NULL DEFAULT '',
		token_prefix VARCHAR(16) NOT NULL DEFAULT '',
		package      VARCHAR(214) NOT NULL DEFAULT '',
		ip_address   VARCHAR(64) NOT NULL DEFAULT '',
		user_agent   TEXT NOT NULL DEFAULT '',
		request_id   VARCHAR(64) NOT NULL DEFAULT '',
		method       VARCHAR(10) NOT NULL DEFAULT '',
		path         TEXT NOT NULL DEFAULT '',
		status_code  INTEGER NOT NULL DEFAULT 0,
		message      TEXT NOT NULL DEFAULT '',
		metadata     TEXT
	)`,
		`CREATE INDEX IF NOT EXISTS audit_events_ts ON audit_events (ts_ms)`,
		`CREATE INDEX IF NOT EXISTS audit_events_username ON audit_events (username, ts_ms)`,
		`CREATE INDEX IF NOT EXISTS audit_events_package ON audit_events (package, ts_ms)`,
	}
	for _, stmt := range stmts {
		if _, err := l.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (l *DBLogger) rebind(query string) string {
	if l.dialect == DialectSQLite {
		return placeholder.ReplaceAllString(query, "?")
	}
	return query
}

// Log inserts event and sets its ID.
func (l *DBLogger) Log(ctx context.Context, event *Event) error {
	var metadata sql.NullString
	if len(event.Metadata) > 0 {
		b, err := json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
		metadata = sql.NullString{String: string(b), Valid: true}
	}

	query := l.rebind(`
		INSERT INTO audit_events (
			ts_ms, event_type, status,
			username, token_prefix, package,
			ip_address, user_agent, request_id,
			method, path, status_code,
			message, metadata
		) VALUES (
			$1, $2, $3,
			$4, $5, $6,
			$7, $8, $9,
			$10, $11, $12,
			$13, $14
		) RETURNING id`)

	err := l.db.QueryRowContext(ctx, query,
		event.Timestamp.UnixMilli(), string(event.Type), string(event.Status),
		event.Username, event.TokenPrefix, event.Package,
		event.IPAddress, event.UserAgent, event.RequestID,
		event.Method, event.Path, event.StatusCode,
		event.Message, metadata,
	).Scan(&event.ID)
	if err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}
	return nil
}

// Search returns matching events, newest first.
func (l *DBLogger) Search(ctx context.Context, filter SearchFilter) ([]*Event, error) {
	var (
		where []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Username != "" {
		where = append(where, "username = "+arg(filter.Username))
	}
	if filter.Package != "" {
		where = append(where, "package = "+arg(filter.Package))
	}
	if filter.Status != "" {
		where = append(where, "status = "+arg(string(filter.Status)))
	}
	if len(filter.Types) > 0 {
		ph := make([]string, len(filter.Types))
		for i, t := range filter.Types {
			ph[i] = arg(string(t))
		}
		where = append(where, "event_type IN ("+strings.Join(ph, ", ")+")")
	}
	if filter.Since != nil {
		where = append(where, "ts_ms >= "+arg(filter.Since.UnixMilli()))
	}
	if filter.Until != nil {
		where = append(where, "ts_ms < "+arg(filter.Until.UnixMilli()))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT id, ts_ms, event_type, status, username, token_prefix, package,
		ip_address, user_agent, request_id, method, path, status_code, message, metadata
		FROM audit_events`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY ts_ms DESC, id DESC LIMIT " + arg(limit) + " OFFSET " + arg(filter.Offset)

	rows, err := l.db.QueryContext(ctx, l.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search audit events: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		var (
			e        Event
			tsMillis int64
			typ      string
			status   string
			metadata sql.NullString
		)
		if err := rows.Scan(&e.ID, &tsMillis, &typ, &status, &e.Username, &e.TokenPrefix, &e.Package,
			&e.IPAddress, &e.UserAgent, &e.RequestID, &e.Method, &e.Path, &e.StatusCode, &e.Message, &metadata); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		e.Timestamp = time.UnixMilli(tsMillis).UTC()
		e.Type = EventType(typ)
		e.Status = EventStatus(status)
		if metadata.Valid && metadata.String != "" {
			if err := json.Unmarshal([]byte(metadata.String), &e.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metadata for event %d: %w", e.ID, err)
			}
		}
		events = append(events, &e)
	}
	return events, rows.Err()
}

// DeleteBefore removes events older than cutoff.
func (l *DBLogger) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := l.db.ExecContext(ctx, l.rebind(`DELETE FROM audit_events WHERE ts_ms < $1`), cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to prune audit events: %w", err)
	}
	return res.RowsAffected()
}

// Close is a no-op: the database belongs to the storage layer.
func (l *DBLogger) Close() error {
	return nil
}

// Retention prunes audit events older than Keep whenever the maintenance
// sweeper runs.
type Retention struct {
	Logger *DBLogger
	Keep   time.Duration
}

// DeleteExpired implements maintenance.Expirer.
func (r Retention) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	if r.Logger == nil || r.Keep <= 0 {
		return 0, nil
	}
	return r.Logger.DeleteBefore(ctx, now.Add(-r.Keep))
}

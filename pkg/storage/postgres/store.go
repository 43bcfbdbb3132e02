// Package postgres implements storage.Store on database/sql, for PostgreSQL
// and SQLite, and keeps login handoffs in Redis when configured.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	_ "github.com/lib/pq"           // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/platinummonkey/publishgate/pkg/auth"
	"github.com/platinummonkey/publishgate/pkg/storage"
)

// Dialect selects placeholder syntax.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

var placeholder = regexp.MustCompile(`\$\d+`)

var (
	_ storage.Store        = (*Store)(nil)
	_ storage.HandoffStore = (*RedisClient)(nil)
)

// Store implements storage.Store on database/sql.
type Store struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

// Open connects to the backend named by config.Type and applies the schema.
// Callers that set RedisURL wrap the result with storage.WithHandoffStore.
func Open(ctx context.Context, config storage.Config) (*Store, error) {
	var (
		db      *sql.DB
		dialect Dialect
		err     error
	)
	switch config.Type {
	case "postgres":
		dialect = DialectPostgres
		db, err = sql.Open("postgres", config.PostgresURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		db.SetMaxOpenConns(config.PostgresMaxConns)
		db.SetMaxIdleConns(config.PostgresMinConns)
		db.SetConnMaxLifetime(1 * time.Hour)
		db.SetConnMaxIdleTime(10 * time.Minute)
	case "sqlite":
		dialect = DialectSQLite
		db, err = sql.Open("sqlite3", config.SQLitePath+"?_busy_timeout=5000")
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite database: %w", err)
		}
		// SQLite serializes writers; one connection avoids SQLITE_BUSY.
		db.SetMaxOpenConns(1)
	default:
		return nil, fmt.Errorf("unsupported sql storage type %q", config.Type)
	}

	timeout := config.PostgresTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping %s: %w", dialect, err)
	}

	s := NewStore(db, dialect)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewStore wraps an open database.
func NewStore(db *sql.DB, dialect Dialect) *Store {
	return &Store{db: db, dialect: dialect, now: time.Now}
}

// Migrate creates missing tables and indexes.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

func (s *Store) rebind(query string) string {
	if s.dialect == DialectSQLite {
		return placeholder.ReplaceAllString(query, "?")
	}
	return query
}

const keyColumns = `value, username, created_ms, package, expiration_ms, release_as_2fa, monorepo`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanKey(row rowScanner) (*auth.PublishKey, error) {
	var (
		k          auth.PublishKey
		createdMs  int64
		expiration sql.NullInt64
	)
	if err := row.Scan(&k.Value, &k.Username, &createdMs, &k.Package, &expiration, &k.ReleaseAs2FA, &k.Monorepo); err != nil {
		return nil, err
	}
	k.Created = time.UnixMilli(createdMs)
	if expiration.Valid {
		exp := time.UnixMilli(expiration.Int64)
		k.Expiration = &exp
	}
	return &k, nil
}

func (s *Store) GetPublishKey(ctx context.Context, value string) (*auth.PublishKey, error) {
	query := s.rebind(`SELECT ` + keyColumns + ` FROM publish_keys WHERE value = $1`)
	k, err := scanKey(s.db.QueryRowContext(ctx, query, value))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get publish key: %w", err)
	}
	return k, nil
}

func (s *Store) SavePublishKey(ctx context.Context, key *auth.PublishKey) error {
	var expiration sql.NullInt64
	if key.Expiration != nil {
		expiration = sql.NullInt64{Int64: key.Expiration.UnixMilli(), Valid: true}
	}
	query := s.rebind(`
		INSERT INTO publish_keys (` + keyColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`)
	_, err := s.db.ExecContext(ctx, query,
		key.Value,
		key.Username,
		key.CreatedMillis(),
		key.Package,
		expiration,
		key.ReleaseAs2FA,
		key.Monorepo,
	)
	if err != nil {
		return fmt.Errorf("failed to save publish key: %w", err)
	}
	return nil
}

func (s *Store) DeletePublishKey(ctx context.Context, value string) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM publish_keys WHERE value = $1`), value)
	if err != nil {
		return fmt.Errorf("failed to delete publish key: %w", err)
	}
	return expectAffected(res)
}

func (s *Store) GetPublishKeysByUser(ctx context.Context, username string) ([]*auth.PublishKey, error) {
	query := s.rebind(`SELECT ` + keyColumns + ` FROM publish_keys WHERE username = $1 ORDER BY created_ms, value`)
	return s.queryKeys(ctx, query, username)
}

func (s *Store) GetObfuscatedPublishKey(ctx context.Context, username string, created time.Time, prefix string) (*auth.PublishKey, error) {
	if len(prefix) < auth.PrefixLength {
		return nil, nil
	}
	query := s.rebind(`SELECT ` + keyColumns + ` FROM publish_keys WHERE username = $1 AND created_ms = $2`)
	keys, err := s.queryKeys(ctx, query, username, created.UnixMilli())
	if err != nil {
		return nil, err
	}
	for _, k := range keys {
		if strings.HasPrefix(k.Value, prefix) {
			return k, nil
		}
	}
	return nil, nil
}

func (s *Store) queryKeys(ctx context.Context, query string, args ...interface{}) ([]*auth.PublishKey, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query publish keys: %w", err)
	}
	defer rows.Close()

	var keys []*auth.PublishKey
	for rows.Next() {
		k, err := scanKey(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan publish key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (s *Store) GetUser(ctx context.Context, name string) (*auth.User, error) {
	var u auth.User
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT name, token FROM users WHERE name = $1`), name).
		Scan(&u.Name, &u.Token)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}

func (s *Store) CreateUser(ctx context.Context, name, token string) error {
	query := s.rebind(`
		INSERT INTO users (name, token) VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET token = excluded.token
	`)
	if _, err := s.db.ExecContext(ctx, query, name, token); err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	return nil
}

func (s *Store) SaveHandoffKey(ctx context.Context, value string) (string, error) {
	id := auth.GenerateToken()
	query := s.rebind(`INSERT INTO handoff_keys (id, value, complete, created_ms) VALUES ($1, $2, $3, $4)`)
	if _, err := s.db.ExecContext(ctx, query, id, value, false, s.now().UnixMilli()); err != nil {
		return "", fmt.Errorf("failed to save handoff key: %w", err)
	}
	return id, nil
}

func (s *Store) GetHandoffKey(ctx context.Context, id string) (*auth.HandoffKey, error) {
	var (
		h         auth.HandoffKey
		createdMs int64
	)
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT id, value, complete, created_ms FROM handoff_keys WHERE id = $1`), id).
		Scan(&h.ID, &h.Value, &h.Complete, &createdMs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get handoff key: %w", err)
	}
	h.Created = time.UnixMilli(createdMs)
	if h.Stale(s.now()) {
		return nil, nil
	}
	return &h, nil
}

func (s *Store) CompleteHandoffKey(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`UPDATE handoff_keys SET complete = $1 WHERE id = $2`), true, id)
	if err != nil {
		return fmt.Errorf("failed to complete handoff key: %w", err)
	}
	return expectAffected(res)
}

func (s *Store) DeleteStaleHandoffKeys(ctx context.Context, now time.Time) (int64, error) {
	cutoff := now.Add(-auth.HandoffValidity).UnixMilli()
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM handoff_keys WHERE created_ms < $1`), cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale handoff keys: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		s.rebind(`DELETE FROM publish_keys WHERE expiration_ms IS NOT NULL AND expiration_ms <= $1`),
		now.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired publish keys: %w", err)
	}
	keys, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	handoffs, err := s.DeleteStaleHandoffKeys(ctx, now)
	return keys + handoffs, err
}

// HealthCheck pings the database.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// DB exposes the connection pool for readiness checks.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Close() error {
	return s.db.Close()
}

func expectAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

package storage

import (
	"context"
	"errors"
	"time"

	"github.com/platinummonkey/publishgate/pkg/auth"
)

// ErrNotFound is returned by operations that modify a record that does not exist.
// Lookups report a missing record as nil, nil instead.
var ErrNotFound = errors.New("not found")

// KeyStore holds publish keys.
type KeyStore interface {
	GetPublishKey(ctx context.Context, value string) (*auth.PublishKey, error)
	SavePublishKey(ctx context.Context, key *auth.PublishKey) error
	DeletePublishKey(ctx context.Context, value string) error
	// GetPublishKeysByUser returns the user's keys ordered by creation time.
	GetPublishKeysByUser(ctx context.Context, username string) ([]*auth.PublishKey, error)
	// GetObfuscatedPublishKey finds the key a user identified by its creation
	// time and visible prefix. The prefix must be at least
	// auth.PrefixLength characters, otherwise nil is returned.
	GetObfuscatedPublishKey(ctx context.Context, username string, created time.Time, prefix string) (*auth.PublishKey, error)
}

// UserStore links GitHub logins to their OAuth tokens.
type UserStore interface {
	GetUser(ctx context.Context, name string) (*auth.User, error)
	// CreateUser inserts or replaces the token stored for name.
	CreateUser(ctx context.Context, name, token string) error
}

// HandoffStore tracks pending "npm login" sessions.
type HandoffStore interface {
	// SaveHandoffKey stores value under a new handoff id and returns the id.
	SaveHandoffKey(ctx context.Context, value string) (string, error)
	// GetHandoffKey returns nil for unknown ids and for handoffs older than
	// auth.HandoffValidity.
	GetHandoffKey(ctx context.Context, id string) (*auth.HandoffKey, error)
	CompleteHandoffKey(ctx context.Context, id string) error
	// DeleteStaleHandoffKeys removes handoffs that can no longer complete.
	DeleteStaleHandoffKeys(ctx context.Context, now time.Time) (int64, error)
}

// HealthChecker reports backend availability.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Store is the full persistence surface used by the service.
type Store interface {
	KeyStore
	UserStore
	HandoffStore
	HealthChecker

	// DeleteExpired removes expired publish keys and stale handoffs.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
	Close() error
}

// Config for storage backend
type Config struct {
	Type string `yaml:"type"` // "memory", "postgres", "sqlite"

	// PostgreSQL config
	PostgresURL      string        `yaml:"postgres_url"`
	PostgresMaxConns int           `yaml:"postgres_max_conns"`
	PostgresMinConns int           `yaml:"postgres_min_conns"`
	PostgresTimeout  time.Duration `yaml:"postgres_timeout"`

	// SQLite config
	SQLitePath string `yaml:"sqlite_path"`

	// Redis config. When RedisURL is set, handoff keys live in Redis.
	RedisURL        string `yaml:"redis_url"`
	RedisPassword   string `yaml:"redis_password"`
	RedisDB         int    `yaml:"redis_db"`
	RedisMaxRetries int    `yaml:"redis_max_retries"`
	RedisPoolSize   int    `yaml:"redis_pool_size"`
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() Config {
	return Config{
		Type:             "memory",
		SQLitePath:       "publishgate.db",
		PostgresMaxConns: 20,
		PostgresMinConns: 2,
		PostgresTimeout:  10 * time.Second,
		RedisDB:          0,
		RedisMaxRetries:  3,
		RedisPoolSize:    10,
	}
}

type splitStore struct {
	Store
	handoffs HandoffStore
}

// WithHandoffStore returns s with its handoff operations served by h.
func WithHandoffStore(s Store, h HandoffStore) Store {
	return &splitStore{Store: s, handoffs: h}
}

func (s *splitStore) SaveHandoffKey(ctx context.Context, value string) (string, error) {
	return s.handoffs.SaveHandoffKey(ctx, value)
}

func (s *splitStore) GetHandoffKey(ctx context.Context, id string) (*auth.HandoffKey, error) {
	return s.handoffs.GetHandoffKey(ctx, id)
}

func (s *splitStore) CompleteHandoffKey(ctx context.Context, id string) error {
	return s.handoffs.CompleteHandoffKey(ctx, id)
}

func (s *splitStore) DeleteStaleHandoffKeys(ctx context.Context, now time.Time) (int64, error) {
	return s.handoffs.DeleteStaleHandoffKeys(ctx, now)
}

func (s *splitStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	n, err := s.Store.DeleteExpired(ctx, now)
	if err != nil {
		return n, err
	}
	m, err := s.handoffs.DeleteStaleHandoffKeys(ctx, now)
	return n + m, err
}

func (s *splitStore) HealthCheck(ctx context.Context) error {
	if err := s.Store.HealthCheck(ctx); err != nil {
		return err
	}
	if hc, ok := s.handoffs.(HealthChecker); ok {
		return hc.HealthCheck(ctx)
	}
	return nil
}

func (s *splitStore) Close() error {
	err := s.Store.Close()
	if c, ok := s.handoffs.(interface{ Close() error }); ok {
		if cerr := c.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// Package storage defines where publishgate keeps publish keys, linked
// GitHub identities and pending login handoffs.
//
// # Backends
//
// MemoryStore keeps records in process memory and is the default for local
// development. The postgres subpackage provides a SQL store that runs on
// PostgreSQL or SQLite, and a Redis handoff store:
//
//	cfg := storage.DefaultConfig()
//	cfg.Type = "postgres"
//	cfg.PostgresURL = "postgres://localhost/publishgate?sslmode=disable"
//	store, err := postgres.Open(ctx, cfg)
//
// When Config.RedisURL is set, Open serves handoffs from Redis through
// WithHandoffStore, letting key expiry enforce the handoff window.
//
// # Conventions
//
// Lookups return nil, nil for a missing record. Updates and deletes of a
// missing record return ErrNotFound. Publish keys are identified in listings
// by their creation time in unix milliseconds, so stores keep that
// precision.
//
// # Expiry
//
// Expired publish keys and stale handoffs are unusable as soon as they
// expire; DeleteExpired reclaims them and is run periodically by the
// maintenance sweeper.
package storage

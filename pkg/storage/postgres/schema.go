package postgres

// Timestamps are stored as unix milliseconds so both dialects round-trip the
// identifiers users see in token listings.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS publish_keys (
		value          TEXT PRIMARY KEY,
		username       TEXT NOT NULL,
		created_ms     BIGINT NOT NULL,
		package        TEXT NOT NULL DEFAULT '',
		expiration_ms  BIGINT,
		release_as_2fa BOOLEAN NOT NULL DEFAULT FALSE,
		monorepo       BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE INDEX IF NOT EXISTS publish_keys_username_created ON publish_keys (username, created_ms)`,
	`CREATE TABLE IF NOT EXISTS users (
		name  TEXT PRIMARY KEY,
		token TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS handoff_keys (
		id         TEXT PRIMARY KEY,
		value      TEXT NOT NULL,
		complete   BOOLEAN NOT NULL DEFAULT FALSE,
		created_ms BIGINT NOT NULL
	)`,
}

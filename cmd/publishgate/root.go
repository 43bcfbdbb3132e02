package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/platinummonkey/publishgate/pkg/audit"
	"github.com/platinummonkey/publishgate/pkg/config"
	"github.com/platinummonkey/publishgate/pkg/observability"
	"github.com/platinummonkey/publishgate/pkg/storage"
	"github.com/platinummonkey/publishgate/pkg/storage/postgres"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

type rootOptions struct {
	logLevel string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:               "publishgate",
		Short:             "npm registry proxy that checks GitHub permissions before every publish",
		Version:           version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		DisableAutoGenTag: true,
	}
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override PUBLISHGATE_LOG_LEVEL")

	cmd.AddCommand(
		newServeCommand(opts),
		newTokensCommand(opts),
		newSweepCommand(opts),
		newAuditCommand(opts),
	)
	return cmd
}

// load reads the configuration and builds the logger every command uses.
func (o *rootOptions) load(cmd *cobra.Command) (*config.Config, *logrus.Logger, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, err
	}
	level := cfg.Observability.LogLevel
	if o.logLevel != "" {
		level = o.logLevel
	}
	logger, err := observability.NewLogger(level, cfg.Observability.LogFormat, cmd.ErrOrStderr())
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// backends is the opened storage plus the raw handles health checks need.
type backends struct {
	store storage.Store
	db    *sql.DB
	redis *redis.Client
}

func openStorage(ctx context.Context, cfg storage.Config, logger logrus.FieldLogger) (*backends, error) {
	var b backends
	switch cfg.Type {
	case "memory":
		logger.Warn("using in-memory storage; publish keys are lost on restart")
		b.store = storage.NewMemoryStore()
	default:
		sqlStore, err := postgres.Open(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s storage: %w", cfg.Type, err)
		}
		b.store = sqlStore
		b.db = sqlStore.DB()
	}

	if cfg.RedisURL != "" {
		rc, err := postgres.NewRedisClient(cfg)
		if err != nil {
			b.store.Close()
			return nil, err
		}
		b.store = storage.WithHandoffStore(b.store, rc)
		b.redis = rc.GetClient()
		logger.Info("login handoffs are stored in redis")
	}
	return &b, nil
}

// openAudit builds the audit trail: always the log, plus the database when
// storage is SQL and cfg.Audit.Database is set. The DBLogger is nil
// otherwise.
func openAudit(ctx context.Context, cfg *config.Config, db *sql.DB, logger logrus.FieldLogger) (audit.Logger, *audit.DBLogger, error) {
	logLogger := audit.NewLogrusLogger(logger.WithField("component", "audit"))
	if db == nil || !cfg.Audit.Database {
		return logLogger, nil, nil
	}
	dbLogger, err := audit.NewDBLogger(ctx, db, cfg.Storage.Type)
	if err != nil {
		return nil, nil, err
	}
	return audit.NewMultiLogger(logLogger, dbLogger), dbLogger, nil
}

// openPersistentStorage is openStorage for commands that are pointless
// against an in-memory store.
func openPersistentStorage(ctx context.Context, cfg storage.Config, logger logrus.FieldLogger) (*backends, error) {
	if cfg.Type == "memory" {
		return nil, fmt.Errorf("this command needs postgres or sqlite storage, PUBLISHGATE_STORAGE_TYPE is %q", cfg.Type)
	}
	return openStorage(ctx, cfg, logger)
}

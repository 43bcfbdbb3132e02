//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/platinummonkey/publishgate/pkg/auth"
	"github.com/platinummonkey/publishgate/pkg/storage"
)

func TestStore_PostgresIntegration(t *testing.T) {
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("publishgate"),
		tcpostgres.WithUsername("publishgate"),
		tcpostgres.WithPassword("publishgate"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	cfg := storage.DefaultConfig()
	cfg.Type = "postgres"
	cfg.PostgresURL = dsn

	s, err := Open(ctx, cfg)
	require.NoError(t, err)
	defer s.Close()

	now := time.Now().Truncate(time.Millisecond)
	key := &auth.PublishKey{Value: auth.GenerateToken(), Username: "octocat", Created: now, Package: "left-pad"}
	require.NoError(t, s.SavePublishKey(ctx, key))

	got, err := s.GetObfuscatedPublishKey(ctx, "octocat", now, key.Prefix())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, key.Value, got.Value)

	require.NoError(t, s.CreateUser(ctx, "octocat", "one"))
	require.NoError(t, s.CreateUser(ctx, "octocat", "two"))
	u, err := s.GetUser(ctx, "octocat")
	require.NoError(t, err)
	assert.Equal(t, "two", u.Token)

	id, err := s.SaveHandoffKey(ctx, "pending")
	require.NoError(t, err)
	require.NoError(t, s.CompleteHandoffKey(ctx, id))
	h, err := s.GetHandoffKey(ctx, id)
	require.NoError(t, err)
	assert.True(t, h.Complete)
}

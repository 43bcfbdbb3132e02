package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/platinummonkey/publishgate/pkg/auth"
	"github.com/platinummonkey/publishgate/pkg/storage"
)

// setupRedisClientTest creates a miniredis instance and returns the client and cleanup function
func setupRedisClientTest(t *testing.T) (*RedisClient, *miniredis.Miniredis, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}

	config := storage.Config{
		RedisURL:        "redis://" + mr.Addr(),
		RedisMaxRetries: 3,
		RedisPoolSize:   10,
	}

	client, err := NewRedisClient(config)
	if err != nil {
		mr.Close()
		t.Fatalf("Failed to create Redis client: %v", err)
	}

	cleanup := func() {
		client.Close()
		mr.Close()
	}

	return client, mr, cleanup
}

func TestNewRedisClient_InvalidURL(t *testing.T) {
	_, err := NewRedisClient(storage.Config{RedisURL: "invalid://url"})
	if err == nil {
		t.Fatal("Expected error for invalid Redis URL")
	}
}

func TestNewRedisClient_ConnectionFailure(t *testing.T) {
	_, err := NewRedisClient(storage.Config{RedisURL: "redis://localhost:9999"})
	if err == nil {
		t.Fatal("Expected connection error")
	}
}

func TestRedisClient_HandoffLifecycle(t *testing.T) {
	client, mr, cleanup := setupRedisClientTest(t)
	defer cleanup()
	ctx := context.Background()

	id, err := client.SaveHandoffKey(ctx, "pending-token")
	if err != nil {
		t.Fatalf("SaveHandoffKey failed: %v", err)
	}

	ttl := mr.TTL(handoffKeyPrefix + id)
	if ttl != auth.HandoffValidity {
		t.Errorf("Expected TTL %v, got %v", auth.HandoffValidity, ttl)
	}

	h, err := client.GetHandoffKey(ctx, id)
	if err != nil {
		t.Fatalf("GetHandoffKey failed: %v", err)
	}
	if h == nil || h.Value != "pending-token" || h.Complete {
		t.Fatalf("Unexpected handoff: %+v", h)
	}

	mr.FastForward(time.Minute)
	if err := client.CompleteHandoffKey(ctx, id); err != nil {
		t.Fatalf("CompleteHandoffKey failed: %v", err)
	}

	h, err = client.GetHandoffKey(ctx, id)
	if err != nil {
		t.Fatalf("GetHandoffKey failed: %v", err)
	}
	if h == nil || !h.Complete {
		t.Fatalf("Expected completed handoff, got %+v", h)
	}

	if ttl := mr.TTL(handoffKeyPrefix + id); ttl != auth.HandoffValidity-time.Minute {
		t.Errorf("Completing should keep the original expiry, TTL is %v", ttl)
	}

	mr.FastForward(auth.HandoffValidity)
	h, err = client.GetHandoffKey(ctx, id)
	if err != nil {
		t.Fatalf("GetHandoffKey failed: %v", err)
	}
	if h != nil {
		t.Fatalf("Expected expired handoff to be gone, got %+v", h)
	}
}

func TestRedisClient_CompleteUnknown(t *testing.T) {
	client, _, cleanup := setupRedisClientTest(t)
	defer cleanup()

	err := client.CompleteHandoffKey(context.Background(), "missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
}

func TestRedisClient_StaleByClock(t *testing.T) {
	client, _, cleanup := setupRedisClientTest(t)
	defer cleanup()
	ctx := context.Background()

	start := time.Now()
	client.now = func() time.Time { return start }
	id, err := client.SaveHandoffKey(ctx, "v")
	if err != nil {
		t.Fatalf("SaveHandoffKey failed: %v", err)
	}

	client.now = func() time.Time { return start.Add(auth.HandoffValidity + time.Second) }
	h, err := client.GetHandoffKey(ctx, id)
	if err != nil {
		t.Fatalf("GetHandoffKey failed: %v", err)
	}
	if h != nil {
		t.Fatal("Expected stale handoff to be hidden")
	}
}

func TestRedisClient_CorruptData(t *testing.T) {
	client, mr, cleanup := setupRedisClientTest(t)
	defer cleanup()

	if err := mr.Set(handoffKeyPrefix+"bad", "not json"); err != nil {
		t.Fatalf("Failed to seed: %v", err)
	}

	_, err := client.GetHandoffKey(context.Background(), "bad")
	if err == nil {
		t.Fatal("Expected unmarshal error")
	}
	if mr.Exists(handoffKeyPrefix + "bad") {
		t.Error("Expected corrupt key to be deleted")
	}
}

func TestRedisClient_HealthCheck(t *testing.T) {
	client, mr, cleanup := setupRedisClientTest(t)
	defer cleanup()

	if err := client.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck failed: %v", err)
	}
	if client.GetClient() == nil {
		t.Fatal("Expected GetClient to return non-nil client")
	}

	mr.SetError("LOADING")
	defer mr.SetError("")
	if err := client.HealthCheck(context.Background()); err == nil {
		t.Fatal("Expected HealthCheck to fail while the server reports errors")
	}
}

func TestRedisClient_DeleteStaleIsNoop(t *testing.T) {
	client, _, cleanup := setupRedisClientTest(t)
	defer cleanup()

	n, err := client.DeleteStaleHandoffKeys(context.Background(), time.Now())
	if err != nil || n != 0 {
		t.Fatalf("Expected 0, nil; got %d, %v", n, err)
	}
}

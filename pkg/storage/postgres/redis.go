package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/platinummonkey/publishgate/pkg/auth"
	"github.com/platinummonkey/publishgate/pkg/storage"
)

const handoffKeyPrefix = "publishgate:handoff:"

// RedisClient stores login handoffs in Redis. Keys expire with the handoff
// window, so stale handoffs never need sweeping.
type RedisClient struct {
	client *redis.Client
	config storage.Config
	now    func() time.Time
}

// NewRedisClient creates a new Redis client
func NewRedisClient(config storage.Config) (*RedisClient, error) {
	// Parse Redis URL or use default options
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	// Override with config values if provided
	if config.RedisPassword != "" {
		opts.Password = config.RedisPassword
	}
	if config.RedisDB > 0 {
		opts.DB = config.RedisDB
	}
	if config.RedisMaxRetries > 0 {
		opts.MaxRetries = config.RedisMaxRetries
	}
	if config.RedisPoolSize > 0 {
		opts.PoolSize = config.RedisPoolSize
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.PoolTimeout = 4 * time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisClient{
		client: client,
		config: config,
		now:    time.Now,
	}, nil
}

// SaveHandoffKey stores value under a new id that expires after the handoff window.
func (c *RedisClient) SaveHandoffKey(ctx context.Context, value string) (string, error) {
	h := auth.HandoffKey{
		ID:      auth.GenerateToken(),
		Value:   value,
		Created: c.now(),
	}
	data, err := json.Marshal(h)
	if err != nil {
		return "", fmt.Errorf("failed to marshal handoff key: %w", err)
	}
	if err := c.client.Set(ctx, handoffKeyPrefix+h.ID, data, auth.HandoffValidity).Err(); err != nil {
		return "", fmt.Errorf("redis set failed: %w", err)
	}
	return h.ID, nil
}

// GetHandoffKey returns the handoff, or nil when it expired or never existed.
func (c *RedisClient) GetHandoffKey(ctx context.Context, id string) (*auth.HandoffKey, error) {
	key := handoffKeyPrefix + id

	data, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var h auth.HandoffKey
	if err := json.Unmarshal([]byte(data), &h); err != nil {
		// If unmarshal fails, delete corrupt data
		c.client.Del(ctx, key)
		return nil, fmt.Errorf("failed to unmarshal handoff key: %w", err)
	}
	if h.Stale(c.now()) {
		return nil, nil
	}
	return &h, nil
}

// CompleteHandoffKey marks the handoff complete without extending its lifetime.
func (c *RedisClient) CompleteHandoffKey(ctx context.Context, id string) error {
	h, err := c.GetHandoffKey(ctx, id)
	if err != nil {
		return err
	}
	if h == nil {
		return storage.ErrNotFound
	}
	h.Complete = true
	data, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("failed to marshal handoff key: %w", err)
	}
	return c.client.Set(ctx, handoffKeyPrefix+id, data, redis.KeepTTL).Err()
}

// DeleteStaleHandoffKeys is a no-op: Redis expires handoffs itself.
func (c *RedisClient) DeleteStaleHandoffKeys(context.Context, time.Time) (int64, error) {
	return 0, nil
}

// HealthCheck pings Redis.
func (c *RedisClient) HealthCheck(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// GetClient returns the underlying Redis client for health checks
func (c *RedisClient) GetClient() *redis.Client {
	return c.client
}

// Close closes the Redis connection
func (c *RedisClient) Close() error {
	return c.client.Close()
}

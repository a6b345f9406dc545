// Package cache stores computed reports so repeated dashboard loads do not
// rescan the store.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Report keys. Invalidate removes all of them.
const (
	KeyReport = "analytics"
	KeyStats  = "stats"
)

var reportKeys = []string{KeyReport, KeyStats}

// Redis keeps JSON-encoded reports under a common prefix with a fixed TTL.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedis connects to redisURL and verifies the connection.
func NewRedis(ctx context.Context, redisURL string, ttl time.Duration) (*Redis, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return &Redis{client: client, prefix: "kobo:report:", ttl: ttl}, nil
}

func (c *Redis) key(k string) string { return c.prefix + k }

// Get decodes the cached value into dst. It reports false on a miss.
func (c *Redis) Get(ctx context.Context, key string, dst any) (bool, error) {
	raw, err := c.client.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cache get %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("cache decode %s: %w", key, err)
	}
	return true, nil
}

// Set stores v for the configured TTL.
func (c *Redis) Set(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("cache encode %s: %w", key, err)
	}
	if err := c.client.Set(ctx, c.key(key), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	return nil
}

// Invalidate drops every cached report.
func (c *Redis) Invalidate(ctx context.Context) error {
	keys := make([]string, len(reportKeys))
	for i, k := range reportKeys {
		keys[i] = c.key(k)
	}
	return c.client.Del(ctx, keys...).Err()
}

// Ping checks the connection.
func (c *Redis) Ping(ctx context.Context) error { return c.client.Ping(ctx).Err() }

// Close releases the client.
func (c *Redis) Close() error { return c.client.Close() }

// Nop is used when no Redis is configured: every Get misses.
type Nop struct{}

func (Nop) Get(context.Context, string, any) (bool, error) { return false, nil }
func (Nop) Set(context.Context, string, any) error         { return nil }
func (Nop) Invalidate(context.Context) error               { return nil }

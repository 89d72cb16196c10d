// Package cache provides the Redis access layer: dashboard snapshots and
// token-bucket rate limits. Every key lives under a deployment namespace so
// several pulsetrack environments can share one Redis.
package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultNamespace prefixes every key written by this package.
const DefaultNamespace = "pulsetrack"

// Cache wraps a Redis client.
type Cache struct {
	client    *redis.Client
	namespace string
}

// New connects to redisURL and verifies the connection.
// The dashboard cache and limiters issue one short command per request,
// so a small pool is enough.
func New(ctx context.Context, redisURL string) (*Cache, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opt.PoolSize = 10
	opt.MinIdleConns = 2
	opt.PoolTimeout = 4 * time.Second
	opt.ConnMaxIdleTime = 5 * time.Minute

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewFromClient(client), nil
}

// NewFromClient wraps an existing client.
func NewFromClient(client *redis.Client) *Cache {
	return &Cache{client: client, namespace: DefaultNamespace}
}

// WithNamespace returns a Cache sharing the client but writing under ns.
func (c *Cache) WithNamespace(ns string) *Cache {
	return &Cache{client: c.client, namespace: strings.Trim(ns, ":")}
}

// key joins parts under the namespace: "pulsetrack:dashboard:shop.example".
func (c *Cache) key(parts ...string) string {
	return c.namespace + ":" + strings.Join(parts, ":")
}

// Ping checks Redis connectivity.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis client.
func (c *Cache) Close() error {
	return c.client.Close()
}

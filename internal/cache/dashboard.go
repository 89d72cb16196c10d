package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pulsetrack/pulsetrack/internal/model"
)

// ErrCacheMiss is returned when a key is absent or unreadable.
var ErrCacheMiss = errors.New("cache miss")

func (c *Cache) dashboardKey(domainName string) string {
	return c.key("dashboard", domainName)
}

// GetDashboard returns the cached overview of a domain.
// A corrupted entry is deleted and reported as a miss.
func (c *Cache) GetDashboard(ctx context.Context, domainName string) (*model.MainDashboard, error) {
	key := c.dashboardKey(domainName)

	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var d model.MainDashboard
	if err := json.Unmarshal(data, &d); err != nil {
		c.client.Del(ctx, key)
		return nil, ErrCacheMiss
	}
	return &d, nil
}

// SetDashboard stores the overview of d.DomainName for ttl.
func (c *Cache) SetDashboard(ctx context.Context, d *model.MainDashboard, ttl time.Duration) error {
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal dashboard: %w", err)
	}
	if err := c.client.Set(ctx, c.dashboardKey(d.DomainName), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache dashboard: %w", err)
	}
	return nil
}


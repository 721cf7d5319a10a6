package cache

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache wraps a Redis client used to memoize commute estimates so
// repeated matches against the same alert skip the routing service.
type Cache struct {
	client *redis.Client
}

func NewCache(addr string) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 5,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	slog.Info("Connected to Redis", "addr", addr)
	return &Cache{client: client}, nil
}

// GetMinutes retrieves a cached estimate. The second return value
// reports whether the key was present.
func (c *Cache) GetMinutes(ctx context.Context, key string) (int, bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to get key %s: %w", key, err)
	}

	minutes, err := strconv.Atoi(val)
	if err != nil {
		// Corrupt entry, drop it and treat as a miss
		c.client.Del(ctx, key)
		return 0, false, nil
	}
	return minutes, true, nil
}

// SetMinutes stores an estimate with a TTL.
func (c *Cache) SetMinutes(ctx context.Context, key string, minutes int, ttl time.Duration) error {
	if err := c.client.Set(ctx, key, strconv.Itoa(minutes), ttl).Err(); err != nil {
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}
	return nil
}

func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *Cache) Close() error {
	return c.client.Close()
}

// CommuteKey builds a stable cache key for an origin/destination pair.
// Coordinates are rounded so nearby listings share entries.
func CommuteKey(fromLat, fromLon, toLat, toLon float64) string {
	pair := fmt.Sprintf("%.4f,%.4f->%.4f,%.4f", fromLat, fromLon, toLat, toLon)
	hash := sha256.Sum256([]byte(pair))
	return fmt.Sprintf("commute:%x", hash[:8])
}

package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"newswatch/internal/config"
)

const hashKeyPrefix = "article:hash:"

// RedisCache implements Cache on a Redis connection.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache connects to Redis and verifies connectivity.
func NewRedisCache(ctx context.Context, cfg config.Redis) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", cfg.Addr, err)
	}
	return &RedisCache{client: client}, nil
}

// GetMarkers resolves markers with a single MGET.
func (c *RedisCache) GetMarkers(ctx context.Context, hashes []string) (map[string]string, error) {
	keys := make([]string, len(hashes))
	for i, hash := range hashes {
		keys[i] = hashKeyPrefix + hash
	}
	values, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("mget hash markers: %w", err)
	}

	markers := make(map[string]string, len(hashes))
	for i, value := range values {
		if value == nil {
			continue
		}
		if s, ok := value.(string); ok {
			markers[hashes[i]] = s
		}
	}
	return markers, nil
}

// SetMarkers writes markers in one pipeline round trip.
func (c *RedisCache) SetMarkers(ctx context.Context, hashes []string, marker string, ttl time.Duration) error {
	pipe := c.client.Pipeline()
	for _, hash := range hashes {
		pipe.Set(ctx, hashKeyPrefix+hash, marker, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("set hash markers: %w", err)
	}
	return nil
}

// Close releases the underlying connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

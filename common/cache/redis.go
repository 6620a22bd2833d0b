package cache

import (
	"context"
	"errors"
	"time"

	redisWrapper "github.com/lyzr/jukebox/common/redis"
)

// RedisCache shares cached values between service instances
type RedisCache struct {
	client *redisWrapper.Client
	prefix string
}

// NewRedisCache creates a cache whose keys are namespaced by prefix
func NewRedisCache(client *redisWrapper.Client, prefix string) *RedisCache {
	return &RedisCache{client: client, prefix: prefix}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.client.Get(ctx, c.prefix+key)
	if errors.Is(err, redisWrapper.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return []byte(val), true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.SetWithExpiry(ctx, c.prefix+key, string(value), ttl)
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.client.Delete(ctx, c.prefix+key)
}

// Close is a no-op; the Redis client is owned by bootstrap
func (c *RedisCache) Close() error {
	return nil
}

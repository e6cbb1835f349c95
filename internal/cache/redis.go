package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/inkwell-cms/inkwell/pkg/config"
	"github.com/inkwell-cms/inkwell/pkg/logging"
)

var (
	// ErrCacheDisabled is returned when cache operations are attempted but cache is disabled
	ErrCacheDisabled = errors.New("cache is disabled")

	// ErrCacheMiss is returned when a key is absent or expired
	ErrCacheMiss = errors.New("cache miss")
)

// Cache wraps the Redis client. Every operation runs under a bounded timeout
// so a degraded Redis backend cannot stall request handling.
type Cache struct {
	client    *redis.Client
	opTimeout time.Duration
}

// New creates a new Redis cache client
func New(cfg *config.RedisConfig, opTimeout time.Duration) (*Cache, error) {
	if !cfg.Enabled {
		logging.GetLogger().Info("Redis cache disabled")
		return nil, nil
	}

	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logging.GetLogger().Info("Redis connection established")

	return &Cache{
		client:    client,
		opTimeout: opTimeout,
	}, nil
}

func (c *Cache) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.opTimeout)
}

// Get retrieves a value from cache, returning ErrCacheMiss when absent
func (c *Cache) Get(ctx context.Context, key string) (string, error) {
	if c == nil || c.client == nil {
		return "", ErrCacheDisabled
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	val, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrCacheMiss
	}
	return val, err
}

// SetWithExpiry sets a value in cache with TTL
func (c *Cache) SetWithExpiry(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if c == nil || c.client == nil {
		return ErrCacheDisabled
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	return c.client.Set(ctx, key, value, ttl).Err()
}

// SetIfAbsentWithExpiry atomically sets a value only when the key does not
// exist, returning whether the value was set. This is the conditional-set
// primitive backing the like marker.
func (c *Cache) SetIfAbsentWithExpiry(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error) {
	if c == nil || c.client == nil {
		return false, ErrCacheDisabled
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	return c.client.SetNX(ctx, key, value, ttl).Result()
}

// Delete removes keys from cache
func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if c == nil || c.client == nil {
		return ErrCacheDisabled
	}
	if len(keys) == 0 {
		return nil
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	return c.client.Del(ctx, keys...).Err()
}

// Increment atomically increments an integer counter, creating it at 1
func (c *Cache) Increment(ctx context.Context, key string) (int64, error) {
	if c == nil || c.client == nil {
		return 0, ErrCacheDisabled
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	return c.client.Incr(ctx, key).Result()
}

// Decrement atomically decrements an integer counter
func (c *Cache) Decrement(ctx context.Context, key string) (int64, error) {
	if c == nil || c.client == nil {
		return 0, ErrCacheDisabled
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	return c.client.Decr(ctx, key).Result()
}

// KeysMatching enumerates keys matching a glob pattern
func (c *Cache) KeysMatching(ctx context.Context, pattern string) ([]string, error) {
	if c == nil || c.client == nil {
		return nil, ErrCacheDisabled
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	return c.client.Keys(ctx, pattern).Result()
}

// Exists checks if a key exists
func (c *Cache) Exists(ctx context.Context, key string) (bool, error) {
	if c == nil || c.client == nil {
		return false, ErrCacheDisabled
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	count, err := c.client.Exists(ctx, key).Result()
	return count > 0, err
}

// Close closes the Redis connection
func (c *Cache) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// Health checks Redis health
func (c *Cache) Health(ctx context.Context) error {
	if c == nil || c.client == nil {
		return ErrCacheDisabled
	}
	return c.client.Ping(ctx).Err()
}

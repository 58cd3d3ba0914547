package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/propsight/propsight/pkg/storage"
)

// defaultStatsTTL applies when no TTL is configured for a cache kind.
const defaultStatsTTL = 5 * time.Minute

// StatsCache is a two-level stats cache: an in-process expirable LRU in
// front of Redis. Both levels are best-effort; the engine treats every
// failure as a miss.
type StatsCache struct {
	client *redis.Client
	l1     *lru.LRU[string, []byte]
	ttl    map[string]time.Duration
}

// NewStatsCache connects to Redis and builds the L1 front.
func NewStatsCache(config storage.Config) (*StatsCache, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	if config.RedisPassword != "" {
		opts.Password = config.RedisPassword
	}
	if config.RedisDB >= 0 {
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

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return newStatsCache(client, config), nil
}

func newStatsCache(client *redis.Client, config storage.Config) *StatsCache {
	size := config.L1CacheSize
	if size <= 0 {
		size = 512
	}

	ttl := config.CacheTTL
	if ttl == nil {
		ttl = storage.DefaultConfig().CacheTTL
	}

	return &StatsCache{
		client: client,
		l1:     lru.NewLRU[string, []byte](size, nil, ttl["stats"]),
		ttl:    ttl,
	}
}

// Get returns the cached value for key. The L1 front is consulted
// before Redis; Redis hits are promoted back into L1.
func (c *StatsCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if val, ok := c.l1.Get(key); ok {
		return val, true, nil
	}

	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	} else if err != nil {
		return nil, false, fmt.Errorf("redis get failed: %w", err)
	}

	c.l1.Add(key, data)
	return data, true, nil
}

// Set stores a value under key with the TTL for its kind. The kind is
// the key's first colon-delimited segment.
func (c *StatsCache) Set(ctx context.Context, key string, value []byte) error {
	c.l1.Add(key, value)

	ttl := c.ttl[kindOf(key)]
	if ttl <= 0 {
		ttl = defaultStatsTTL
	}
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// Invalidate removes keys from both levels.
func (c *StatsCache) Invalidate(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	for _, key := range keys {
		c.l1.Remove(key)
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis del failed: %w", err)
	}
	return nil
}

// Ping checks Redis connectivity.
func (c *StatsCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *StatsCache) Close() error {
	return c.client.Close()
}

func kindOf(key string) string {
	for i := 0; i < len(key); i++ {
		if key[i] == ':' {
			return key[:i]
		}
	}
	return key
}

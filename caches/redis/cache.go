// Package redis stores search results in Redis so that every instance behind a
// load balancer shares one cache group.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	gosearchcache "github.com/dgduncan/go-search-cache"
	"github.com/dgduncan/go-search-cache/caches"
)

const (
	// DefaultScanCount is the COUNT hint used while walking a group.
	DefaultScanCount = 500

	pingTimeout = 5 * time.Second
)

// Config defines the configuration options for the Redis cache implementation.
type Config struct {
	// ScanCount is the COUNT hint for SCAN during DeleteGroup.
	ScanCount int64
}

// Cache implements gosearchcache.Cache on a Redis client. Values are JSON and
// expiry is enforced by Redis itself through the key TTL.
type Cache struct {
	client *redis.Client

	scanCount int64
}

type cacheItem struct {
	Result     gosearchcache.Result `json:"result"`
	CreatedAt  time.Time            `json:"created_at"`
	Expiration time.Time            `json:"expiration"`
}

// Get retrieves a cache item by key.
// Returns caches.ErrNoCacheItem if the key does not exist or has expired.
func (c *Cache) Get(ctx context.Context, k string) (*gosearchcache.CacheItem, error) {
	data, err := c.client.Get(ctx, k).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, caches.ErrNoCacheItem
		}
		return nil, fmt.Errorf("failed to get cache item from redis: %w", err)
	}

	var item cacheItem
	if err := json.Unmarshal(data, &item); err != nil {
		return nil, fmt.Errorf("failed to parse cache item from redis: %w", err)
	}

	return &gosearchcache.CacheItem{
		Result:     item.Result,
		CreatedAt:  item.CreatedAt,
		Expiration: item.Expiration,
	}, nil
}

// Set stores v under k with the given TTL, replacing any previous value.
func (c *Cache) Set(ctx context.Context, k string, v *gosearchcache.CacheItem, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = caches.DefaultExpiredDuration
	}

	data, err := json.Marshal(cacheItem{
		Result:     v.Result,
		CreatedAt:  v.CreatedAt,
		Expiration: v.Expiration,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal cache item: %w", err)
	}

	if err := c.client.Set(ctx, k, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set cache item in redis: %w", err)
	}

	return nil
}

// DeleteGroup walks the keyspace with SCAN and unlinks every key of group.
// Keys written while the walk is in progress may survive it. The MATCH
// pattern also returns keys of nested groups; those are filtered out.
func (c *Cache) DeleteGroup(ctx context.Context, group string) error {
	match := escapePattern(caches.GroupPrefix(group)) + "*"

	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, match, c.scanCount).Result()
		if err != nil {
			return fmt.Errorf("failed to scan cache group %q: %w", group, err)
		}

		if keys = inGroup(group, keys); len(keys) > 0 {
			if err := c.client.Unlink(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("failed to unlink cache group %q: %w", group, err)
			}
		}

		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// inGroup keeps the keys written under exactly group, reusing keys' storage.
func inGroup(group string, keys []string) []string {
	out := keys[:0]
	for _, k := range keys {
		if caches.GroupOf(k) == group {
			out = append(out, k)
		}
	}
	return out
}

var patternEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

func escapePattern(s string) string {
	return patternEscaper.Replace(s)
}

// New creates a Redis cache on an existing client after verifying the
// connection.
func New(ctx context.Context, client *redis.Client, config *Config) (*Cache, error) {
	if client == nil {
		return nil, caches.ValidationError{
			Reason: "nil client",
		}
	}

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	scanCount := int64(DefaultScanCount)
	if config != nil && config.ScanCount > 0 {
		scanCount = config.ScanCount
	}

	return &Cache{
		client:    client,
		scanCount: scanCount,
	}, nil
}

// NewFromURL parses a Redis URL (e.g. "redis://:password@host:6379/0") and
// connects to it.
func NewFromURL(ctx context.Context, url string, config *Config) (*Cache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, caches.ValidationError{Reason: fmt.Sprintf("invalid redis URL: %v", err)}
	}

	client := redis.NewClient(opts)
	c, err := New(ctx, client, config)
	if err != nil {
		_ = client.Close()
		return nil, err
	}

	return c, nil
}

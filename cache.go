package gosearchcache

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrUnknownScope is returned by Invalidate for scopes the cache cannot resolve.
	ErrUnknownScope = errors.New("unknown invalidation scope")

	// ErrInvalidation wraps store failures raised while discarding entries.
	ErrInvalidation = errors.New("search cache invalidation failed")
)

// CacheItem is a single memoized search result. Items are written whole and
// never modified in place; a recomputation overwrites the previous item.
type CacheItem struct {
	Result     Result
	CreatedAt  time.Time
	Expiration time.Time
}

// Expired reports whether the item must no longer be served at now.
func (ci *CacheItem) Expired(now time.Time) bool {
	return !now.Before(ci.Expiration)
}

// Cache is the key/value store the search cache reads from and writes to.
// Get returns caches.ErrNoCacheItem when nothing is stored under k.
// DeleteGroup removes every key prefixed with "<group>:".
type Cache interface {
	Get(ctx context.Context, k string) (*CacheItem, error)
	Set(ctx context.Context, k string, v *CacheItem, ttl time.Duration) error
	DeleteGroup(ctx context.Context, group string) error
}

// Scope selects which entries Invalidate discards.
type Scope string

// ScopeAll discards every entry in the configured group.
const ScopeAll Scope = "all"

package local

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	gosearchcache "github.com/dgduncan/go-search-cache"
	"github.com/dgduncan/go-search-cache/caches"
)

type entry struct {
	item      gosearchcache.CacheItem
	expiresAt time.Time
}

// BasicCache is an in-process store bounded by an LRU. Items are copied on the
// way in and out so callers can never mutate a stored result.
type BasicCache struct {
	cache *lru.Cache[string, entry]

	now func() time.Time
}

func (bc *BasicCache) Get(_ context.Context, key string) (*gosearchcache.CacheItem, error) {
	val, found := bc.cache.Get(key)
	if !found {
		return nil, caches.ErrNoCacheItem
	}

	if !bc.now().Before(val.expiresAt) {
		bc.cache.Remove(key)
		return nil, caches.ErrCacheItemExpired
	}

	item := val.item
	item.Result.IDs = append([]int64(nil), val.item.Result.IDs...)

	return &item, nil
}

func (bc *BasicCache) Set(_ context.Context, key string, item *gosearchcache.CacheItem, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = caches.DefaultExpiredDuration
	}

	stored := *item
	stored.Result.IDs = append([]int64(nil), item.Result.IDs...)

	bc.cache.Add(key, entry{item: stored, expiresAt: bc.now().Add(ttl)})

	return nil
}

// DeleteGroup removes the keys written under exactly group. Keys of groups
// nested beneath it ("group:child:...") are kept.
func (bc *BasicCache) DeleteGroup(_ context.Context, group string) error {
	for _, k := range bc.cache.Keys() {
		if caches.GroupOf(k) == group {
			bc.cache.Remove(k)
		}
	}

	return nil
}

// Len returns the number of stored entries, expired ones included.
func (bc *BasicCache) Len() int {
	return bc.cache.Len()
}

// NewBasicCache creates a store holding at most size entries. A size of zero
// uses caches.DefaultMaxEntries.
func NewBasicCache(size int) (*BasicCache, error) {
	if size <= 0 {
		size = caches.DefaultMaxEntries
	}

	l, err := lru.New[string, entry](size)
	if err != nil {
		return nil, caches.ValidationError{Reason: err.Error()}
	}

	return &BasicCache{
		cache: l,
		now:   time.Now,
	}, nil
}

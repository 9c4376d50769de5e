package gosearchcache

import (
	"time"

	"github.com/dgduncan/go-search-cache/caches"
)

// DefaultGroup is the cache group search entries are stored under.
const DefaultGroup = "relevanssi_search"

// DefaultStoreTimeout bounds every individual Get and Set round-trip.
const DefaultStoreTimeout = 250 * time.Millisecond

// DefaultInvalidateTimeout bounds a DeleteGroup call, which walks the whole
// group and takes far longer than a single-key operation.
const DefaultInvalidateTimeout = 30 * time.Second

// DefaultCoalesceTimeout bounds an executor call shared by coalesced misses.
const DefaultCoalesceTimeout = 30 * time.Second

type Config struct {
	// Group namespaces every key written by the cache. Invalidation discards
	// the whole group.
	Group string

	// TTL is how long a stored result may be served. Zero falls back to
	// caches.DefaultExpiredDuration.
	TTL time.Duration

	// StoreTimeout bounds each Get and Set call. Once exceeded the lookup
	// proceeds as a miss.
	StoreTimeout time.Duration

	// InvalidateTimeout bounds each DeleteGroup call.
	InvalidateTimeout time.Duration

	// CacheEmpty stores zero-result searches as well. Off by default so that a
	// transient empty index (e.g. during a rebuild) is never memoized.
	CacheEmpty bool

	// Coalesce lets concurrent misses for one key share a single executor
	// call. The shared call is detached from the callers' cancellation and
	// bounded by CoalesceTimeout instead; each caller still stops waiting when
	// its own context is done.
	Coalesce        bool
	CoalesceTimeout time.Duration

	// Metrics receives lookup and invalidation outcomes. Optional.
	Metrics *Metrics
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() Config {
	return Config{
		Group:             DefaultGroup,
		TTL:               caches.DefaultExpiredDuration,
		StoreTimeout:      DefaultStoreTimeout,
		InvalidateTimeout: DefaultInvalidateTimeout,
		CoalesceTimeout:   DefaultCoalesceTimeout,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Group == "" {
		c.Group = d.Group
	}
	if c.TTL <= 0 {
		c.TTL = d.TTL
	}
	if c.StoreTimeout <= 0 {
		c.StoreTimeout = d.StoreTimeout
	}
	if c.InvalidateTimeout <= 0 {
		c.InvalidateTimeout = d.InvalidateTimeout
	}
	if c.CoalesceTimeout <= 0 {
		c.CoalesceTimeout = d.CoalesceTimeout
	}
	return c
}

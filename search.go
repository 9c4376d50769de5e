package gosearchcache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dgduncan/go-search-cache/caches"
)

// SearchCache memoizes executor results keyed by the normalized query. It
// holds no mutable state besides its counters and is safe for concurrent use.
//
// Two concurrent misses for the same key both run the executor and both write
// the result unless Config.Coalesce is set. Entries are whole values, so the
// last write wins.
type SearchCache struct {
	cache  Cache
	logger *slog.Logger
	now    func() time.Time
	stats  counters
	flight singleflight.Group

	c Config
}

// LookupOrExecute returns the cached result for q or, on a miss, runs exec and
// stores what it returns.
//
// The process follows these steps:
// 1. Queries without search text bypass the cache and go straight to exec
// 2. A non-expired stored item is returned without calling exec
// 3. Otherwise exec runs with the original query
// 4. Non-empty results are written back with the configured TTL.
//
// Store failures are logged and treated as misses. Errors from exec are
// returned unchanged and never cached.
func (s *SearchCache) LookupOrExecute(ctx context.Context, q Query, exec Executor) (Result, error) {
	n, ok := Normalize(q)
	if !ok {
		s.stats.bypasses.Add(1)
		s.c.Metrics.lookup(outcomeBypass)
		s.logger.DebugContext(ctx, "search cache bypassed, no search term")
		return exec.Execute(ctx, q)
	}

	key := deriveKey(s.c.Group, n)

	if res, hit := s.get(ctx, key); hit {
		s.stats.hits.Add(1)
		s.c.Metrics.lookup(outcomeHit)
		s.logger.DebugContext(ctx, "search cache hit", "key", key)
		return res, nil
	}

	s.stats.misses.Add(1)
	s.c.Metrics.lookup(outcomeMiss)

	if !s.c.Coalesce {
		return s.execute(ctx, key, q, exec)
	}

	ch := s.flight.DoChan(key, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.c.CoalesceTimeout)
		defer cancel()
		return s.execute(fctx, key, q, exec)
	})

	select {
	case r := <-ch:
		res, _ := r.Val.(Result)
		if r.Shared {
			res = res.clone()
		}
		return res, r.Err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

func (s *SearchCache) execute(ctx context.Context, key string, q Query, exec Executor) (Result, error) {
	res, err := exec.Execute(ctx, q)
	if err != nil {
		return res, err
	}

	if res.Empty() && !s.c.CacheEmpty {
		s.logger.DebugContext(ctx, "search cache miss, empty result not cached", "key", key)
		return res, nil
	}

	s.set(ctx, key, res)
	s.logger.DebugContext(ctx, "search cache miss, result saved", "key", key, "results", len(res.IDs))

	return res, nil
}

func (s *SearchCache) get(ctx context.Context, key string) (Result, bool) {
	ctx, cancel := context.WithTimeout(ctx, s.c.StoreTimeout)
	defer cancel()

	item, err := s.cache.Get(ctx, key)
	switch {
	case err == nil:
	case errors.Is(err, caches.ErrNoCacheItem), errors.Is(err, caches.ErrCacheItemExpired):
		return Result{}, false
	default:
		s.stats.storeErrors.Add(1)
		s.c.Metrics.storeError(opGet)
		s.logger.WarnContext(ctx, "error reading search cache, treating as miss", "key", key, "error", err)
		return Result{}, false
	}

	if item == nil || item.Expired(s.now()) {
		return Result{}, false
	}

	return item.Result, true
}

func (s *SearchCache) set(ctx context.Context, key string, res Result) {
	ctx, cancel := context.WithTimeout(ctx, s.c.StoreTimeout)
	defer cancel()

	now := s.now().UTC()
	item := &CacheItem{
		Result:     res.clone(),
		CreatedAt:  now,
		Expiration: now.Add(s.c.TTL),
	}

	if err := s.cache.Set(ctx, key, item, s.c.TTL); err != nil {
		s.stats.storeErrors.Add(1)
		s.c.Metrics.storeError(opSet)
		s.logger.WarnContext(ctx, "error caching search result", "key", key, "error", err)
	}
}

// Invalidate discards the entries selected by scope. Only ScopeAll is
// supported; it drops the whole group so subsequent lookups miss.
//
// A failure leaves entries in place until their TTL runs out. It is reported
// to the caller but does not affect concurrent lookups.
func (s *SearchCache) Invalidate(ctx context.Context, scope Scope) error {
	if scope != ScopeAll {
		return fmt.Errorf("%w: %q", ErrUnknownScope, scope)
	}

	ctx, cancel := context.WithTimeout(ctx, s.c.InvalidateTimeout)
	defer cancel()

	if err := s.cache.DeleteGroup(ctx, s.c.Group); err != nil {
		s.stats.invalidationFailures.Add(1)
		s.c.Metrics.storeError(opDeleteGroup)
		s.c.Metrics.invalidation(resultError)
		s.logger.ErrorContext(ctx, "error clearing search cache", "group", s.c.Group, "error", err)
		return errors.Join(ErrInvalidation, err)
	}

	s.stats.invalidations.Add(1)
	s.c.Metrics.invalidation(resultOK)
	s.logger.InfoContext(ctx, "search cache cleared", "group", s.c.Group)

	return nil
}

// ManualFlush is the operator-triggered form of Invalidate(ctx, ScopeAll).
func (s *SearchCache) ManualFlush(ctx context.Context) error {
	return s.Invalidate(ctx, ScopeAll)
}

// Stats returns the current counters.
func (s *SearchCache) Stats() Stats {
	return s.stats.snapshot()
}

// Group returns the cache group entries are written under.
func (s *SearchCache) Group() string {
	return s.c.Group
}

// New creates a search cache on top of the given store.
//
// If opts is nil, DefaultConfig is used; zero fields in opts take their
// default values. If 'now' is nil, time.Now is used. If 'logger' is nil, a
// no-op logger writing to io.Discard is used.
func New(
	cache Cache,
	opts *Config,
	now func() time.Time,
	logger *slog.Logger,
) *SearchCache {
	nowFunc := now
	if nowFunc == nil {
		nowFunc = time.Now
	}

	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	c := DefaultConfig()
	if opts != nil {
		c = opts.withDefaults()
	}

	return &SearchCache{cache: cache, now: nowFunc, logger: logger, c: c}
}

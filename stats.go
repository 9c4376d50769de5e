package gosearchcache

import "sync/atomic"

// Stats is a point-in-time snapshot of the cache counters.
type Stats struct {
	Hits                 uint64  `json:"hits"`
	Misses               uint64  `json:"misses"`
	Bypasses             uint64  `json:"bypasses"`
	StoreErrors          uint64  `json:"store_errors"`
	Invalidations        uint64  `json:"invalidations"`
	InvalidationFailures uint64  `json:"invalidation_failures"`
	HitRate              float64 `json:"hit_rate"`
}

type counters struct {
	hits                 atomic.Uint64
	misses               atomic.Uint64
	bypasses             atomic.Uint64
	storeErrors          atomic.Uint64
	invalidations        atomic.Uint64
	invalidationFailures atomic.Uint64
}

func (c *counters) snapshot() Stats {
	s := Stats{
		Hits:                 c.hits.Load(),
		Misses:               c.misses.Load(),
		Bypasses:             c.bypasses.Load(),
		StoreErrors:          c.storeErrors.Load(),
		Invalidations:        c.invalidations.Load(),
		InvalidationFailures: c.invalidationFailures.Load(),
	}
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total)
	}
	return s
}

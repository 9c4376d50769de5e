package gosearchcache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeHit    = "hit"
	outcomeMiss   = "miss"
	outcomeBypass = "bypass"

	opGet         = "get"
	opSet         = "set"
	opDeleteGroup = "delete_group"

	resultOK    = "ok"
	resultError = "error"
)

// Metrics exports cache outcomes as Prometheus counters.
type Metrics struct {
	lookups       *prometheus.CounterVec
	storeErrors   *prometheus.CounterVec
	invalidations *prometheus.CounterVec
}

// NewMetrics registers the search cache collectors with reg. A nil reg uses
// prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		lookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "search_cache_lookups_total",
			Help: "Search cache lookups by outcome (hit, miss, bypass).",
		}, []string{"outcome"}),
		storeErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "search_cache_store_errors_total",
			Help: "Cache store failures absorbed by the search cache, by operation.",
		}, []string{"op"}),
		invalidations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "search_cache_invalidations_total",
			Help: "Search cache group invalidations by result.",
		}, []string{"result"}),
	}
}

func (m *Metrics) lookup(outcome string) {
	if m == nil {
		return
	}
	m.lookups.WithLabelValues(outcome).Inc()
}

func (m *Metrics) storeError(op string) {
	if m == nil {
		return
	}
	m.storeErrors.WithLabelValues(op).Inc()
}

func (m *Metrics) invalidation(result string) {
	if m == nil {
		return
	}
	m.invalidations.WithLabelValues(result).Inc()
}

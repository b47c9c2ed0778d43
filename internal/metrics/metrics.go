// Package metrics defines the Prometheus collectors for policygate.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Policy-Gate/policygate/internal/cache"
)

// Metrics holds all Prometheus metrics for policygate.
// Pass to components that need to record metrics.
type Metrics struct {
	EvaluationsTotal   *prometheus.CounterVec
	EvaluationDuration prometheus.Histogram
	ResolutionsTotal   *prometheus.CounterVec
	CacheEvents        *prometheus.CounterVec
	CacheSize          prometheus.Gauge
}

// New creates and registers all metrics with the given registry.
func New(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		EvaluationsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "policygate",
				Name:      "evaluations_total",
				Help:      "Total policy evaluations",
			},
			[]string{"effect"}, // effect=allow/deny/warn/require_approval
		),
		EvaluationDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "policygate",
				Name:      "evaluation_duration_seconds",
				Help:      "Evaluation duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
		),
		ResolutionsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "policygate",
				Name:      "resolutions_total",
				Help:      "Total inheritance chain resolutions",
			},
			[]string{"outcome"}, // outcome=ok/error
		),
		CacheEvents: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "policygate",
				Name:      "cache_events_total",
				Help:      "Policy cache events by type",
			},
			[]string{"event"}, // event=hit/miss/set/evict/invalidate
		),
		CacheSize: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: "policygate",
				Name:      "cache_size",
				Help:      "Current number of cached policies",
			},
		),
	}
}

// CacheHook adapts the metrics to the cache's event hook interface.
// Register with Cache.OnEvent to count hits, misses, sets, evictions and
// invalidations as they happen.
func (m *Metrics) CacheHook(c *cache.Cache) cache.HookFunc {
	return func(ev cache.Event, _ string) {
		m.CacheEvents.WithLabelValues(string(ev)).Inc()
		m.CacheSize.Set(float64(c.Len()))
	}
}

// internal/monitoring/metrics.go

// Package monitoring exposes Prometheus metrics for the crawler: fetch
// traffic, lockout state, cache efficiency, and refresh round outcomes.
package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/leader001a/ro-market-crawler-sub002/internal/gnjoy"
	"github.com/leader001a/ro-market-crawler-sub002/internal/monitor"
	"github.com/leader001a/ro-market-crawler-sub002/internal/stats"
)

const namespace = "romarket"

// Metrics is the collector set. It implements monitor.Observer.
type Metrics struct {
	registry *prometheus.Registry

	itemsRefreshed *prometheus.CounterVec
	roundsTotal    *prometheus.CounterVec
	roundDuration  prometheus.Histogram
	roundMerged    prometheus.Counter
	roundDiscarded prometheus.Counter
}

// New builds the collector set and registers gauge functions that poll the
// shared rate-limit tracker and the statistics cache.
func New(tracker *gnjoy.LimitTracker, cache *stats.Cache) *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	m := &Metrics{
		registry: registry,
		itemsRefreshed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_refreshed_total",
			Help:      "Watched item refreshes by outcome.",
		}, []string{"outcome"}),
		roundsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_rounds_total",
			Help:      "Completed refresh rounds by status.",
		}, []string{"status"}),
		roundDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "refresh_round_duration_seconds",
			Help:      "Wall time of one refresh round.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
		roundMerged: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "round_results_merged_total",
			Help:      "Per-item results merged into the visible store.",
		}),
		roundDiscarded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "round_results_discarded_total",
			Help:      "Per-item results dropped for stale identity.",
		}),
	}

	if tracker != nil {
		factory.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "requests_per_minute",
			Help:      "Rolling outbound request rate.",
		}, tracker.RequestsPerMinute)
		factory.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "lockout_remaining_seconds",
			Help:      "Seconds until the current rate-limit lockout lifts.",
		}, func() float64 {
			return tracker.LockoutRemaining().Seconds()
		})
	}
	if cache != nil {
		factory.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stats_cache_hit_ratio",
			Help:      "Lifetime hit ratio of the price statistics cache.",
		}, cache.HitRate)
		factory.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stats_cache_entries",
			Help:      "Entries currently held by the statistics cache.",
		}, func() float64 {
			return float64(cache.Len())
		})
	}

	return m
}

// ItemRefreshed implements monitor.Observer.
func (m *Metrics) ItemRefreshed(failed bool) {
	outcome := "ok"
	if failed {
		outcome = "error"
	}
	m.itemsRefreshed.WithLabelValues(outcome).Inc()
}

// RoundCompleted implements monitor.Observer.
func (m *Metrics) RoundCompleted(status monitor.RoundStatus) {
	label := "committed"
	if status.Cancelled {
		label = "cancelled"
	}
	m.roundsTotal.WithLabelValues(label).Inc()
	m.roundDuration.Observe(status.Duration.Seconds())
	m.roundMerged.Add(float64(status.Merged))
	m.roundDiscarded.Add(float64(status.Discarded))
}

// Handler returns the /metrics HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

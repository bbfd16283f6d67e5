// Package metrics defines the Prometheus instruments exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CycleDuration observes wall-clock time per scheduler cycle.
	CycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "strategy_monitor",
		Name:      "cycle_duration_seconds",
		Help:      "Duration of one scheduler evaluation cycle.",
		Buckets:   prometheus.DefBuckets,
	})

	// StrategiesEvaluated counts strategy evaluations by outcome.
	StrategiesEvaluated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "strategy_monitor",
		Name:      "strategies_evaluated_total",
		Help:      "Strategy evaluations, labelled by outcome (triggered, not_triggered, panic).",
	}, []string{"outcome"})

	// CacheHits counts cache hits by data kind (price, candles).
	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "strategy_monitor",
		Name:      "cache_hits_total",
		Help:      "Market-data cache hits.",
	}, []string{"kind"})

	// CacheMisses counts cache misses by data kind.
	CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "strategy_monitor",
		Name:      "cache_misses_total",
		Help:      "Market-data cache misses.",
	}, []string{"kind"})

	// ProviderRequests counts upstream provider calls by provider and result.
	ProviderRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "strategy_monitor",
		Name:      "provider_requests_total",
		Help:      "Upstream market-data requests, labelled by provider and result.",
	}, []string{"provider", "result"})

	// CycleCommitFailures counts cycles whose bookkeeping transaction failed.
	CycleCommitFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "strategy_monitor",
		Name:      "cycle_commit_failures_total",
		Help:      "Scheduler cycles whose database commit failed.",
	})
)

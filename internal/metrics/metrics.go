// Package metrics exposes Prometheus instruments for aggregation, providers and search.
//
// Aggregation counters are diagnostics only; nothing reads them back for control flow.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AggregateCandidatesTotal counts discovery candidates by outcome (miss, fresh, stale, new, failed).
	AggregateCandidatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "platewise_aggregate_candidates_total",
			Help: "Discovery candidates processed by aggregation, by outcome",
		},
		[]string{"outcome"},
	)

	// AggregateNewRatio is the new-to-total ratio of the latest aggregation run.
	AggregateNewRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "platewise_aggregate_new_ratio",
			Help: "Share of newly created records in the most recent aggregation",
		},
	)

	// ResolveDuration tracks resolve-by-anchor latency by path (fresh, refresh, create, failed).
	ResolveDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "platewise_resolve_duration_seconds",
			Help:    "Duration of resolve-by-anchor calls",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path"},
	)

	// EmbeddingFailuresTotal counts merges persisted without a vector.
	EmbeddingFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "platewise_embedding_failures_total",
			Help: "Merged records persisted without an embedding vector",
		},
	)

	// DuplicateIdentityTotal counts creations rejected by the dedup gate.
	DuplicateIdentityTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "platewise_duplicate_identity_total",
			Help: "Creations rejected because the anchor or secondary id already exists",
		},
	)

	// ProviderRequestsTotal counts outbound provider calls by provider, operation and result.
	ProviderRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "platewise_provider_requests_total",
			Help: "Outbound provider calls",
		},
		[]string{"provider", "operation", "result"},
	)

	// CircuitBreakerState is 0 closed, 1 half-open, 2 open.
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "platewise_circuit_breaker_state",
			Help: "Circuit breaker state per dependency (0 closed, 1 half-open, 2 open)",
		},
		[]string{"name"},
	)

	// SearchRequestsTotal counts search calls by mode and result.
	SearchRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "platewise_search_requests_total",
			Help: "Search pipeline requests",
		},
		[]string{"mode", "result"},
	)
)

// RecordAggregate publishes the counts of one aggregation run.
func RecordAggregate(misses, fresh, stale, created, failed int, newRatio float64) {
	AggregateCandidatesTotal.WithLabelValues("miss").Add(float64(misses))
	AggregateCandidatesTotal.WithLabelValues("fresh").Add(float64(fresh))
	AggregateCandidatesTotal.WithLabelValues("stale").Add(float64(stale))
	AggregateCandidatesTotal.WithLabelValues("new").Add(float64(created))
	AggregateCandidatesTotal.WithLabelValues("failed").Add(float64(failed))
	AggregateNewRatio.Set(newRatio)
}

// ObserveResolve records a resolve-by-anchor call.
func ObserveResolve(path string, started time.Time) {
	ResolveDuration.WithLabelValues(path).Observe(time.Since(started).Seconds())
}

// RecordProviderCall records a provider call outcome.
func RecordProviderCall(provider, operation string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	ProviderRequestsTotal.WithLabelValues(provider, operation, result).Inc()
}

// RecordSearch records a search request outcome.
func RecordSearch(mode string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	SearchRequestsTotal.WithLabelValues(mode, result).Inc()
}

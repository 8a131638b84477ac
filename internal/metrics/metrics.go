// Package metrics provides Prometheus metrics for the ingestion and scoring pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "papertriage"

var (
	// CatalogRequestsTotal counts catalog HTTP attempts by outcome.
	CatalogRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_requests_total",
			Help:      "Catalog requests by source and outcome (ok, not_modified, retry, failed)",
		},
		[]string{"source", "outcome"},
	)

	// CatalogRequestDuration measures single catalog request latency.
	CatalogRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "catalog_request_duration_seconds",
			Help:      "Duration of catalog requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"source"},
	)

	// ThrottleWait measures time spent blocked on the request gate.
	ThrottleWait = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "throttle_wait_seconds",
			Help:      "Time spent waiting for the catalog request gate",
			Buckets:   []float64{0, 0.1, 0.5, 1, 2, 3, 5, 10, 30},
		},
	)

	// RecordsUpserted counts merge decisions.
	RecordsUpserted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_upserted_total",
			Help:      "Records handed to the store by merge result (inserted, updated, unchanged, rejected)",
		},
		[]string{"result"},
	)

	// ScoringTotal counts rubric computations by provider and path.
	ScoringTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rubric_scores_total",
			Help:      "Rubric scores by provider and path (llm, fallback)",
		},
		[]string{"provider", "path"},
	)

	// SuggestionsTotal counts tag suggestion calls by provider and status.
	SuggestionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tag_suggestions_total",
			Help:      "Tag suggestion calls by provider and status",
		},
		[]string{"provider", "status"},
	)

	// BatchItemsTotal counts batch outcomes.
	BatchItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_items_total",
			Help:      "Batch items by operation and status (success, failed, skipped)",
		},
		[]string{"operation", "status"},
	)
)

// RecordCatalogRequest records one catalog attempt.
func RecordCatalogRequest(source, outcome string, seconds float64) {
	CatalogRequestsTotal.WithLabelValues(source, outcome).Inc()
	CatalogRequestDuration.WithLabelValues(source).Observe(seconds)
}

// RecordThrottleWait records gate latency.
func RecordThrottleWait(seconds float64) {
	ThrottleWait.Observe(seconds)
}

// RecordUpsert records a merge decision.
func RecordUpsert(result string) {
	RecordsUpserted.WithLabelValues(result).Inc()
}

// RecordScore records a rubric computation.
func RecordScore(provider string, fallback bool) {
	path := "llm"
	if fallback {
		path = "fallback"
	}
	if provider == "" {
		provider = "none"
	}
	ScoringTotal.WithLabelValues(provider, path).Inc()
}

// RecordSuggestion records a tag suggestion call.
func RecordSuggestion(provider, status string) {
	if provider == "" {
		provider = "none"
	}
	SuggestionsTotal.WithLabelValues(provider, status).Inc()
}

// RecordBatchItem records a batch outcome.
func RecordBatchItem(operation, status string) {
	BatchItemsTotal.WithLabelValues(operation, status).Inc()
}

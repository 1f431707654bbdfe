// Package metrics holds the Prometheus collectors for the service.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Generation
	GenerationRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "setlist_generation_requests_total",
			Help: "Total number of generator calls",
		},
		[]string{"operation", "status"}, // status: "ok", "error"
	)

	GenerationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "setlist_generation_duration_seconds",
			Help:    "Generator call duration in seconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 30, 45, 60, 90},
		},
		[]string{"operation"},
	)

	ContinuationAttempts = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "setlist_continuation_attempts",
			Help:    "Attempts used per continuation run",
			Buckets: []float64{1, 2, 3, 4, 5},
		},
		[]string{"operation", "result"}, // result: "complete", "partial", "failed"
	)

	FallbacksUsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "setlist_fallbacks_total",
			Help: "Total number of times a deterministic fallback replaced generator output",
		},
		[]string{"operation"},
	)

	// Pipeline
	StageRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "setlist_stage_runs_total",
			Help: "Total number of pipeline stage runs",
		},
		[]string{"stage", "result"}, // result: "ok", "warning", "error", "cancelled"
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "setlist_stage_duration_seconds",
			Help:    "Pipeline stage duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"stage"},
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "setlist_active_sessions",
			Help: "Current number of pipeline sessions",
		},
	)

	PlaylistsCommitted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "setlist_playlists_committed_total",
			Help: "Total number of playlists created in the media catalog",
		},
	)

	// Catalog
	CatalogSearches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "setlist_catalog_searches_total",
			Help: "Total number of catalog searches",
		},
		[]string{"type", "result"}, // result: "match", "miss", "error"
	)

	CatalogRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "setlist_catalog_request_duration_seconds",
			Help:    "Media server request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	// Circuit Breaker
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // result: "success", "failure", "rejected"
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// API
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Current number of active API requests",
		},
	)

	// Background jobs
	JobsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "setlist_jobs_processed_total",
			Help: "Total number of background jobs processed",
		},
		[]string{"kind", "result"}, // result: "ok", "error", "dropped"
	)
)

// RecordAPIRequest records an API request metric
func RecordAPIRequest(method, endpoint string, statusCode int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest tracks active API requests
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordStage records one pipeline stage run.
func RecordStage(stage, result string, duration time.Duration) {
	StageRuns.WithLabelValues(stage, result).Inc()
	StageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordCatalogSearch records the outcome of a single catalog lookup.
func RecordCatalogSearch(entityType string, matched bool, err error) {
	result := "miss"
	switch {
	case err != nil:
		result = "error"
	case matched:
		result = "match"
	}
	CatalogSearches.WithLabelValues(entityType, result).Inc()
}

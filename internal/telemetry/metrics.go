package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequestDuration observes every request by route and status.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "nowastelife",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by method, route and status.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	// ModelSelections counts selected models and how they were chosen.
	ModelSelections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nowastelife",
		Name:      "model_selections_total",
		Help:      "Models bound for requests, by model id and selection tier.",
	}, []string{"model", "tier"})

	// GenerationDuration observes model call latency per endpoint.
	GenerationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "nowastelife",
		Name:      "generation_duration_seconds",
		Help:      "Latency of model generate calls.",
		Buckets:   []float64{0.5, 1, 2, 4, 8, 16, 32, 64},
	}, []string{"endpoint"})

	// RecoveryOutcomes counts which recovery strategy produced the result, or "failed".
	RecoveryOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nowastelife",
		Name:      "recovery_outcomes_total",
		Help:      "JSON recovery results by endpoint and winning strategy.",
	}, []string{"endpoint", "strategy"})

	// ClassifiedErrors counts provider failures by category.
	ClassifiedErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nowastelife",
		Name:      "classified_errors_total",
		Help:      "Provider failures by endpoint and category.",
	}, []string{"endpoint", "category"})

	// RateLimited counts requests rejected by the rate limiter or quota breaker.
	RateLimited = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nowastelife",
		Name:      "rejected_requests_total",
		Help:      "Requests rejected before reaching a handler, by reason.",
	}, []string{"reason"})
)

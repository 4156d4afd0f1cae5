package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Upstream API metrics
var (
	// UpstreamRequestsTotal counts dispatched attempts by class and outcome
	UpstreamRequestsTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      "Total number of requests sent to the event platform API",
		},
		[]string{"class", "outcome"}, // outcome: success|client_error|transient|rate_limited|cancelled
	)

	// UpstreamRequestDuration records per-attempt latency
	UpstreamRequestDuration = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_request_duration_seconds",
			Help:      "Event platform API request latency in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"class"},
	)

	// UpstreamRetriesTotal counts retries by the failure that caused them
	UpstreamRetriesTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_retries_total",
			Help:      "Total number of retried event platform API calls",
		},
		[]string{"class", "reason"}, // reason: transient|rate_limited
	)

	// UpstreamThrottledTotal counts local limiter refusals
	UpstreamThrottledTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_throttled_total",
			Help:      "Total number of calls held back by the local rate limiter",
		},
		[]string{"class", "result"}, // result: waited|rejected
	)

	// RateLimitWindowUsage is the number of admissions inside each class window
	RateLimitWindowUsage = promauto.With(Registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ratelimit_window_usage",
			Help:      "Admissions currently inside the sliding window per class",
		},
		[]string{"class"},
	)

	// RateLimitWindowCeiling is the configured ceiling for each class window
	RateLimitWindowCeiling = promauto.With(Registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ratelimit_window_ceiling",
			Help:      "Configured admissions allowed per sliding window per class",
		},
		[]string{"class"},
	)
)

// Package metrics provides Prometheus instrumentation for provider calls.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RequestsTotal counts provider runs by outcome.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "daybreak_requests_total",
			Help: "Total provider runs by outcome.",
		},
		[]string{"provider", "kind", "status"}, // status: "success", "error"
	)

	// RequestDuration tracks end-to-end run latency in seconds.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "daybreak_request_duration_seconds",
			Help:    "End-to-end provider run latency in seconds.",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"provider", "kind"},
	)

	// TokensTotal counts tokens consumed per provider and direction.
	TokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "daybreak_tokens_total",
			Help: "Total tokens consumed.",
		},
		[]string{"provider", "direction"}, // direction: "input" or "output"
	)

	// RetriesTotal counts retry sleeps taken by the remote executor.
	RetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "daybreak_retries_total",
			Help: "Total remote request retries.",
		},
		[]string{"provider"},
	)

	// RateLimitedTotal counts calls denied by the local rate-limit window.
	RateLimitedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "daybreak_rate_limited_total",
			Help: "Total calls denied by the local rate-limit window.",
		},
		[]string{"provider"},
	)

	// ActiveRequests tracks in-flight provider runs.
	ActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "daybreak_active_requests",
			Help: "Number of currently in-flight provider runs.",
		},
	)
)

// ObserveRun records the outcome of one provider run.
func ObserveRun(provider, kind string, success bool, seconds float64) {
	status := "success"
	if !success {
		status = "error"
	}
	RequestsTotal.WithLabelValues(provider, kind, status).Inc()
	RequestDuration.WithLabelValues(provider, kind).Observe(seconds)
}

// AddTokens records token consumption for a completed run.
func AddTokens(provider string, input, output int64) {
	if input > 0 {
		TokensTotal.WithLabelValues(provider, "input").Add(float64(input))
	}
	if output > 0 {
		TokensTotal.WithLabelValues(provider, "output").Add(float64(output))
	}
}

// RecordRetry counts one retry sleep for a provider.
func RecordRetry(provider string) {
	RetriesTotal.WithLabelValues(provider).Inc()
}

// RecordRateLimited counts one window denial for a provider.
func RecordRateLimited(provider string) {
	RateLimitedTotal.WithLabelValues(provider).Inc()
}

// Handler returns the HTTP handler serving the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

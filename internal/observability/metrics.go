package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// RequestCounter counts HTTP requests by method, endpoint and status.
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	// RequestDuration observes HTTP request latency by method and endpoint.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "auth_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// LoginAttempts counts login outcomes.
	LoginAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_login_attempts_total",
			Help: "Total number of login attempts by result",
		},
		[]string{"result"},
	)

	// RefreshRotations counts refresh outcomes, including detected reuse.
	RefreshRotations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_refresh_rotations_total",
			Help: "Total number of refresh attempts by result",
		},
		[]string{"result"},
	)

	// RateLimited counts requests blocked by the rate limiter.
	RateLimited = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_rate_limited_total",
			Help: "Total number of rate-limited requests",
		},
		[]string{"endpoint", "scope"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestCounter,
		RequestDuration,
		LoginAttempts,
		RefreshRotations,
		RateLimited,
	)
}

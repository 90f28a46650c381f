package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthAttempts records credential checks by result (success|failure|limited).
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sessiond_auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
		[]string{"result"},
	)

	// TokenRefreshes records refresh token redemptions by result (success|failure).
	TokenRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sessiond_token_refreshes_total",
			Help: "Total number of refresh token redemptions",
		},
		[]string{"result"},
	)

	// SessionsTerminated counts removed device sessions by reason
	// (logout|revoked|revoked_others|revoked_all|expired).
	SessionsTerminated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sessiond_sessions_terminated_total",
			Help: "Total number of terminated device sessions",
		},
		[]string{"reason"},
	)

	// SessionsCreated counts sessions opened by a successful login.
	SessionsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sessiond_sessions_created_total",
			Help: "Total number of device sessions created",
		},
	)

	// RateLimited counts requests rejected by the sliding window limiter.
	RateLimited = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sessiond_rate_limited_total",
			Help: "Total number of requests rejected by rate limiting",
		},
		[]string{"scope"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sessiond_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the portal's Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "portal",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "portal",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
		},
		[]string{"method", "route"},
	)

	claimsFiled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "portal",
			Subsystem: "claims",
			Name:      "filed_total",
			Help:      "Claims intake attempts by outcome.",
		},
		[]string{"outcome"},
	)

	claimNumberRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "portal",
			Subsystem: "claims",
			Name:      "number_collisions_total",
			Help:      "Claim inserts retried after a duplicate claim number.",
		},
	)

	aiCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "portal",
			Subsystem: "ai",
			Name:      "calls_total",
			Help:      "AI advisory operations by outcome (success, synthesized, error, unavailable).",
		},
		[]string{"operation", "outcome"},
	)

	aiDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "portal",
			Subsystem: "ai",
			Name:      "call_duration_seconds",
			Help:      "Latency of completed AI network calls.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		},
		[]string{"operation"},
	)

	degradations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "portal",
			Name:      "degraded_total",
			Help:      "Best-effort side effects that failed and were absorbed.",
		},
		[]string{"component"},
	)
)

func init() {
	Registry.MustRegister(
		httpRequests,
		httpDuration,
		claimsFiled,
		claimNumberRetries,
		aiCalls,
		aiDuration,
		degradations,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
}

// Handler exposes the registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// GinMiddleware records request counts and latency keyed by the matched route template.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/metrics" {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		httpRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		httpDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

// RecordClaim counts an intake attempt. outcome is one of filed, rejected, failed.
func RecordClaim(outcome string) {
	claimsFiled.WithLabelValues(outcome).Inc()
}

// RecordClaimNumberRetry counts a duplicate claim number that forced a retry.
func RecordClaimNumberRetry() {
	claimNumberRetries.Inc()
}

// RecordAICall counts one advisory operation.
func RecordAICall(operation, outcome string) {
	aiCalls.WithLabelValues(operation, outcome).Inc()
}

// ObserveAILatency records the duration of a network call to the AI provider.
func ObserveAILatency(operation string, d time.Duration) {
	aiDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// RecordDegraded counts an absorbed failure in a best-effort component (mail, notifications, redis).
func RecordDegraded(component string) {
	degradations.WithLabelValues(component).Inc()
}

// Package metrics holds the service's Prometheus collectors.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ecu_http_requests_total",
			Help: "Total HTTP requests handled by the file service",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ecu_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// StatusTransitions counts applied status changes by from/to status.
	StatusTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ecu_status_transitions_total",
			Help: "Status changes applied to ECU files",
		},
		[]string{"from", "to"},
	)

	CommentsPosted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ecu_comments_posted_total",
			Help: "Discussion comments posted, by author role and attachment",
		},
		[]string{"role", "with_image"},
	)

	FilesSubmitted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ecu_files_submitted_total",
			Help: "ECU files accepted for processing",
		},
	)

	CreditsMismatches = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ecu_credits_mismatch_total",
			Help: "Records whose stored credit total disagrees with the price table",
		},
	)

	ScanResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ecu_scan_results_total",
			Help: "Antivirus scan verdicts",
		},
		[]string{"status"},
	)
)

// GinMiddleware records request count and latency. Paths are the matched
// route template so ids don't blow up label cardinality.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		httpRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

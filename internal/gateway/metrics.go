package gateway

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	gwRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trustfence_gateway_requests_total",
		Help: "Total gateway HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	gwRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "trustfence_gateway_request_duration_seconds",
		Help:    "Gateway request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	gwBlockedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trustfence_gateway_blocked_total",
		Help: "Requests blocked by the scan verdict, by threat type.",
	}, []string{"threat_type"})

	gwForwardedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trustfence_gateway_forwarded_total",
		Help: "Requests forwarded to the upstream provider.",
	})
)

// prometheusMiddleware records per-request metrics.
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		method := c.Request.Method
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		gwRequestsTotal.WithLabelValues(method, path, status).Inc()
		gwRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// metricsHandler serves the Prometheus exposition endpoint.
func metricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

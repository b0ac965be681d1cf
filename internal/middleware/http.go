package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HttpMiddleware records per-route request latency. Unmatched routes share
// one label value to keep metric cardinality bounded.
func HttpMiddleware() gin.HandlerFunc {
	histogram := promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fetchflow_http_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method", "status"},
	)
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		histogram.WithLabelValues(route, c.Request.Method, status).
			Observe(time.Since(start).Seconds())
	}
}

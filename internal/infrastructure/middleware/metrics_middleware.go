package middleware

import (
	"time"

	"camward/internal/infrastructure/monitoring"

	"github.com/gin-gonic/gin"
)

// MetricsMiddleware records request counts and latency per route
// template, so /api/v1/stream/frame stays one series no matter how often
// it is polled.
func MetricsMiddleware(collector *monitoring.PrometheusCollector) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		collector.RecordHTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}

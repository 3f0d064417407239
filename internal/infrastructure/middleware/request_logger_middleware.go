package middleware

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"camward/pkg/logger"
	"camward/pkg/utils"
)

// RequestLoggerMiddleware tags every request with a generated ID, echoes it
// in the X-Request-ID header, and logs method, path, status and latency
// once the handler chain finishes.
func RequestLoggerMiddleware(zapLogger *zap.Logger) gin.HandlerFunc {
	contextLogger := logger.NewContextLogger(zapLogger)

	return func(c *gin.Context) {
		start := time.Now()

		requestID := utils.GenerateRequestID()
		c.Header("X-Request-ID", requestID)
		ctx := context.WithValue(c.Request.Context(), logger.RequestIDKey, requestID)
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		contextLogger.LogRequest(c.Request.Context(),
			c.Request.Method,
			c.Request.URL.Path,
			c.Writer.Status(),
			time.Since(start).Milliseconds(),
		)
	}
}

package web

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RequestIDHeader names the header carrying the per-request identifier.
const RequestIDHeader = "X-Request-ID"

// RequestID injects a unique request id into each request context, honoring
// one supplied by an upstream proxy.
func RequestID() gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		requestID := contextGin.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		contextGin.Header(RequestIDHeader, requestID)
		contextGin.Set(RequestIDHeader, requestID)
		contextGin.Next()
	}
}

// AccessLog emits one structured line per request.
func AccessLog(logger *zap.Logger) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		startTime := time.Now()
		contextGin.Next()
		duration := time.Since(startTime)
		logger.Info("http",
			zap.String("method", contextGin.Request.Method),
			zap.String("path", contextGin.Request.URL.Path),
			zap.Int("status", contextGin.Writer.Status()),
			zap.String("ip", contextGin.ClientIP()),
			zap.String("request_id", contextGin.GetString(RequestIDHeader)),
			zap.Duration("elapsed", duration),
		)
	}
}

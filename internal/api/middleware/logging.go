package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type LoggingMiddleware struct {
	logger *zap.Logger
}

func NewLoggingMiddleware(logger *zap.Logger) *LoggingMiddleware {
	return &LoggingMiddleware{
		logger: logger,
	}
}

func (lm *LoggingMiddleware) LogRequest() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		duration := time.Since(start)

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", duration),
			zap.String("client_ip", c.ClientIP()),
		}
		if requestID := c.GetString(requestIDKey); requestID != "" {
			fields = append(fields, zap.String(requestIDKey, requestID))
		}
		if clinicianID, exists := c.Get(clinicianIDKey); exists {
			fields = append(fields, zap.Any("clinician_id", clinicianID))
		}

		lm.logger.Info("HTTP Request", fields...)
	}
}

// Package middleware provides HTTP middleware for the gateway's plain HTTP
// routes.
//
// This file implements structured request logging.
//
// Logged Fields:
// - request_id: Correlation ID for distributed tracing (from RequestID middleware)
// - method: HTTP method (GET, POST, PUT, DELETE, etc.)
// - path: Request path
// - status: HTTP status code
// - duration_ms: Request processing time in milliseconds
// - client_ip: Client IP address
//
// Log Levels:
// - INFO: Successful requests (2xx/3xx)
// - WARN: Client errors (4xx)
// - ERROR: Server errors (5xx)
package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/swecc-uw/swecc-sockets/internal/logger"
)

// StructuredLogger logs every plain HTTP request through logger.HTTP().
func StructuredLogger() gin.HandlerFunc {
	log := logger.HTTP()
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		duration := time.Since(start)
		status := c.Writer.Status()

		evt := log.Info()
		switch {
		case status >= 500:
			evt = log.Error()
		case status >= 400:
			evt = log.Warn()
		}

		evt.
			Str("request_id", GetRequestID(c)).
			Str("method", c.Request.Method).
			Str("path", path).
			Str("query", raw).
			Int("status", status).
			Int64("duration_ms", duration.Milliseconds()).
			Str("client_ip", c.ClientIP()).
			Msg("request handled")
	}
}

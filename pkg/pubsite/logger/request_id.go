package logger

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// RequestIDHeader carries the request id in and out
	RequestIDHeader = "X-Request-ID"
	// RequestIDKey is the key for the request id in gin context
	RequestIDKey = "request_id"
)

// RequestID reuses an incoming X-Request-ID or generates one, and echoes it on the response.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		c.Set(RequestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

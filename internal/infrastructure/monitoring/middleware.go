package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// Middleware creates a Gin middleware for metrics collection
func Middleware(metrics *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		method := c.Request.Method

		// Get request size
		reqSize := c.Request.ContentLength
		if reqSize < 0 {
			reqSize = 0
		}

		// Process request
		c.Next()

		// Route template keeps session names out of the labels
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		duration := time.Since(start)
		status := strconv.Itoa(c.Writer.Status())
		respSize := int64(c.Writer.Size())
		if respSize < 0 {
			respSize = 0
		}

		metrics.RecordHTTPRequest(method, path, status, duration, reqSize, respSize)
	}
}

// CommandOutcome maps a command's terminal state to an outcome label.
func CommandOutcome(exitCode int, timedOut, sessionClosed bool) string {
	switch {
	case timedOut:
		return OutcomeTimeout
	case sessionClosed:
		return OutcomeClosed
	case exitCode == 0:
		return OutcomeOK
	default:
		return OutcomeFail
	}
}

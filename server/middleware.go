package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/hupe1980/vecd/resource"
)

const (
	requestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
)

// RequestID tags every request with a unique id, honoring one supplied
// by the caller. The id is echoed in the response header and attached
// to the request log line.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}

		c.Set(requestIDKey, id)
		c.Writer.Header().Set(requestIDHeader, id)
		c.Next()
	}
}

// RequestLogger logs one line per request.
func RequestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		logger.Info("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
			requestIDKey, c.GetString(requestIDKey),
		)
	}
}

// PayloadAdmission reserves the declared payload size against the
// controller's memory budget for the duration of the request, shedding
// load with 503 instead of running the process into the ground.
func PayloadAdmission(controller *resource.Controller) gin.HandlerFunc {
	return func(c *gin.Context) {
		n := c.Request.ContentLength
		if n <= 0 {
			c.Next()
			return
		}

		// Payloads beyond the whole budget can never be admitted.
		if limit := controller.MemoryLimit(); limit > 0 && n > limit {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, ErrorResponse{
				Code:     -1,
				ErrorMsg: "request payload exceeds the configured memory limit",
			})

			return
		}

		if err := controller.AcquireMemory(c.Request.Context(), n); err != nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, ErrorResponse{
				Code:     -1,
				ErrorMsg: "request payload rejected: memory budget exhausted",
			})

			return
		}

		defer controller.ReleaseMemory(n)

		c.Next()
	}
}

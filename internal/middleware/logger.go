package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"

	"commerce/internal/logger"
)

// ErrorLogger logs failed requests and turns panics into a 500 envelope.
func ErrorLogger(log *logger.Log) gin.HandlerFunc {
	if log == nil {
		log = logger.Get()
	}
	log = log.WithEntryName("http")

	return func(c *gin.Context) {
		start := time.Now()
		defer func() {
			if recovered := recover(); recovered != nil {
				err := fmt.Errorf("%v", recovered)
				requestEntry(log, c, start).
					WithErr(err).
					WithField("stack", string(debug.Stack())).
					Error("panic")

				c.JSON(http.StatusInternalServerError, gin.H{
					"success": false,
					"error": gin.H{
						"code":    "INTERNAL_SERVER_ERROR",
						"message": "Internal Server Error",
					},
				})
				c.Abort()
				return
			}

			if len(c.Errors) == 0 {
				if c.Writer.Status() >= http.StatusInternalServerError {
					requestEntry(log, c, start).Error("http_error")
				}
				return
			}

			for _, err := range c.Errors {
				entry := requestEntry(log, c, start).WithErr(err.Err)
				if err.Meta != nil {
					entry = entry.WithField("meta", fmt.Sprintf("%+v", err.Meta))
				}
				entry.Error("request_error")
			}
		}()

		c.Next()
	}
}

func requestEntry(log *logger.Log, c *gin.Context, start time.Time) *logger.Log {
	return log.WithFields(map[string]interface{}{
		"status":     c.Writer.Status(),
		"method":     c.Request.Method,
		"path":       c.Request.URL.Path,
		"query":      c.Request.URL.RawQuery,
		"client_ip":  c.ClientIP(),
		"user_id":    c.GetInt64("user_id"),
		"channel_id": c.GetInt64("channel_id"),
		"request_id": requestID(c),
		"latency":    time.Since(start).String(),
	})
}

func requestID(c *gin.Context) string {
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = c.GetHeader("X-Request-Id")
	}
	return requestID
}

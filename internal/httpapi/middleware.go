package httpapi

import (
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	logx "alarmd/pkg/logx"
)

const requestIDHeader = "X-Request-ID"

func requestLogger(log logx.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		rid := c.GetHeader(requestIDHeader)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Set("request_id", rid)
		c.Header(requestIDHeader, rid)

		c.Next()

		status := c.Writer.Status()
		fields := []logx.Field{
			logx.String("request_id", rid),
			logx.String("method", c.Request.Method),
			logx.String("path", c.FullPath()),
			logx.Int("status", status),
			logx.Duration("took", time.Since(start)),
			logx.String("client_ip", c.ClientIP()),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, logx.Err(c.Errors.Last().Err))
		}
		switch {
		case status >= http.StatusInternalServerError:
			log.Error("request failed", fields...)
		case status >= http.StatusBadRequest:
			log.Info("request rejected", fields...)
		default:
			log.Debug("request served", fields...)
		}
	}
}

// recovery must be the outermost middleware.
func recovery(log logx.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("handler panicked", logx.String("path", c.Request.URL.Path), logx.Any("panic", r), logx.Stack(string(debug.Stack())))
				c.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse{Message: "Internal server error"})
			}
		}()
		c.Next()
	}
}

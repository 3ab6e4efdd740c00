package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/classr/internal/platform/ctxutil"
	"github.com/yungbote/classr/internal/platform/logger"
)

// RequestLogger writes one line per API call. Health and metrics scrapes
// are logged at debug so they do not drown peer traffic.
func RequestLogger(log *logger.Logger, quiet ...string) gin.HandlerFunc {
	if log == nil {
		return func(c *gin.Context) { c.Next() }
	}
	skip := make(map[string]bool, len(quiet))
	for _, p := range quiet {
		skip[p] = true
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		fields := []interface{}{
			"method", c.Request.Method,
			"route", route,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
		}
		if td := ctxutil.GetTraceData(c.Request.Context()); td != nil {
			fields = append(fields, "trace_id", td.TraceID, "request_id", td.RequestID)
		}
		if peer := c.GetString(gin.AuthUserKey); peer != "" {
			fields = append(fields, "user", peer)
		}
		if n := c.Writer.Size(); n > 0 {
			fields = append(fields, "bytes", n)
		}
		if len(c.Errors) > 0 {
			fields = append(fields, "errors", c.Errors.String())
		}

		switch {
		case status >= 500:
			log.Error("api request", fields...)
		case status >= 400:
			log.Warn("api request", fields...)
		case skip[route]:
			log.Debug("api request", fields...)
		default:
			log.Info("api request", fields...)
		}
	}
}

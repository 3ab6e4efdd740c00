package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/classr/internal/observability"
)

// Metrics records per-route request counts, latency and payload bytes.
// Unmatched paths share the "unknown" route so scanners cannot blow up
// label cardinality.
func Metrics(m *observability.Metrics) gin.HandlerFunc {
	if m == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		start := time.Now()
		m.APIInflight(1)
		defer m.APIInflight(-1)

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		m.ObserveAPI(c.Request.Method, route, strconv.Itoa(c.Writer.Status()), time.Since(start))
		m.ObserveTransfer(route, max(c.Request.ContentLength, 0), int64(max(c.Writer.Size(), 0)))
	}
}

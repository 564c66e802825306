package metrics

import (
	"time"

	"github.com/gin-gonic/gin"
)

// RequestMetricsMiddleware records request counts and latency per route.
func RequestMetricsMiddleware(r *Recorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		r.HTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}

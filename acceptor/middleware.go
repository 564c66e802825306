package acceptor

import (
	"slices"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/vinayprograms/pulselink/logging"
)

// requestLogger logs one line per HTTP request.
func requestLogger(logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		logger.HTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start), c.ClientIP())
	}
}

// corsMiddleware allows every origin when the list is empty or holds "*".
// Entries match a full origin or a bare host, like the upgrade origin check.
func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods: []string{"GET"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}
	if len(origins) == 0 || slices.Contains(origins, "*") {
		cfg.AllowAllOrigins = true
		return cors.New(cfg)
	}

	cfg.AllowOriginFunc = func(origin string) bool {
		host := origin
		if i := strings.Index(origin, "://"); i >= 0 {
			host = origin[i+3:]
		}
		for _, o := range origins {
			if strings.EqualFold(o, origin) || strings.EqualFold(o, host) {
				return true
			}
		}
		return false
	}
	return cors.New(cfg)
}

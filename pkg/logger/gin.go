package logger

import (
	"io"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// GinLogger returns a gin middleware that forwards request logs to the
// given logger at debug level. Health and metrics probes are skipped to
// keep the output useful.
func GinLogger(lg *zap.SugaredLogger) gin.HandlerFunc {
	skip := map[string]struct{}{
		"/healthz": {},
		"/metrics": {},
	}
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		c.Next()
		if _, ok := skip[path]; ok {
			return
		}
		lg.With(
			"method", c.Request.Method,
			"path", path,
			"status", c.Writer.Status(),
			"latency", time.Since(start).String(),
			"client", c.ClientIP(),
		).Debug("handled request")
	}
}

// GinWriter can be set as gin's DefaultWriter to silence its banner and
// debug output.
var GinWriter io.Writer = io.Discard

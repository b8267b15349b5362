package middleware

import (
	"time"

	"github.com/chrlshc/Huntaze-sub010/logger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RequestLog replaces gin.Logger with structured logs: 5xx at Error, 4xx at
// Warn, the rest at Info. Paths in skipPaths are not logged.
func RequestLog(log *logger.CtxZapLogger, skipPaths ...string) gin.HandlerFunc {
	if log == nil {
		log = logger.NewNop()
	}
	skip := make(map[string]bool, len(skipPaths))
	for _, path := range skipPaths {
		skip[path] = true
	}

	return func(c *gin.Context) {
		if skip[c.Request.URL.Path] {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("body_size", c.Writer.Size()),
		}
		if d, ok := GetDecision(c); ok {
			fields = append(fields, zap.String("route", d.Route), zap.Bool("degraded", d.Degraded))
		}
		if errMsg := c.Errors.ByType(gin.ErrorTypePrivate).String(); errMsg != "" {
			fields = append(fields, zap.String("error", errMsg))
		}

		ctx := c.Request.Context()
		switch {
		case status >= 500:
			log.ErrorCtx(ctx, "HTTP request", fields...)
		case status >= 400:
			log.WarnCtx(ctx, "HTTP request", fields...)
		default:
			log.InfoCtx(ctx, "HTTP request", fields...)
		}
	}
}

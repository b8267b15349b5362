package middleware

import (
	"github.com/chrlshc/Huntaze-sub010/logger"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

const (
	// TraceIDKey holds the trace id in gin.Context
	TraceIDKey = "trace_id"

	TraceIDHeader = "X-Trace-ID"
)

// TraceID makes every request carry a trace id. An OpenTelemetry span wins;
// otherwise the X-Trace-ID request header is used, or a new UUID. The id is
// echoed in the response header and stored where CtxZapLogger finds it.
func TraceID() gin.HandlerFunc {
	return func(c *gin.Context) {
		var traceID string
		if span := trace.SpanFromContext(c.Request.Context()); span.SpanContext().IsValid() {
			traceID = span.SpanContext().TraceID().String()
		} else {
			traceID = c.GetHeader(TraceIDHeader)
			if traceID == "" {
				traceID = uuid.NewString()
			}
			c.Request = c.Request.WithContext(logger.ContextWithTraceID(c.Request.Context(), traceID))
		}

		c.Set(TraceIDKey, traceID)
		c.Header(TraceIDHeader, traceID)
		c.Next()
	}
}

// GetTraceID returns the id TraceID stored
func GetTraceID(c *gin.Context) string {
	return c.GetString(TraceIDKey)
}

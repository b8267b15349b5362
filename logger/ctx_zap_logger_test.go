package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newObserved(t *testing.T) (*CtxZapLogger, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	return NewCtxZapLogger(zap.New(core), "limiter"), logs
}

func TestCtxZapLogger_ModuleField(t *testing.T) {
	log, logs := newObserved(t)

	log.InfoCtx(context.Background(), "admitted", zap.String("key", "user:1"))

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "admitted", entry.Message)
	assert.Equal(t, "limiter", entry.ContextMap()["module"])
	assert.Equal(t, "user:1", entry.ContextMap()["key"])
}

func TestCtxZapLogger_TraceIDFromSpan(t *testing.T) {
	log, logs := newObserved(t)

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	log.WarnCtx(ctx, "store unavailable")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", logs.All()[0].ContextMap()["trace_id"])
}

func TestCtxZapLogger_TraceIDFromValue(t *testing.T) {
	log, logs := newObserved(t)

	ctx := ContextWithTraceID(context.Background(), "req-42")
	log.ErrorCtx(ctx, "queue send failed")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "req-42", logs.All()[0].ContextMap()["trace_id"])
	assert.Equal(t, zapcore.ErrorLevel, logs.All()[0].Level)
}

func TestCtxZapLogger_NoTraceID(t *testing.T) {
	log, logs := newObserved(t)

	log.DebugCtx(context.Background(), "plain")

	_, ok := logs.All()[0].ContextMap()["trace_id"]
	assert.False(t, ok)
}

func TestCtxZapLogger_With(t *testing.T) {
	log, logs := newObserved(t)

	log.With(zap.String("breaker", "store")).Info("state changed")

	assert.Equal(t, "store", logs.All()[0].ContextMap()["breaker"])
	assert.Equal(t, "limiter", log.Module())
}

func TestNewNop(t *testing.T) {
	assert.NotPanics(t, func() {
		NewNop().InfoCtx(context.Background(), "ignored")
	})
}

func TestGinLogWriter(t *testing.T) {
	log, logs := newObserved(t)
	w := NewGinLogWriter(log)

	line := []byte("[Recovery] panic recovered\n")
	n, err := w.Write(line)
	require.NoError(t, err)
	assert.Equal(t, len(line), n)

	_, _ = w.Write([]byte("   \n"))
	_, _ = w.Write([]byte("[GIN-debug] GET /healthz"))

	require.Equal(t, 2, logs.Len())
	assert.Equal(t, zapcore.ErrorLevel, logs.All()[0].Level)
	assert.Equal(t, zapcore.DebugLevel, logs.All()[1].Level)
}

package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/chrlshc/Huntaze-sub010/health"
	"github.com/chrlshc/Huntaze-sub010/logger"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observedLogger() (*logger.CtxZapLogger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return logger.NewCtxZapLogger(zap.New(core), "http"), logs
}

func TestTraceID(t *testing.T) {
	engine := gin.New()
	engine.Use(TraceID())
	engine.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, GetTraceID(c))
	})

	t.Run("propagates inbound header", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(TraceIDHeader, "trace-abc")
		engine.ServeHTTP(w, req)

		assert.Equal(t, "trace-abc", w.Body.String())
		assert.Equal(t, "trace-abc", w.Header().Get(TraceIDHeader))
	})

	t.Run("generates when missing", func(t *testing.T) {
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Len(t, w.Body.String(), 36)
		assert.Equal(t, w.Body.String(), w.Header().Get(TraceIDHeader))
	})
}

func TestRecovery(t *testing.T) {
	log, logs := observedLogger()
	engine := gin.New()
	engine.Use(Recovery(log))
	engine.GET("/boom", func(*gin.Context) { panic("kaboom") })

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "INTERNAL_ERROR")
	assert.NotContains(t, w.Body.String(), "kaboom")
	require.Equal(t, 1, logs.FilterMessage("Panic recovered").Len())
}

func TestRequestLog(t *testing.T) {
	log, logs := observedLogger()
	engine := gin.New()
	engine.Use(RequestLog(log, "/healthz"))
	engine.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	engine.GET("/limited", func(c *gin.Context) { c.Status(http.StatusTooManyRequests) })
	engine.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, path := range []string{"/ok", "/limited", "/healthz"} {
		engine.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	entries := logs.FilterMessage("HTTP request").AllUntimed()
	require.Len(t, entries, 2)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, int64(http.StatusTooManyRequests), entries[1].ContextMap()["status"])
}

type stubChecker struct {
	name string
	err  error
}

func (s stubChecker) Name() string                { return s.name }
func (s stubChecker) Check(context.Context) error { return s.err }

func TestHealthHandler(t *testing.T) {
	down := errors.New("down")
	tests := []struct {
		name   string
		setup  func(*health.Aggregator)
		status int
	}{
		{name: "healthy", setup: func(a *health.Aggregator) { a.Register(stubChecker{name: "kafka"}) }, status: http.StatusOK},
		{name: "degraded store", setup: func(a *health.Aggregator) {
			a.RegisterOptional(stubChecker{name: "store", err: down})
		}, status: http.StatusOK},
		{name: "queue down", setup: func(a *health.Aggregator) {
			a.Register(stubChecker{name: "kafka", err: down})
		}, status: http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agg := health.NewAggregator(time.Second)
			tt.setup(agg)
			engine := gin.New()
			engine.GET("/healthz", HealthHandler(agg))
			engine.GET("/livez", LivenessHandler())

			w := httptest.NewRecorder()
			engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
			assert.Equal(t, tt.status, w.Code)

			w = httptest.NewRecorder()
			engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/livez", nil))
			assert.Equal(t, http.StatusOK, w.Code)
		})
	}
}

func TestHTTPMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := NewHTTPMetrics(provider.Meter("http-test"))
	require.NoError(t, err)

	engine := gin.New()
	engine.Use(m.Handler())
	engine.GET("/items/:id", func(c *gin.Context) { c.Status(http.StatusOK) })
	engine.GET("/limited", func(c *gin.Context) {
		c.Header(HeaderRetryAfter, "5")
		c.Status(http.StatusTooManyRequests)
	})

	engine.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/items/1", nil))
	engine.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/items/2", nil))
	engine.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/limited", nil))

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	byPath := map[string]int64{}
	limited := int64(0)
	for _, sm := range rm.ScopeMetrics {
		for _, metric := range sm.Metrics {
			if metric.Name != "http_requests_total" {
				continue
			}
			for _, dp := range metric.Data.(metricdata.Sum[int64]).DataPoints {
				path, _ := dp.Attributes.Value("path")
				byPath[path.AsString()] += dp.Value
				if rl, _ := dp.Attributes.Value("rate_limited"); rl.AsBool() {
					limited += dp.Value
				}
			}
		}
	}
	assert.Equal(t, int64(2), byPath["/items/:id"])
	assert.Equal(t, int64(1), limited)
}

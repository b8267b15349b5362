package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/chrlshc/Huntaze-sub010/logger"
	"github.com/chrlshc/Huntaze-sub010/validator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name  string
		edit  func(*Config)
		field string
	}{
		{name: "unknown exporter", edit: func(c *Config) { c.Exporter.Type = "jaeger" }, field: "exporter"},
		{name: "otlp without endpoint", edit: func(c *Config) { c.Exporter.Endpoint = "" }, field: "exporter"},
		{name: "ratio above one", edit: func(c *Config) {
			c.Sampler = SamplerConfig{Type: SamplerTraceIDRatio, Ratio: 1.5}
		}, field: "sampler"},
		{name: "batch larger than queue", edit: func(c *Config) {
			c.Batch = BatchConfig{Enabled: true, MaxQueueSize: 10, MaxExportBatchSize: 20}
		}, field: "batch"},
		{name: "metrics interval too short", edit: func(c *Config) {
			c.Metrics.Enabled = true
			c.Metrics.ExportInterval = 1
		}, field: "metrics"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Enabled = true
			tt.edit(&cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidConfig))
			assert.Contains(t, validator.Fields(err), tt.field)
		})
	}

	assert.NoError(t, Config{}.Validate(), "disabled config is valid")
}

func TestManager_Disabled(t *testing.T) {
	m := NewManager(Config{}, logger.NewNop())
	require.NoError(t, m.Start(context.Background()))

	assert.Nil(t, m.tracerProvider)
	assert.Nil(t, m.meterProvider)
	assert.NotNil(t, m.Tracer("x"))
	assert.NoError(t, m.Shutdown(context.Background()))
}

func TestManager_NoopExporter(t *testing.T) {
	prevTP, prevMP := otel.GetTracerProvider(), otel.GetMeterProvider()
	t.Cleanup(func() {
		otel.SetTracerProvider(prevTP)
		otel.SetMeterProvider(prevMP)
	})

	cfg := Config{
		Enabled:       true,
		ServiceName:   "admission-test",
		Exporter:      ExporterConfig{Type: ExporterNoop},
		Sampler:       SamplerConfig{Type: SamplerAlwaysOn},
		ResourceAttrs: map[string]interface{}{"deployment": map[string]interface{}{"environment": "test"}},
		Metrics:       MetricsConfig{Enabled: true},
	}
	m := NewManager(cfg, logger.NewNop())
	ctx := context.Background()
	require.NoError(t, m.Start(ctx))
	require.NoError(t, m.Start(ctx), "second start is a no-op")

	require.NotNil(t, m.tracerProvider)
	require.NotNil(t, m.meterProvider)
	assert.Same(t, m.meterProvider, m.MeterProvider())

	_, span := m.Tracer("test").Start(ctx, "op")
	assert.True(t, span.SpanContext().IsSampled())
	span.End()

	require.NoError(t, m.Registry().Register(&stubProvider{name: "limiter"}))
	assert.Equal(t, []string{"limiter"}, m.Registry().ProviderNames())

	require.NoError(t, m.Shutdown(ctx))
	assert.Nil(t, m.tracerProvider)
}

type stubProvider struct {
	name    string
	counter metric.Int64Counter
	err     error
}

func (s *stubProvider) MetricsName() string { return s.name }

func (s *stubProvider) RegisterMetrics(meter metric.Meter) error {
	if s.err != nil {
		return s.err
	}
	var err error
	s.counter, err = meter.Int64Counter(s.name + "_checks_total")
	return err
}

func TestMetricsRegistry(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	r := NewMetricsRegistry(provider, WithNamespace("gate"))

	p := &stubProvider{name: "forwarder"}
	require.NoError(t, r.RegisterAll(p, &stubProvider{name: "kafka"}))
	assert.Equal(t, []string{"forwarder", "kafka"}, r.ProviderNames())

	assert.Error(t, r.Register(&stubProvider{name: "forwarder"}), "duplicate")
	assert.Error(t, r.Register(&stubProvider{name: ""}))
	assert.Error(t, r.Register(nil))
	assert.Error(t, r.Register(&stubProvider{name: "store", err: errors.New("boom")}))

	p.counter.Add(context.Background(), 3)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	scopes := map[string]bool{}
	for _, sm := range rm.ScopeMetrics {
		scopes[sm.Scope.Name] = true
	}
	assert.True(t, scopes["gate_forwarder"])
	assert.Equal(t, r.Meter("forwarder"), r.Meter("forwarder"))
}

func TestFlattenMap(t *testing.T) {
	got := flattenMap(map[string]interface{}{
		"team": "platform",
		"deployment": map[string]interface{}{
			"environment": "prod",
			"zone":        map[string]interface{}{"id": 3},
		},
	}, "")

	assert.Equal(t, map[string]string{
		"team":                   "platform",
		"deployment.environment": "prod",
		"deployment.zone.id":     "3",
	}, got)
}

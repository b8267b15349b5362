// Package telemetry owns the OpenTelemetry tracer and meter providers and the
// registry every component's Metrics type registers through.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/chrlshc/Huntaze-sub010/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Manager starts and stops the providers
type Manager struct {
	config         Config
	logger         *logger.CtxZapLogger
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	registry       *MetricsRegistry
	mu             sync.Mutex
	started        bool
}

// NewManager applies defaults to cfg; a nil log uses the "telemetry" module logger
func NewManager(cfg Config, log *logger.CtxZapLogger) *Manager {
	if log == nil {
		log = logger.GetLogger("telemetry")
	}
	cfg.ApplyDefaults()
	return &Manager{config: cfg, logger: log}
}

// Start builds the providers and installs them globally. When telemetry is
// disabled nothing is installed and Registry falls back to the global no-op
// meter provider.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return nil
	}
	if !m.config.Enabled {
		m.logger.InfoCtx(ctx, "Telemetry disabled, skipping initialization")
		m.started = true
		return nil
	}
	if err := m.config.Validate(); err != nil {
		return err
	}

	res, err := m.createResource(ctx)
	if err != nil {
		return fmt.Errorf("create resource failed: %w", err)
	}

	exporter, err := m.createSpanExporter(ctx)
	if err != nil {
		return fmt.Errorf("create exporter failed: %w", err)
	}
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(m.createSampler()),
	}
	if m.config.Batch.Enabled {
		opts = append(opts, sdktrace.WithBatcher(exporter,
			sdktrace.WithMaxQueueSize(m.config.Batch.MaxQueueSize),
			sdktrace.WithMaxExportBatchSize(m.config.Batch.MaxExportBatchSize),
			sdktrace.WithBatchTimeout(m.config.Batch.ScheduleDelay),
			sdktrace.WithExportTimeout(m.config.Batch.ExportTimeout),
		))
	} else {
		opts = append(opts, sdktrace.WithSyncer(exporter))
	}
	m.tracerProvider = sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(m.tracerProvider)

	if m.config.Metrics.Enabled {
		reader, err := m.createMetricReader(ctx)
		if err != nil {
			return err
		}
		mpOpts := []sdkmetric.Option{sdkmetric.WithResource(res)}
		if reader != nil {
			mpOpts = append(mpOpts, sdkmetric.WithReader(reader))
		}
		m.meterProvider = sdkmetric.NewMeterProvider(mpOpts...)
		otel.SetMeterProvider(m.meterProvider)
	}

	m.started = true
	m.logger.InfoCtx(ctx, "Telemetry started",
		zap.String("service_name", m.config.ServiceName),
		zap.String("exporter", m.config.Exporter.Type),
		zap.Bool("metrics", m.config.Metrics.Enabled),
	)
	return nil
}

func (m *Manager) createSampler() sdktrace.Sampler {
	switch m.config.Sampler.Type {
	case SamplerAlwaysOn:
		return sdktrace.AlwaysSample()
	case SamplerAlwaysOff:
		return sdktrace.NeverSample()
	case SamplerTraceIDRatio:
		return sdktrace.TraceIDRatioBased(m.config.Sampler.Ratio)
	default:
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	}
}

// Shutdown flushes and stops both providers
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	if m.tracerProvider != nil {
		if err := m.tracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracer provider failed: %w", err))
		}
		m.tracerProvider = nil
	}
	if m.meterProvider != nil {
		if err := m.meterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown meter provider failed: %w", err))
		}
		m.meterProvider = nil
	}
	m.started = false
	return errors.Join(errs...)
}

// Tracer returns a tracer from the managed provider, or the global one
func (m *Manager) Tracer(name string) trace.Tracer {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tracerProvider == nil {
		return otel.GetTracerProvider().Tracer(name)
	}
	return m.tracerProvider.Tracer(name)
}

// MeterProvider returns the managed provider, or the global one
func (m *Manager) MeterProvider() metric.MeterProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.meterProvider == nil {
		return otel.GetMeterProvider()
	}
	return m.meterProvider
}

// Registry lazily builds the metrics registry over MeterProvider; call after Start
func (m *Manager) Registry() *MetricsRegistry {
	mp := m.MeterProvider()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.registry == nil {
		m.registry = NewMetricsRegistry(mp,
			WithNamespace(m.config.Metrics.Namespace),
			WithLogger(m.logger),
		)
	}
	return m.registry
}

// Config returns the effective configuration
func (m *Manager) Config() Config {
	return m.config
}

package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"google.golang.org/grpc/credentials/insecure"
)

func (m *Manager) createSpanExporter(ctx context.Context) (sdktrace.SpanExporter, error) {
	switch m.config.Exporter.Type {
	case ExporterOTLP:
		opts := []otlptracegrpc.Option{
			otlptracegrpc.WithEndpoint(m.config.Exporter.Endpoint),
			otlptracegrpc.WithTimeout(m.config.Exporter.Timeout),
		}
		if m.config.Exporter.Insecure {
			opts = append(opts, otlptracegrpc.WithTLSCredentials(insecure.NewCredentials()))
		}
		if len(m.config.Exporter.Headers) > 0 {
			opts = append(opts, otlptracegrpc.WithHeaders(m.config.Exporter.Headers))
		}
		return otlptrace.New(ctx, otlptracegrpc.NewClient(opts...))
	case ExporterStdout:
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	case ExporterNoop:
		return noopSpanExporter{}, nil
	default:
		return nil, fmt.Errorf("unsupported exporter type: %s", m.config.Exporter.Type)
	}
}

// createMetricReader returns nil for the noop exporter
func (m *Manager) createMetricReader(ctx context.Context) (sdkmetric.Reader, error) {
	var (
		exporter sdkmetric.Exporter
		err      error
	)
	switch m.config.Exporter.Type {
	case ExporterOTLP:
		opts := []otlpmetricgrpc.Option{
			otlpmetricgrpc.WithEndpoint(m.config.Exporter.Endpoint),
			otlpmetricgrpc.WithTimeout(m.config.Exporter.Timeout),
		}
		if m.config.Exporter.Insecure {
			opts = append(opts, otlpmetricgrpc.WithInsecure())
		}
		if len(m.config.Exporter.Headers) > 0 {
			opts = append(opts, otlpmetricgrpc.WithHeaders(m.config.Exporter.Headers))
		}
		exporter, err = otlpmetricgrpc.New(ctx, opts...)
	case ExporterStdout:
		exporter, err = stdoutmetric.New()
	case ExporterNoop:
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported metrics exporter type: %s", m.config.Exporter.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("create metrics exporter failed: %w", err)
	}
	return sdkmetric.NewPeriodicReader(exporter,
		sdkmetric.WithInterval(m.config.Metrics.ExportInterval),
		sdkmetric.WithTimeout(m.config.Metrics.ExportTimeout),
	), nil
}

type noopSpanExporter struct{}

func (noopSpanExporter) ExportSpans(context.Context, []sdktrace.ReadOnlySpan) error { return nil }

func (noopSpanExporter) Shutdown(context.Context) error { return nil }

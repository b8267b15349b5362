package store

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics records store command counts, latency and errors
type Metrics struct {
	mu         sync.RWMutex
	registered bool

	commandsTotal   metric.Int64Counter
	commandDuration metric.Float64Histogram
	errorsTotal     metric.Int64Counter
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

// MetricsName returns the metrics group name
func (m *Metrics) MetricsName() string {
	return "store"
}

// RegisterMetrics creates the instruments on meter; calling it twice is a no-op
func (m *Metrics) RegisterMetrics(meter metric.Meter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.registered {
		return nil
	}

	var err error
	m.commandsTotal, err = meter.Int64Counter(
		"store_commands_total",
		metric.WithDescription("Total number of shared store commands executed"),
		metric.WithUnit("{command}"),
	)
	if err != nil {
		return err
	}
	m.commandDuration, err = meter.Float64Histogram(
		"store_command_duration_seconds",
		metric.WithDescription("Shared store command duration distribution"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return err
	}
	m.errorsTotal, err = meter.Int64Counter(
		"store_errors_total",
		metric.WithDescription("Total number of shared store command errors"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return err
	}

	m.registered = true
	return nil
}

// RecordCommand records one command; redis.Nil is a reply, not an error
func (m *Metrics) RecordCommand(ctx context.Context, mode, command string, duration time.Duration, err error) {
	m.mu.RLock()
	registered := m.registered
	m.mu.RUnlock()
	if !registered {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("mode", mode),
		attribute.String("command", command),
	)
	m.commandsTotal.Add(ctx, 1, attrs)
	m.commandDuration.Record(ctx, duration.Seconds(), attrs)
	if err != nil && !errors.Is(err, redis.Nil) {
		m.errorsTotal.Add(ctx, 1, attrs)
	}
}

// MetricsHook implements redis.Hook
type MetricsHook struct {
	metrics *Metrics
	mode    string
}

func NewMetricsHook(metrics *Metrics, mode string) *MetricsHook {
	return &MetricsHook{metrics: metrics, mode: mode}
}

func (h *MetricsHook) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return next(ctx, network, addr)
	}
}

func (h *MetricsHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmd)
		h.metrics.RecordCommand(ctx, h.mode, cmd.Name(), time.Since(start), err)
		return err
	}
}

func (h *MetricsHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmds)
		if len(cmds) == 0 {
			return err
		}
		per := time.Since(start) / time.Duration(len(cmds))
		for _, cmd := range cmds {
			h.metrics.RecordCommand(ctx, h.mode, cmd.Name(), per, cmd.Err())
		}
		return err
	}
}

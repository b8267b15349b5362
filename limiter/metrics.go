package limiter

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics counts admission checks by limiter and outcome
// (allowed, denied, degraded, unavailable). A nil *Metrics records nothing.
type Metrics struct {
	mu         sync.RWMutex
	registered bool

	checksTotal metric.Int64Counter
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

// MetricsName returns the metrics group name
func (m *Metrics) MetricsName() string {
	return "limiter"
}

// RegisterMetrics creates the instruments on meter; calling it twice is a no-op
func (m *Metrics) RegisterMetrics(meter metric.Meter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.registered {
		return nil
	}

	var err error
	m.checksTotal, err = meter.Int64Counter(
		"limiter_checks_total",
		metric.WithDescription("Total number of rate limit checks by outcome"),
		metric.WithUnit("{check}"),
	)
	if err != nil {
		return err
	}

	m.registered = true
	return nil
}

func (m *Metrics) recordCheck(ctx context.Context, limiter, outcome string) {
	if m == nil {
		return
	}
	m.mu.RLock()
	registered := m.registered
	m.mu.RUnlock()
	if !registered {
		return
	}
	m.checksTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("limiter", limiter),
		attribute.String("outcome", outcome),
	))
}

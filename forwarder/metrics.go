package forwarder

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics counts outcomes by disposition. A nil *Metrics records nothing.
type Metrics struct {
	mu         sync.RWMutex
	registered bool

	outcomesTotal metric.Int64Counter
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

// MetricsName returns the metrics group name
func (m *Metrics) MetricsName() string {
	return "forwarder"
}

// RegisterMetrics creates the instruments on meter; calling it twice is a no-op
func (m *Metrics) RegisterMetrics(meter metric.Meter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.registered {
		return nil
	}

	var err error
	m.outcomesTotal, err = meter.Int64Counter(
		"forwarder_outcomes_total",
		metric.WithDescription("Total number of forwarded, delayed and failed payloads"),
		metric.WithUnit("{payload}"),
	)
	if err != nil {
		return err
	}

	m.registered = true
	return nil
}

func (m *Metrics) recordOutcome(ctx context.Context, d Disposition) {
	if m == nil {
		return
	}
	m.mu.RLock()
	registered := m.registered
	m.mu.RUnlock()
	if !registered {
		return
	}
	m.outcomesTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("disposition", string(d))))
}

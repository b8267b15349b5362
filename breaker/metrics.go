package breaker

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics is shared by every breaker in the process; breakers are told apart
// by the "breaker" attribute. A nil *Metrics records nothing.
type Metrics struct {
	mu         sync.RWMutex
	registered bool

	callsTotal      metric.Int64Counter
	rejectionsTotal metric.Int64Counter
	stateGauge      metric.Int64ObservableGauge

	stateMu        sync.RWMutex
	stateCallbacks map[string]func() int64
}

func NewMetrics() *Metrics {
	return &Metrics{stateCallbacks: make(map[string]func() int64)}
}

// MetricsName returns the metrics group name
func (m *Metrics) MetricsName() string {
	return "breaker"
}

// RegisterMetrics creates the instruments on meter; calling it twice is a no-op
func (m *Metrics) RegisterMetrics(meter metric.Meter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.registered {
		return nil
	}

	var err error
	m.callsTotal, err = meter.Int64Counter(
		"breaker_calls_total",
		metric.WithDescription("Total number of protected calls attempted"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return err
	}
	m.rejectionsTotal, err = meter.Int64Counter(
		"breaker_rejections_total",
		metric.WithDescription("Total number of calls skipped because the circuit was open"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return err
	}
	m.stateGauge, err = meter.Int64ObservableGauge(
		"breaker_state",
		metric.WithDescription("Current circuit state (0=closed, 1=open, 2=half-open)"),
		metric.WithInt64Callback(m.collectState),
	)
	if err != nil {
		return err
	}

	m.registered = true
	return nil
}

func (m *Metrics) collectState(_ context.Context, observer metric.Int64Observer) error {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	for name, callback := range m.stateCallbacks {
		observer.Observe(callback(), metric.WithAttributes(attribute.String("breaker", name)))
	}
	return nil
}

// RegisterStateCallback reports a breaker's state on the gauge
func (m *Metrics) RegisterStateCallback(name string, callback func() int64) {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	m.stateCallbacks[name] = callback
}

func (m *Metrics) UnregisterStateCallback(name string) {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	delete(m.stateCallbacks, name)
}

func (m *Metrics) isRegistered() bool {
	if m == nil {
		return false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.registered
}

func (m *Metrics) recordCall(ctx context.Context, name string, success bool) {
	if !m.isRegistered() {
		return
	}
	result := "success"
	if !success {
		result = "failure"
	}
	m.callsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("breaker", name),
		attribute.String("result", result),
	))
}

func (m *Metrics) recordRejection(ctx context.Context, name string) {
	if !m.isRegistered() {
		return
	}
	m.rejectionsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("breaker", name)))
}

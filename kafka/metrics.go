package kafka

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics instruments produce calls and suppressed duplicates. A nil
// *Metrics records nothing.
type Metrics struct {
	mu         sync.RWMutex
	registered bool

	messagesProduced metric.Int64Counter
	produceDuration  metric.Float64Histogram
	produceErrors    metric.Int64Counter
	duplicates       metric.Int64Counter
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

// MetricsName returns the metrics group name
func (m *Metrics) MetricsName() string {
	return "kafka"
}

// RegisterMetrics registers all Kafka metrics with the provided Meter
func (m *Metrics) RegisterMetrics(meter metric.Meter) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registered {
		return nil
	}

	var err error
	m.messagesProduced, err = meter.Int64Counter(
		"kafka_messages_produced_total",
		metric.WithDescription("Total number of messages produced"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return err
	}

	m.produceDuration, err = meter.Float64Histogram(
		"kafka_produce_duration_seconds",
		metric.WithDescription("Kafka produce duration distribution"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return err
	}

	m.produceErrors, err = meter.Int64Counter(
		"kafka_produce_errors_total",
		metric.WithDescription("Total number of produce errors"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return err
	}

	m.duplicates, err = meter.Int64Counter(
		"kafka_duplicates_suppressed_total",
		metric.WithDescription("Messages dropped because their dedup key was already claimed"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return err
	}

	m.registered = true
	return nil
}

func (m *Metrics) isRegistered() bool {
	if m == nil {
		return false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.registered
}

func (m *Metrics) recordProduce(ctx context.Context, topic string, duration time.Duration, err error) {
	if !m.isRegistered() {
		return
	}
	attrs := metric.WithAttributes(attribute.String("topic", topic))
	if err != nil {
		m.produceErrors.Add(ctx, 1, attrs)
		return
	}
	m.messagesProduced.Add(ctx, 1, attrs)
	m.produceDuration.Record(ctx, duration.Seconds(), attrs)
}

func (m *Metrics) recordDuplicate(ctx context.Context, topic string) {
	if !m.isRegistered() {
		return
	}
	m.duplicates.Add(ctx, 1, metric.WithAttributes(attribute.String("topic", topic)))
}

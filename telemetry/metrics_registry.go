package telemetry

import (
	"fmt"
	"sync"

	"github.com/chrlshc/Huntaze-sub010/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// MetricsProvider is implemented by each component's Metrics type
type MetricsProvider interface {
	// MetricsName names the meter, e.g. "limiter"
	MetricsName() string
	// RegisterMetrics creates the instruments on meter
	RegisterMetrics(meter metric.Meter) error
}

// MetricsRegistry hands each provider a dedicated meter and rejects duplicates
type MetricsRegistry struct {
	meterProvider metric.MeterProvider
	meters        map[string]metric.Meter
	providers     []MetricsProvider
	namespace     string
	logger        *logger.CtxZapLogger
	mu            sync.RWMutex
}

// MetricsRegistryOption configures the MetricsRegistry
type MetricsRegistryOption func(*MetricsRegistry)

// WithNamespace sets the meter name prefix
func WithNamespace(namespace string) MetricsRegistryOption {
	return func(r *MetricsRegistry) {
		r.namespace = namespace
	}
}

// WithLogger sets the logger for the registry
func WithLogger(l *logger.CtxZapLogger) MetricsRegistryOption {
	return func(r *MetricsRegistry) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewMetricsRegistry uses the global MeterProvider when mp is nil
func NewMetricsRegistry(mp metric.MeterProvider, opts ...MetricsRegistryOption) *MetricsRegistry {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	r := &MetricsRegistry{
		meterProvider: mp,
		meters:        make(map[string]metric.Meter),
		namespace:     "admission",
		logger:        logger.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register creates the provider's meter and calls RegisterMetrics on it
func (r *MetricsRegistry) Register(provider MetricsProvider) error {
	if provider == nil {
		return fmt.Errorf("metrics provider is nil")
	}
	name := provider.MetricsName()
	if name == "" {
		return fmt.Errorf("metrics provider name is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range r.providers {
		if p.MetricsName() == name {
			return fmt.Errorf("metrics provider %q already registered", name)
		}
	}

	if err := provider.RegisterMetrics(r.getMeterLocked(name)); err != nil {
		return fmt.Errorf("register metrics for %q failed: %w", name, err)
	}
	r.providers = append(r.providers, provider)
	r.logger.Info("metrics provider registered", zap.String("provider", name))
	return nil
}

// RegisterAll stops at the first failure
func (r *MetricsRegistry) RegisterAll(providers ...MetricsProvider) error {
	for _, p := range providers {
		if err := r.Register(p); err != nil {
			return err
		}
	}
	return nil
}

// Meter returns the meter named {namespace}_{name}
func (r *MetricsRegistry) Meter(name string) metric.Meter {
	r.mu.RLock()
	if meter, ok := r.meters[name]; ok {
		r.mu.RUnlock()
		return meter
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.getMeterLocked(name)
}

func (r *MetricsRegistry) getMeterLocked(name string) metric.Meter {
	if meter, ok := r.meters[name]; ok {
		return meter
	}
	meterName := name
	if r.namespace != "" {
		meterName = r.namespace + "_" + name
	}
	meter := r.meterProvider.Meter(meterName)
	r.meters[name] = meter
	return meter
}

// ProviderNames lists registered providers in registration order
func (r *MetricsRegistry) ProviderNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for _, p := range r.providers {
		names = append(names, p.MetricsName())
	}
	return names
}

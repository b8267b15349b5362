package di

import (
	"context"
	"errors"

	"github.com/chrlshc/Huntaze-sub010/admission"
	"github.com/chrlshc/Huntaze-sub010/breaker"
	"github.com/chrlshc/Huntaze-sub010/config"
	"github.com/chrlshc/Huntaze-sub010/forwarder"
	"github.com/chrlshc/Huntaze-sub010/health"
	"github.com/chrlshc/Huntaze-sub010/jwt"
	"github.com/chrlshc/Huntaze-sub010/kafka"
	"github.com/chrlshc/Huntaze-sub010/limiter"
	"github.com/chrlshc/Huntaze-sub010/logger"
	"github.com/chrlshc/Huntaze-sub010/middleware"
	"github.com/chrlshc/Huntaze-sub010/policy"
	"github.com/chrlshc/Huntaze-sub010/store"
	"github.com/chrlshc/Huntaze-sub010/telemetry"
	"github.com/jonboulle/clockwork"
	"github.com/samber/do/v2"
	"github.com/spf13/pflag"
)

// ErrQueueDisabled is returned when the forwarder is requested without kafka
var ErrQueueDisabled = errors.New("kafka disabled by configuration")

// ErrAuthDisabled is returned when the verifier is requested without auth
var ErrAuthDisabled = errors.New("bearer auth disabled by configuration")

// Each store call site gets its own breaker: failures on the fail-open
// request path must not open the circuit of the fail-closed forwarder.
const (
	// storeBreakerName guards the request-path limiters
	storeBreakerName = "store"

	// forwarderBreakerName guards the forwarder's admission bucket
	forwarderBreakerName = "forwarder_store"
)

// ============================================
// Base providers: config and logger
// ============================================

// ConfigOptions for the loader provider
type ConfigOptions struct {
	ConfigPath  string
	EnvPrefix   string
	EnvBindings map[string]string
	Flags       *pflag.FlagSet
	FlagMapping map[string]string
}

// LoadConfig builds the prioritized loader and decodes the validated AppConfig
func LoadConfig(opts ConfigOptions) (*config.Loader, *config.AppConfig, error) {
	b := config.NewLoaderBuilder().
		WithConfigPath(opts.ConfigPath).
		WithEnvPrefix(opts.EnvPrefix).
		WithEnvBindings(opts.EnvBindings)
	if opts.Flags != nil {
		b = b.WithFlags(opts.Flags, opts.FlagMapping)
	}
	loader, err := b.Build()
	if err != nil {
		return nil, nil, err
	}
	cfg, err := config.LoadAppConfig(loader)
	if err != nil {
		return loader, nil, err
	}
	return loader, cfg, nil
}

func ProvideLoggerManager(i do.Injector) (*logger.Manager, error) {
	cfg, err := do.Invoke[*config.AppConfig](i)
	if err != nil {
		return logger.NewManager(logger.DefaultManagerConfig()), nil
	}
	return logger.NewManager(cfg.Logger), nil
}

// ProvideCtxLogger returns the logger for one module
func ProvideCtxLogger(module string) func(do.Injector) (*logger.CtxZapLogger, error) {
	return func(i do.Injector) (*logger.CtxZapLogger, error) {
		return moduleLogger(i, module), nil
	}
}

func moduleLogger(i do.Injector, module string) *logger.CtxZapLogger {
	mgr, err := do.Invoke[*logger.Manager](i)
	if err != nil {
		return logger.GetLogger(module)
	}
	return mgr.GetLogger(module)
}

func clock(i do.Injector) clockwork.Clock {
	if c, err := do.Invoke[clockwork.Clock](i); err == nil {
		return c
	}
	return clockwork.NewRealClock()
}

// ============================================
// Telemetry
// ============================================

// ProvideTelemetry starts the tracer and meter providers
func ProvideTelemetry(i do.Injector) (*telemetry.Manager, error) {
	cfg, err := do.Invoke[*config.AppConfig](i)
	if err != nil {
		return nil, err
	}
	m := telemetry.NewManager(cfg.Telemetry, moduleLogger(i, "telemetry"))
	if err := m.Start(context.Background()); err != nil {
		return nil, err
	}
	return m, nil
}

func ProvideMetricsRegistry(i do.Injector) (*telemetry.MetricsRegistry, error) {
	tm, err := do.Invoke[*telemetry.Manager](i)
	if err != nil {
		return nil, err
	}
	return tm.Registry(), nil
}

// provideMetrics registers a component Metrics type on the shared registry
func provideMetrics[T telemetry.MetricsProvider](newMetrics func() T) func(do.Injector) (T, error) {
	return func(i do.Injector) (T, error) {
		m := newMetrics()
		registry, err := do.Invoke[*telemetry.MetricsRegistry](i)
		if err != nil {
			return m, err
		}
		return m, registry.Register(m)
	}
}

func ProvideHTTPMetrics(i do.Injector) (*middleware.HTTPMetrics, error) {
	registry, err := do.Invoke[*telemetry.MetricsRegistry](i)
	if err != nil {
		return nil, err
	}
	return middleware.NewHTTPMetrics(registry.Meter("http"))
}

// ============================================
// Store, breaker and limiters
// ============================================

// ProvideStoreManager picks RedisStore or UnavailableStore once
func ProvideStoreManager(opts ...store.Option) func(do.Injector) (*store.Manager, error) {
	return func(i do.Injector) (*store.Manager, error) {
		cfg, err := do.Invoke[*config.AppConfig](i)
		if err != nil {
			return nil, err
		}
		metrics, err := do.Invoke[*store.Metrics](i)
		if err != nil {
			return nil, err
		}
		all := append([]store.Option{store.WithMetrics(metrics)}, opts...)
		return store.NewManager(context.Background(), cfg.Store, moduleLogger(i, "store"), all...)
	}
}

func ProvideStore(i do.Injector) (store.Store, error) {
	mgr, err := do.Invoke[*store.Manager](i)
	if err != nil {
		return nil, err
	}
	return mgr.Store(), nil
}

// ProvideStoreMonitor starts the periodic probe; a disabled store is never probed
func ProvideStoreMonitor(i do.Injector) (*store.Monitor, error) {
	cfg, err := do.Invoke[*config.AppConfig](i)
	if err != nil {
		return nil, err
	}
	s, err := do.Invoke[store.Store](i)
	if err != nil {
		return nil, err
	}
	m, err := store.NewMonitor(s, cfg.Store.HealthInterval, moduleLogger(i, "store"))
	if err != nil {
		return nil, err
	}
	return m, m.Start()
}

// ProvideBreaker builds the breaker of the request-path limiters
func ProvideBreaker(i do.Injector) (*breaker.CircuitBreaker, error) {
	return newStoreBreaker(i, storeBreakerName)
}

// ProvideForwarderBreaker builds the forwarder's breaker, registered under
// forwarderBreakerName
func ProvideForwarderBreaker(i do.Injector) (*breaker.CircuitBreaker, error) {
	return newStoreBreaker(i, forwarderBreakerName)
}

func newStoreBreaker(i do.Injector, name string) (*breaker.CircuitBreaker, error) {
	cfg, err := do.Invoke[*config.AppConfig](i)
	if err != nil {
		return nil, err
	}
	metrics, err := do.Invoke[*breaker.Metrics](i)
	if err != nil {
		return nil, err
	}
	log := moduleLogger(i, "breaker")
	cb, err := breaker.New(name, cfg.Breaker,
		breaker.WithClock(clock(i)),
		breaker.WithLogger(log),
		breaker.WithMetrics(metrics),
	)
	if err != nil {
		return nil, err
	}
	breaker.NewLogListener(log).Subscribe(cb.GetEventBus())
	return cb, nil
}

func limiterOptions(i do.Injector) ([]limiter.Option, error) {
	cfg, err := do.Invoke[*config.AppConfig](i)
	if err != nil {
		return nil, err
	}
	cb, err := do.Invoke[*breaker.CircuitBreaker](i)
	if err != nil {
		return nil, err
	}
	metrics, err := do.Invoke[*limiter.Metrics](i)
	if err != nil {
		return nil, err
	}
	return []limiter.Option{
		limiter.WithClock(clock(i)),
		limiter.WithBreaker(cb),
		limiter.WithLogger(moduleLogger(i, "limiter")),
		limiter.WithMetrics(metrics),
		limiter.WithFailurePolicy(cfg.Admission.FailurePolicy()),
	}, nil
}

func ProvideSlidingWindowLimiter(i do.Injector) (*limiter.SlidingWindowLimiter, error) {
	s, err := do.Invoke[store.Store](i)
	if err != nil {
		return nil, err
	}
	opts, err := limiterOptions(i)
	if err != nil {
		return nil, err
	}
	return limiter.NewSlidingWindowLimiter(s, opts...), nil
}

func ProvideTokenBucketLimiter(i do.Injector) (*limiter.TokenBucketLimiter, error) {
	s, err := do.Invoke[store.Store](i)
	if err != nil {
		return nil, err
	}
	opts, err := limiterOptions(i)
	if err != nil {
		return nil, err
	}
	return limiter.NewTokenBucketLimiter(s, opts...), nil
}

// ============================================
// Admission
// ============================================

func ProvideResolver(i do.Injector) (*policy.Resolver, error) {
	cfg, err := do.Invoke[*config.AppConfig](i)
	if err != nil {
		return nil, err
	}
	return policy.NewResolver(cfg.Policies)
}

// ProvideVerifier builds the bearer token verifier used to key callers
func ProvideVerifier(i do.Injector) (*jwt.Verifier, error) {
	cfg, err := do.Invoke[*config.AppConfig](i)
	if err != nil {
		return nil, err
	}
	if !cfg.Auth.Enabled {
		return nil, ErrAuthDisabled
	}
	return jwt.NewVerifier(cfg.Auth, jwt.WithClock(clock(i)), jwt.WithLogger(moduleLogger(i, "jwt")))
}

func ProvideGate(i do.Injector) (*admission.Gate, error) {
	resolver, err := do.Invoke[*policy.Resolver](i)
	if err != nil {
		return nil, err
	}
	windows, err := do.Invoke[*limiter.SlidingWindowLimiter](i)
	if err != nil {
		return nil, err
	}
	buckets, err := do.Invoke[*limiter.TokenBucketLimiter](i)
	if err != nil {
		return nil, err
	}
	return admission.NewGate(resolver, windows, buckets, moduleLogger(i, "admission")), nil
}

// ============================================
// Queue and forwarder
// ============================================

// ProvideKafkaManager connects the producer; dedup claims live in the shared store
func ProvideKafkaManager(opts ...kafka.ManagerOption) func(do.Injector) (*kafka.Manager, error) {
	return func(i do.Injector) (*kafka.Manager, error) {
		cfg, err := do.Invoke[*config.AppConfig](i)
		if err != nil {
			return nil, err
		}
		if !cfg.Kafka.Enabled {
			return nil, ErrQueueDisabled
		}
		metrics, err := do.Invoke[*kafka.Metrics](i)
		if err != nil {
			return nil, err
		}
		s, err := do.Invoke[store.Store](i)
		if err != nil {
			return nil, err
		}
		all := append([]kafka.ManagerOption{
			kafka.WithManagerMetrics(metrics),
			kafka.WithDedup(s),
		}, opts...)
		m, err := kafka.NewManager(cfg.Kafka, moduleLogger(i, "kafka"), all...)
		if err != nil {
			return nil, err
		}
		if err := m.Connect(context.Background()); err != nil {
			_ = m.Close()
			return nil, err
		}
		return m, nil
	}
}

func ProvideForwarder(i do.Injector) (*forwarder.QueueForwarder, error) {
	cfg, err := do.Invoke[*config.AppConfig](i)
	if err != nil {
		return nil, err
	}
	km, err := do.Invoke[*kafka.Manager](i)
	if err != nil {
		return nil, err
	}
	s, err := do.Invoke[store.Store](i)
	if err != nil {
		return nil, err
	}
	cb, err := do.InvokeNamed[*breaker.CircuitBreaker](i, forwarderBreakerName)
	if err != nil {
		return nil, err
	}
	metrics, err := do.Invoke[*forwarder.Metrics](i)
	if err != nil {
		return nil, err
	}
	return forwarder.New(cfg.Forwarder, s, km.Queue(),
		forwarder.WithClock(clock(i)),
		forwarder.WithBreaker(cb),
		forwarder.WithLogger(moduleLogger(i, "forwarder")),
		forwarder.WithMetrics(metrics),
	)
}

// ============================================
// Health
// ============================================

// ProvideHealth treats the store as optional and kafka, when enabled, as critical
func ProvideHealth(i do.Injector) (*health.Aggregator, error) {
	cfg, err := do.Invoke[*config.AppConfig](i)
	if err != nil {
		return nil, err
	}
	s, err := do.Invoke[store.Store](i)
	if err != nil {
		return nil, err
	}

	agg := health.NewAggregator(0)
	agg.SetMetadata("service", cfg.App.Name)
	agg.SetMetadata("version", cfg.App.Version)
	agg.SetMetadata("store", s.Name())
	agg.RegisterOptional(store.NewHealthChecker(s))
	if cfg.Kafka.Enabled {
		km, err := do.Invoke[*kafka.Manager](i)
		if err != nil {
			return nil, err
		}
		agg.Register(kafka.NewHealthChecker(km))
	}
	return agg, nil
}

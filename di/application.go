// Package di wires every admission component once at startup with samber/do
// and owns their lifecycle.
package di

import (
	"context"
	"errors"
	"fmt"
	"sync"

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
	"github.com/chrlshc/Huntaze-sub010/store"
	"github.com/chrlshc/Huntaze-sub010/telemetry"
	"github.com/jonboulle/clockwork"
	"github.com/samber/do/v2"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

// AppState is the application lifecycle state
type AppState int

const (
	StateInit AppState = iota
	StateSetup
	StateRunning
	StateStopping
	StateStopped
)

func (s AppState) String() string {
	switch s {
	case StateInit:
		return "Init"
	case StateSetup:
		return "Setup"
	case StateRunning:
		return "Running"
	case StateStopping:
		return "Stopping"
	case StateStopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

// Application is the composition root of the admission service
type Application struct {
	injector *do.RootScope

	configOpts ConfigOptions
	storeOpts  []store.Option
	kafkaOpts  []kafka.ManagerOption
	clock      clockwork.Clock

	config *config.AppConfig
	logger *logger.CtxZapLogger

	state AppState
	mu    sync.RWMutex
}

// Option customises an Application
type Option func(*Application)

// WithConfigPath sets the directory holding config.yaml and <APP_ENV>.yaml
func WithConfigPath(path string) Option {
	return func(app *Application) { app.configOpts.ConfigPath = path }
}

// WithEnvPrefix sets the environment variable prefix, e.g. "ADMISSION"
func WithEnvPrefix(prefix string) Option {
	return func(app *Application) { app.configOpts.EnvPrefix = prefix }
}

// WithEnvBindings maps config keys containing underscores to env vars
func WithEnvBindings(bindings map[string]string) Option {
	return func(app *Application) { app.configOpts.EnvBindings = bindings }
}

// WithFlags adds command line flags as the highest priority source
func WithFlags(flags *pflag.FlagSet, mapping map[string]string) Option {
	return func(app *Application) {
		app.configOpts.Flags = flags
		app.configOpts.FlagMapping = mapping
	}
}

// WithStoreOptions is passed to store.NewManager, e.g. store.WithClient
func WithStoreOptions(opts ...store.Option) Option {
	return func(app *Application) { app.storeOpts = append(app.storeOpts, opts...) }
}

// WithKafkaOptions is passed to kafka.NewManager, e.g. kafka.WithSaramaProducer
func WithKafkaOptions(opts ...kafka.ManagerOption) Option {
	return func(app *Application) { app.kafkaOpts = append(app.kafkaOpts, opts...) }
}

// WithClock replaces the real clock in limiters, the breaker and the forwarder
func WithClock(c clockwork.Clock) Option {
	return func(app *Application) { app.clock = c }
}

func NewApplication(opts ...Option) *Application {
	app := &Application{
		injector:   do.New(),
		configOpts: ConfigOptions{ConfigPath: "./configs", EnvPrefix: "ADMISSION"},
		state:      StateInit,
	}
	for _, opt := range opts {
		opt(app)
	}
	return app
}

func (app *Application) Injector() *do.RootScope {
	return app.injector
}

func (app *Application) Logger() *logger.CtxZapLogger {
	return app.logger
}

func (app *Application) Config() *config.AppConfig {
	return app.config
}

func (app *Application) State() AppState {
	app.mu.RLock()
	defer app.mu.RUnlock()
	return app.state
}

func (app *Application) setState(state AppState) {
	app.mu.Lock()
	defer app.mu.Unlock()
	app.state = state
}

// Setup registers every provider, then loads and validates the configuration.
// An invalid policy table fails here.
func (app *Application) Setup() error {
	app.setState(StateSetup)
	i := app.injector

	loader, cfg, err := LoadConfig(app.configOpts)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	app.config = cfg
	do.ProvideValue(i, loader)
	do.ProvideValue(i, cfg)
	do.Provide(i, ProvideLoggerManager)
	if app.clock != nil {
		do.ProvideValue(i, app.clock)
	}

	do.Provide(i, ProvideTelemetry)
	do.Provide(i, ProvideMetricsRegistry)
	do.Provide(i, provideMetrics(store.NewMetrics))
	do.Provide(i, provideMetrics(breaker.NewMetrics))
	do.Provide(i, provideMetrics(limiter.NewMetrics))
	do.Provide(i, provideMetrics(forwarder.NewMetrics))
	do.Provide(i, provideMetrics(kafka.NewMetrics))
	do.Provide(i, ProvideHTTPMetrics)

	do.Provide(i, ProvideStoreManager(app.storeOpts...))
	do.Provide(i, ProvideStore)
	do.Provide(i, ProvideStoreMonitor)
	do.Provide(i, ProvideBreaker)
	do.ProvideNamed(i, forwarderBreakerName, ProvideForwarderBreaker)
	do.Provide(i, ProvideSlidingWindowLimiter)
	do.Provide(i, ProvideTokenBucketLimiter)
	do.Provide(i, ProvideResolver)
	do.Provide(i, ProvideGate)
	do.Provide(i, ProvideVerifier)
	do.Provide(i, ProvideKafkaManager(app.kafkaOpts...))
	do.Provide(i, ProvideForwarder)
	do.Provide(i, ProvideHealth)

	app.logger = moduleLogger(i, cfg.App.Name)
	app.logger.Info("Application setting up",
		zap.String("name", cfg.App.Name),
		zap.String("version", cfg.App.Version),
		zap.String("config_path", app.configOpts.ConfigPath),
	)
	return nil
}

// Start builds the eager components: telemetry, store, gate and health, plus
// the forwarder and verifier when enabled.
func (app *Application) Start(ctx context.Context) error {
	i := app.injector
	if _, err := do.Invoke[*telemetry.Manager](i); err != nil {
		return fmt.Errorf("start telemetry: %w", err)
	}
	if _, err := do.Invoke[*store.Monitor](i); err != nil {
		return fmt.Errorf("start store monitor: %w", err)
	}
	if _, err := do.Invoke[*admission.Gate](i); err != nil {
		return fmt.Errorf("build admission gate: %w", err)
	}
	if app.config.Kafka.Enabled {
		if _, err := do.Invoke[*forwarder.QueueForwarder](i); err != nil {
			return fmt.Errorf("build forwarder: %w", err)
		}
	}
	if app.config.Auth.Enabled {
		if _, err := do.Invoke[*jwt.Verifier](i); err != nil {
			return fmt.Errorf("build verifier: %w", err)
		}
	}
	if _, err := do.Invoke[*health.Aggregator](i); err != nil {
		return fmt.Errorf("build health: %w", err)
	}

	app.setState(StateRunning)
	app.logger.InfoCtx(ctx, "Application started",
		zap.String("store", app.Store().Name()),
		zap.Bool("kafka", app.config.Kafka.Enabled),
		zap.String("on_store_failure", app.config.Admission.OnStoreFailure),
	)
	return nil
}

// Shutdown closes every built component in reverse dependency order
func (app *Application) Shutdown(ctx context.Context) error {
	app.setState(StateStopping)
	app.logger.InfoCtx(ctx, "Application shutting down")

	var errs []error
	if report := app.injector.Shutdown(); report != nil && !report.Succeed {
		app.logger.WarnCtx(ctx, "Injector shutdown failed", zap.Error(report))
		errs = append(errs, report)
	}

	app.setState(StateStopped)
	app.logger.InfoCtx(ctx, "Application stopped")
	return errors.Join(errs...)
}

// Breaker returns the breaker of the request-path limiters
func (app *Application) Breaker() *breaker.CircuitBreaker {
	return do.MustInvoke[*breaker.CircuitBreaker](app.injector)
}

// ForwarderBreaker returns the forwarder's own breaker
func (app *Application) ForwarderBreaker() *breaker.CircuitBreaker {
	return do.MustInvokeNamed[*breaker.CircuitBreaker](app.injector, forwarderBreakerName)
}

func (app *Application) Gate() *admission.Gate {
	return do.MustInvoke[*admission.Gate](app.injector)
}

func (app *Application) Store() store.Store {
	return do.MustInvoke[store.Store](app.injector)
}

// Forwarder returns ErrQueueDisabled when kafka is not enabled
func (app *Application) Forwarder() (*forwarder.QueueForwarder, error) {
	if !app.config.Kafka.Enabled {
		return nil, ErrQueueDisabled
	}
	return do.Invoke[*forwarder.QueueForwarder](app.injector)
}

// Verifier returns ErrAuthDisabled when bearer auth is not enabled
func (app *Application) Verifier() (*jwt.Verifier, error) {
	if !app.config.Auth.Enabled {
		return nil, ErrAuthDisabled
	}
	return do.Invoke[*jwt.Verifier](app.injector)
}

func (app *Application) Health() *health.Aggregator {
	return do.MustInvoke[*health.Aggregator](app.injector)
}

func (app *Application) HTTPMetrics() *middleware.HTTPMetrics {
	return do.MustInvoke[*middleware.HTTPMetrics](app.injector)
}

func (app *Application) Telemetry() *telemetry.Manager {
	return do.MustInvoke[*telemetry.Manager](app.injector)
}

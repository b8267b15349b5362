package store

import (
	"context"
	"fmt"
	"time"

	"github.com/chrlshc/Huntaze-sub010/logger"
	"github.com/chrlshc/Huntaze-sub010/retry"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Manager owns the store connection and picks the implementation exactly once
type Manager struct {
	cfg     Config
	store   Store
	client  redis.UniversalClient
	metrics *Metrics
	logger  *logger.CtxZapLogger
}

// Option customises NewManager
type Option func(*Manager)

// WithClient injects a ready client instead of dialing Config.Addrs
func WithClient(client redis.UniversalClient) Option {
	return func(m *Manager) { m.client = client }
}

// WithMetrics attaches command metrics to the live client
func WithMetrics(metrics *Metrics) Option {
	return func(m *Manager) { m.metrics = metrics }
}

// NewManager selects RedisStore when the store is enabled and UnavailableStore
// otherwise. A failed startup ping keeps the live store (the breaker absorbs
// transient outages) unless RequireOnStart is set.
func NewManager(ctx context.Context, cfg Config, log *logger.CtxZapLogger, opts ...Option) (*Manager, error) {
	if log == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	m := &Manager{cfg: cfg, logger: log}
	for _, opt := range opts {
		opt(m)
	}

	if !cfg.Enabled {
		m.store = NewUnavailableStore("store disabled by configuration")
		m.logger.WarnCtx(ctx, "Shared store disabled, limiters will fail open and the forwarder will fail closed")
		return m, nil
	}

	if m.client == nil {
		m.client = newClient(cfg)
	}
	if m.metrics != nil {
		m.client.AddHook(NewMetricsHook(m.metrics, cfg.Mode))
	}

	err := retry.Do(ctx, func(ctx context.Context) error {
		return m.client.Ping(ctx).Err()
	},
		retry.MaxAttempts(cfg.StartupAttempts),
		retry.WithBackoff(retry.Exponential(200*time.Millisecond, retry.WithMaxDelay(2*time.Second))),
		retry.OnRetry(func(attempt int, err error, wait time.Duration) {
			m.logger.WarnCtx(ctx, "Shared store ping failed, retrying",
				zap.Int("attempt", attempt), zap.Duration("wait", wait), zap.Error(err))
		}),
	)
	if err != nil {
		if cfg.RequireOnStart {
			_ = m.client.Close()
			return nil, ErrStoreUnavailable.Wrap(err)
		}
		m.logger.WarnCtx(ctx, "Shared store ping failed at startup, keeping live client",
			zap.Strings("addrs", cfg.Addrs), zap.Error(err))
	} else {
		m.logger.DebugCtx(ctx, "Shared store connected",
			zap.String("mode", cfg.Mode), zap.Strings("addrs", cfg.Addrs))
	}

	m.store = NewRedisStore(m.client, cfg.KeyPrefix)
	return m, nil
}

func newClient(cfg Config) redis.UniversalClient {
	if cfg.Mode == "cluster" {
		return redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:        cfg.Addrs,
			Password:     cfg.Password,
			PoolSize:     cfg.PoolSize,
			MinIdleConns: cfg.MinIdleConns,
			MaxRetries:   cfg.MaxRetries,
			DialTimeout:  cfg.DialTimeout,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		})
	}
	return redis.NewClient(&redis.Options{
		Addr:         cfg.Addrs[0],
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})
}

// Store returns the implementation chosen at construction
func (m *Manager) Store() Store {
	return m.store
}

// Config returns the effective configuration
func (m *Manager) Config() Config {
	return m.cfg
}

// Close releases the connection pool
func (m *Manager) Close() error {
	if m.store == nil {
		return nil
	}
	return m.store.Close()
}

// Shutdown implements do.ShutdownerWithError
func (m *Manager) Shutdown() error {
	return m.Close()
}

package store

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chrlshc/Huntaze-sub010/logger"
	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

// Monitor pings the store on a schedule and logs availability transitions.
// It only observes: the store selection made at construction never changes.
type Monitor struct {
	store     Store
	interval  time.Duration
	timeout   time.Duration
	scheduler gocron.Scheduler
	logger    *logger.CtxZapLogger

	healthy  atomic.Bool
	mu       sync.Mutex
	started  bool
	onChange func(healthy bool)
}

// MonitorOption customises a Monitor
type MonitorOption func(*Monitor)

// WithOnChange registers a callback fired on every availability transition
func WithOnChange(fn func(healthy bool)) MonitorOption {
	return func(m *Monitor) { m.onChange = fn }
}

// WithProbeTimeout bounds each ping
func WithProbeTimeout(d time.Duration) MonitorOption {
	return func(m *Monitor) { m.timeout = d }
}

// NewMonitor creates a stopped monitor. The store starts as healthy when live.
func NewMonitor(s Store, interval time.Duration, log *logger.CtxZapLogger, opts ...MonitorOption) (*Monitor, error) {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	m := &Monitor{
		store:     s,
		interval:  interval,
		timeout:   time.Second,
		scheduler: scheduler,
		logger:    log,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.healthy.Store(s.Available())
	return m, nil
}

// Start schedules the probe. A disabled store is never probed.
func (m *Monitor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started || !m.store.Available() || m.interval <= 0 {
		return nil
	}

	_, err := m.scheduler.NewJob(
		gocron.DurationJob(m.interval),
		gocron.NewTask(func() { m.probe(context.Background()) }),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithName("store-health"),
	)
	if err != nil {
		return err
	}
	m.scheduler.Start()
	m.started = true
	return nil
}

// Stop shuts the scheduler down
func (m *Monitor) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = false
	return m.scheduler.Shutdown()
}

// Healthy returns the result of the last probe
func (m *Monitor) Healthy() bool {
	return m.healthy.Load()
}

func (m *Monitor) probe(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	err := m.store.Ping(ctx)
	healthy := err == nil
	if m.healthy.Swap(healthy) == healthy {
		return
	}

	if healthy {
		m.logger.InfoCtx(ctx, "Shared store reachable again", zap.String("store", m.store.Name()))
	} else {
		m.logger.WarnCtx(ctx, "Shared store unreachable", zap.String("store", m.store.Name()), zap.Error(err))
	}
	if m.onChange != nil {
		m.onChange(healthy)
	}
}

// Shutdown implements do.ShutdownerWithError
func (m *Monitor) Shutdown() error {
	return m.Stop()
}

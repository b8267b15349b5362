package breaker

import (
	"context"
	"errors"
	"sync"

	"github.com/chrlshc/Huntaze-sub010/logger"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// Call is the protected operation
type Call func(ctx context.Context) (interface{}, error)

// Fallback answers instead of Call. cause is ErrCircuitOpen when the call was
// skipped, or the call's own error when it failed.
type Fallback func(ctx context.Context, cause error) (interface{}, error)

// CircuitBreaker guards one call site in this process
type CircuitBreaker struct {
	name      string
	cfg       Config
	clock     clockwork.Clock
	bus       EventBus
	ownsBus   bool
	metrics   *Metrics
	logger    *logger.CtxZapLogger
	isFailure func(error) bool

	mu    sync.Mutex
	stats Stats
}

// Option customises a CircuitBreaker
type Option func(*CircuitBreaker)

// WithClock replaces the wall clock, e.g. with clockwork.NewFakeClock in tests
func WithClock(clock clockwork.Clock) Option {
	return func(cb *CircuitBreaker) { cb.clock = clock }
}

// WithEventBus publishes on a shared bus instead of a private one
func WithEventBus(bus EventBus) Option {
	return func(cb *CircuitBreaker) { cb.bus = bus }
}

// WithMetrics records calls, rejections and state
func WithMetrics(m *Metrics) Option {
	return func(cb *CircuitBreaker) { cb.metrics = m }
}

// WithLogger logs transitions
func WithLogger(l *logger.CtxZapLogger) Option {
	return func(cb *CircuitBreaker) { cb.logger = l }
}

// WithFailurePredicate decides which call errors count against the circuit.
// The default counts every error except the caller cancelling its own context.
func WithFailurePredicate(fn func(error) bool) Option {
	return func(cb *CircuitBreaker) { cb.isFailure = fn }
}

// New creates a closed breaker
func New(name string, cfg Config, opts ...Option) (*CircuitBreaker, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cb := &CircuitBreaker{
		name:      name,
		cfg:       cfg,
		clock:     clockwork.NewRealClock(),
		logger:    logger.NewNop(),
		isFailure: defaultIsFailure,
		stats:     Stats{State: StateClosed},
	}
	for _, opt := range opts {
		opt(cb)
	}
	if cb.bus == nil {
		cb.bus = NewEventBus(cfg.EventBusBuffer)
		cb.ownsBus = true
	}
	if cb.metrics != nil {
		cb.metrics.RegisterStateCallback(name, func() int64 { return int64(cb.State()) })
	}
	return cb, nil
}

func defaultIsFailure(err error) bool {
	return !errors.Is(err, context.Canceled)
}

// Execute runs call unless the circuit is open.
//
//   - closed: success zeroes the failure count, a failure increments it and
//     opens the circuit at FailureThreshold
//   - open: fallback with ErrCircuitOpen until ResetTimeout has elapsed since
//     the last failure, then the circuit goes half-open and call runs
//   - half-open: HalfOpenSuccessThreshold successes close, any failure re-opens
//
// A failed call is answered by fallback when one is given, otherwise its error
// is returned.
func (cb *CircuitBreaker) Execute(ctx context.Context, call Call, fallback Fallback) (interface{}, error) {
	if !cb.allow(ctx) {
		cb.bus.Publish(&RejectedEvent{
			BaseEvent: newBaseEvent(EventCallRejected, cb.name, cb.clock.Now()),
			State:     StateOpen,
		})
		cb.metrics.recordRejection(ctx, cb.name)
		return cb.fallback(ctx, fallback, ErrCircuitOpen)
	}

	result, err := call(ctx)
	if err == nil {
		cb.onSuccess(ctx)
		cb.metrics.recordCall(ctx, cb.name, true)
		return result, nil
	}
	if !cb.isFailure(err) {
		return result, err
	}

	cb.onFailure(ctx)
	cb.metrics.recordCall(ctx, cb.name, false)
	return cb.fallback(ctx, fallback, err)
}

// Run is the typed form of Execute
func Run[T any](ctx context.Context, cb *CircuitBreaker, call func(context.Context) (T, error),
	fallback func(context.Context, error) (T, error)) (T, error) {
	var fb Fallback
	if fallback != nil {
		fb = func(ctx context.Context, cause error) (interface{}, error) {
			return fallback(ctx, cause)
		}
	}
	res, err := cb.Execute(ctx, func(ctx context.Context) (interface{}, error) {
		return call(ctx)
	}, fb)

	var zero T
	if res == nil {
		return zero, err
	}
	typed, ok := res.(T)
	if !ok {
		return zero, err
	}
	return typed, err
}

// allow resolves the lazy open -> half-open transition
func (cb *CircuitBreaker) allow(ctx context.Context) bool {
	cb.mu.Lock()
	if cb.stats.State != StateOpen {
		cb.mu.Unlock()
		return true
	}
	if cb.clock.Since(cb.stats.LastFailureTime) < cb.cfg.ResetTimeout {
		cb.mu.Unlock()
		return false
	}
	ev := cb.transitionLocked(StateHalfOpen, "reset timeout elapsed")
	cb.mu.Unlock()

	cb.emit(ctx, ev)
	return true
}

func (cb *CircuitBreaker) onSuccess(ctx context.Context) {
	cb.mu.Lock()
	var ev *StateChangedEvent
	switch cb.stats.State {
	case StateClosed:
		cb.stats.FailureCount = 0
	case StateHalfOpen:
		cb.stats.SuccessCount++
		if cb.stats.SuccessCount >= cb.cfg.HalfOpenSuccessThreshold {
			cb.stats.FailureCount = 0
			cb.stats.SuccessCount = 0
			ev = cb.transitionLocked(StateClosed, "half-open success threshold reached")
		}
	}
	cb.mu.Unlock()

	cb.emit(ctx, ev)
}

func (cb *CircuitBreaker) onFailure(ctx context.Context) {
	cb.mu.Lock()
	var ev *StateChangedEvent
	now := cb.clock.Now()
	switch cb.stats.State {
	case StateClosed:
		cb.stats.FailureCount++
		cb.stats.LastFailureTime = now
		if cb.stats.FailureCount >= cb.cfg.FailureThreshold {
			ev = cb.transitionLocked(StateOpen, "failure threshold reached")
		}
	case StateHalfOpen:
		cb.stats.LastFailureTime = now
		cb.stats.SuccessCount = 0
		ev = cb.transitionLocked(StateOpen, "failure while half-open")
	case StateOpen:
		// a call admitted before the circuit opened finished late; the reset
		// timeout still counts from the failure that opened it
	}
	cb.mu.Unlock()

	cb.emit(ctx, ev)
}

func (cb *CircuitBreaker) fallback(ctx context.Context, fallback Fallback, cause error) (interface{}, error) {
	if fallback == nil {
		return nil, cause
	}
	res, err := fallback(ctx, cause)
	cb.bus.Publish(&FallbackEvent{
		BaseEvent: newBaseEvent(EventFallback, cb.name, cb.clock.Now()),
		Cause:     cause,
		Err:       err,
	})
	return res, err
}

// transitionLocked must be called with cb.mu held
func (cb *CircuitBreaker) transitionLocked(to State, reason string) *StateChangedEvent {
	from := cb.stats.State
	cb.stats.State = to
	return &StateChangedEvent{
		BaseEvent: newBaseEvent(EventStateChanged, cb.name, cb.clock.Now()),
		FromState: from,
		ToState:   to,
		Reason:    reason,
		Stats:     cb.stats,
	}
}

func (cb *CircuitBreaker) emit(ctx context.Context, ev *StateChangedEvent) {
	if ev == nil {
		return
	}
	cb.logger.WarnCtx(ctx, "Circuit breaker state changed",
		zap.String("breaker", cb.name),
		zap.String("from", ev.FromState.String()),
		zap.String("to", ev.ToState.String()),
		zap.String("reason", ev.Reason),
		zap.Int("failures", ev.Stats.FailureCount))
	cb.bus.Publish(ev)
}

// GetStats returns a snapshot of the counters
func (cb *CircuitBreaker) GetStats() Stats {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.stats
}

// State returns the current state without resolving a pending half-open
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.stats.State
}

// Reset forces the circuit closed with every counter zeroed
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	from := cb.stats.State
	cb.stats = Stats{State: StateClosed}
	var ev *StateChangedEvent
	if from != StateClosed {
		ev = &StateChangedEvent{
			BaseEvent: newBaseEvent(EventStateChanged, cb.name, cb.clock.Now()),
			FromState: from,
			ToState:   StateClosed,
			Reason:    "manual reset",
			Stats:     cb.stats,
		}
	}
	cb.mu.Unlock()

	cb.emit(context.Background(), ev)
}

// Name returns the call site name
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// Config returns the effective configuration
func (cb *CircuitBreaker) Config() Config {
	return cb.cfg
}

// GetEventBus returns the bus events are published on
func (cb *CircuitBreaker) GetEventBus() EventBus {
	return cb.bus
}

// Close stops a private event bus; a shared bus belongs to its creator
func (cb *CircuitBreaker) Close() {
	if cb.metrics != nil {
		cb.metrics.UnregisterStateCallback(cb.name)
	}
	if cb.ownsBus {
		cb.bus.Close()
	}
}

// Shutdown implements do.Shutdowner
func (cb *CircuitBreaker) Shutdown() {
	cb.Close()
}

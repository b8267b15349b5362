// Package limiter implements the distributed rate limiters.
//
// Every check is one Lua script evaluated on the shared store, so the count or
// refill, the decision and the write happen in a single atomic round trip no
// matter how many processes share the key. Calls into the store go through a
// process-local circuit breaker when one is configured.
//
// When the store cannot answer, the limiter's FailurePolicy decides:
//   - FailOpen returns an allowed Result with Degraded set and Limit 0
//   - FailClosed returns ErrStoreUnavailable
package limiter

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/chrlshc/Huntaze-sub010/breaker"
	"github.com/chrlshc/Huntaze-sub010/errcode"
	"github.com/chrlshc/Huntaze-sub010/logger"
	"github.com/chrlshc/Huntaze-sub010/store"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// ModuleCode for limiter errors: 23xxxx
const ModuleCode = 23

var (
	// ErrRateLimitExceeded is the structured denial surfaced to HTTP callers
	ErrRateLimitExceeded = errcode.Register(errcode.New(
		ModuleCode, 1, "limiter", "RATE_LIMIT_EXCEEDED", "rate limit exceeded",
		http.StatusTooManyRequests,
	))

	// ErrInvalidArgument rejects a non-positive limit, window, capacity or rate
	ErrInvalidArgument = errcode.Register(errcode.New(
		ModuleCode, 2, "limiter", "LIMITER_INVALID_ARGUMENT", "invalid limiter argument",
		http.StatusInternalServerError,
	))
)

// FailurePolicy decides the answer when the store is unreachable
type FailurePolicy int

const (
	// FailOpen admits the request unmeasured
	FailOpen FailurePolicy = iota

	// FailClosed surfaces ErrStoreUnavailable
	FailClosed
)

func (p FailurePolicy) String() string {
	if p == FailClosed {
		return "fail-closed"
	}
	return "fail-open"
}

// Result of one admission check
type Result struct {
	Allowed bool

	// Limit is the configured limit or capacity; 0 means the check was not measured
	Limit int64

	// Remaining is the quota left after this check. Token buckets report fractions.
	Remaining float64

	// ResetAt is when the caller can expect capacity again
	ResetAt time.Time

	// RetryAfter is set on denial
	RetryAfter time.Duration

	// Degraded marks a fail-open answer given without the store
	Degraded bool
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds, at least 1 on denial
func (r Result) RetryAfterSeconds() int64 {
	if r.Allowed {
		return 0
	}
	secs := int64(math.Ceil(r.RetryAfter.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return secs
}

// Err returns ErrRateLimitExceeded carrying the retry hint, or nil when allowed
func (r Result) Err() error {
	if r.Allowed {
		return nil
	}
	return ErrRateLimitExceeded.WithData("retry_after", r.RetryAfterSeconds())
}

type options struct {
	clock   clockwork.Clock
	breaker *breaker.CircuitBreaker
	logger  *logger.CtxZapLogger
	metrics *Metrics
	policy  FailurePolicy
}

// Option customises a limiter
type Option func(*options)

// WithClock supplies the clock whose time is sent to the store scripts
func WithClock(clock clockwork.Clock) Option {
	return func(o *options) { o.clock = clock }
}

// WithBreaker routes store calls through cb
func WithBreaker(cb *breaker.CircuitBreaker) Option {
	return func(o *options) { o.breaker = cb }
}

func WithLogger(l *logger.CtxZapLogger) Option {
	return func(o *options) { o.logger = l }
}

func WithMetrics(m *Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithFailurePolicy overrides the default FailOpen
func WithFailurePolicy(p FailurePolicy) Option {
	return func(o *options) { o.policy = p }
}

func buildOptions(opts []Option) options {
	o := options{
		clock:  clockwork.NewRealClock(),
		logger: logger.NewNop(),
		policy: FailOpen,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// runner evaluates scripts against the store, through the breaker when set
type runner struct {
	name  string
	store store.Store
	options
}

func (r *runner) eval(ctx context.Context, script *store.Script, keys []string, args ...interface{}) (interface{}, error) {
	call := func(ctx context.Context) (interface{}, error) {
		return r.store.Eval(ctx, script, keys, args...)
	}
	// the null store never reaches the breaker; its absence is not a failure
	if r.breaker == nil || !r.store.Available() {
		return call(ctx)
	}
	return r.breaker.Execute(ctx, call, func(ctx context.Context, cause error) (interface{}, error) {
		return nil, store.ErrStoreUnavailable.Wrap(cause)
	})
}

// degrade resolves a store failure according to the failure policy.
// A cancelled caller gets its own error back.
func (r *runner) degrade(ctx context.Context, key string, err error, res Result) (Result, error) {
	if errors.Is(err, context.Canceled) {
		return Result{}, err
	}
	if r.policy == FailClosed {
		r.metrics.recordCheck(ctx, r.name, "unavailable")
		r.logger.WarnCtx(ctx, "Store unavailable, denying by policy",
			zap.String("limiter", r.name),
			zap.String("key", key),
			zap.Error(err))
		if errors.Is(err, store.ErrStoreUnavailable) {
			return Result{}, err
		}
		return Result{}, store.ErrStoreUnavailable.Wrap(err)
	}

	r.metrics.recordCheck(ctx, r.name, "degraded")
	r.logger.WarnCtx(ctx, "Store unavailable, admitting unmeasured",
		zap.String("limiter", r.name),
		zap.String("key", key),
		zap.Error(err))
	res.Allowed = true
	res.Limit = 0
	res.Degraded = true
	return res, nil
}

func (r *runner) record(ctx context.Context, res Result) {
	outcome := "allowed"
	if !res.Allowed {
		outcome = "denied"
	}
	r.metrics.recordCheck(ctx, r.name, outcome)
}

// parseReply reads the {allowed, number} pair every check script returns
func parseReply(reply interface{}) (bool, float64, error) {
	fields, ok := reply.([]interface{})
	if !ok || len(fields) != 2 {
		return false, 0, store.ErrUnexpectedReply.WithMsgf("unexpected store reply: %v", reply)
	}
	flag, ok := fields[0].(int64)
	if !ok {
		return false, 0, store.ErrUnexpectedReply.WithMsgf("unexpected admission flag: %v", fields[0])
	}
	n, err := parseNumber(fields[1])
	if err != nil {
		return false, 0, err
	}
	return flag == 1, n, nil
}

// parseNumber accepts integer replies and the strings scripts use for floats
func parseNumber(v interface{}) (float64, error) {
	switch n := v.(type) {
	case int64:
		return float64(n), nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, store.ErrUnexpectedReply.Wrap(err)
		}
		return f, nil
	default:
		return 0, store.ErrUnexpectedReply.WithMsgf("unexpected numeric reply: %v", v)
	}
}

func invalidArgument(format string, args ...interface{}) error {
	return ErrInvalidArgument.WithMsgf(format, args...)
}

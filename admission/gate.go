// Package admission composes policy resolution with the limiters into one
// decision per request.
package admission

import (
	"context"
	"time"

	"github.com/chrlshc/Huntaze-sub010/limiter"
	"github.com/chrlshc/Huntaze-sub010/logger"
	"github.com/chrlshc/Huntaze-sub010/policy"
	"go.uber.org/zap"
)

const (
	defaultRoute = "default"

	day = 24 * time.Hour
)

// Decision is the admission answer for one request
type Decision struct {
	Allowed bool

	// Limit is the most restrictive limit that applied; 0 when unmeasured
	Limit int64

	// Remaining is the quota left in the most restrictive window, rounded down
	Remaining int64

	ResetAt time.Time

	// RetryAfter is whole seconds, set on denial
	RetryAfter int64

	// Degraded marks an admission made without the store
	Degraded bool

	// Route is the matched route, "default" when none matched
	Route string

	Algorithm policy.Algorithm
}

// Err returns limiter.ErrRateLimitExceeded carrying the retry hint, or nil
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return limiter.ErrRateLimitExceeded.WithData("retry_after", d.RetryAfter)
}

// Gate resolves the policy for a request and enforces it
type Gate struct {
	resolver *policy.Resolver
	windows  *limiter.SlidingWindowLimiter
	buckets  *limiter.TokenBucketLimiter
	logger   *logger.CtxZapLogger
}

// NewGate builds a gate. A nil log discards logs.
func NewGate(resolver *policy.Resolver, windows *limiter.SlidingWindowLimiter,
	buckets *limiter.TokenBucketLimiter, log *logger.CtxZapLogger) *Gate {
	if log == nil {
		log = logger.NewNop()
	}
	return &Gate{resolver: resolver, windows: windows, buckets: buckets, logger: log}
}

// Admit decides whether the caller identified by key may call path now.
//
// Sliding-window policies check every configured window (minute, hour, day)
// and admit only when all of them do. Token-bucket policies use capacity
// perMinute+burst refilled at perMinute per minute.
func (g *Gate) Admit(ctx context.Context, key, path, tier string) (Decision, error) {
	p := g.resolver.Resolve(path, tier)
	route := g.resolver.Match(path)
	if route == "" {
		route = defaultRoute
	}
	rateKey := key + ":" + route

	var (
		res limiter.Result
		err error
	)
	switch p.EffectiveAlgorithm() {
	case policy.AlgorithmTokenBucket:
		capacity := p.PerMinute + p.BurstOrZero()
		res, err = g.buckets.Check(ctx, rateKey, capacity, float64(p.PerMinute)/60)
	default:
		var results []limiter.Result
		results, err = g.windows.CheckMultipleWindows(ctx, rateKey, Windows(p))
		res = limiter.Combine(results)
	}
	if err != nil {
		return Decision{}, err
	}

	d := Decision{
		Allowed:    res.Allowed,
		Limit:      res.Limit,
		Remaining:  int64(res.Remaining),
		ResetAt:    res.ResetAt,
		RetryAfter: res.RetryAfterSeconds(),
		Degraded:   res.Degraded,
		Route:      route,
		Algorithm:  p.EffectiveAlgorithm(),
	}
	if !d.Allowed {
		g.logger.InfoCtx(ctx, "Request rate limited",
			zap.String("key", key),
			zap.String("route", route),
			zap.String("tier", tier),
			zap.Int64("retry_after", d.RetryAfter))
	} else {
		g.logger.DebugCtx(ctx, "Request admitted",
			zap.String("key", key),
			zap.String("route", route),
			zap.Int64("remaining", d.Remaining),
			zap.Bool("degraded", d.Degraded))
	}
	return d, nil
}

// Windows maps a policy onto its rolling windows
func Windows(p policy.RateLimitPolicy) []limiter.Window {
	windows := []limiter.Window{{Limit: p.PerMinute, Duration: time.Minute}}
	if p.PerHour != nil {
		windows = append(windows, limiter.Window{Limit: *p.PerHour, Duration: time.Hour})
	}
	if p.PerDay != nil {
		windows = append(windows, limiter.Window{Limit: *p.PerDay, Duration: day})
	}
	return windows
}

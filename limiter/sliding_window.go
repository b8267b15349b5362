package limiter

import (
	"context"
	"strconv"
	"time"

	"github.com/chrlshc/Huntaze-sub010/store"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// slidingWindowScript drops entries that left the window, counts the rest and
// records this attempt only when the count is under the limit.
// KEYS[1] window zset, KEYS[2] index of the key's windows
// ARGV: now ms, window ms, limit, member
var slidingWindowScript = store.NewScript("sliding_window_check", `
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', now - window)
local count = redis.call('ZCARD', KEYS[1])

redis.call('SADD', KEYS[2], KEYS[1])
if redis.call('PTTL', KEYS[2]) < window then
	redis.call('PEXPIRE', KEYS[2], window)
end

if count < limit then
	redis.call('ZADD', KEYS[1], now, ARGV[4])
	redis.call('PEXPIRE', KEYS[1], window)
	return {1, limit - count - 1}
end
return {0, 0}
`)

// slidingWindowResetScript deletes every window recorded for a key
// KEYS[1] index of the key's windows
var slidingWindowResetScript = store.NewScript("sliding_window_reset", `
local windows = redis.call('SMEMBERS', KEYS[1])
for _, w in ipairs(windows) do
	redis.call('DEL', w)
end
redis.call('DEL', KEYS[1])
return #windows
`)

// Window is one rolling limit
type Window struct {
	Limit    int64
	Duration time.Duration
}

// SlidingWindowLimiter counts admitted requests inside trailing windows
type SlidingWindowLimiter struct {
	runner
}

// NewSlidingWindowLimiter defaults to FailOpen
func NewSlidingWindowLimiter(s store.Store, opts ...Option) *SlidingWindowLimiter {
	return &SlidingWindowLimiter{runner: runner{name: "sliding_window", store: s, options: buildOptions(opts)}}
}

// windowKey hash-tags the caller key so every window of one key lands on the
// same cluster slot as its index
func windowKey(key string, window time.Duration) string {
	return "sw:{" + key + "}:" + strconv.FormatInt(window.Milliseconds(), 10)
}

func windowIndexKey(key string) string {
	return "sw:{" + key + "}:idx"
}

// Check admits when fewer than limit attempts were admitted during the last
// window. ResetAt is now+window, an upper bound rather than the exact expiry
// of the oldest entry.
func (l *SlidingWindowLimiter) Check(ctx context.Context, key string, limit int64, window time.Duration) (Result, error) {
	if limit <= 0 || window < time.Millisecond {
		return Result{}, invalidArgument("sliding window needs limit > 0 and window >= 1ms, got %d/%s", limit, window)
	}

	now := l.clock.Now()
	resetAt := now.Add(window)
	fallback := Result{Remaining: float64(limit), ResetAt: resetAt}

	reply, err := l.eval(ctx, slidingWindowScript,
		[]string{windowKey(key, window), windowIndexKey(key)},
		now.UnixMilli(), window.Milliseconds(), limit, uuid.NewString())
	if err != nil {
		return l.degrade(ctx, key, err, fallback)
	}
	allowed, remaining, err := parseReply(reply)
	if err != nil {
		return l.degrade(ctx, key, err, fallback)
	}

	res := Result{
		Allowed:   allowed,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   resetAt,
	}
	if !allowed {
		res.RetryAfter = window
	}
	l.record(ctx, res)
	return res, nil
}

// CheckMultipleWindows evaluates every window independently and concurrently.
// Results follow the order of windows; combining them is up to the caller.
func (l *SlidingWindowLimiter) CheckMultipleWindows(ctx context.Context, key string, windows []Window) ([]Result, error) {
	results := make([]Result, len(windows))
	g, gctx := errgroup.WithContext(ctx)
	for i, w := range windows {
		i, w := i, w
		g.Go(func() error {
			res, err := l.Check(gctx, key, w.Limit, w.Duration)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Reset forgets every window recorded for key
func (l *SlidingWindowLimiter) Reset(ctx context.Context, key string) error {
	_, err := l.eval(ctx, slidingWindowResetScript, []string{windowIndexKey(key)})
	return err
}

// Combine ANDs window results: allowed only when every window allows, with the
// most restrictive remaining quota and the latest retry hint
func Combine(results []Result) Result {
	if len(results) == 0 {
		return Result{Allowed: true}
	}
	combined := results[0]
	for _, r := range results[1:] {
		combined.Allowed = combined.Allowed && r.Allowed
		combined.Degraded = combined.Degraded || r.Degraded
		if r.Remaining < combined.Remaining {
			combined.Remaining = r.Remaining
			combined.Limit = r.Limit
		}
		if r.RetryAfter > combined.RetryAfter {
			combined.RetryAfter = r.RetryAfter
		}
		if r.ResetAt.After(combined.ResetAt) {
			combined.ResetAt = r.ResetAt
		}
	}
	if combined.Allowed {
		combined.RetryAfter = 0
	}
	return combined
}

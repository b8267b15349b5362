package limiter

import (
	"context"
	"math"
	"time"

	"github.com/chrlshc/Huntaze-sub010/store"
)

// refillLua brings tokens up to date. lastRefillAt never moves backwards, so a
// caller whose clock runs behind gets no refill instead of a negative one.
const refillLua = `
local capacity = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local now = tonumber(ARGV[3])

local state = redis.call('HMGET', KEYS[1], 'tokens', 'ts')
local tokens = tonumber(state[1])
local ts = tonumber(state[2])
if tokens == nil or ts == nil then
	tokens = capacity
	ts = now
end
if now > ts then
	tokens = math.min(capacity, tokens + (now - ts) / 1000 * rate)
	ts = now
end
tokens = math.max(0, math.min(capacity, tokens))
`

// tokenBucketScript consumes one token when at least one is available.
// KEYS[1] bucket hash. ARGV: capacity, refill per second, now ms, ttl ms
var tokenBucketScript = store.NewScript("token_bucket_check", refillLua+`
if tokens >= 1 then
	tokens = tokens - 1
	redis.call('HSET', KEYS[1], 'tokens', tostring(tokens), 'ts', tostring(ts))
	redis.call('PEXPIRE', KEYS[1], tonumber(ARGV[4]))
	return {1, tostring(tokens)}
end
return {0, tostring(tokens)}
`)

// tokenBucketPeekScript reports the refilled level without writing
var tokenBucketPeekScript = store.NewScript("token_bucket_peek", refillLua+`
return {1, tostring(tokens)}
`)

// tokenBucketSetScript overwrites the level, clamped to [0, capacity]
// ARGV: capacity, refill per second, now ms, ttl ms, tokens
var tokenBucketSetScript = store.NewScript("token_bucket_set", `
local capacity = tonumber(ARGV[1])
local tokens = math.max(0, math.min(capacity, tonumber(ARGV[5])))
redis.call('HSET', KEYS[1], 'tokens', tostring(tokens), 'ts', ARGV[3])
redis.call('PEXPIRE', KEYS[1], tonumber(ARGV[4]))
return {1, tostring(tokens)}
`)

var tokenBucketResetScript = store.NewScript("token_bucket_reset", `
return {redis.call('DEL', KEYS[1]), 0}
`)

// TokenBucketLimiter refills continuously at a fixed rate up to capacity
type TokenBucketLimiter struct {
	runner
}

// NewTokenBucketLimiter defaults to FailOpen
func NewTokenBucketLimiter(s store.Store, opts ...Option) *TokenBucketLimiter {
	return &TokenBucketLimiter{runner: runner{name: "token_bucket", store: s, options: buildOptions(opts)}}
}

func bucketKey(key string) string {
	return "tb:{" + key + "}"
}

// bucketTTL outlives a full refill; an expired bucket reads back as full
func bucketTTL(capacity int64, refillPerSecond float64) int64 {
	return int64(math.Ceil(float64(capacity)/refillPerSecond*1000)) + 1000
}

func validateBucket(capacity int64, refillPerSecond float64) error {
	if capacity <= 0 || !(refillPerSecond > 0) || math.IsInf(refillPerSecond, 0) {
		return invalidArgument("token bucket needs capacity > 0 and refill > 0, got %d/%v", capacity, refillPerSecond)
	}
	return nil
}

// Check consumes one token. A denial reports when the next whole token will
// have refilled.
func (l *TokenBucketLimiter) Check(ctx context.Context, key string, capacity int64, refillPerSecond float64) (Result, error) {
	if err := validateBucket(capacity, refillPerSecond); err != nil {
		return Result{}, err
	}

	now := l.clock.Now()
	fallback := Result{Remaining: float64(capacity), ResetAt: now}

	reply, err := l.eval(ctx, tokenBucketScript, []string{bucketKey(key)},
		capacity, refillPerSecond, now.UnixMilli(), bucketTTL(capacity, refillPerSecond))
	if err != nil {
		return l.degrade(ctx, key, err, fallback)
	}
	allowed, tokens, err := parseReply(reply)
	if err != nil {
		return l.degrade(ctx, key, err, fallback)
	}

	res := Result{
		Allowed:   allowed,
		Limit:     capacity,
		Remaining: tokens,
	}
	if allowed {
		res.ResetAt = now.Add(secondsToDuration((float64(capacity) - tokens) / refillPerSecond))
	} else {
		wait := time.Duration(math.Ceil((1-tokens)/refillPerSecond)) * time.Second
		res.ResetAt = now.Add(wait)
		res.RetryAfter = wait
	}
	l.record(ctx, res)
	return res, nil
}

// GetTokens returns the refilled level without consuming
func (l *TokenBucketLimiter) GetTokens(ctx context.Context, key string, capacity int64, refillPerSecond float64) (float64, error) {
	if err := validateBucket(capacity, refillPerSecond); err != nil {
		return 0, err
	}
	reply, err := l.eval(ctx, tokenBucketPeekScript, []string{bucketKey(key)},
		capacity, refillPerSecond, l.clock.Now().UnixMilli())
	if err != nil {
		return 0, err
	}
	_, tokens, err := parseReply(reply)
	return tokens, err
}

// SetTokens overwrites the bucket level for administration and tests
func (l *TokenBucketLimiter) SetTokens(ctx context.Context, key string, tokens float64, capacity int64, refillPerSecond float64) error {
	if err := validateBucket(capacity, refillPerSecond); err != nil {
		return err
	}
	_, err := l.eval(ctx, tokenBucketSetScript, []string{bucketKey(key)},
		capacity, refillPerSecond, l.clock.Now().UnixMilli(), bucketTTL(capacity, refillPerSecond), tokens)
	return err
}

// Reset deletes the bucket; the next check starts full
func (l *TokenBucketLimiter) Reset(ctx context.Context, key string) error {
	_, err := l.eval(ctx, tokenBucketResetScript, []string{bucketKey(key)})
	return err
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

package admission

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/chrlshc/Huntaze-sub010/errcode"
	"github.com/chrlshc/Huntaze-sub010/limiter"
	"github.com/chrlshc/Huntaze-sub010/logger"
	"github.com/chrlshc/Huntaze-sub010/policy"
	"github.com/chrlshc/Huntaze-sub010/store"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newGate(t *testing.T, s store.Store, clock clockwork.Clock, log *logger.CtxZapLogger) *Gate {
	t.Helper()
	resolver, err := policy.NewResolver(policy.Table{
		Default: policy.RateLimitPolicy{PerMinute: 5},
		Routes: []policy.Route{
			{Path: "/api/ai", Prefix: true, Policy: policy.RateLimitPolicy{
				PerMinute: 3,
				PerHour:   policy.Int64(4),
				TierOverrides: map[string]policy.TierOverride{
					"pro": {PerHour: policy.Int64(100)},
				},
			}},
			{Path: "/api/publish", Policy: policy.RateLimitPolicy{
				PerMinute: 10,
				Burst:     policy.Int64(2),
				Algorithm: policy.AlgorithmTokenBucket,
			}},
		},
	})
	require.NoError(t, err)

	return NewGate(resolver,
		limiter.NewSlidingWindowLimiter(s, limiter.WithClock(clock)),
		limiter.NewTokenBucketLimiter(s, limiter.WithClock(clock)),
		log)
}

func newStore(t *testing.T) store.Store {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return store.NewRedisStore(client, "gate:")
}

func TestGate_DefaultPolicyFivePerMinute(t *testing.T) {
	g := newGate(t, newStore(t), clockwork.NewFakeClock(), nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		d, err := g.Admit(ctx, "user:1", "/profile", "")
		require.NoError(t, err)
		require.True(t, d.Allowed, "call %d", i+1)
		assert.Equal(t, "default", d.Route)
	}

	d, err := g.Admit(ctx, "user:1", "/profile", "")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, int64(60), d.RetryAfter)

	le, ok := errcode.From(d.Err())
	require.True(t, ok)
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", le.MsgKey())
}

func TestGate_AllWindowsMustAdmit(t *testing.T) {
	clock := clockwork.NewFakeClock()
	g := newGate(t, newStore(t), clock, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		d, err := g.Admit(ctx, "user:1", "/api/ai/caption", "")
		require.NoError(t, err)
		require.True(t, d.Allowed)
	}

	clock.Advance(time.Minute)
	d, err := g.Admit(ctx, "user:1", "/api/ai/caption", "")
	require.NoError(t, err)
	require.True(t, d.Allowed, "minute window rolled over, hour has one left")
	assert.Equal(t, int64(0), d.Remaining)

	clock.Advance(time.Minute)
	d, err = g.Admit(ctx, "user:1", "/api/ai/caption", "")
	require.NoError(t, err)
	assert.False(t, d.Allowed, "hour window exhausted")
	assert.Equal(t, int64(3600), d.RetryAfter)

	d, err = g.Admit(ctx, "user:2", "/api/ai/caption", "pro")
	require.NoError(t, err)
	assert.True(t, d.Allowed, "other keys are unaffected")
}

func TestGate_RoutesCountSeparately(t *testing.T) {
	g := newGate(t, newStore(t), clockwork.NewFakeClock(), nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := g.Admit(ctx, "user:1", "/profile", "")
		require.NoError(t, err)
	}
	d, err := g.Admit(ctx, "user:1", "/api/ai/caption", "")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestGate_TokenBucketPolicy(t *testing.T) {
	g := newGate(t, newStore(t), clockwork.NewFakeClock(), nil)
	ctx := context.Background()

	for i := 0; i < 12; i++ {
		d, err := g.Admit(ctx, "creator:7", "/api/publish", "")
		require.NoError(t, err)
		require.True(t, d.Allowed, "capacity is per minute plus burst, call %d", i+1)
		assert.Equal(t, policy.AlgorithmTokenBucket, d.Algorithm)
		assert.Equal(t, int64(12), d.Limit)
	}

	d, err := g.Admit(ctx, "creator:7", "/api/publish", "")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, int64(6), d.RetryAfter)
}

func TestGate_DegradedAdmitsAndLogs(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := logger.NewCtxZapLogger(zap.New(core), "admission")

	g := newGate(t, store.NewUnavailableStore("disabled"), clockwork.NewFakeClock(), log)
	for i := 0; i < 10; i++ {
		d, err := g.Admit(context.Background(), "user:1", "/profile", "")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.True(t, d.Degraded)
		assert.Zero(t, d.Limit)
	}
	assert.Equal(t, 10, logs.FilterMessage("Request admitted").Len())
}

func TestWindows(t *testing.T) {
	w := Windows(policy.RateLimitPolicy{PerMinute: 1, PerHour: policy.Int64(2), PerDay: policy.Int64(3)})
	assert.Equal(t, []limiter.Window{
		{Limit: 1, Duration: time.Minute},
		{Limit: 2, Duration: time.Hour},
		{Limit: 3, Duration: 24 * time.Hour},
	}, w)
}

package limiter

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/chrlshc/Huntaze-sub010/breaker"
	"github.com/chrlshc/Huntaze-sub010/errcode"
	"github.com/chrlshc/Huntaze-sub010/store"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestStore(t *testing.T) (*store.RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	return store.NewRedisStore(client, "test:"), mr
}

func TestSlidingWindow_LimitThenRollover(t *testing.T) {
	s, _ := newTestStore(t)
	clock := clockwork.NewFakeClock()
	l := NewSlidingWindowLimiter(s, WithClock(clock))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res, err := l.Check(ctx, "user:1", 3, time.Second)
		require.NoError(t, err)
		assert.True(t, res.Allowed, "call %d", i+1)
		assert.Equal(t, float64(2-i), res.Remaining)
		assert.Equal(t, int64(3), res.Limit)
		assert.Equal(t, clock.Now().Add(time.Second), res.ResetAt)
	}

	clock.Advance(500 * time.Millisecond)
	res, err := l.Check(ctx, "user:1", 3, time.Second)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, time.Second, res.RetryAfter)
	assert.Equal(t, int64(1), res.RetryAfterSeconds())

	clock.Advance(500 * time.Millisecond)
	res, err = l.Check(ctx, "user:1", 3, time.Second)
	require.NoError(t, err)
	assert.True(t, res.Allowed, "entries a full window old no longer count")
}

func TestSlidingWindow_KeysAreIndependent(t *testing.T) {
	s, _ := newTestStore(t)
	l := NewSlidingWindowLimiter(s, WithClock(clockwork.NewFakeClock()))
	ctx := context.Background()

	res, err := l.Check(ctx, "a", 1, time.Minute)
	require.NoError(t, err)
	require.True(t, res.Allowed)

	res, err = l.Check(ctx, "b", 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestSlidingWindow_ConcurrentLastSlot(t *testing.T) {
	s, _ := newTestStore(t)
	l := NewSlidingWindowLimiter(s, WithClock(clockwork.NewFakeClock()))

	var allowed atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := l.Check(context.Background(), "hot", 5, time.Minute)
			if err == nil && res.Allowed {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(5), allowed.Load())
}

func TestSlidingWindow_MultipleWindowsAndReset(t *testing.T) {
	s, mr := newTestStore(t)
	clock := clockwork.NewFakeClock()
	l := NewSlidingWindowLimiter(s, WithClock(clock))
	ctx := context.Background()
	windows := []Window{
		{Limit: 2, Duration: time.Minute},
		{Limit: 3, Duration: time.Hour},
	}

	for i := 0; i < 2; i++ {
		results, err := l.CheckMultipleWindows(ctx, "creator:9", windows)
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.True(t, Combine(results).Allowed)
	}

	results, err := l.CheckMultipleWindows(ctx, "creator:9", windows)
	require.NoError(t, err)
	assert.False(t, results[0].Allowed)
	assert.True(t, results[1].Allowed, "windows are evaluated independently")
	combined := Combine(results)
	assert.False(t, combined.Allowed)
	assert.Equal(t, time.Minute, combined.RetryAfter)
	assert.Equal(t, float64(0), combined.Remaining)

	require.NoError(t, l.Reset(ctx, "creator:9"))
	assert.Empty(t, mr.Keys())

	results, err = l.CheckMultipleWindows(ctx, "creator:9", windows)
	require.NoError(t, err)
	assert.True(t, Combine(results).Allowed)
}

func TestSlidingWindow_InvalidArgument(t *testing.T) {
	s, _ := newTestStore(t)
	l := NewSlidingWindowLimiter(s)

	_, err := l.Check(context.Background(), "k", 0, time.Minute)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = l.Check(context.Background(), "k", 1, 0)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

// five per minute: five calls pass, the sixth is told to come back later
func TestSlidingWindow_FivePerMinute(t *testing.T) {
	s, _ := newTestStore(t)
	l := NewSlidingWindowLimiter(s, WithClock(clockwork.NewFakeClock()))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		res, err := l.Check(ctx, "fresh", 5, time.Minute)
		require.NoError(t, err)
		require.True(t, res.Allowed)
	}
	res, err := l.Check(ctx, "fresh", 5, time.Minute)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Greater(t, res.RetryAfterSeconds(), int64(0))

	le, ok := errcode.From(res.Err())
	require.True(t, ok)
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", le.MsgKey())
	assert.Equal(t, int64(60), le.Data()["retry_after"])
}

func TestTokenBucket_RapidBurstThenDenied(t *testing.T) {
	s, _ := newTestStore(t)
	clock := clockwork.NewFakeClock()
	l := NewTokenBucketLimiter(s, WithClock(clock))
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		res, err := l.Check(ctx, "creator:1", 10, 0.1667)
		require.NoError(t, err)
		require.True(t, res.Allowed, "call %d", i+1)
		assert.InDelta(t, float64(9-i), res.Remaining, 1e-9)
	}

	res, err := l.Check(ctx, "creator:1", 10, 0.1667)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.InDelta(t, 0, res.Remaining, 1e-9)
	assert.Equal(t, 6*time.Second, res.RetryAfter)
	assert.Equal(t, clock.Now().Add(6*time.Second), res.ResetAt)

	clock.Advance(6 * time.Second)
	res, err = l.Check(ctx, "creator:1", 10, 0.1667)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestTokenBucket_Saturation(t *testing.T) {
	s, _ := newTestStore(t)
	clock := clockwork.NewFakeClock()
	l := NewTokenBucketLimiter(s, WithClock(clock))
	ctx := context.Background()

	cases := []struct {
		capacity int64
		rate     float64
	}{
		{capacity: 1, rate: 1},
		{capacity: 10, rate: 0.5},
		{capacity: 100, rate: 7.25},
	}
	for _, tc := range cases {
		key := fmt.Sprintf("sat:%d", tc.capacity)
		require.NoError(t, l.SetTokens(ctx, key, 0, tc.capacity, tc.rate))

		tokens, err := l.GetTokens(ctx, key, tc.capacity, tc.rate)
		require.NoError(t, err)
		assert.Zero(t, tokens)

		// the scripts see milliseconds, so round the full-refill wait up to one
		clock.Advance(time.Duration(math.Ceil(float64(tc.capacity)/tc.rate*1000)+1) * time.Millisecond)
		tokens, err = l.GetTokens(ctx, key, tc.capacity, tc.rate)
		require.NoError(t, err)
		assert.Equal(t, float64(tc.capacity), tokens)

		clock.Advance(time.Hour)
		tokens, err = l.GetTokens(ctx, key, tc.capacity, tc.rate)
		require.NoError(t, err)
		assert.Equal(t, float64(tc.capacity), tokens, "never exceeds capacity")
	}
}

func TestTokenBucket_NoDoubleSpend(t *testing.T) {
	s, _ := newTestStore(t)
	l := NewTokenBucketLimiter(s, WithClock(clockwork.NewFakeClock()))
	ctx := context.Background()
	require.NoError(t, l.SetTokens(ctx, "race", 7, 20, 1))

	var allowed atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := l.Check(ctx, "race", 20, 1)
			if err == nil && res.Allowed {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(7), allowed.Load())
}

func TestTokenBucket_GetTokensDoesNotConsume(t *testing.T) {
	s, _ := newTestStore(t)
	l := NewTokenBucketLimiter(s, WithClock(clockwork.NewFakeClock()))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		tokens, err := l.GetTokens(ctx, "fresh", 5, 1)
		require.NoError(t, err)
		assert.Equal(t, float64(5), tokens)
	}
}

func TestTokenBucket_SetTokensClampsAndReset(t *testing.T) {
	s, _ := newTestStore(t)
	l := NewTokenBucketLimiter(s, WithClock(clockwork.NewFakeClock()))
	ctx := context.Background()

	require.NoError(t, l.SetTokens(ctx, "k", 50, 5, 1))
	tokens, err := l.GetTokens(ctx, "k", 5, 1)
	require.NoError(t, err)
	assert.Equal(t, float64(5), tokens)

	require.NoError(t, l.SetTokens(ctx, "k", -3, 5, 1))
	tokens, err = l.GetTokens(ctx, "k", 5, 1)
	require.NoError(t, err)
	assert.Zero(t, tokens)

	require.NoError(t, l.Reset(ctx, "k"))
	tokens, err = l.GetTokens(ctx, "k", 5, 1)
	require.NoError(t, err)
	assert.Equal(t, float64(5), tokens)
}

func TestTokenBucket_ClockBehindDoesNotRewind(t *testing.T) {
	s, _ := newTestStore(t)
	ahead := clockwork.NewFakeClockAt(time.Unix(1000, 0))
	behind := clockwork.NewFakeClockAt(time.Unix(990, 0))
	ctx := context.Background()

	fast := NewTokenBucketLimiter(s, WithClock(ahead))
	slow := NewTokenBucketLimiter(s, WithClock(behind))

	require.NoError(t, fast.SetTokens(ctx, "skew", 0, 10, 1))
	res, err := slow.Check(ctx, "skew", 10, 1)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Zero(t, res.Remaining)
}

func TestTokenBucket_InvalidArgument(t *testing.T) {
	s, _ := newTestStore(t)
	l := NewTokenBucketLimiter(s)

	_, err := l.Check(context.Background(), "k", 0, 1)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = l.Check(context.Background(), "k", 1, 0)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestDegraded_FailOpen(t *testing.T) {
	s := store.NewUnavailableStore("disabled")
	ctx := context.Background()

	sw, err := NewSlidingWindowLimiter(s).Check(ctx, "k", 5, time.Minute)
	require.NoError(t, err)
	assert.True(t, sw.Allowed)
	assert.True(t, sw.Degraded)
	assert.Zero(t, sw.Limit)

	tb, err := NewTokenBucketLimiter(s).Check(ctx, "k", 10, 1)
	require.NoError(t, err)
	assert.True(t, tb.Allowed)
	assert.True(t, tb.Degraded)
	assert.Equal(t, float64(10), tb.Remaining)
}

func TestDegraded_FailClosed(t *testing.T) {
	l := NewTokenBucketLimiter(store.NewUnavailableStore("disabled"), WithFailurePolicy(FailClosed))

	res, err := l.Check(context.Background(), "k", 10, 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrStoreUnavailable))
	assert.False(t, res.Allowed)
}

func TestBreaker_OpensOnStoreFailure(t *testing.T) {
	s, mr := newTestStore(t)
	clock := clockwork.NewFakeClock()
	cb, err := breaker.New("store", breaker.Config{
		FailureThreshold:         2,
		ResetTimeout:             time.Second,
		HalfOpenSuccessThreshold: 1,
	}, breaker.WithClock(clock))
	require.NoError(t, err)
	defer cb.Close()

	l := NewTokenBucketLimiter(s, WithClock(clock), WithBreaker(cb))
	ctx := context.Background()

	mr.Close()
	for i := 0; i < 3; i++ {
		res, err := l.Check(ctx, "k", 10, 1)
		require.NoError(t, err)
		assert.True(t, res.Degraded)
	}
	assert.Equal(t, breaker.StateOpen, cb.State())
	assert.Equal(t, 2, cb.GetStats().FailureCount, "open circuit skipped the third call")

	require.NoError(t, mr.Restart())
	clock.Advance(time.Second)
	res, err := l.Check(ctx, "k", 10, 1)
	require.NoError(t, err)
	assert.False(t, res.Degraded)
	assert.Equal(t, breaker.StateClosed, cb.State())
}

func TestBreaker_UnavailableStoreBypassesBreaker(t *testing.T) {
	cb, err := breaker.New("store", breaker.Config{FailureThreshold: 1})
	require.NoError(t, err)
	defer cb.Close()

	l := NewSlidingWindowLimiter(store.NewUnavailableStore("disabled"), WithBreaker(cb))
	for i := 0; i < 3; i++ {
		_, err := l.Check(context.Background(), "k", 1, time.Second)
		require.NoError(t, err)
	}
	assert.Equal(t, breaker.StateClosed, cb.State())
}

func TestMetrics_RecordOutcomes(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m := NewMetrics()
	require.NoError(t, m.RegisterMetrics(provider.Meter("limiter-test")))

	s, _ := newTestStore(t)
	l := NewSlidingWindowLimiter(s, WithClock(clockwork.NewFakeClock()), WithMetrics(m))
	ctx := context.Background()
	_, _ = l.Check(ctx, "k", 1, time.Minute)
	_, _ = l.Check(ctx, "k", 1, time.Minute)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	require.Len(t, rm.ScopeMetrics, 1)
	sum := rm.ScopeMetrics[0].Metrics[0].Data.(metricdata.Sum[int64])

	outcomes := map[string]int64{}
	for _, dp := range sum.DataPoints {
		v, _ := dp.Attributes.Value("outcome")
		outcomes[v.AsString()] = dp.Value
	}
	assert.Equal(t, map[string]int64{"allowed": 1, "denied": 1}, outcomes)
}

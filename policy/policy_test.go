package policy

import (
	"errors"
	"testing"

	"github.com/chrlshc/Huntaze-sub010/validator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		policy  RateLimitPolicy
		wantErr bool
	}{
		{name: "per minute only", policy: RateLimitPolicy{PerMinute: 5}},
		{name: "full ladder", policy: RateLimitPolicy{PerMinute: 5, PerHour: Int64(100), PerDay: Int64(1000), Burst: Int64(2)}},
		{name: "equal limits", policy: RateLimitPolicy{PerMinute: 5, PerHour: Int64(5), PerDay: Int64(5)}},
		{name: "zero burst", policy: RateLimitPolicy{PerMinute: 5, Burst: Int64(0)}},
		{name: "token bucket", policy: RateLimitPolicy{PerMinute: 10, Algorithm: AlgorithmTokenBucket}},
		{name: "zero per minute", policy: RateLimitPolicy{PerMinute: 0}, wantErr: true},
		{name: "negative per minute", policy: RateLimitPolicy{PerMinute: -1}, wantErr: true},
		{name: "per hour below per minute", policy: RateLimitPolicy{PerMinute: 10, PerHour: Int64(9)}, wantErr: true},
		{name: "per day below per hour", policy: RateLimitPolicy{PerMinute: 1, PerHour: Int64(10), PerDay: Int64(9)}, wantErr: true},
		{name: "per day below per minute without per hour", policy: RateLimitPolicy{PerMinute: 10, PerDay: Int64(9)}, wantErr: true},
		{name: "negative burst", policy: RateLimitPolicy{PerMinute: 5, Burst: Int64(-1)}, wantErr: true},
		{name: "unknown algorithm", policy: RateLimitPolicy{PerMinute: 5, Algorithm: "leaky"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.policy)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrPolicyInvalid))
			assert.NotEmpty(t, validator.Fields(err))
		})
	}
}

func TestValidate_TierOverrideChecked(t *testing.T) {
	p := RateLimitPolicy{
		PerMinute: 10,
		PerHour:   Int64(100),
		TierOverrides: map[string]TierOverride{
			"free": {PerHour: Int64(5)},
		},
	}
	err := p.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPolicyInvalid))
	assert.Contains(t, err.Error(), "free")
}

func TestWithTier(t *testing.T) {
	base := RateLimitPolicy{
		PerMinute: 10,
		PerHour:   Int64(100),
		PerDay:    Int64(1000),
		TierOverrides: map[string]TierOverride{
			"pro": {PerHour: Int64(500)},
			"vip": {PerDay: Int64(50000), Burst: Int64(5)},
		},
	}

	pro := base.WithTier("pro")
	assert.Equal(t, int64(10), pro.PerMinute)
	assert.Equal(t, int64(500), *pro.PerHour)
	assert.Equal(t, int64(1000), *pro.PerDay, "fields the override leaves unset are inherited")
	assert.Nil(t, pro.Burst)
	assert.Nil(t, pro.TierOverrides)

	vip := base.WithTier("VIP")
	assert.Equal(t, int64(100), *vip.PerHour)
	assert.Equal(t, int64(50000), *vip.PerDay)
	assert.Equal(t, int64(5), vip.BurstOrZero())

	unknown := base.WithTier("enterprise")
	assert.Equal(t, int64(100), *unknown.PerHour)

	*pro.PerHour = 1
	assert.Equal(t, int64(500), *base.WithTier("pro").PerHour, "resolved policies do not alias the table")
}

func TestEffectiveAlgorithm(t *testing.T) {
	assert.Equal(t, AlgorithmSlidingWindow, RateLimitPolicy{}.EffectiveAlgorithm())
	assert.Equal(t, AlgorithmTokenBucket, RateLimitPolicy{Algorithm: AlgorithmTokenBucket}.EffectiveAlgorithm())
}

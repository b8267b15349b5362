// Package policy maps a route and caller tier to the rate limit that applies.
//
// Resolution is pure and in memory. Every policy is validated when the table is
// loaded, so request-serving code never sees a malformed one.
package policy

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/chrlshc/Huntaze-sub010/errcode"
	"github.com/chrlshc/Huntaze-sub010/validator"
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// ModuleCode for policy errors: 21xxxx
const ModuleCode = 21

// ErrPolicyInvalid is a configuration defect; it aborts startup
var ErrPolicyInvalid = errcode.Register(errcode.New(
	ModuleCode, 1, "policy", "POLICY_INVALID", "invalid rate limit policy",
	http.StatusInternalServerError,
))

// Algorithm selects the limiter a policy is enforced with
type Algorithm string

const (
	AlgorithmSlidingWindow Algorithm = "sliding_window"
	AlgorithmTokenBucket   Algorithm = "token_bucket"
)

// RateLimitPolicy is one entry of the policy table.
// Optional limits are nil when not configured.
type RateLimitPolicy struct {
	PerMinute int64  `mapstructure:"per_minute"`
	PerHour   *int64 `mapstructure:"per_hour"`
	PerDay    *int64 `mapstructure:"per_day"`
	Burst     *int64 `mapstructure:"burst"`

	// Algorithm defaults to sliding_window
	Algorithm Algorithm `mapstructure:"algorithm"`

	TierOverrides map[string]TierOverride `mapstructure:"tier_overrides"`
}

// TierOverride replaces only the fields it sets. PerMinute is deliberately
// absent: a tier never changes the per-minute limit.
type TierOverride struct {
	PerHour *int64 `mapstructure:"per_hour"`
	PerDay  *int64 `mapstructure:"per_day"`
	Burst   *int64 `mapstructure:"burst"`
}

// Int64 returns a pointer to v, for optional policy fields
func Int64(v int64) *int64 {
	return &v
}

// EffectiveAlgorithm returns Algorithm with the default applied
func (p RateLimitPolicy) EffectiveAlgorithm() Algorithm {
	if p.Algorithm == "" {
		return AlgorithmSlidingWindow
	}
	return p.Algorithm
}

// BurstOrZero returns Burst, or 0 when unset
func (p RateLimitPolicy) BurstOrZero() int64 {
	if p.Burst == nil {
		return 0
	}
	return *p.Burst
}

// WithTier returns p with the tier's override applied and the override table
// dropped. An unknown or empty tier returns p unchanged apart from that.
func (p RateLimitPolicy) WithTier(tier string) RateLimitPolicy {
	resolved := p
	resolved.TierOverrides = nil
	if tier == "" {
		return resolved
	}
	override, ok := p.TierOverrides[tier]
	if !ok {
		override, ok = p.TierOverrides[strings.ToLower(tier)]
	}
	if !ok {
		return resolved
	}
	if override.PerHour != nil {
		resolved.PerHour = Int64(*override.PerHour)
	}
	if override.PerDay != nil {
		resolved.PerDay = Int64(*override.PerDay)
	}
	if override.Burst != nil {
		resolved.Burst = Int64(*override.Burst)
	}
	return resolved
}

// Validate checks p and every tier-overridden variant of it
func (p RateLimitPolicy) Validate() error {
	if err := validateOne(p); err != nil {
		return err
	}
	for tier := range p.TierOverrides {
		if err := validateOne(p.WithTier(tier)); err != nil {
			return ErrPolicyInvalid.WithMsgf("invalid rate limit policy for tier %q", tier).Wrap(err)
		}
	}
	return nil
}

// Validate is the function form of RateLimitPolicy.Validate
func Validate(p RateLimitPolicy) error {
	return p.Validate()
}

func validateOne(p RateLimitPolicy) error {
	dayBound, dayBoundName := p.PerHour, "per_hour"
	if dayBound == nil {
		dayBound, dayBoundName = Int64(p.PerMinute), "per_minute"
	}
	err := validation.ValidateStruct(&p,
		validation.Field(&p.PerMinute, validation.By(positive)),
		validation.Field(&p.PerHour, validation.By(notBelow("per_minute", Int64(p.PerMinute)))),
		validation.Field(&p.PerDay, validation.By(notBelow(dayBoundName, dayBound))),
		validation.Field(&p.Burst, validation.By(notBelow("zero", Int64(0)))),
		validation.Field(&p.Algorithm, validation.In(AlgorithmSlidingWindow, AlgorithmTokenBucket)),
	)
	return validator.Convert(ErrPolicyInvalid, err)
}

func positive(value interface{}) error {
	if v, _ := value.(int64); v <= 0 {
		return errors.New("must be greater than 0")
	}
	return nil
}

// notBelow accepts an unset field, or one at least as large as the bound
func notBelow(boundName string, bound *int64) validation.RuleFunc {
	return func(value interface{}) error {
		v, _ := value.(*int64)
		if v == nil {
			return nil
		}
		if *v < *bound {
			return fmt.Errorf("must be no less than %s (%d)", boundName, *bound)
		}
		return nil
	}
}

package breaker

import (
	"time"

	"github.com/chrlshc/Huntaze-sub010/validator"
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Config for one circuit breaker
type Config struct {
	// FailureThreshold consecutive failures while closed open the circuit
	FailureThreshold int `mapstructure:"failure_threshold"`

	// ResetTimeout is how long the circuit stays open after the last failure
	ResetTimeout time.Duration `mapstructure:"reset_timeout"`

	// HalfOpenSuccessThreshold consecutive half-open successes close the circuit
	HalfOpenSuccessThreshold int `mapstructure:"half_open_success_threshold"`

	// EventBusBuffer is the event bus queue size
	EventBusBuffer int `mapstructure:"event_bus_buffer"`
}

// DefaultConfig returns the defaults used for the store breaker
func DefaultConfig() Config {
	return Config{
		FailureThreshold:         5,
		ResetTimeout:             30 * time.Second,
		HalfOpenSuccessThreshold: 2,
		EventBusBuffer:           100,
	}
}

// ApplyDefaults fills zero values in place
func (c *Config) ApplyDefaults() {
	d := DefaultConfig()
	if c.FailureThreshold == 0 {
		c.FailureThreshold = d.FailureThreshold
	}
	if c.ResetTimeout == 0 {
		c.ResetTimeout = d.ResetTimeout
	}
	if c.HalfOpenSuccessThreshold == 0 {
		c.HalfOpenSuccessThreshold = d.HalfOpenSuccessThreshold
	}
	if c.EventBusBuffer == 0 {
		c.EventBusBuffer = d.EventBusBuffer
	}
}

func (c Config) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.FailureThreshold, validation.Required, validation.Min(1)),
		validation.Field(&c.ResetTimeout, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.HalfOpenSuccessThreshold, validation.Required, validation.Min(1)),
		validation.Field(&c.EventBusBuffer, validation.Min(0)),
	)
	return validator.Convert(ErrInvalidConfig, err)
}

package forwarder

import (
	"time"

	"github.com/chrlshc/Huntaze-sub010/validator"
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

const (
	// RateKeyGlobal shares one bucket across every entity
	RateKeyGlobal = "global"

	// RateKeyEntity gives every ordering key its own bucket
	RateKeyEntity = "entity"
)

// Config for the queue forwarder
type Config struct {
	// Capacity and RefillPerSecond size the admission bucket
	Capacity        int64   `mapstructure:"capacity"`
	RefillPerSecond float64 `mapstructure:"refill_per_second"`

	// RateKeyMode is global or entity
	RateKeyMode string `mapstructure:"rate_key_mode"`

	// RateKeyName names the bucket in global mode
	RateKeyName string `mapstructure:"rate_key_name"`

	// DefaultOrderingKey is used when a payload names no entity
	DefaultOrderingKey string `mapstructure:"default_ordering_key"`

	// CoarseWindow is the timestamp granularity of dedup keys
	CoarseWindow time.Duration `mapstructure:"coarse_window"`

	// Version is attached to every message
	Version string `mapstructure:"version"`

	// BatchWorkers bounds ProcessBatch concurrency
	BatchWorkers int `mapstructure:"batch_workers"`
}

// DefaultConfig allows about ten forwards a minute
func DefaultConfig() Config {
	return Config{
		Capacity:           10,
		RefillPerSecond:    10.0 / 60,
		RateKeyMode:        RateKeyEntity,
		RateKeyName:        "platform",
		DefaultOrderingKey: DefaultOrderingKey,
		CoarseWindow:       time.Minute,
		Version:            "1",
		BatchWorkers:       16,
	}
}

// ApplyDefaults fills zero values in place
func (c *Config) ApplyDefaults() {
	d := DefaultConfig()
	if c.Capacity == 0 {
		c.Capacity = d.Capacity
	}
	if c.RefillPerSecond == 0 {
		c.RefillPerSecond = d.RefillPerSecond
	}
	if c.RateKeyMode == "" {
		c.RateKeyMode = d.RateKeyMode
	}
	if c.RateKeyName == "" {
		c.RateKeyName = d.RateKeyName
	}
	if c.DefaultOrderingKey == "" {
		c.DefaultOrderingKey = d.DefaultOrderingKey
	}
	if c.CoarseWindow == 0 {
		c.CoarseWindow = d.CoarseWindow
	}
	if c.Version == "" {
		c.Version = d.Version
	}
	if c.BatchWorkers == 0 {
		c.BatchWorkers = d.BatchWorkers
	}
}

func (c Config) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.Capacity, validation.Required, validation.Min(int64(1))),
		validation.Field(&c.RefillPerSecond, validation.Required, validation.Min(0.000001)),
		validation.Field(&c.RateKeyMode, validation.Required, validation.In(RateKeyGlobal, RateKeyEntity)),
		validation.Field(&c.CoarseWindow, validation.Min(time.Second)),
		validation.Field(&c.BatchWorkers, validation.Min(1)),
	)
	return validator.Convert(ErrInvalidConfig, err)
}

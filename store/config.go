package store

import (
	"time"

	"github.com/chrlshc/Huntaze-sub010/validator"
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Config for the shared store
type Config struct {
	// Enabled false selects UnavailableStore: limiters fail open, the forwarder fails closed
	Enabled bool `mapstructure:"enabled"`

	// Mode: standalone or cluster
	Mode string `mapstructure:"mode"`

	// Addrs: standalone uses the first address, cluster uses all
	Addrs []string `mapstructure:"addrs"`

	Password string `mapstructure:"password"`

	// DB is only honoured in standalone mode
	DB int `mapstructure:"db"`

	// KeyPrefix is prepended to every limiter key
	KeyPrefix string `mapstructure:"key_prefix"`

	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	MaxRetries   int           `mapstructure:"max_retries"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`

	// RequireOnStart turns a failed startup ping into a construction error
	RequireOnStart bool `mapstructure:"require_on_start"`

	// StartupAttempts bounds the startup ping, with exponential backoff between tries
	StartupAttempts int `mapstructure:"startup_attempts"`

	// HealthInterval is how often Monitor pings the store; 0 disables it
	HealthInterval time.Duration `mapstructure:"health_interval"`
}

// ApplyDefaults fills zero values in place
func (c *Config) ApplyDefaults() {
	if c.Mode == "" {
		c.Mode = "standalone"
	}
	if c.KeyPrefix == "" {
		c.KeyPrefix = "admission:"
	}
	if c.PoolSize == 0 {
		c.PoolSize = 10
	}
	if c.MinIdleConns == 0 {
		c.MinIdleConns = 2
	}
	// a limiter check is on the request path: keep retries and timeouts short
	if c.MaxRetries == 0 {
		c.MaxRetries = 1
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = 2 * time.Second
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 500 * time.Millisecond
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 500 * time.Millisecond
	}
	if c.HealthInterval == 0 {
		c.HealthInterval = 15 * time.Second
	}
	if c.StartupAttempts == 0 {
		c.StartupAttempts = 1
	}
}

// Validate checks the live-store settings; a disabled store is always valid
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	err := validation.ValidateStruct(&c,
		validation.Field(&c.Mode, validation.Required, validation.In("standalone", "cluster")),
		validation.Field(&c.Addrs, validation.Required, validation.Each(validation.Required)),
		validation.Field(&c.DB, validation.Min(0), validation.Max(15)),
		validation.Field(&c.PoolSize, validation.Min(0)),
		validation.Field(&c.MinIdleConns, validation.Min(0)),
		validation.Field(&c.HealthInterval, validation.Min(time.Duration(0))),
		validation.Field(&c.StartupAttempts, validation.Min(1), validation.Max(10)),
	)
	return validator.Convert(ErrInvalidConfig, err)
}

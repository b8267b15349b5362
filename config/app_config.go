package config

import (
	"time"

	"github.com/chrlshc/Huntaze-sub010/breaker"
	"github.com/chrlshc/Huntaze-sub010/forwarder"
	"github.com/chrlshc/Huntaze-sub010/jwt"
	"github.com/chrlshc/Huntaze-sub010/kafka"
	"github.com/chrlshc/Huntaze-sub010/limiter"
	"github.com/chrlshc/Huntaze-sub010/logger"
	"github.com/chrlshc/Huntaze-sub010/policy"
	"github.com/chrlshc/Huntaze-sub010/store"
	"github.com/chrlshc/Huntaze-sub010/telemetry"
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// AppConfig is the whole configuration tree of the admission service
type AppConfig struct {
	App       AppSection           `mapstructure:"app"`
	Logger    logger.ManagerConfig `mapstructure:"logger"`
	Store     store.Config         `mapstructure:"store"`
	Breaker   breaker.Config       `mapstructure:"breaker"`
	Admission AdmissionSection     `mapstructure:"admission"`
	Auth      jwt.Config           `mapstructure:"auth"`
	Policies  policy.Table         `mapstructure:"policies"`
	Forwarder forwarder.Config     `mapstructure:"forwarder"`
	Kafka     kafka.Config         `mapstructure:"kafka"`
	Telemetry telemetry.Config     `mapstructure:"telemetry"`
	HTTP      HTTPSection          `mapstructure:"http"`
}

type AppSection struct {
	Name    string `mapstructure:"name"`
	Version string `mapstructure:"version"`
}

// AdmissionSection configures request-path admission
type AdmissionSection struct {
	// OnStoreFailure is "open" (admit, marked degraded) or "closed" (reject with 503)
	OnStoreFailure string `mapstructure:"on_store_failure"`

	// KeyHeader identifies the caller; empty keys by client IP
	KeyHeader string `mapstructure:"key_header"`

	// TierHeader carries the caller tier; empty means no tier overrides
	TierHeader string `mapstructure:"tier_header"`

	SkipPaths []string `mapstructure:"skip_paths"`
}

// FailurePolicy maps OnStoreFailure to the limiter policy
func (a AdmissionSection) FailurePolicy() limiter.FailurePolicy {
	if a.OnStoreFailure == "closed" {
		return limiter.FailClosed
	}
	return limiter.FailOpen
}

func (a AdmissionSection) Validate() error {
	return validation.ValidateStruct(&a,
		validation.Field(&a.OnStoreFailure, validation.In("open", "closed")),
	)
}

type HTTPSection struct {
	Listen          string        `mapstructure:"listen"`
	Mode            string        `mapstructure:"mode"` // gin mode: debug, release, test
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

func (h HTTPSection) Validate() error {
	return validation.ValidateStruct(&h,
		validation.Field(&h.Listen, validation.Required),
		validation.Field(&h.Mode, validation.In("debug", "release", "test")),
	)
}

// ApplyDefaults fills zero values of every section in place
func (c *AppConfig) ApplyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "admission-gate"
	}
	if c.App.Version == "" {
		c.App.Version = "dev"
	}
	c.Logger.ApplyDefaults()
	if !c.Logger.EnableConsole && !c.Logger.EnableFile {
		c.Logger.EnableConsole = true
	}
	if c.Logger.AppName == "" {
		c.Logger.AppName = c.App.Name
	}
	c.Store.ApplyDefaults()
	c.Breaker.ApplyDefaults()
	if c.Admission.OnStoreFailure == "" {
		c.Admission.OnStoreFailure = "open"
	}
	c.Auth.ApplyDefaults()
	c.Forwarder.ApplyDefaults()
	c.Kafka.ApplyDefaults()
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = c.App.Name
	}
	if c.Telemetry.ServiceVersion == "" {
		c.Telemetry.ServiceVersion = c.App.Version
	}
	c.Telemetry.ApplyDefaults()
	if c.HTTP.Listen == "" {
		c.HTTP.Listen = ":8080"
	}
	if c.HTTP.Mode == "" {
		c.HTTP.Mode = "release"
	}
	if c.HTTP.ReadTimeout == 0 {
		c.HTTP.ReadTimeout = 10 * time.Second
	}
	if c.HTTP.WriteTimeout == 0 {
		c.HTTP.WriteTimeout = 10 * time.Second
	}
	if c.HTTP.ShutdownTimeout == 0 {
		c.HTTP.ShutdownTimeout = 15 * time.Second
	}
}

// Validate checks the policy table first: an invalid policy aborts startup
func (c AppConfig) Validate() error {
	return ValidateAll(
		Section("policies", c.Policies),
		Section("logger", c.Logger),
		Section("store", c.Store),
		Section("breaker", c.Breaker),
		Section("admission", c.Admission),
		Section("auth", c.Auth),
		Section("forwarder", c.Forwarder),
		Section("kafka", c.Kafka),
		Section("telemetry", c.Telemetry),
		Section("http", c.HTTP),
	)
}

// LoadAppConfig decodes the merged tree, applies defaults and validates it
func LoadAppConfig(loader *Loader) (*AppConfig, error) {
	var cfg AppConfig
	if err := loader.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

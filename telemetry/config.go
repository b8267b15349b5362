package telemetry

import (
	"net/http"
	"time"

	"github.com/chrlshc/Huntaze-sub010/errcode"
	"github.com/chrlshc/Huntaze-sub010/validator"
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// ModuleCode for telemetry errors: 27xxxx
const ModuleCode = 27

// ErrInvalidConfig is returned by Config.Validate
var ErrInvalidConfig = errcode.Register(errcode.New(
	ModuleCode, 1, "telemetry", "TELEMETRY_CONFIG_INVALID", "invalid telemetry configuration",
	http.StatusInternalServerError,
))

// Exporter types
const (
	ExporterOTLP   = "otlp"
	ExporterStdout = "stdout"
	ExporterNoop   = "noop"
)

// Sampler types
const (
	SamplerAlwaysOn      = "always_on"
	SamplerAlwaysOff     = "always_off"
	SamplerTraceIDRatio  = "trace_id_ratio"
	SamplerParentBasedOn = "parent_based_always_on"
)

// Config for OpenTelemetry tracing and metrics
type Config struct {
	Enabled        bool                   `mapstructure:"enabled"`
	ServiceName    string                 `mapstructure:"service_name"`
	ServiceVersion string                 `mapstructure:"service_version"`
	Exporter       ExporterConfig         `mapstructure:"exporter"`
	Sampler        SamplerConfig          `mapstructure:"sampler"`
	ResourceAttrs  map[string]interface{} `mapstructure:"resource_attributes"` // nested maps are flattened with dots
	Batch          BatchConfig            `mapstructure:"batch"`
	Metrics        MetricsConfig          `mapstructure:"metrics"`
}

// ExporterConfig is shared by the trace and metric exporters
type ExporterConfig struct {
	Type     string            `mapstructure:"type"` // otlp, stdout, noop
	Endpoint string            `mapstructure:"endpoint"`
	Insecure bool              `mapstructure:"insecure"`
	Timeout  time.Duration     `mapstructure:"timeout"`
	Headers  map[string]string `mapstructure:"headers"`
}

// SamplerConfig selects the trace sampler
type SamplerConfig struct {
	Type  string  `mapstructure:"type"`
	Ratio float64 `mapstructure:"ratio"` // trace_id_ratio only
}

// BatchConfig for the span processor; disabled exports synchronously
type BatchConfig struct {
	Enabled            bool          `mapstructure:"enabled"`
	MaxQueueSize       int           `mapstructure:"max_queue_size"`
	MaxExportBatchSize int           `mapstructure:"max_export_batch_size"`
	ScheduleDelay      time.Duration `mapstructure:"schedule_delay"`
	ExportTimeout      time.Duration `mapstructure:"export_timeout"`
}

// MetricsConfig for the periodic metric reader
type MetricsConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	ExportInterval time.Duration `mapstructure:"export_interval"`
	ExportTimeout  time.Duration `mapstructure:"export_timeout"`
	Namespace      string        `mapstructure:"namespace"`
}

// DefaultConfig returns a disabled configuration with production defaults
func DefaultConfig() Config {
	cfg := Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero values in place
func (c *Config) ApplyDefaults() {
	if c.ServiceName == "" {
		c.ServiceName = "admission-gate"
	}
	if c.ServiceVersion == "" {
		c.ServiceVersion = "dev"
	}
	if c.Exporter.Type == "" {
		c.Exporter.Type = ExporterOTLP
	}
	if c.Exporter.Endpoint == "" {
		c.Exporter.Endpoint = "localhost:4317"
	}
	if c.Exporter.Timeout == 0 {
		c.Exporter.Timeout = 10 * time.Second
	}
	if c.Sampler.Type == "" {
		c.Sampler.Type = SamplerParentBasedOn
	}
	if c.Batch.MaxQueueSize == 0 {
		c.Batch.MaxQueueSize = 2048
	}
	if c.Batch.MaxExportBatchSize == 0 {
		c.Batch.MaxExportBatchSize = 512
	}
	if c.Batch.ScheduleDelay == 0 {
		c.Batch.ScheduleDelay = 5 * time.Second
	}
	if c.Batch.ExportTimeout == 0 {
		c.Batch.ExportTimeout = 30 * time.Second
	}
	if c.Metrics.ExportInterval == 0 {
		c.Metrics.ExportInterval = 30 * time.Second
	}
	if c.Metrics.ExportTimeout == 0 {
		c.Metrics.ExportTimeout = 10 * time.Second
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = "admission"
	}
}

// Validate checks an enabled configuration; disabled telemetry is always valid
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	err := validation.ValidateStruct(&c,
		validation.Field(&c.ServiceName, validation.Required),
		validation.Field(&c.Exporter),
		validation.Field(&c.Sampler),
		validation.Field(&c.Batch),
		validation.Field(&c.Metrics),
	)
	return validator.Convert(ErrInvalidConfig, err)
}

func (e ExporterConfig) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Type, validation.Required, validation.In(ExporterOTLP, ExporterStdout, ExporterNoop)),
		validation.Field(&e.Endpoint, validation.When(e.Type == ExporterOTLP, validation.Required)),
		validation.Field(&e.Timeout, validation.Min(time.Duration(0))),
	)
}

func (s SamplerConfig) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Type, validation.Required,
			validation.In(SamplerAlwaysOn, SamplerAlwaysOff, SamplerTraceIDRatio, SamplerParentBasedOn)),
		validation.Field(&s.Ratio, validation.Min(0.0), validation.Max(1.0)),
	)
}

func (b BatchConfig) Validate() error {
	if !b.Enabled {
		return nil
	}
	return validation.ValidateStruct(&b,
		validation.Field(&b.MaxQueueSize, validation.Min(1)),
		validation.Field(&b.MaxExportBatchSize, validation.Min(1), validation.Max(b.MaxQueueSize)),
	)
}

func (m MetricsConfig) Validate() error {
	if !m.Enabled {
		return nil
	}
	return validation.ValidateStruct(&m,
		validation.Field(&m.ExportInterval, validation.Min(time.Second)),
	)
}

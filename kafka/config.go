package kafka

import (
	"time"

	"github.com/chrlshc/Huntaze-sub010/validator"
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Config for the ordered forward queue
type Config struct {
	// Enabled turns the Kafka queue on; when off the forwarder has no queue
	Enabled bool `mapstructure:"enabled"`

	// Brokers is the list of Kafka cluster addresses
	Brokers []string `mapstructure:"brokers"`

	// Kafka version (e.g., "3.8.0")
	Version string `mapstructure:"version"`

	ClientID string `mapstructure:"client_id"`

	// Topic receives every forwarded payload
	Topic string `mapstructure:"topic"`

	// DedupWindow is how long a dedup key suppresses repeats
	DedupWindow time.Duration `mapstructure:"dedup_window"`

	// ConnectAttempts bounds the producer dial at startup
	ConnectAttempts int `mapstructure:"connect_attempts"`

	Producer ProducerConfig `mapstructure:"producer"`

	// SASL authentication (optional)
	SASL *SASLConfig `mapstructure:"sasl"`

	// TLS (optional)
	TLS *TLSConfig `mapstructure:"tls"`
}

// ProducerConfig producer configuration
type ProducerConfig struct {
	// RequiredAcks acknowledgment level: 0=NoResponse, 1=WaitForLocal, -1=WaitForAll
	RequiredAcks int `mapstructure:"required_acks"`

	Timeout time.Duration `mapstructure:"timeout"`

	// Maximum number of retry attempts
	RetryMax int `mapstructure:"retry_max"`

	RetryBackoff time.Duration `mapstructure:"retry_backoff"`

	// Maximum byte size for a single message
	MaxMessageBytes int `mapstructure:"max_message_bytes"`

	// Compression algorithm: none, gzip, snappy, lz4, zstd
	Compression string `mapstructure:"compression"`

	// Idempotent enables the idempotent producer and forces acks=all
	Idempotent bool `mapstructure:"idempotent"`
}

// SASLConfig SASL authentication configuration
type SASLConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// Mechanism: PLAIN, SCRAM-SHA-256, SCRAM-SHA-512
	Mechanism string `mapstructure:"mechanism"`

	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// TLSConfig TLS configuration
type TLSConfig struct {
	Enabled bool `mapstructure:"enabled"`

	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
	CAFile   string `mapstructure:"ca_file"`

	InsecureSkipVerify bool `mapstructure:"insecure_skip_verify"`
}

// ApplyDefaults fills zero values in place
func (c *Config) ApplyDefaults() {
	if c.Version == "" {
		c.Version = "3.8.0"
	}
	if c.ClientID == "" {
		c.ClientID = "admission-forwarder"
	}
	if c.Topic == "" {
		c.Topic = "platform-actions"
	}
	if c.DedupWindow == 0 {
		c.DedupWindow = 5 * time.Minute
	}
	if c.ConnectAttempts == 0 {
		c.ConnectAttempts = 3
	}
	c.Producer.ApplyDefaults()
}

// ApplyDefaults fills producer zero values
func (c *ProducerConfig) ApplyDefaults() {
	if c.RequiredAcks == 0 {
		c.RequiredAcks = -1
	}
	if c.Timeout == 0 {
		c.Timeout = 10 * time.Second
	}
	if c.RetryMax == 0 {
		c.RetryMax = 3
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = 100 * time.Millisecond
	}
	if c.MaxMessageBytes == 0 {
		c.MaxMessageBytes = 1048576 // 1MB
	}
	if c.Compression == "" {
		c.Compression = "none"
	}
}

// Validate checks the queue settings; a disabled queue is always valid
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	err := validation.ValidateStruct(&c,
		validation.Field(&c.Brokers, validation.Required, validation.Each(validation.Required)),
		validation.Field(&c.Topic, validation.Required),
		validation.Field(&c.DedupWindow, validation.Min(time.Second)),
		validation.Field(&c.ConnectAttempts, validation.Min(1), validation.Max(10)),
		validation.Field(&c.Producer),
		validation.Field(&c.SASL),
	)
	return validator.Convert(ErrInvalidConfig, err)
}

// Validate implements validation.Validatable
func (c ProducerConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.RequiredAcks,
			validation.In(-1, 0, 1),
			validation.When(c.Idempotent, validation.In(-1).Error("must be -1 when idempotent"))),
		validation.Field(&c.MaxMessageBytes, validation.Min(0)),
		validation.Field(&c.Compression, validation.In("", "none", "gzip", "snappy", "lz4", "zstd")),
	)
}

// Validate implements validation.Validatable
func (c *SASLConfig) Validate() error {
	if c == nil || !c.Enabled {
		return nil
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Username, validation.Required),
		validation.Field(&c.Password, validation.Required),
		validation.Field(&c.Mechanism, validation.Required, validation.In("PLAIN", "SCRAM-SHA-256", "SCRAM-SHA-512")),
	)
}

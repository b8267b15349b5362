package jwt

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Config of the bearer token verifier
type Config struct {
	Enabled bool `mapstructure:"enabled"`

	// Algorithm is HS256, HS384 or HS512
	Algorithm string `mapstructure:"algorithm"`
	Secret    string `mapstructure:"secret"`

	// Issuer and Audience are checked when set
	Issuer   string `mapstructure:"issuer"`
	Audience string `mapstructure:"audience"`

	// TierClaim names the claim carrying the caller tier
	TierClaim string `mapstructure:"tier_claim"`

	// TTL of tokens minted by Sign
	TTL time.Duration `mapstructure:"ttl"`

	ClockSkew time.Duration `mapstructure:"clock_skew"`
}

// ApplyDefaults fills zero values in place
func (c *Config) ApplyDefaults() {
	if c.Algorithm == "" {
		c.Algorithm = "HS256"
	}
	if c.TierClaim == "" {
		c.TierClaim = "tier"
	}
	if c.TTL == 0 {
		c.TTL = 2 * time.Hour
	}
	if c.ClockSkew == 0 {
		c.ClockSkew = 30 * time.Second
	}
}

func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	return validation.ValidateStruct(&c,
		validation.Field(&c.Algorithm, validation.Required, validation.In("HS256", "HS384", "HS512")),
		validation.Field(&c.Secret, validation.Required, validation.Length(32, 0)),
		validation.Field(&c.TierClaim, validation.Required),
		validation.Field(&c.TTL, validation.Min(time.Second)),
		validation.Field(&c.ClockSkew, validation.Min(time.Duration(0))),
	)
}

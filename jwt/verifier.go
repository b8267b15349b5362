// Package jwt verifies the bearer tokens that identify admission callers.
// The subject becomes the rate limit key and an optional claim picks the tier.
package jwt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chrlshc/Huntaze-sub010/logger"
	"github.com/chrlshc/Huntaze-sub010/validator"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// Identity is what a verified token says about its caller
type Identity struct {
	Subject   string
	Tier      string
	ExpiresAt time.Time
}

// Verifier checks HMAC-signed tokens
type Verifier struct {
	config Config
	method jwt.SigningMethod
	key    []byte
	clock  clockwork.Clock
	logger *logger.CtxZapLogger
	parser *jwt.Parser
}

type Option func(*Verifier)

func WithClock(c clockwork.Clock) Option {
	return func(v *Verifier) { v.clock = c }
}

func WithLogger(log *logger.CtxZapLogger) Option {
	return func(v *Verifier) { v.logger = log }
}

func NewVerifier(cfg Config, opts ...Option) (*Verifier, error) {
	cfg.ApplyDefaults()
	if err := validator.Convert(ErrInvalidConfig, cfg.Validate()); err != nil {
		return nil, err
	}

	v := &Verifier{
		config: cfg,
		key:    []byte(cfg.Secret),
		clock:  clockwork.NewRealClock(),
		logger: logger.NewNop(),
	}
	for _, opt := range opts {
		opt(v)
	}

	switch cfg.Algorithm {
	case "HS384":
		v.method = jwt.SigningMethodHS384
	case "HS512":
		v.method = jwt.SigningMethodHS512
	default:
		v.method = jwt.SigningMethodHS256
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{v.method.Alg()}),
		jwt.WithLeeway(cfg.ClockSkew),
		jwt.WithTimeFunc(v.clock.Now),
		jwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(cfg.Audience))
	}
	v.parser = jwt.NewParser(parserOpts...)
	return v, nil
}

// Verify parses token and returns the identity it carries
func (v *Verifier) Verify(ctx context.Context, token string) (Identity, error) {
	if token == "" {
		return Identity{}, ErrTokenMissing
	}

	claims := jwt.MapClaims{}
	if _, err := v.parser.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return v.key, nil
	}); err != nil {
		v.logger.DebugCtx(ctx, "Token verification failed", zap.Error(err))
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, ErrTokenExpired.Wrap(err)
		}
		return Identity{}, ErrTokenInvalid.Wrap(err)
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return Identity{}, ErrTokenInvalid.WithMsgf("token has no subject")
	}
	id := Identity{Subject: sub}
	if tier, ok := claims[v.config.TierClaim].(string); ok {
		id.Tier = tier
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		id.ExpiresAt = exp.Time
	}
	return id, nil
}

// Sign mints a token for subject, with tier when non-empty
func (v *Verifier) Sign(subject, tier string) (string, error) {
	now := v.clock.Now()
	claims := jwt.MapClaims{
		"sub": subject,
		"iat": now.Unix(),
		"exp": now.Add(v.config.TTL).Unix(),
		"jti": uuid.NewString(),
	}
	if v.config.Issuer != "" {
		claims["iss"] = v.config.Issuer
	}
	if v.config.Audience != "" {
		claims["aud"] = v.config.Audience
	}
	if tier != "" {
		claims[v.config.TierClaim] = tier
	}

	signed, err := jwt.NewWithClaims(v.method, claims).SignedString(v.key)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

package middleware

import (
	"strconv"

	"github.com/chrlshc/Huntaze-sub010/admission"
	"github.com/chrlshc/Huntaze-sub010/httpx"
	"github.com/chrlshc/Huntaze-sub010/logger"
	"github.com/gin-gonic/gin"
)

const (
	HeaderRateLimitLimit     = "X-RateLimit-Limit"
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"
	HeaderRateLimitReset     = "X-RateLimit-Reset"
	HeaderRateLimitDegraded  = "X-RateLimit-Degraded"
	HeaderRetryAfter         = "Retry-After"

	// DecisionKey holds the admission.Decision in gin.Context
	DecisionKey = "admission_decision"
)

// AdmissionConfig admission middleware configuration
type AdmissionConfig struct {
	Gate *admission.Gate

	// KeyFunc identifies the caller (default: client IP)
	KeyFunc func(*gin.Context) string

	// TierFunc returns the caller's tier, "" for none (default: none)
	TierFunc func(*gin.Context) string

	// ErrorHandler handles a decision that could not be made. The default
	// writes the error; fail-open limiters never get here.
	ErrorHandler func(*gin.Context, error)

	SkipFunc  func(*gin.Context) bool
	SkipPaths []string

	Logger *logger.CtxZapLogger
}

// Admission guards routes with gate, keyed by client IP
//
// Usage:
//
//	engine.Use(middleware.Admission(gate))
//
//	cfg := middleware.AdmissionConfig{Gate: gate, KeyFunc: middleware.KeyByUser("user_id")}
//	cfg.SkipPaths = []string{"/healthz"}
//	engine.Use(middleware.AdmissionWithConfig(cfg))
func Admission(gate *admission.Gate) gin.HandlerFunc {
	return AdmissionWithConfig(AdmissionConfig{Gate: gate})
}

// AdmissionWithConfig resolves the policy for the request path, admits or
// rejects, and sets the X-RateLimit-* headers either way. A rejection is a 429
// with Retry-After and a RATE_LIMIT_EXCEEDED body.
func AdmissionWithConfig(cfg AdmissionConfig) gin.HandlerFunc {
	if cfg.Gate == nil {
		panic("AdmissionConfig.Gate cannot be nil")
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNop()
	}
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = KeyByIP
	}
	if cfg.TierFunc == nil {
		cfg.TierFunc = func(*gin.Context) string { return "" }
	}
	if cfg.ErrorHandler == nil {
		log := cfg.Logger
		cfg.ErrorHandler = func(c *gin.Context, err error) {
			httpx.HandleError(c, log, err)
		}
	}

	skip := make(map[string]bool, len(cfg.SkipPaths))
	for _, path := range cfg.SkipPaths {
		skip[path] = true
	}

	return func(c *gin.Context) {
		if skip[c.Request.URL.Path] || (cfg.SkipFunc != nil && cfg.SkipFunc(c)) {
			c.Next()
			return
		}

		d, err := cfg.Gate.Admit(c.Request.Context(), cfg.KeyFunc(c), c.Request.URL.Path, cfg.TierFunc(c))
		if err != nil {
			cfg.ErrorHandler(c, err)
			c.Abort()
			return
		}

		c.Set(DecisionKey, d)
		writeRateLimitHeaders(c, d)

		if !d.Allowed {
			c.Header(HeaderRetryAfter, strconv.FormatInt(d.RetryAfter, 10))
			httpx.HandleError(c, cfg.Logger, d.Err())
			return
		}
		c.Next()
	}
}

func writeRateLimitHeaders(c *gin.Context, d admission.Decision) {
	if d.Degraded {
		c.Header(HeaderRateLimitDegraded, "true")
		return
	}
	if d.Limit <= 0 {
		return
	}
	c.Header(HeaderRateLimitLimit, strconv.FormatInt(d.Limit, 10))
	c.Header(HeaderRateLimitRemaining, strconv.FormatInt(d.Remaining, 10))
	c.Header(HeaderRateLimitReset, strconv.FormatInt(d.ResetAt.Unix(), 10))
}

// GetDecision returns the decision the admission middleware made for c
func GetDecision(c *gin.Context) (admission.Decision, bool) {
	v, ok := c.Get(DecisionKey)
	if !ok {
		return admission.Decision{}, false
	}
	d, ok := v.(admission.Decision)
	return d, ok
}

// KeyByIP keys callers by client IP
func KeyByIP(c *gin.Context) string {
	return "ip:" + c.ClientIP()
}

// KeyByUser keys callers by a user id an earlier middleware stored under
// ctxKey, falling back to the client IP for anonymous callers
func KeyByUser(ctxKey string) func(*gin.Context) string {
	return func(c *gin.Context) string {
		if v, ok := c.Get(ctxKey); ok {
			if id, ok := v.(string); ok && id != "" {
				return "user:" + id
			}
		}
		return KeyByIP(c)
	}
}

// KeyByHeader keys callers by a request header such as X-API-Key
func KeyByHeader(header string) func(*gin.Context) string {
	return func(c *gin.Context) string {
		if v := c.GetHeader(header); v != "" {
			return "key:" + v
		}
		return KeyByIP(c)
	}
}

// TierFromHeader reads the caller tier from a trusted header set upstream
func TierFromHeader(header string) func(*gin.Context) string {
	return func(c *gin.Context) string {
		return c.GetHeader(header)
	}
}

// TierFromContext reads the caller tier stored under ctxKey
func TierFromContext(ctxKey string) func(*gin.Context) string {
	return func(c *gin.Context) string {
		return c.GetString(ctxKey)
	}
}

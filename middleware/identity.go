package middleware

import (
	"strings"

	"github.com/chrlshc/Huntaze-sub010/jwt"
	"github.com/chrlshc/Huntaze-sub010/logger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	// UserIDKey holds the verified token subject in gin.Context
	UserIDKey = "user_id"

	// TierKey holds the verified caller tier in gin.Context
	TierKey = "tier"
)

// IdentifyCaller stores the subject and tier of a verified bearer token for
// KeyByUser(UserIDKey) and TierFromContext(TierKey). It never rejects: a
// missing or unverifiable token leaves the caller anonymous, keyed by IP.
// Authentication itself belongs to the handlers behind the gate.
func IdentifyCaller(v *jwt.Verifier, log *logger.CtxZapLogger) gin.HandlerFunc {
	if log == nil {
		log = logger.NewNop()
	}
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			c.Next()
			return
		}

		id, err := v.Verify(c.Request.Context(), token)
		if err != nil {
			log.DebugCtx(c.Request.Context(), "Unverified bearer token, caller keyed by IP",
				zap.String("path", c.Request.URL.Path), zap.Error(err))
			c.Next()
			return
		}

		c.Set(UserIDKey, id.Subject)
		if id.Tier != "" {
			c.Set(TierKey, id.Tier)
		}
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

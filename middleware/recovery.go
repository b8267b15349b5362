package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/chrlshc/Huntaze-sub010/httpx"
	"github.com/chrlshc/Huntaze-sub010/logger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Recovery replaces gin.Recovery: the panic and stack go to the log, the
// client gets a plain 500 body
func Recovery(log *logger.CtxZapLogger) gin.HandlerFunc {
	if log == nil {
		log = logger.NewNop()
	}
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				log.ErrorCtx(c.Request.Context(), "Panic recovered",
					zap.Any("error", err),
					zap.String("method", c.Request.Method),
					zap.String("path", c.Request.URL.Path),
					zap.String("client_ip", c.ClientIP()),
					zap.String("stack", string(debug.Stack())))

				c.AbortWithStatusJSON(http.StatusInternalServerError, httpx.Response{
					Code: "INTERNAL_ERROR",
					Msg:  http.StatusText(http.StatusInternalServerError),
				})
			}
		}()
		c.Next()
	}
}

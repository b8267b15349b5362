package httpx

import (
	"net/http"

	"github.com/chrlshc/Huntaze-sub010/errcode"
	"github.com/chrlshc/Huntaze-sub010/logger"
	"github.com/chrlshc/Huntaze-sub010/validator"
	"github.com/gin-gonic/gin"
)

// ErrBadRequest is returned for bodies that do not bind or validate
var ErrBadRequest = errcode.Register(errcode.New(
	10, 1, "httpx", "BAD_REQUEST", "bad request", http.StatusBadRequest,
))

// HandlerFunc is a typed handler; Req is bound from the JSON body
type HandlerFunc[Req any, Resp any] func(c *gin.Context, req *Req) (*Resp, error)

// Wrap binds the body into Req, runs Req.Validate when present, calls handler
// and writes the result with OkJson or HandleError
func Wrap[Req any, Resp any](log *logger.CtxZapLogger, handler HandlerFunc[Req, Resp]) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req Req
		if c.Request.ContentLength != 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				HandleError(c, log, ErrBadRequest.Wrap(err))
				return
			}
		}

		if v, ok := any(&req).(validator.Validatable); ok {
			if err := validator.Validate(ErrBadRequest, v); err != nil {
				HandleError(c, log, err)
				return
			}
		}

		resp, err := handler(c, &req)
		if err != nil {
			HandleError(c, log, err)
			return
		}
		if !c.Writer.Written() {
			OkJson(c, resp)
		}
	}
}

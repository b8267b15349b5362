// Package httpx writes JSON responses and maps LayeredErrors onto them
package httpx

import (
	"errors"
	"net/http"

	"github.com/chrlshc/Huntaze-sub010/errcode"
	"github.com/chrlshc/Huntaze-sub010/logger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// CodeOK is the code of every successful response
const CodeOK = "OK"

// Response is the body of every JSON response. Code is the stable message key
// (e.g. RATE_LIMIT_EXCEEDED); ErrorCode is the numeric LayeredError code.
type Response struct {
	Code      string      `json:"code"`
	ErrorCode int         `json:"error_code,omitempty"`
	Msg       string      `json:"msg,omitempty"`
	Data      interface{} `json:"data,omitempty"`
}

// OkJson successful response
func OkJson(c *gin.Context, data interface{}) {
	JSON(c, http.StatusOK, data)
}

// JSON writes a successful body with a chosen status, e.g. 202 for queued work
func JSON(c *gin.Context, status int, data interface{}) {
	c.JSON(status, Response{Code: CodeOK, Data: data})
}

// ErrorResponse builds the body for a LayeredError
func ErrorResponse(le *errcode.LayeredError) Response {
	resp := Response{Code: le.MsgKey(), ErrorCode: le.Code(), Msg: le.Message()}
	if data := le.Data(); len(data) > 0 {
		resp.Data = data
	}
	return resp
}

// HandleError writes err and aborts. LayeredErrors keep their status and key;
// anything else is a 500 whose detail is logged but not returned.
func HandleError(c *gin.Context, log *logger.CtxZapLogger, err error) {
	if err == nil {
		return
	}
	if log == nil {
		log = logger.NewNop()
	}
	ctx := c.Request.Context()

	var le *errcode.LayeredError
	if errors.As(err, &le) {
		if le.HTTPStatus() >= http.StatusInternalServerError {
			log.ErrorCtx(ctx, "Request failed",
				zap.Int("error_code", le.Code()),
				zap.String("path", c.Request.URL.Path),
				zap.Error(err))
		}
		c.AbortWithStatusJSON(le.HTTPStatus(), ErrorResponse(le))
		return
	}

	log.ErrorCtx(ctx, "Unhandled request error", zap.String("path", c.Request.URL.Path), zap.Error(err))
	c.AbortWithStatusJSON(http.StatusInternalServerError, Response{
		Code: "INTERNAL_ERROR",
		Msg:  http.StatusText(http.StatusInternalServerError),
	})
}

// NoRouteHandler answers unknown routes in the same body format
func NoRouteHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusNotFound, Response{
			Code: "NOT_FOUND",
			Msg:  "route not found: " + c.Request.Method + " " + c.Request.URL.Path,
		})
	}
}

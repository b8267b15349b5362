// Package errcode provides layered error codes shared by every admission component.
// Code format: MMBBBB (MM = module code, BBBB = business code).
package errcode

import (
	"errors"
	"fmt"
	"net/http"
)

// LayeredError is an error carrying a stable numeric code, a message key for
// clients and the HTTP status the middleware answers with.
type LayeredError struct {
	module     string
	code       int
	msgKey     string
	msg        string
	httpStatus int
	data       map[string]interface{}
	cause      error
}

// New creates a layered error.
// moduleCode: 10-99, businessCode: 0001-9999, httpStatus defaults to 200.
func New(moduleCode, businessCode int, module, msgKey, msg string, httpStatus ...int) *LayeredError {
	status := http.StatusOK
	if len(httpStatus) > 0 {
		status = httpStatus[0]
	}
	return &LayeredError{
		module:     module,
		code:       moduleCode*10000 + businessCode,
		msgKey:     msgKey,
		msg:        msg,
		httpStatus: status,
		data:       make(map[string]interface{}),
	}
}

func (e *LayeredError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.cause)
	}
	return e.msg
}

// Code returns the full MMBBBB code
func (e *LayeredError) Code() int { return e.code }

// Module returns the owning module name
func (e *LayeredError) Module() string { return e.module }

// MsgKey returns the client-facing message key, e.g. RATE_LIMIT_EXCEEDED
func (e *LayeredError) MsgKey() string { return e.msgKey }

// Message returns the human readable message
func (e *LayeredError) Message() string { return e.msg }

// HTTPStatus returns the status code used when the error reaches an HTTP response
func (e *LayeredError) HTTPStatus() int { return e.httpStatus }

// Data returns the attached context data
func (e *LayeredError) Data() map[string]interface{} { return e.data }

// Unwrap supports errors.Is / errors.As on the cause chain
func (e *LayeredError) Unwrap() error { return e.cause }

// WithMsgf returns a copy with a formatted message
func (e *LayeredError) WithMsgf(format string, args ...interface{}) *LayeredError {
	clone := *e
	clone.msg = fmt.Sprintf(format, args...)
	return &clone
}

// WithData returns a copy with one more context entry
func (e *LayeredError) WithData(key string, value interface{}) *LayeredError {
	clone := *e
	clone.data = make(map[string]interface{}, len(e.data)+1)
	for k, v := range e.data {
		clone.data[k] = v
	}
	clone.data[key] = value
	return &clone
}

// Wrap returns a copy carrying cause. A nil cause returns e unchanged.
func (e *LayeredError) Wrap(cause error) *LayeredError {
	if cause == nil {
		return e
	}
	clone := *e
	clone.cause = cause
	return &clone
}

// Is matches by code, so a wrapped copy still equals its sentinel
func (e *LayeredError) Is(target error) bool {
	t, ok := target.(*LayeredError)
	if !ok {
		return false
	}
	return e.code == t.code
}

// From extracts the first LayeredError in err's chain
func From(err error) (*LayeredError, bool) {
	var le *LayeredError
	if errors.As(err, &le) {
		return le, true
	}
	return nil, false
}

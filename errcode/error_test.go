package errcode

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLayeredError_New(t *testing.T) {
	err := New(23, 1, "limiter", "RATE_LIMIT_EXCEEDED", "rate limit exceeded", http.StatusTooManyRequests)

	assert.Equal(t, 230001, err.Code())
	assert.Equal(t, "limiter", err.Module())
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", err.MsgKey())
	assert.Equal(t, http.StatusTooManyRequests, err.HTTPStatus())
	assert.Equal(t, "rate limit exceeded", err.Error())
}

func TestLayeredError_DefaultStatus(t *testing.T) {
	err := New(10, 1, "x", "k", "m")
	assert.Equal(t, http.StatusOK, err.HTTPStatus())
}

func TestLayeredError_WrapKeepsIdentity(t *testing.T) {
	sentinel := New(22, 1, "store", "STORE_UNAVAILABLE", "store unavailable", http.StatusServiceUnavailable)
	cause := errors.New("dial tcp: connection refused")

	wrapped := fmt.Errorf("check: %w", sentinel.Wrap(cause))

	assert.ErrorIs(t, wrapped, sentinel)
	assert.ErrorIs(t, wrapped, cause)
	assert.Contains(t, wrapped.Error(), "connection refused")
	assert.Same(t, sentinel, sentinel.Wrap(nil))
}

func TestLayeredError_CopiesAreIndependent(t *testing.T) {
	base := New(21, 1, "policy", "POLICY_INVALID", "invalid policy")
	withData := base.WithData("path", "/api/ai")
	withMsg := base.WithMsgf("invalid policy for %s", "/api/ai")

	assert.Empty(t, base.Data())
	assert.Equal(t, "/api/ai", withData.Data()["path"])
	assert.Equal(t, "invalid policy", base.Message())
	assert.Equal(t, "invalid policy for /api/ai", withMsg.Message())
	assert.ErrorIs(t, withMsg, base)
}

func TestFrom(t *testing.T) {
	le := New(25, 1, "forwarder", "QUEUE_SEND_FAILURE", "queue send failed", http.StatusBadGateway)

	got, ok := From(fmt.Errorf("outer: %w", le))
	require.True(t, ok)
	assert.Equal(t, le.Code(), got.Code())

	_, ok = From(errors.New("plain"))
	assert.False(t, ok)
}

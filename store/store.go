// Package store is the shared key-value store every admission check runs against.
//
// Two implementations exist and one is chosen at construction:
//   - RedisStore: a live client; every read-modify-write is a server-side Lua script
//   - UnavailableStore: the null object used when no store is configured; every
//     call returns ErrStoreUnavailable so callers take their degraded path
package store

import (
	"context"
	"net/http"
	"time"

	"github.com/chrlshc/Huntaze-sub010/errcode"
	"github.com/redis/go-redis/v9"
)

// ModuleCode for store errors: 22xxxx
const ModuleCode = 22

var (
	// ErrStoreUnavailable means the store is absent or could not be reached
	ErrStoreUnavailable = errcode.Register(errcode.New(
		ModuleCode, 1, "store", "STORE_UNAVAILABLE", "shared store unavailable",
		http.StatusServiceUnavailable,
	))

	// ErrInvalidConfig is returned by Config.Validate
	ErrInvalidConfig = errcode.Register(errcode.New(
		ModuleCode, 2, "store", "STORE_CONFIG_INVALID", "invalid store configuration",
		http.StatusInternalServerError,
	))

	// ErrUnexpectedReply means a script returned a shape the caller did not expect
	ErrUnexpectedReply = errcode.Register(errcode.New(
		ModuleCode, 3, "store", "STORE_UNEXPECTED_REPLY", "unexpected store reply",
		http.StatusInternalServerError,
	))
)

// Store is the minimal surface admission control needs: one atomic scripted
// read-modify-write per call plus a few single-key primitives.
type Store interface {
	// Eval runs script atomically on the server in one round trip
	Eval(ctx context.Context, script *Script, keys []string, args ...interface{}) (interface{}, error)

	// SetNX sets key only if absent, with a TTL
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// Del removes keys
	Del(ctx context.Context, keys ...string) error

	// Ping checks connectivity
	Ping(ctx context.Context) error

	// Available reports whether this is a live store
	Available() bool

	// Name identifies the implementation in logs
	Name() string

	Close() error
}

// Script is a named Lua program. The SHA is computed once; go-redis sends
// EVALSHA and falls back to EVAL when the server has not cached it yet.
type Script struct {
	name   string
	script *redis.Script
}

// NewScript compiles src into a reusable script
func NewScript(name, src string) *Script {
	return &Script{name: name, script: redis.NewScript(src)}
}

// Name returns the script name used in logs and metrics
func (s *Script) Name() string {
	return s.name
}

// Hash returns the SHA1 the server caches the script under
func (s *Script) Hash() string {
	return s.script.Hash()
}

// Package breaker shields this process's calls into the shared store.
//
// Design:
//   - state is process-local and never persisted or shared between processes
//   - transitions are pull-based: open becomes half-open lazily on the next call
//     after the reset timeout, there is no background timer
//   - an open circuit is an expected outcome, Execute answers it with the fallback
//   - state changes are published on an event bus the application can subscribe to
package breaker

import (
	"net/http"
	"time"

	"github.com/chrlshc/Huntaze-sub010/errcode"
)

// ModuleCode for breaker errors: 24xxxx
const ModuleCode = 24

var (
	// ErrCircuitOpen is passed to the fallback when the protected call was skipped
	ErrCircuitOpen = errcode.Register(errcode.New(
		ModuleCode, 1, "breaker", "CIRCUIT_OPEN", "circuit open",
		http.StatusServiceUnavailable,
	))

	// ErrInvalidConfig is returned by Config.Validate
	ErrInvalidConfig = errcode.Register(errcode.New(
		ModuleCode, 2, "breaker", "BREAKER_CONFIG_INVALID", "invalid breaker configuration",
		http.StatusInternalServerError,
	))
)

// State of a circuit
type State int

const (
	// StateClosed lets every call through
	StateClosed State = iota

	// StateOpen short-circuits to the fallback
	StateOpen

	// StateHalfOpen probes the store again
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Stats is a snapshot of a breaker's counters
type Stats struct {
	State        State
	FailureCount int
	SuccessCount int
	// LastFailureTime is zero until the first failure
	LastFailureTime time.Time
}

// Package retry repeats startup operations such as the first store ping or
// the producer dial. Request paths never retry: a limiter or forwarder call
// that fails is surfaced to its caller as is.
package retry

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
)

type config struct {
	maxAttempts int
	backoff     Backoff
	condition   func(error) bool
	onRetry     func(attempt int, err error, wait time.Duration)
	clock       clockwork.Clock
}

type Option func(*config)

// MaxAttempts counts the first call; values below 1 are ignored
func MaxAttempts(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

func WithBackoff(b Backoff) Option {
	return func(c *config) {
		if b != nil {
			c.backoff = b
		}
	}
}

// If retries only errors for which cond returns true
func If(cond func(error) bool) Option {
	return func(c *config) { c.condition = cond }
}

// OnRetry is called before each wait
func OnRetry(f func(attempt int, err error, wait time.Duration)) Option {
	return func(c *config) { c.onRetry = f }
}

func WithClock(clock clockwork.Clock) Option {
	return func(c *config) { c.clock = clock }
}

// Error aggregates the failures of every attempt
type Error struct {
	Errors   []error
	Attempts int
}

func (e *Error) Error() string {
	last := e.Errors[len(e.Errors)-1]
	if e.Attempts == 1 {
		return last.Error()
	}
	return fmt.Sprintf("after %d attempts: %v", e.Attempts, last)
}

// Unwrap exposes the last failure to errors.Is and errors.As
func (e *Error) Unwrap() error {
	return e.Errors[len(e.Errors)-1]
}

// Details lists every attempt's error
func (e *Error) Details() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d attempts:", e.Attempts)
	for i, err := range e.Errors {
		fmt.Fprintf(&b, "\n  attempt %d: %v", i+1, err)
	}
	return b.String()
}

// Do calls op until it succeeds, the condition rejects its error, attempts
// run out or ctx is done. Defaults are 3 attempts with exponential backoff
// from 200ms.
func Do(ctx context.Context, op func(ctx context.Context) error, opts ...Option) error {
	cfg := &config{
		maxAttempts: 3,
		backoff:     Exponential(200 * time.Millisecond),
		clock:       clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	var errs []error
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			if len(errs) == 0 {
				return err
			}
			return &Error{Errors: append(errs, err), Attempts: attempt - 1}
		}

		err := op(ctx)
		if err == nil {
			return nil
		}
		errs = append(errs, err)

		if attempt >= cfg.maxAttempts || (cfg.condition != nil && !cfg.condition(err)) {
			return &Error{Errors: errs, Attempts: attempt}
		}

		wait := cfg.backoff.Next(attempt)
		if cfg.onRetry != nil {
			cfg.onRetry(attempt, err, wait)
		}
		select {
		case <-cfg.clock.After(wait):
		case <-ctx.Done():
			return &Error{Errors: append(errs, ctx.Err()), Attempts: attempt}
		}
	}
}

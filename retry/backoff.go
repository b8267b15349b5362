package retry

import (
	"math"
	"math/rand/v2"
	"time"
)

// Backoff returns the wait after the given failed attempt, counting from 1
type Backoff interface {
	Next(attempt int) time.Duration
}

type BackoffOption func(*exponential)

// WithMaxDelay caps every wait
func WithMaxDelay(d time.Duration) BackoffOption {
	return func(b *exponential) {
		if d > 0 {
			b.maxDelay = d
		}
	}
}

// WithJitter spreads each wait by up to ratio in either direction
func WithJitter(ratio float64) BackoffOption {
	return func(b *exponential) {
		if ratio >= 0 && ratio <= 1 {
			b.jitter = ratio
		}
	}
}

type exponential struct {
	base       time.Duration
	multiplier float64
	maxDelay   time.Duration
	jitter     float64
}

// Exponential waits base, 2*base, 4*base... up to 10s, with 20% jitter
func Exponential(base time.Duration, opts ...BackoffOption) Backoff {
	b := &exponential{base: base, multiplier: 2, maxDelay: 10 * time.Second, jitter: 0.2}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *exponential) Next(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	delay := float64(b.base) * math.Pow(b.multiplier, float64(attempt-1))
	if delay > float64(b.maxDelay) {
		delay = float64(b.maxDelay)
	}
	if b.jitter > 0 {
		delay += delay * b.jitter * (2*rand.Float64() - 1)
	}
	return time.Duration(delay)
}

// Constant waits d between attempts
type Constant time.Duration

func (c Constant) Next(int) time.Duration { return time.Duration(c) }

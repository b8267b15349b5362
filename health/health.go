// Package health aggregates dependency checks for /healthz
package health

import (
	"context"
	"time"
)

// Status of one check or of the whole service
type Status string

const (
	StatusHealthy Status = "healthy"

	// StatusDegraded means an optional dependency failed and the service is
	// running on its fallback path
	StatusDegraded Status = "degraded"

	StatusUnhealthy Status = "unhealthy"
)

// Checker is implemented by store.HealthChecker and kafka.HealthChecker
type Checker interface {
	Name() string
	Check(ctx context.Context) error
}

// CheckResult of a single checker
type CheckResult struct {
	Name      string        `json:"name"`
	Status    Status        `json:"status"`
	Critical  bool          `json:"critical"`
	Error     string        `json:"error,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
	Duration  time.Duration `json:"duration,omitempty"`
}

// Response health check response
type Response struct {
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Duration  time.Duration          `json:"duration"`
	Checks    map[string]CheckResult `json:"checks"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

func (r *Response) IsHealthy() bool {
	return r.Status == StatusHealthy
}

func (r *Response) IsDegraded() bool {
	return r.Status == StatusDegraded
}

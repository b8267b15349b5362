package health

import (
	"context"
	"sync"
	"time"
)

type registration struct {
	checker  Checker
	critical bool
}

// Aggregator runs every registered checker concurrently under one timeout
type Aggregator struct {
	checkers []registration
	timeout  time.Duration
	mu       sync.RWMutex
	metadata map[string]interface{}
}

func NewAggregator(timeout time.Duration) *Aggregator {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Aggregator{
		timeout:  timeout,
		metadata: make(map[string]interface{}),
	}
}

// Register adds a critical checker; its failure makes the service unhealthy
func (a *Aggregator) Register(checker Checker) {
	a.register(checker, true)
}

// RegisterOptional adds a checker whose failure only degrades the service,
// e.g. the shared store while limiters fail open
func (a *Aggregator) RegisterOptional(checker Checker) {
	a.register(checker, false)
}

func (a *Aggregator) register(checker Checker, critical bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.checkers = append(a.checkers, registration{checker: checker, critical: critical})
}

func (a *Aggregator) SetMetadata(key string, value interface{}) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.metadata[key] = value
}

// Check runs all checkers
func (a *Aggregator) Check(ctx context.Context) *Response {
	start := time.Now()

	checkCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	a.mu.RLock()
	checkers := make([]registration, len(a.checkers))
	copy(checkers, a.checkers)
	metadata := make(map[string]interface{}, len(a.metadata))
	for k, v := range a.metadata {
		metadata[k] = v
	}
	a.mu.RUnlock()

	results := make(chan CheckResult, len(checkers))
	for _, reg := range checkers {
		go func(r registration) {
			results <- checkOne(checkCtx, r)
		}(reg)
	}

	checks := make(map[string]CheckResult, len(checkers))
	for i := 0; i < len(checkers); i++ {
		result := <-results
		checks[result.Name] = result
	}

	return &Response{
		Status:    overallStatus(checks),
		Timestamp: time.Now(),
		Duration:  time.Since(start),
		Checks:    checks,
		Metadata:  metadata,
	}
}

func checkOne(ctx context.Context, r registration) CheckResult {
	start := time.Now()
	result := CheckResult{Name: r.checker.Name(), Critical: r.critical, Timestamp: start}

	err := r.checker.Check(ctx)
	result.Duration = time.Since(start)

	switch {
	case err == nil:
		result.Status = StatusHealthy
	case r.critical:
		result.Status = StatusUnhealthy
		result.Error = err.Error()
	default:
		result.Status = StatusDegraded
		result.Error = err.Error()
	}
	return result
}

func overallStatus(checks map[string]CheckResult) Status {
	status := StatusHealthy
	for _, result := range checks {
		switch result.Status {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusDegraded:
			status = StatusDegraded
		}
	}
	return status
}

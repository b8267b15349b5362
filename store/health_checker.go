package store

import (
	"context"
	"fmt"
)

// HealthChecker reports store reachability to /healthz
type HealthChecker struct {
	store Store
}

func NewHealthChecker(s Store) *HealthChecker {
	return &HealthChecker{store: s}
}

func (h *HealthChecker) Name() string {
	return "store"
}

// Check fails for an unreachable live store. An unconfigured store is a
// deliberate deployment choice and reports healthy.
func (h *HealthChecker) Check(ctx context.Context) error {
	if h.store == nil {
		return fmt.Errorf("store not initialized")
	}
	if !h.store.Available() {
		return nil
	}
	if err := h.store.Ping(ctx); err != nil {
		return fmt.Errorf("%s ping failed: %w", h.store.Name(), err)
	}
	return nil
}

package kafka

import (
	"context"
	"fmt"
	"time"
)

// HealthChecker is the forwarder's critical check: the queue must be built
// and the topic's brokers reachable
type HealthChecker struct {
	manager *Manager
	timeout time.Duration
}

func NewHealthChecker(manager *Manager) *HealthChecker {
	return &HealthChecker{manager: manager, timeout: 5 * time.Second}
}

func (h *HealthChecker) Name() string {
	return "kafka"
}

func (h *HealthChecker) Check(ctx context.Context) error {
	if h.manager == nil {
		return ErrProducerUnavailable.WithMsgf("kafka manager is nil")
	}
	if h.manager.Queue() == nil {
		return ErrProducerUnavailable.WithMsgf("producer not connected")
	}

	checkCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	if err := h.manager.Ping(checkCtx); err != nil {
		return fmt.Errorf("topic %s: %w", h.manager.Config().Topic, err)
	}
	return nil
}

// SetTimeout bounds each Check
func (h *HealthChecker) SetTimeout(timeout time.Duration) {
	h.timeout = timeout
}

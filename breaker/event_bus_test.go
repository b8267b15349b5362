package breaker

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/chrlshc/Huntaze-sub010/logger"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestEventBus_FiltersAndUnsubscribe(t *testing.T) {
	bus := NewEventBus(8)

	var all, rejected atomic.Int32
	allID := bus.Subscribe(EventListenerFunc(func(Event) { all.Add(1) }))
	bus.Subscribe(EventListenerFunc(func(Event) { rejected.Add(1) }), EventCallRejected)

	now := time.Now()
	bus.Publish(&RejectedEvent{BaseEvent: newBaseEvent(EventCallRejected, "a", now)})
	bus.Publish(&FallbackEvent{BaseEvent: newBaseEvent(EventFallback, "a", now)})
	bus.Close()

	assert.Equal(t, int32(2), all.Load())
	assert.Equal(t, int32(1), rejected.Load())

	bus.Unsubscribe(allID)
	bus.Publish(&FallbackEvent{BaseEvent: newBaseEvent(EventFallback, "a", now)})
	bus.Close()
	assert.Equal(t, int32(2), all.Load(), "closed bus drops events")
}

func TestEventBus_PanickingListener(t *testing.T) {
	bus := NewEventBus(4)

	var after atomic.Int32
	bus.Subscribe(EventListenerFunc(func(Event) { panic("boom") }))
	bus.Subscribe(EventListenerFunc(func(Event) { after.Add(1) }))

	bus.Publish(&RejectedEvent{BaseEvent: newBaseEvent(EventCallRejected, "a", time.Now())})
	bus.Publish(&RejectedEvent{BaseEvent: newBaseEvent(EventCallRejected, "a", time.Now())})
	bus.Close()

	assert.Equal(t, int32(2), after.Load())
}

func TestLogListener(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	bus := NewEventBus(4)
	NewLogListener(logger.NewCtxZapLogger(zap.New(core), "breaker")).Subscribe(bus)

	now := time.Now()
	bus.Publish(&StateChangedEvent{BaseEvent: newBaseEvent(EventStateChanged, "store", now)})
	bus.Publish(&RejectedEvent{BaseEvent: newBaseEvent(EventCallRejected, "store", now), State: StateOpen})
	bus.Publish(&FallbackEvent{BaseEvent: newBaseEvent(EventFallback, "store", now), Cause: errors.New("dial")})
	bus.Close()

	assert.Equal(t, 1, logs.FilterMessage("Circuit breaker rejected call").Len())
	fallbacks := logs.FilterMessage("Circuit breaker fallback used").AllUntimed()
	if assert.Len(t, fallbacks, 1) {
		assert.Equal(t, zapcore.WarnLevel, fallbacks[0].Level)
		assert.Equal(t, "dial", fallbacks[0].ContextMap()["error"])
	}
	assert.Equal(t, 2, logs.Len(), "state changes are not relogged")
}

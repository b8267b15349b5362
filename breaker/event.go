package breaker

import (
	"time"
)

// EventType names a breaker event
type EventType string

const (
	// EventStateChanged fires on every transition, including manual reset
	EventStateChanged EventType = "state_changed"

	// EventCallRejected fires when an open circuit skips the protected call
	EventCallRejected EventType = "call_rejected"

	// EventFallback fires whenever the fallback answers instead of the call
	EventFallback EventType = "fallback"
)

// Event is published on the EventBus
type Event interface {
	Type() EventType
	Breaker() string
	Timestamp() time.Time
}

// BaseEvent carries the fields shared by every event
type BaseEvent struct {
	eventType EventType
	breaker   string
	timestamp time.Time
}

func (e BaseEvent) Type() EventType      { return e.eventType }
func (e BaseEvent) Breaker() string      { return e.breaker }
func (e BaseEvent) Timestamp() time.Time { return e.timestamp }

func newBaseEvent(t EventType, breaker string, at time.Time) BaseEvent {
	return BaseEvent{eventType: t, breaker: breaker, timestamp: at}
}

// StateChangedEvent describes a transition
type StateChangedEvent struct {
	BaseEvent
	FromState State
	ToState   State
	Reason    string
	Stats     Stats
}

// RejectedEvent is published when the protected call was not attempted
type RejectedEvent struct {
	BaseEvent
	State State
}

// FallbackEvent is published when the fallback ran. Cause is why.
type FallbackEvent struct {
	BaseEvent
	Cause error
	Err   error
}

// EventListener receives events asynchronously
type EventListener interface {
	OnEvent(event Event)
}

// EventListenerFunc adapts a function to EventListener
type EventListenerFunc func(event Event)

func (f EventListenerFunc) OnEvent(event Event) {
	f(event)
}

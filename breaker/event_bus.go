package breaker

import (
	"strconv"
	"sync"
	"sync/atomic"
)

// SubscriptionID identifies a subscription for Unsubscribe
type SubscriptionID string

// EventBus fans breaker events out to listeners without blocking Execute
type EventBus interface {
	// Subscribe registers listener; no filters means every event type
	Subscribe(listener EventListener, filters ...EventType) SubscriptionID
	Unsubscribe(id SubscriptionID)
	Publish(event Event)
	Close()
}

type subscription struct {
	listener EventListener
	filters  map[EventType]bool
}

type eventBus struct {
	mu        sync.RWMutex
	listeners map[SubscriptionID]*subscription
	buffer    chan Event
	done      chan struct{}
	wg        sync.WaitGroup
	closed    atomic.Bool
	nextID    atomic.Uint64
}

// NewEventBus starts a dispatcher with a bounded queue.
// Events published while the queue is full are dropped.
func NewEventBus(bufferSize int) EventBus {
	bus := &eventBus{
		listeners: make(map[SubscriptionID]*subscription),
		buffer:    make(chan Event, bufferSize),
		done:      make(chan struct{}),
	}
	bus.wg.Add(1)
	go bus.dispatch()
	return bus
}

func (eb *eventBus) Subscribe(listener EventListener, filters ...EventType) SubscriptionID {
	id := SubscriptionID("sub-" + strconv.FormatUint(eb.nextID.Add(1), 10))
	sub := &subscription{listener: listener, filters: make(map[EventType]bool, len(filters))}
	for _, f := range filters {
		sub.filters[f] = true
	}

	eb.mu.Lock()
	eb.listeners[id] = sub
	eb.mu.Unlock()
	return id
}

func (eb *eventBus) Unsubscribe(id SubscriptionID) {
	eb.mu.Lock()
	delete(eb.listeners, id)
	eb.mu.Unlock()
}

func (eb *eventBus) Publish(event Event) {
	if eb.closed.Load() {
		return
	}
	select {
	case eb.buffer <- event:
	case <-eb.done:
	default:
	}
}

// Close drains queued events and stops the dispatcher
func (eb *eventBus) Close() {
	if eb.closed.Swap(true) {
		return
	}
	close(eb.done)
	eb.wg.Wait()
}

func (eb *eventBus) dispatch() {
	defer eb.wg.Done()
	for {
		select {
		case event := <-eb.buffer:
			eb.notify(event)
		case <-eb.done:
			for {
				select {
				case event := <-eb.buffer:
					eb.notify(event)
				default:
					return
				}
			}
		}
	}
}

func (eb *eventBus) notify(event Event) {
	eb.mu.RLock()
	subs := make([]*subscription, 0, len(eb.listeners))
	for _, sub := range eb.listeners {
		subs = append(subs, sub)
	}
	eb.mu.RUnlock()

	for _, sub := range subs {
		if len(sub.filters) > 0 && !sub.filters[event.Type()] {
			continue
		}
		func() {
			// a panicking listener must not stop the dispatcher
			defer func() { _ = recover() }()
			sub.listener.OnEvent(event)
		}()
	}
}

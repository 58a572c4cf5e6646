package orchestrator

import (
	"sync"
	"sync/atomic"
	"time"
)

// deliverTimeout bounds how long Emit waits on a full subscriber.
const deliverTimeout = 100 * time.Millisecond

// EventEmitter fans run events out to every subscriber. A subscriber that
// stops reading loses events; the pipeline never waits on it for long.
type EventEmitter struct {
	mu      sync.RWMutex
	subs    []chan OrchestratorEvent
	closed  bool
	dropped atomic.Uint64
}

// NewEventEmitter returns an emitter with no subscribers.
func NewEventEmitter() *EventEmitter {
	return &EventEmitter{}
}

// Subscribe returns a channel receiving every later event. It is closed by
// Close; subscribing after Close yields a closed channel.
func (e *EventEmitter) Subscribe(buffer int) <-chan OrchestratorEvent {
	ch := make(chan OrchestratorEvent, buffer)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		close(ch)
		return ch
	}
	e.subs = append(e.subs, ch)
	return ch
}

// Emit delivers ev to each subscriber. Nil and closed emitters ignore it.
func (e *EventEmitter) Emit(ev OrchestratorEvent) {
	if e == nil {
		return
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return
	}
	for _, ch := range e.subs {
		select {
		case ch <- ev:
			continue
		default:
		}
		select {
		case ch <- ev:
		case <-time.After(deliverTimeout):
			e.dropped.Add(1)
		}
	}
}

// DroppedCount is the number of deliveries lost to full subscribers.
func (e *EventEmitter) DroppedCount() uint64 {
	return e.dropped.Load()
}

// Close ends every subscription. It is safe to call more than once.
func (e *EventEmitter) Close() {
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	for _, ch := range e.subs {
		close(ch)
	}
	e.subs = nil
}

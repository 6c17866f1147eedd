package bus

import (
	"log/slog"
	"sync"
)

// Bus fans observability events out to registered subscribers.
// Emit never blocks the caller: each subscriber gets a buffered channel and
// a draining goroutine; events to a full subscriber are dropped with a log.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string]chan Event
	closed bool
}

const subscriberBuffer = 256

func New() *Bus {
	return &Bus{subs: make(map[string]chan Event)}
}

// Subscribe registers a handler under id, replacing any previous handler
// with the same id. The handler runs on a dedicated goroutine.
func (b *Bus) Subscribe(id string, handler Handler) {
	ch := make(chan Event, subscriberBuffer)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	if old, ok := b.subs[id]; ok {
		close(old)
	}
	b.subs[id] = ch
	b.mu.Unlock()

	go func() {
		for ev := range ch {
			handler(ev)
		}
	}()
}

// Unsubscribe removes a subscriber. No-op for unknown ids.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subs[id]; ok {
		close(ch)
		delete(b.subs, id)
	}
}

// Emit delivers the event to every subscriber without blocking.
func (b *Bus) Emit(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for id, ch := range b.subs {
		select {
		case ch <- event:
		default:
			slog.Warn("bus: dropping event for slow subscriber", "subscriber", id, "event", event.Type)
		}
	}
}

// Close shuts down all subscriber goroutines. Emit after Close is a no-op.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		close(ch)
		delete(b.subs, id)
	}
}

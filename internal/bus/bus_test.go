package bus

import (
	"sync"
	"testing"
	"time"
)

func TestEmitReachesAllSubscribers(t *testing.T) {
	b := New()
	defer b.Close()

	var mu sync.Mutex
	got := map[string][]string{}
	done := make(chan struct{}, 2)

	for _, id := range []string{"a", "b"} {
		id := id
		b.Subscribe(id, func(ev Event) {
			mu.Lock()
			got[id] = append(got[id], ev.Type)
			mu.Unlock()
			done <- struct{}{}
		})
	}

	b.Emit(Event{Type: EventHeartbeatTick})

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for subscribers")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	for _, id := range []string{"a", "b"} {
		if len(got[id]) != 1 || got[id][0] != EventHeartbeatTick {
			t.Errorf("subscriber %s got %v, want [heartbeat.tick]", id, got[id])
		}
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New()
	defer b.Close()

	received := make(chan Event, subscriberBuffer)
	b.Subscribe("x", func(ev Event) { received <- ev })
	b.Unsubscribe("x")
	b.Emit(Event{Type: EventHeartbeatIdle})

	select {
	case ev := <-received:
		t.Fatalf("received %v after unsubscribe", ev.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestEmitAfterCloseIsNoop(t *testing.T) {
	b := New()
	b.Subscribe("x", func(Event) {})
	b.Close()
	// Must not panic on closed channels.
	b.Emit(Event{Type: EventAgentStarted})
	b.Unsubscribe("x")
}

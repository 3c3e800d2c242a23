package notifier

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func recv(t *testing.T, sub *Subscription) Event {
	t.Helper()
	select {
	case ev, ok := <-sub.C:
		if !ok {
			t.Fatalf("subscription closed unexpectedly")
		}
		return ev
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for event")
	}
	return Event{}
}

func TestHub_PublishDeliversInOrder(t *testing.T) {
	h := NewHub(zerolog.Nop())
	sub := h.Subscribe(TableMessages, nil)
	defer sub.Close()

	h.Publish(Event{Table: TableMessages, Op: OpInsert, After: "first"})
	h.Publish(Event{Table: TableMessages, Op: OpUpdate, After: "second"})

	if ev := recv(t, sub); ev.Op != OpInsert || ev.After != "first" {
		t.Fatalf("unexpected first event: %+v", ev)
	}
	if ev := recv(t, sub); ev.Op != OpUpdate || ev.After != "second" {
		t.Fatalf("unexpected second event: %+v", ev)
	}
}

func TestHub_TableIsolation(t *testing.T) {
	h := NewHub(zerolog.Nop())
	msgs := h.Subscribe(TableMessages, nil)
	defer msgs.Close()

	h.Publish(Event{Table: TableProfiles, Op: OpInsert})

	select {
	case ev := <-msgs.C:
		t.Fatalf("profiles event leaked to messages subscriber: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_FilterFunc(t *testing.T) {
	h := NewHub(zerolog.Nop())
	sub := h.Subscribe(TableMessages, func(ev Event) bool {
		return ev.Op == OpUpdate
	})
	defer sub.Close()

	h.Publish(Event{Table: TableMessages, Op: OpInsert})
	h.Publish(Event{Table: TableMessages, Op: OpUpdate})

	if ev := recv(t, sub); ev.Op != OpUpdate {
		t.Fatalf("filter let the wrong event through: %+v", ev)
	}
}

func TestHub_CloseStopsDeliveryAndClosesChannel(t *testing.T) {
	h := NewHub(zerolog.Nop())
	sub := h.Subscribe(TableProfiles, nil)

	if n := h.SubscriberCount(TableProfiles); n != 1 {
		t.Fatalf("expected 1 subscriber, got %d", n)
	}

	sub.Close()
	sub.Close() // safe to repeat

	if n := h.SubscriberCount(TableProfiles); n != 0 {
		t.Fatalf("expected 0 subscribers after close, got %d", n)
	}
	if _, ok := <-sub.C; ok {
		t.Fatalf("channel should be closed after Close")
	}
}

func TestHub_SlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	h := NewHub(zerolog.Nop())
	sub := h.Subscribe(TableMessages, nil)
	defer sub.Close()

	// Overfill the buffered channel without draining. Publish must not
	// block; overflow events are dropped.
	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer+10; i++ {
			h.Publish(Event{Table: TableMessages, Op: OpInsert})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Publish blocked on a slow subscriber")
	}

	if got := len(sub.C); got != subscriberBuffer {
		t.Fatalf("expected exactly %d buffered events, got %d", subscriberBuffer, got)
	}
}

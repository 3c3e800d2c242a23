// Package notifier implements the change-feed hub. Repositories publish a
// full before/after row image for every committed mutation; clients subscribe
// per table and receive events in publish order. Downstream consumers
// re-derive views from full row content, which is why events carry whole rows
// rather than deltas.
package notifier

import (
	"sync"

	"github.com/rs/zerolog"
)

// Op identifies the kind of row mutation an event describes.
type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Tables that emit change events.
const (
	TableProfiles      = "profiles"
	TableConversations = "conversations"
	TableParticipants  = "participants"
	TableMessages      = "messages"
)

// Event is a committed row change. Before is nil for inserts, After is nil
// for deletes; updates carry both images.
type Event struct {
	Table  string `json:"table"`
	Op     Op     `json:"op"`
	Before any    `json:"before,omitempty"`
	After  any    `json:"after,omitempty"`
}

// FilterFunc decides whether an event is delivered to a subscription.
// A nil filter delivers everything for the subscribed table.
type FilterFunc func(Event) bool

// Subscription is a live event stream for one table. Events arrive on C in
// publish order. Close tears the stream down; C is closed afterwards.
type Subscription struct {
	C <-chan Event

	id    uint64
	table string
	hub   *Hub
	once  sync.Once
}

// Close unsubscribes and closes the event channel. Safe to call twice.
func (s *Subscription) Close() {
	s.once.Do(func() { s.hub.remove(s.table, s.id) })
}

type subscriber struct {
	ch     chan Event
	filter FilterFunc
}

// Hub is a mutex-based in-process change-feed fan-out. Publish is called by
// the repository layer after each committed mutation; delivery is ordered per
// table and at-least-once from the consumer's perspective. A subscriber that
// cannot keep up has events dropped (and logged) rather than blocking
// publishers: consumers are expected to re-fetch authoritative state, not to
// reconstruct it from the stream.
type Hub struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[string]map[uint64]*subscriber // table -> id -> subscriber
	log    zerolog.Logger
}

// subscriberBuffer is the per-subscription channel capacity.
const subscriberBuffer = 64

// NewHub creates an empty hub.
func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		subs: make(map[string]map[uint64]*subscriber),
		log:  log.With().Str("component", "change-hub").Logger(),
	}
}

// Subscribe registers a stream for one table. The filter, when non-nil, is
// evaluated per event before delivery.
func (h *Hub) Subscribe(table string, filter FilterFunc) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	id := h.nextID
	ch := make(chan Event, subscriberBuffer)
	if h.subs[table] == nil {
		h.subs[table] = make(map[uint64]*subscriber)
	}
	h.subs[table][id] = &subscriber{ch: ch, filter: filter}

	return &Subscription{C: ch, id: id, table: table, hub: h}
}

// Publish delivers an event to every matching subscriber of its table.
func (h *Hub) Publish(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for id, sub := range h.subs[ev.Table] {
		if sub.filter != nil && !sub.filter(ev) {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			h.log.Warn().
				Str("table", ev.Table).
				Str("op", string(ev.Op)).
				Uint64("subscription", id).
				Msg("slow subscriber, event dropped")
		}
	}
}

// SubscriberCount returns the number of live subscriptions for a table.
func (h *Hub) SubscriberCount(table string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[table])
}

func (h *Hub) remove(table string, id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if m := h.subs[table]; m != nil {
		if sub, ok := m[id]; ok {
			delete(m, id)
			close(sub.ch)
		}
		if len(m) == 0 {
			delete(h.subs, table)
		}
	}
}

package broadcast

import (
	"sync"

	"localshare/core"

	"github.com/sirupsen/logrus"
)

type EventType string

const (
	EventItemAdded    EventType = "item-added"
	EventItemsCleared EventType = "items-cleared"

	// EventSubscribed opens a push stream. A client that sees it and then
	// fetches the item list cannot miss a later change.
	EventSubscribed EventType = "subscribed"
)

// DefaultBuffer is the per-subscriber queue length.
const DefaultBuffer = 64

// Event is one registry change as seen by subscribers.
type Event struct {
	Type EventType  `json:"event"`
	Seq  uint64     `json:"seq"`
	Item *core.Item `json:"item,omitempty"`
}

// Subscription is a single consumer of hub events. Events is closed when the
// subscriber is unsubscribed or dropped for falling behind.
type Subscription struct {
	ID     uint64
	Events <-chan Event

	mu      sync.Mutex
	ch      chan Event
	closed  bool
	dropped bool
}

// Dropped reports whether the hub disconnected this subscriber because its
// queue was full.
func (s *Subscription) Dropped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

func (s *Subscription) offer(ev Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return true
	}
	select {
	case s.ch <- ev:
		return true
	default:
		return false
	}
}

func (s *Subscription) close(dropped bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.closed = true
	s.dropped = dropped
	close(s.ch)
	return true
}

// Hub is the fan-out broadcaster. The subscriber list is copy-on-write, so a
// broadcast always walks the set as it was when the broadcast started.
type Hub struct {
	pubMu  sync.Mutex // keeps queue order equal to seq order
	mu     sync.Mutex
	subs   []*Subscription
	nextID uint64
	seq    uint64
	buffer int
}

func NewHub() *Hub {
	return NewHubWithBuffer(DefaultBuffer)
}

func NewHubWithBuffer(buffer int) *Hub {
	if buffer < 1 {
		buffer = 1
	}
	return &Hub{buffer: buffer}
}

func (h *Hub) Subscribe() *Subscription {
	ch := make(chan Event, h.buffer)

	h.mu.Lock()
	h.nextID++
	sub := &Subscription{ID: h.nextID, Events: ch, ch: ch}
	next := make([]*Subscription, len(h.subs), len(h.subs)+1)
	copy(next, h.subs)
	h.subs = append(next, sub)
	count := len(h.subs)
	h.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"subscriber":  sub.ID,
		"subscribers": count,
	}).Debug("subscriber connected")
	return sub
}

// Unsubscribe removes sub and closes its channel. Calling it twice is harmless.
func (h *Hub) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	if h.remove(sub) {
		sub.close(false)
	}
}

func (h *Hub) remove(sub *Subscription) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i, s := range h.subs {
		if s == sub {
			next := make([]*Subscription, 0, len(h.subs)-1)
			next = append(next, h.subs[:i]...)
			h.subs = append(next, h.subs[i+1:]...)
			logrus.WithFields(logrus.Fields{
				"subscriber":  sub.ID,
				"subscribers": len(h.subs),
			}).Debug("subscriber disconnected")
			return true
		}
	}
	return false
}

func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *Hub) BroadcastAdded(item core.Item) {
	h.publish(EventItemAdded, &item)
}

func (h *Hub) BroadcastCleared() {
	h.publish(EventItemsCleared, nil)
}

func (h *Hub) publish(t EventType, item *core.Item) {
	h.pubMu.Lock()
	defer h.pubMu.Unlock()

	h.mu.Lock()
	h.seq++
	ev := Event{Type: t, Seq: h.seq, Item: item}
	snapshot := h.subs
	h.mu.Unlock()

	for _, sub := range snapshot {
		if sub.offer(ev) {
			continue
		}
		// queue full: disconnect so the client reconnects and catches up
		if h.remove(sub) && sub.close(true) {
			logrus.WithFields(logrus.Fields{
				"subscriber": sub.ID,
				"event":      t,
				"seq":        ev.Seq,
			}).Warn("dropping slow subscriber")
		}
	}
}

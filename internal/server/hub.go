package server

import (
	"sync"
)

const hubStreamBuffer = 32

// Hub is the per-competition connection registry. Each attached connection
// owns a buffered stream of update payloads; broadcast delivery drops on a
// full buffer rather than blocking the sender's merge path.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[string]map[int64]*Subscription
	nextID int64
}

// Subscription is one connection's membership in a competition room.
type Subscription struct {
	id     int64
	stream chan []byte
	done   chan struct{}
}

// Stream delivers payloads broadcast by sibling connections.
func (s *Subscription) Stream() <-chan []byte {
	return s.stream
}

// Done is closed when the subscription is detached.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// NewHub constructs an empty hub.
func NewHub() *Hub {
	return &Hub{rooms: make(map[string]map[int64]*Subscription)}
}

// Attach registers a connection on a competition room.
func (h *Hub) Attach(competitionID string) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	subscription := &Subscription{
		id:     h.nextID,
		stream: make(chan []byte, hubStreamBuffer),
		done:   make(chan struct{}),
	}
	if _, ok := h.rooms[competitionID]; !ok {
		h.rooms[competitionID] = make(map[int64]*Subscription)
	}
	h.rooms[competitionID][subscription.id] = subscription
	return subscription
}

// Detach removes the subscription and reports how many connections remain on
// the competition. The caller evicts the document when zero remain.
func (h *Hub) Detach(competitionID string, subscription *Subscription) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	room := h.rooms[competitionID]
	if room == nil {
		return 0
	}
	if _, ok := room[subscription.id]; !ok {
		return len(room)
	}
	delete(room, subscription.id)
	close(subscription.done)
	remaining := len(room)
	if remaining == 0 {
		delete(h.rooms, competitionID)
	}
	return remaining
}

// Broadcast delivers the payload to every subscription on the competition
// except the sender. Callers invoke it only after the local merge committed,
// so siblings never observe an update before the document reflects it.
func (h *Hub) Broadcast(competitionID string, sender *Subscription, payload []byte) {
	h.mu.RLock()
	room := h.rooms[competitionID]
	recipients := make([]*Subscription, 0, len(room))
	for _, subscription := range room {
		if sender != nil && subscription.id == sender.id {
			continue
		}
		recipients = append(recipients, subscription)
	}
	h.mu.RUnlock()

	for _, subscription := range recipients {
		select {
		case subscription.stream <- payload:
		default:
		}
	}
}

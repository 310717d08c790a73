package realtime

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

// subscriberBuffer is how many events a subscriber may lag behind before
// new events are dropped for it
const subscriberBuffer = 64

// Subscription receives the events of one room until it is cancelled
type Subscription struct {
	C    <-chan Event
	room string
	ch   chan Event
}

// Hub fans events out to in-process subscribers by room
type Hub struct {
	mu      sync.RWMutex
	rooms   map[string]map[*Subscription]struct{}
	dropped atomic.Int64
}

func NewHub() *Hub {
	return &Hub{rooms: make(map[string]map[*Subscription]struct{})}
}

// Subscribe registers a subscriber for room
func (h *Hub) Subscribe(room string) *Subscription {
	ch := make(chan Event, subscriberBuffer)
	sub := &Subscription{C: ch, room: room, ch: ch}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[*Subscription]struct{})
	}
	h.rooms[room][sub] = struct{}{}
	return sub
}

// Unsubscribe removes sub and closes its channel. Calling it twice is safe.
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.rooms[sub.room]
	if !ok {
		return
	}
	if _, ok := subs[sub]; !ok {
		return
	}
	delete(subs, sub)
	if len(subs) == 0 {
		delete(h.rooms, sub.room)
	}
	close(sub.ch)
}

// Publish never blocks; a subscriber with a full buffer misses the event.
func (h *Hub) Publish(ctx context.Context, e Event) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, room := range e.Rooms() {
		for sub := range h.rooms[room] {
			select {
			case sub.ch <- e:
			default:
				h.dropped.Add(1)
				log.Debug().Str("room", room).Str("type", e.Type).Msg("subscriber lagging, event dropped")
			}
		}
	}
	return nil
}

// Subscribers counts the subscribers of room
func (h *Hub) Subscribers(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Dropped counts events lost to lagging subscribers
func (h *Hub) Dropped() int64 { return h.dropped.Load() }

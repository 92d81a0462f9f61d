// Package hub provides a bounded-replay broadcast hub for live streams.
//
// A Hub holds the most recent N published items and a registry of live
// subscribers. New subscribers are caught up from the replay buffer before
// any live delivery, and a slow or dead subscriber never blocks delivery
// to the others.
package hub

import (
	"sync"
	"sync/atomic"
)

// Subscriber is one live consumer of a broadcast stream. Its channel is
// buffered past the hub's replay size so the replay-then-live handoff
// never blocks; once the channel fills up the subscriber is dropped from
// the registry on the next publish.
type Subscriber[T any] struct {
	ch chan T
}

// Events returns the subscriber's delivery channel.
func (s *Subscriber[T]) Events() <-chan T {
	return s.ch
}

// Hub fans published items out to registered subscribers.
type Hub[T any] struct {
	mu          sync.Mutex
	capacity    int
	replayLimit int
	buffer      []T
	subs        map[*Subscriber[T]]struct{}

	// Stats
	published uint64
	dropped   uint64
}

// New creates a hub whose replay buffer holds at most capacity items and
// whose Subscribe replays at most replayLimit of them. A replayLimit
// outside (0, capacity] replays the full buffer.
func New[T any](capacity, replayLimit int) *Hub[T] {
	if replayLimit <= 0 || replayLimit > capacity {
		replayLimit = capacity
	}
	return &Hub[T]{
		capacity:    capacity,
		replayLimit: replayLimit,
		buffer:      make([]T, 0, capacity),
		subs:        make(map[*Subscriber[T]]struct{}),
	}
}

// Subscribe registers a new subscriber and synchronously replays the
// current backlog into its channel before returning, so every item
// published after Subscribe returns is delivered exactly once with no gap
// after the replayed snapshot.
func (h *Hub[T]) Subscribe() *Subscriber[T] {
	sub := &Subscriber[T]{ch: make(chan T, h.capacity+16)}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.subs[sub] = struct{}{}

	start := len(h.buffer) - h.replayLimit
	if start < 0 {
		start = 0
	}
	// The channel is sized past the replay limit, so these sends
	// cannot block.
	for _, item := range h.buffer[start:] {
		sub.ch <- item
	}
	return sub
}

// Unsubscribe removes a subscriber from the registry. Removing an
// already-removed subscriber is a no-op. The channel is left open; the
// hub never closes it because a publish may be sending concurrently.
func (h *Hub[T]) Unsubscribe(sub *Subscriber[T]) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs, sub)
}

// Publish appends item to the replay buffer, evicting the oldest entry at
// capacity, then attempts a non-blocking send to every subscriber. Any
// subscriber whose channel is full is removed after the broadcast pass.
// Publish never fails: the worst outcome is zero live deliveries, with
// the item still buffered for later replay.
func (h *Hub[T]) Publish(item T) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.buffer = append(h.buffer, item)
	if len(h.buffer) > h.capacity {
		h.buffer = h.buffer[1:]
	}
	atomic.AddUint64(&h.published, 1)

	var dead []*Subscriber[T]
	for sub := range h.subs {
		select {
		case sub.ch <- item:
		default:
			dead = append(dead, sub)
		}
	}
	for _, sub := range dead {
		delete(h.subs, sub)
		atomic.AddUint64(&h.dropped, 1)
	}
}

// Backlog returns a copy of the current replay buffer, oldest first.
func (h *Hub[T]) Backlog() []T {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]T, len(h.buffer))
	copy(out, h.buffer)
	return out
}

// Subscribers returns the number of registered subscribers.
func (h *Hub[T]) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Stats returns current hub statistics.
func (h *Hub[T]) Stats() map[string]interface{} {
	h.mu.Lock()
	defer h.mu.Unlock()
	return map[string]interface{}{
		"subscribers": len(h.subs),
		"backlog":     len(h.buffer),
		"capacity":    h.capacity,
		"published":   atomic.LoadUint64(&h.published),
		"dropped":     atomic.LoadUint64(&h.dropped),
	}
}

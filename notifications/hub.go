package notifications

import (
	"sync"
)

// Hub fans a stream of values out to subscribers. Each subscriber holds at
// most one undelivered value: a newer value replaces an unread older one, so
// a slow reader always ends up with the latest snapshot instead of a stale one.
type Hub[T any] struct {
	mu          sync.Mutex
	subscribers map[chan T]struct{}
	closed      bool
}

// NewHub creates a new hub
func NewHub[T any]() *Hub[T] {
	return &Hub[T]{
		subscribers: make(map[chan T]struct{}),
	}
}

// Subscribe creates a new subscription channel
// Returns the channel and an unsubscribe function
func (h *Hub[T]) Subscribe() (<-chan T, func()) {
	ch := make(chan T, 1)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	h.subscribers[ch] = struct{}{}
	h.mu.Unlock()

	unsubscribe := func() {
		h.mu.Lock()
		defer h.mu.Unlock()

		// Only close if the channel is still registered
		if _, exists := h.subscribers[ch]; exists {
			delete(h.subscribers, ch)
			close(ch)
		}
	}

	return ch, unsubscribe
}

// Notify delivers v to all subscribers without blocking
func (h *Hub[T]) Notify(v T) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.subscribers {
		select {
		case ch <- v:
			continue
		default:
		}
		// Drop the unread value and retry once; the subscriber may have
		// drained it concurrently, in which case the send simply succeeds.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- v:
		default:
		}
	}
}

// Shutdown closes every subscriber channel; later subscriptions are closed immediately
func (h *Hub[T]) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for ch := range h.subscribers {
		close(ch)
	}
	h.subscribers = make(map[chan T]struct{})
}

// SubscriberCount returns the number of active subscribers
func (h *Hub[T]) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

package session

import "sync"

// mailbox is an unbounded FIFO. Put never blocks, so transport callbacks can
// hand events to the session loop without stalling the read goroutine.
type mailbox[T any] struct {
	mu     sync.Mutex
	items  []T
	signal chan struct{}
}

func newMailbox[T any]() *mailbox[T] {
	return &mailbox[T]{signal: make(chan struct{}, 1)}
}

func (m *mailbox[T]) Put(v T) {
	m.mu.Lock()
	m.items = append(m.items, v)
	m.mu.Unlock()

	select {
	case m.signal <- struct{}{}:
	default:
	}
}

// Ready is signalled whenever items may be available
func (m *mailbox[T]) Ready() <-chan struct{} {
	return m.signal
}

// Drain removes and returns everything queued, in order
func (m *mailbox[T]) Drain() []T {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := m.items
	m.items = nil
	return items
}

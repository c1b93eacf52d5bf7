// Package live delivers complete conversation snapshots to subscribers
// whenever a conversation's messages change.
package live

import (
	"context"
	"sync"
)

// Bus carries "conversation changed" signals between writers and
// subscribers. Signals carry no payload; subscribers re-read the store.
type Bus interface {
	// Publish announces that conversationID's messages changed.
	Publish(ctx context.Context, conversationID string) error

	// Subscribe returns a channel that receives at least one value after
	// every Publish for conversationID that happens after Subscribe
	// returns. Bursts may be coalesced. The channel is closed when ctx
	// ends.
	Subscribe(ctx context.Context, conversationID string) (<-chan struct{}, error)

	// Close releases the bus.
	Close() error
}

// Topic returns the bus topic for a conversation.
func Topic(conversationID string) string {
	return "conversation." + conversationID
}

// Signal is a coalescing, close-safe notification channel.
type Signal struct {
	mu     sync.Mutex
	ch     chan struct{}
	closed bool
}

// NewSignal creates an open signal.
func NewSignal() *Signal {
	return &Signal{ch: make(chan struct{}, 1)}
}

// C returns the receive side.
func (s *Signal) C() <-chan struct{} {
	return s.ch
}

// Notify marks the signal pending. It never blocks and is a no-op after Close.
func (s *Signal) Notify() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- struct{}{}:
	default:
	}
}

// Close closes the channel once.
func (s *Signal) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

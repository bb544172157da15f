package memory

import (
	"context"
	"sync"
)

// Notifier is an in-process ports.Notifier. Each subscriber owns a channel
// with a single slot, so pending wake-ups coalesce instead of queueing.
type Notifier struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan struct{}]struct{} // SessionID -> Set of Channels
}

// NewNotifier creates an empty notifier.
func NewNotifier() *Notifier {
	return &Notifier{
		subscribers: make(map[string]map[chan struct{}]struct{}),
	}
}

// Subscribe registers a wake-up channel for the session.
func (n *Notifier) Subscribe(ctx context.Context, sessionID string) (<-chan struct{}, func()) {
	n.mu.Lock()
	defer n.mu.Unlock()

	ch := make(chan struct{}, 1)
	if _, ok := n.subscribers[sessionID]; !ok {
		n.subscribers[sessionID] = make(map[chan struct{}]struct{})
	}
	n.subscribers[sessionID][ch] = struct{}{}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			n.mu.Lock()
			defer n.mu.Unlock()
			if subs, ok := n.subscribers[sessionID]; ok {
				delete(subs, ch)
				if len(subs) == 0 {
					delete(n.subscribers, sessionID)
				}
			}
		})
	}
}

// Notify wakes every subscriber of the session without blocking.
func (n *Notifier) Notify(ctx context.Context, sessionID string) error {
	n.mu.RLock()
	defer n.mu.RUnlock()

	for ch := range n.subscribers[sessionID] {
		select {
		case ch <- struct{}{}:
		default:
			// A wake-up is already pending.
		}
	}
	return nil
}

// Subscribers returns the number of live subscriptions for a session.
func (n *Notifier) Subscribers(sessionID string) int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.subscribers[sessionID])
}

package memory

import (
	"context"
	"sync"

	"github.com/aretw0/wren/pkg/domain"
)

// DefaultConversationCapacity bounds the messages kept per participant.
const DefaultConversationCapacity = 20

// ConversationBuffer is a process-local, bounded conversation history keyed
// by participant. The oldest messages are evicted first.
type ConversationBuffer struct {
	mu       sync.Mutex
	capacity int
	history  map[string][]domain.Message
}

// NewConversationBuffer creates a buffer holding at most capacity messages per participant.
func NewConversationBuffer(capacity int) *ConversationBuffer {
	if capacity <= 0 {
		capacity = DefaultConversationCapacity
	}
	return &ConversationBuffer{
		capacity: capacity,
		history:  make(map[string][]domain.Message),
	}
}

// Append records a message, evicting the oldest one when full.
func (b *ConversationBuffer) Append(ctx context.Context, participantID string, msg domain.Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	h := append(b.history[participantID], msg)
	if len(h) > b.capacity {
		h = append([]domain.Message(nil), h[len(h)-b.capacity:]...)
	}
	b.history[participantID] = h
	return nil
}

// Recent returns up to limit messages in chronological order.
func (b *ConversationBuffer) Recent(ctx context.Context, participantID string, limit int) ([]domain.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	h := b.history[participantID]
	if limit > 0 && len(h) > limit {
		h = h[len(h)-limit:]
	}
	return append([]domain.Message{}, h...), nil
}

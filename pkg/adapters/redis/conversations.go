package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aretw0/wren/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// Conversations implements ports.ConversationStore using one Redis list per participant.
type Conversations struct {
	client     backend.UniversalClient
	prefix     string
	ttl        time.Duration
	maxHistory int64
}

// Option configures Conversations.
type Option func(*Conversations)

// WithTTL sets the expiration of a participant's history, refreshed on every append.
func WithTTL(ttl time.Duration) Option {
	return func(c *Conversations) {
		c.ttl = ttl
	}
}

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(c *Conversations) {
		c.prefix = prefix
	}
}

// WithMaxHistory caps the number of messages kept per participant.
func WithMaxHistory(n int) Option {
	return func(c *Conversations) {
		c.maxHistory = int64(n)
	}
}

// NewConversations creates a conversation store from an existing client.
func NewConversations(client backend.UniversalClient, opts ...Option) *Conversations {
	c := &Conversations{
		client:     client,
		prefix:     "wren:",
		maxHistory: 50,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Conversations) key(participantID string) string {
	return c.prefix + "conversation:" + participantID
}

// Append pushes the message and trims the list in one pipeline.
func (c *Conversations) Append(ctx context.Context, participantID string, msg domain.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("%w: marshal message: %w", domain.ErrStorage, err)
	}

	key := c.key(participantID)
	pipe := c.client.TxPipeline()
	pipe.RPush(ctx, key, data)
	if c.maxHistory > 0 {
		pipe.LTrim(ctx, key, -c.maxHistory, -1)
	}
	if c.ttl > 0 {
		pipe.Expire(ctx, key, c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: append conversation: %w", domain.ErrStorage, err)
	}
	return nil
}

// Recent returns up to limit messages in chronological order.
func (c *Conversations) Recent(ctx context.Context, participantID string, limit int) ([]domain.Message, error) {
	start := int64(0)
	if limit > 0 {
		start = -int64(limit)
	}
	raw, err := c.client.LRange(ctx, c.key(participantID), start, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: recent conversation: %w", domain.ErrStorage, err)
	}

	out := make([]domain.Message, 0, len(raw))
	for _, item := range raw {
		var msg domain.Message
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			return nil, fmt.Errorf("%w: unmarshal message: %w", domain.ErrStorage, err)
		}
		out = append(out, msg)
	}
	return out, nil
}

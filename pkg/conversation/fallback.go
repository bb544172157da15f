package conversation

import (
	"context"
	"log/slog"

	"github.com/aretw0/wren/internal/logging"
	"github.com/aretw0/wren/pkg/domain"
	"github.com/aretw0/wren/pkg/ports"
)

// Fallback reads the primary store first and the secondary one only when the
// primary fails. Writes go to both; a secondary failure is logged, never
// returned.
type Fallback struct {
	primary   ports.ConversationStore
	secondary ports.ConversationStore
	logger    *slog.Logger
}

// FallbackOption configures a Fallback.
type FallbackOption func(*Fallback)

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) FallbackOption {
	return func(f *Fallback) {
		f.logger = logger
	}
}

// NewFallback composes a durable primary with an ephemeral secondary.
func NewFallback(primary, secondary ports.ConversationStore, opts ...FallbackOption) *Fallback {
	f := &Fallback{
		primary:   primary,
		secondary: secondary,
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Append writes to both tiers.
func (f *Fallback) Append(ctx context.Context, participantID string, msg domain.Message) error {
	if err := f.secondary.Append(ctx, participantID, msg); err != nil {
		f.logger.Warn("Failed to buffer conversation message",
			"participant_id", participantID,
			"err", err,
		)
	}
	return f.primary.Append(ctx, participantID, msg)
}

// Recent reads the primary tier, falling back to the secondary on error.
func (f *Fallback) Recent(ctx context.Context, participantID string, limit int) ([]domain.Message, error) {
	msgs, err := f.primary.Recent(ctx, participantID, limit)
	if err == nil {
		return msgs, nil
	}
	f.logger.Warn("Durable conversation read failed, using buffer",
		"participant_id", participantID,
		"err", err,
	)
	return f.secondary.Recent(ctx, participantID, limit)
}

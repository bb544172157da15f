package ports

import (
	"context"

	"github.com/aretw0/wren/pkg/domain"
)

// Completer is the AI completion bridge.
// Implementations wrap failures with domain.ErrGeneration.
type Completer interface {
	Generate(ctx context.Context, prompt string, history []domain.Message) (string, error)
}

// StreamingCompleter is a Completer that reports the reply while it is
// generated. onDelta receives each fragment in order; an error from it aborts
// generation. The returned text is the complete reply.
type StreamingCompleter interface {
	Completer
	GenerateStream(ctx context.Context, prompt string, history []domain.Message, onDelta func(delta string) error) (string, error)
}

package conversation

import (
	"context"
	"regexp"

	"github.com/aretw0/wren/pkg/domain"
	"github.com/aretw0/wren/pkg/ports"
)

// RedactedMask replaces every match of a redaction pattern.
const RedactedMask = "***"

type redactMiddleware struct {
	next     ports.ConversationStore
	patterns []*regexp.Regexp
}

// NewRedactMiddleware masks text matching any of the patterns before it is
// persisted. Reads are passed through unchanged.
func NewRedactMiddleware(patternStrings []string) (Middleware, error) {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, err
		}
		patterns[i] = re
	}
	return func(next ports.ConversationStore) ports.ConversationStore {
		return &redactMiddleware{next: next, patterns: patterns}
	}, nil
}

func (m *redactMiddleware) Append(ctx context.Context, participantID string, msg domain.Message) error {
	for _, p := range m.patterns {
		msg.Content = p.ReplaceAllString(msg.Content, RedactedMask)
	}
	return m.next.Append(ctx, participantID, msg)
}

func (m *redactMiddleware) Recent(ctx context.Context, participantID string, limit int) ([]domain.Message, error) {
	return m.next.Recent(ctx, participantID, limit)
}

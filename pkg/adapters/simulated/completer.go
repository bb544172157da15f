// Package simulated implements a canned ports.StreamingCompleter used when no
// model provider is configured.
package simulated

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aretw0/wren/pkg/domain"
	"github.com/aretw0/wren/pkg/ports"
)

var _ ports.StreamingCompleter = (*Completer)(nil)

type reply struct {
	key  string
	text func(now time.Time) string
}

func fixed(s string) func(time.Time) string {
	return func(time.Time) string { return s }
}

// Order matters: the first matching key wins.
var replies = []reply{
	{"what is artificial intelligence", fixed("Artificial Intelligence (AI) refers to computer systems designed to perform tasks that typically require human intelligence. These include learning, reasoning, problem-solving, perception, and language understanding.")},
	{"tell me a joke", fixed("Why don't deckers trust the Matrix? Because it makes up everything!")},
	{"what time is it", func(now time.Time) string {
		return fmt.Sprintf("I'm a simulated AI, but the current server time is %s.", now.Format("15:04:05"))
	}},
	{"who are you", fixed("I'm Wren, a simulated game assistant. With a model provider configured I would narrate your run for real.")},
	{"hello", fixed("Hoi, chummer! I'm Wren, your terminal game assistant. What's the plan?")},
	{"help", fixed("Type a question to ask me anything, or use /scene, /roll, /summon and /echo to drive the scene.")},
}

// Completer answers from a fixed table. It fails only when ctx is done.
type Completer struct {
	now func() time.Time
}

// New creates a simulated completer.
func New() *Completer {
	return &Completer{now: time.Now}
}

// Generate matches the normalized prompt against the table, in either
// direction of containment, and falls back to echoing the prompt.
func (c *Completer) Generate(ctx context.Context, prompt string, history []domain.Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrGeneration, err)
	}
	p := strings.TrimSpace(strings.TrimRight(strings.ToLower(strings.TrimSpace(prompt)), "?"))
	if p != "" {
		for _, r := range replies {
			if strings.Contains(r.key, p) || strings.Contains(p, r.key) {
				return r.text(c.now()), nil
			}
		}
	}
	return fmt.Sprintf("[Simulated AI] I processed your input: '%s'\n\n"+
		"This is a simulated response because no model provider is configured. "+
		"Set WREN_AI_API_KEY to get real AI responses.", prompt), nil
}

// GenerateStream emits the Generate reply one word at a time.
func (c *Completer) GenerateStream(ctx context.Context, prompt string, history []domain.Message, onDelta func(delta string) error) (string, error) {
	reply, err := c.Generate(ctx, prompt, history)
	if err != nil || onDelta == nil {
		return reply, err
	}
	words := strings.SplitAfter(reply, " ")
	for _, w := range words {
		if w == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("%w: %w", domain.ErrGeneration, err)
		}
		if err := onDelta(w); err != nil {
			return "", fmt.Errorf("%w: %w", domain.ErrGeneration, err)
		}
	}
	return reply, nil
}

package domain

import (
	"context"
	"time"
)

// CommandEvent describes one dispatched command.
type CommandEvent struct {
	Timestamp     time.Time     `json:"timestamp"`
	SessionID     string        `json:"session_id"`
	ParticipantID string        `json:"participant_id"`
	Command       string        `json:"command"`
	Duration      time.Duration `json:"duration"`
	Err           error         `json:"-"`
}

// AppendEvent describes a log entry that was just committed.
type AppendEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Entry     LogEntry  `json:"entry"`
}

// GenerateEvent describes a call to the completion bridge.
type GenerateEvent struct {
	Timestamp     time.Time     `json:"timestamp"`
	SessionID     string        `json:"session_id"`
	ParticipantID string        `json:"participant_id"`
	Duration      time.Duration `json:"duration"`
	IsError       bool          `json:"is_error,omitempty"`
}

// PollEvent describes one change-feed poll cycle.
type PollEvent struct {
	Timestamp time.Time `json:"timestamp"`
	SessionID string    `json:"session_id"`
	Events    int       `json:"events"`
}

// Hooks defines callbacks for engine observability. Nil callbacks are skipped.
type Hooks struct {
	OnCommand  func(context.Context, *CommandEvent)
	OnAppend   func(context.Context, *AppendEvent)
	OnGenerate func(context.Context, *GenerateEvent)
	OnPoll     func(context.Context, *PollEvent)
}

func (h Hooks) Command(ctx context.Context, e *CommandEvent) {
	if h.OnCommand != nil {
		h.OnCommand(ctx, e)
	}
}

func (h Hooks) Append(ctx context.Context, e *AppendEvent) {
	if h.OnAppend != nil {
		h.OnAppend(ctx, e)
	}
}

func (h Hooks) Generate(ctx context.Context, e *GenerateEvent) {
	if h.OnGenerate != nil {
		h.OnGenerate(ctx, e)
	}
}

func (h Hooks) Poll(ctx context.Context, e *PollEvent) {
	if h.OnPoll != nil {
		h.OnPoll(ctx, e)
	}
}

// Merge returns hooks that call h first and then other.
func (h Hooks) Merge(other Hooks) Hooks {
	return Hooks{
		OnCommand: func(ctx context.Context, e *CommandEvent) {
			h.Command(ctx, e)
			other.Command(ctx, e)
		},
		OnAppend: func(ctx context.Context, e *AppendEvent) {
			h.Append(ctx, e)
			other.Append(ctx, e)
		},
		OnGenerate: func(ctx context.Context, e *GenerateEvent) {
			h.Generate(ctx, e)
			other.Generate(ctx, e)
		},
		OnPoll: func(ctx context.Context, e *PollEvent) {
			h.Poll(ctx, e)
			other.Poll(ctx, e)
		},
	}
}

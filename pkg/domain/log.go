package domain

import "time"

// CommandKind tags the command that produced a log entry.
type CommandKind string

const (
	KindChat    CommandKind = ""
	KindScene   CommandKind = "scene"
	KindRoll    CommandKind = "roll"
	KindSummon  CommandKind = "summon"
	KindEcho    CommandKind = "echo"
	KindAI      CommandKind = "ai"
	KindDismiss CommandKind = "dismiss"
)

const (
	// SceneSpeaker is the synthetic speaker of scene-setting entries.
	SceneSpeaker = "SCENE"
	// AISpeaker is the synthetic speaker of completion bridge entries.
	AISpeaker = "WREN"
)

// LogEntry is one write-once record of a session's scene log.
// Seq starts at 1 and increases by one per append, with no gaps.
type LogEntry struct {
	SessionID  string      `json:"session_id"`
	Seq        int64       `json:"seq"`
	AuthorID   string      `json:"author_id"`
	Speaker    string      `json:"speaker"`
	Content    string      `json:"content"`
	Kind       CommandKind `json:"command_kind,omitempty"`
	IsOverride bool        `json:"is_override"`
	CreatedAt  time.Time   `json:"created_at"`
}

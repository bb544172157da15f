// Package tui renders scene-log traffic for terminals.
package tui

import (
	"fmt"
	"os"
	"strings"

	"github.com/aretw0/wren/pkg/domain"
	"github.com/charmbracelet/glamour"
	"golang.org/x/term"
)

// Renderer turns markdown into terminal output.
type Renderer func(markdown string) (string, error)

// NewRenderer returns a glamour renderer when stdout is a terminal, and a
// pass-through otherwise so piped output stays plain.
func NewRenderer() Renderer {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return Plain
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return Plain
	}
	return r.Render
}

// Plain returns markdown unchanged, with a trailing newline.
func Plain(markdown string) (string, error) {
	if strings.HasSuffix(markdown, "\n") {
		return markdown, nil
	}
	return markdown + "\n", nil
}

// FormatEntry renders a log entry as a markdown paragraph.
func FormatEntry(e domain.LogEntry) string {
	speaker := e.Speaker
	if e.IsOverride {
		speaker += " (GM)"
	}
	return fmt.Sprintf("`#%d` **%s**: %s", e.Seq, speaker, e.Content)
}

// FormatEvent renders one change-feed event. Heartbeats render empty.
func FormatEvent(ev domain.FeedEvent) string {
	switch ev.Type {
	case domain.FeedLog:
		if ev.Entry != nil {
			return FormatEntry(*ev.Entry)
		}
	case domain.FeedEntityUpdate:
		if e := ev.Entity; e != nil {
			return fmt.Sprintf("> %s `%s` %s is now *%s*", e.Type, e.ID, e.Name, e.Status)
		}
	case domain.FeedSceneUpdate:
		if s := ev.Scene; s != nil {
			return fmt.Sprintf("### Scene %d\n- **Location:** %s\n- **Goal:** %s\n- **Opposition:** %s\n- **Magic:** %s",
				s.SceneNumber, s.Location, s.Goal, s.Opposition, s.MagicalConditions)
		}
	}
	return ""
}

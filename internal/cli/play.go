package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/aretw0/wren"
	"github.com/aretw0/wren/internal/presentation/tui"
	"github.com/aretw0/wren/pkg/command"
	"github.com/aretw0/wren/pkg/domain"
	"github.com/aretw0/wren/pkg/registry"
)

// PlayOptions configures Play.
type PlayOptions struct {
	// SessionID to join; empty creates a new session with the player as GM.
	SessionID     string
	ParticipantID string
	CharacterName string
	Role          string
	Render        tui.Renderer
	// StreamReplies prints this participant's AI replies as they are
	// generated instead of waiting for them on the feed.
	StreamReplies bool
}

// syncWriter serializes writes from the feed and the prompt loop.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

// Play runs an interactive session against a local engine: lines read from
// in are executed as the participant, and the session feed is printed to out.
// It returns the session ID when input ends or the user types exit.
func Play(ctx context.Context, eng *wren.Engine, opts PlayOptions, in io.Reader, out io.Writer) (string, error) {
	if opts.Render == nil {
		opts.Render = tui.Plain
	}
	w := &syncWriter{w: out}

	sessionID, err := enter(ctx, eng, opts, w)
	if err != nil {
		return "", err
	}

	feedCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		eng.Stream(feedCtx, sessionID, domain.Cursor{}, func(ev domain.FeedEvent, _ domain.Cursor) error {
			if opts.StreamReplies && ownReply(ev, opts.ParticipantID) {
				return nil
			}
			text := tui.FormatEvent(ev)
			if text == "" {
				return nil
			}
			rendered, err := opts.Render(text)
			if err != nil {
				return err
			}
			_, err = io.WriteString(w, rendered)
			return err
		})
	}()
	defer func() {
		cancel()
		wg.Wait()
	}()

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			break
		}
		res, err := execute(ctx, eng, sessionID, opts, line, w)
		if err != nil {
			fmt.Fprintf(w, "Error: %v\n", err)
			continue
		}
		// Commands that do not write to the log answer directly.
		if res.Entry == nil && res.Message != "" {
			rendered, err := opts.Render(res.Message)
			if err != nil {
				return sessionID, err
			}
			io.WriteString(w, rendered)
		}
	}
	return sessionID, scanner.Err()
}

// execute runs one line. With StreamReplies, AI fragments are written to w
// under the AI speaker's name as they arrive.
func execute(ctx context.Context, eng *wren.Engine, sessionID string, opts PlayOptions, line string, w io.Writer) (command.Result, error) {
	if !opts.StreamReplies {
		return eng.Execute(ctx, sessionID, opts.ParticipantID, line)
	}
	streamed := false
	res, err := eng.ExecuteStream(ctx, sessionID, opts.ParticipantID, line, func(delta string) error {
		if !streamed {
			streamed = true
			fmt.Fprintf(w, "%s: ", domain.AISpeaker)
		}
		_, err := io.WriteString(w, delta)
		return err
	})
	if streamed {
		io.WriteString(w, "\n")
	}
	return res, err
}

func ownReply(ev domain.FeedEvent, participantID string) bool {
	return ev.Type == domain.FeedLog && ev.Entry != nil &&
		ev.Entry.Kind == domain.KindAI && ev.Entry.AuthorID == participantID
}

func enter(ctx context.Context, eng *wren.Engine, opts PlayOptions, w io.Writer) (string, error) {
	if opts.SessionID == "" {
		sess, err := eng.CreateSession(ctx, registry.CreateRequest{CreatorID: opts.ParticipantID})
		if err != nil {
			return "", err
		}
		printSystemMessage(w, "Session '%s' created. You are the game-master.", sess.ID)
		return sess.ID, nil
	}

	m, err := eng.Membership(ctx, opts.SessionID, opts.ParticipantID)
	if err == nil {
		printSystemMessage(w, "Resuming session '%s' as %s (%s).", opts.SessionID, m.CharacterName, m.Role)
		return opts.SessionID, nil
	}
	if !errors.Is(err, domain.ErrNotAMember) {
		return "", err
	}
	m, err = eng.Join(ctx, registry.JoinRequest{
		SessionID:     opts.SessionID,
		ParticipantID: opts.ParticipantID,
		Role:          opts.Role,
		CharacterName: opts.CharacterName,
	})
	if err != nil {
		return "", err
	}
	printSystemMessage(w, "Joined session '%s' as %s (%s).", opts.SessionID, m.CharacterName, m.Role)
	return opts.SessionID, nil
}

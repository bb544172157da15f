package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aretw0/wren/internal/presentation/tui"
	"github.com/aretw0/wren/pkg/domain"
)

const (
	defaultTailRetries    = 5
	defaultTailRetryDelay = time.Second
)

// TailOptions configures Tail.
type TailOptions struct {
	BaseURL       string
	SessionID     string
	ParticipantID string
	Cursor        string
	Client        *http.Client
	Render        tui.Renderer

	// Retries bounds consecutive reconnect attempts after the stream drops.
	// Zero uses the default; negative disables reconnecting.
	Retries    int
	RetryDelay time.Duration
}

// feedRejectedError is a non-200 answer from the server. It is never retried.
type feedRejectedError struct {
	Code    int
	Message string
}

func (e *feedRejectedError) Error() string {
	return fmt.Sprintf("feed rejected (%d): %s", e.Code, e.Message)
}

// sseEvent is one dispatched server-sent event.
type sseEvent struct {
	ID    string
	Event string
	Data  string
}

// Tail follows a remote session's change feed and prints every event to w.
// When the stream drops it reconnects from the last event id it saw.
// It returns nil when ctx is cancelled.
func Tail(ctx context.Context, opts TailOptions, w io.Writer) error {
	if opts.Client == nil {
		opts.Client = http.DefaultClient
	}
	if opts.Render == nil {
		opts.Render = tui.Plain
	}
	if opts.Retries == 0 {
		opts.Retries = defaultTailRetries
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = defaultTailRetryDelay
	}

	cursor := opts.Cursor
	attempts := 0
	for {
		progressed, err := tailOnce(ctx, opts, cursor, w, func(id string) { cursor = id })
		if ctx.Err() != nil {
			return nil
		}
		var rejected *feedRejectedError
		if errors.As(err, &rejected) {
			return err
		}
		if progressed {
			attempts = 0
		}
		attempts++
		if opts.Retries < 0 || attempts > opts.Retries {
			if err == nil {
				err = errors.New("feed closed by server")
			}
			return err
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(opts.RetryDelay):
		}
	}
}

// tailOnce runs one feed connection. progressed reports whether any event
// other than the connection ping arrived.
func tailOnce(ctx context.Context, opts TailOptions, cursor string, w io.Writer, seen func(id string)) (bool, error) {
	q := url.Values{}
	q.Set("participantId", opts.ParticipantID)
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := strings.TrimSuffix(opts.BaseURL, "/") + "/sessions/" + url.PathEscape(opts.SessionID) + "/events?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Accept", "text/event-stream")
	if cursor != "" {
		req.Header.Set("Last-Event-ID", cursor)
	}

	resp, err := opts.Client.Do(req)
	if err != nil {
		return false, fmt.Errorf("connect feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var body struct {
			Message string `json:"message"`
		}
		json.NewDecoder(resp.Body).Decode(&body)
		return false, &feedRejectedError{Code: resp.StatusCode, Message: body.Message}
	}

	progressed := false
	err = readEvents(resp.Body, func(ev sseEvent) error {
		if ev.ID != "" {
			seen(ev.ID)
		}
		if ev.Event == "ping" {
			return nil
		}
		progressed = true

		var fe domain.FeedEvent
		if err := json.Unmarshal([]byte(ev.Data), &fe); err != nil {
			return fmt.Errorf("decode feed event: %w", err)
		}
		text := tui.FormatEvent(fe)
		if text == "" {
			return nil
		}
		out, err := opts.Render(text)
		if err != nil {
			return err
		}
		_, err = io.WriteString(w, out)
		return err
	})
	return progressed, err
}

// readEvents parses a text/event-stream body, calling fn once per
// dispatched event. An event's ID is the last id field seen so far.
func readEvents(r io.Reader, fn func(ev sseEvent) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var lastID, event string
	var data []string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if len(data) > 0 {
				ev := sseEvent{ID: lastID, Event: event, Data: strings.Join(data, "\n")}
				if err := fn(ev); err != nil {
					return err
				}
			}
			event, data = "", nil
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "id:"):
			lastID = strings.TrimSpace(strings.TrimPrefix(line, "id:"))
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Package scenelog implements the append-only, per-session scene log.
//
// Every entry receives the next sequence number of its session, starting at 1
// with no gaps. Appends are serialized per session; the store additionally
// assigns the sequence number inside a single write so that concurrent
// replicas cannot produce duplicates.
package scenelog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aretw0/wren/internal/logging"
	"github.com/aretw0/wren/pkg/domain"
	"github.com/aretw0/wren/pkg/ports"
	"github.com/aretw0/wren/pkg/session"
)

// AppendRequest describes a new entry. Speaker is resolved from the author's
// membership when empty.
type AppendRequest struct {
	SessionID string
	AuthorID  string
	Speaker   string
	Content   string
	Kind      domain.CommandKind
	Override  bool
}

// Log is the scene log service.
type Log struct {
	store    ports.Store
	locks    *session.Manager
	notifier ports.Notifier
	hooks    domain.Hooks
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures the Log.
type Option func(*Log)

// WithNotifier wakes change-feed subscribers after each append.
func WithNotifier(n ports.Notifier) Option {
	return func(l *Log) {
		l.notifier = n
	}
}

// WithHooks registers observability callbacks.
func WithHooks(h domain.Hooks) Option {
	return func(l *Log) {
		l.hooks = h
	}
}

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Log) {
		l.logger = logger
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Log) {
		l.now = now
	}
}

// New creates a scene log over the store.
func New(store ports.Store, locks *session.Manager, opts ...Option) *Log {
	l := &Log{
		store:  store,
		locks:  locks,
		logger: logging.NewNop(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Append commits an entry to an active session and returns it with its
// assigned sequence number.
func (l *Log) Append(ctx context.Context, req AppendRequest) (domain.LogEntry, error) {
	if strings.TrimSpace(req.Content) == "" {
		return domain.LogEntry{}, fmt.Errorf("%w: log content is empty", domain.ErrValidation)
	}

	var committed domain.LogEntry
	err := l.locks.WithLock(ctx, req.SessionID, func(ctx context.Context) error {
		sess, err := l.store.GetSession(ctx, req.SessionID)
		if err != nil {
			return err
		}
		if !sess.IsActive {
			return fmt.Errorf("%w: session %s is inactive", domain.ErrSessionNotFound, req.SessionID)
		}

		speaker, err := l.speaker(ctx, req)
		if err != nil {
			return err
		}
		entry := domain.LogEntry{
			SessionID:  req.SessionID,
			AuthorID:   req.AuthorID,
			Speaker:    speaker,
			Content:    req.Content,
			Kind:       req.Kind,
			IsOverride: req.Override,
			CreatedAt:  l.now(),
		}
		committed, err = l.store.AppendLog(ctx, entry)
		return err
	})
	if err != nil {
		return domain.LogEntry{}, err
	}

	l.logger.Debug("Log entry appended",
		"session_id", committed.SessionID,
		"seq", committed.Seq,
		"kind", committed.Kind,
	)
	l.hooks.Append(ctx, &domain.AppendEvent{Timestamp: committed.CreatedAt, Entry: committed})
	l.notify(ctx, committed.SessionID)
	return committed, nil
}

func (l *Log) speaker(ctx context.Context, req AppendRequest) (string, error) {
	if s := strings.TrimSpace(req.Speaker); s != "" {
		return s, nil
	}
	m, err := l.store.GetMembership(ctx, req.SessionID, req.AuthorID)
	switch {
	case err == nil && m.CharacterName != "":
		return m.CharacterName, nil
	case err == nil, errors.Is(err, domain.ErrNotAMember):
		return "User-" + domain.ShortID(req.AuthorID), nil
	default:
		return "", err
	}
}

func (l *Log) notify(ctx context.Context, sessionID string) {
	if l.notifier == nil {
		return
	}
	if err := l.notifier.Notify(ctx, sessionID); err != nil {
		l.logger.Warn("Failed to notify feed subscribers", "session_id", sessionID, "err", err)
	}
}

// Since returns entries with seq > afterSeq in ascending order. A limit <= 0
// returns everything.
func (l *Log) Since(ctx context.Context, sessionID string, afterSeq int64, limit int) ([]domain.LogEntry, error) {
	if _, err := l.store.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return l.store.LogSince(ctx, sessionID, afterSeq, limit)
}

// Recent returns the last limit entries in ascending order.
func (l *Log) Recent(ctx context.Context, sessionID string, limit int) ([]domain.LogEntry, error) {
	if _, err := l.store.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return l.store.RecentLog(ctx, sessionID, limit)
}

// Latest returns the highest committed sequence number, 0 for an empty log.
func (l *Log) Latest(ctx context.Context, sessionID string) (int64, error) {
	last, err := l.Recent(ctx, sessionID, 1)
	if err != nil {
		return 0, err
	}
	if len(last) == 0 {
		return 0, nil
	}
	return last[0].Seq, nil
}

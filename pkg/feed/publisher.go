// Package feed computes per-observer change feeds for a session.
//
// The publisher keeps no per-connection state: every observer supplies its
// own domain.Cursor, so a dropped consumer resumes by reconnecting with the
// last cursor it saw. Poll is side-effect free and safe to call concurrently.
package feed

import (
	"context"
	"log/slog"
	"time"

	"github.com/aretw0/wren/internal/logging"
	"github.com/aretw0/wren/pkg/domain"
	"github.com/aretw0/wren/pkg/ports"
)

// DefaultInterval is the delay between two poll cycles of a stream.
const DefaultInterval = 2 * time.Second

// Publisher computes change feeds from the store.
type Publisher struct {
	store    ports.Store
	notifier ports.Notifier
	interval time.Duration
	hooks    domain.Hooks
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures the Publisher.
type Option func(*Publisher)

// WithNotifier lets streams wake up as soon as a session is written to.
func WithNotifier(n ports.Notifier) Option {
	return func(p *Publisher) {
		p.notifier = n
	}
}

// WithInterval sets the delay between poll cycles.
func WithInterval(d time.Duration) Option {
	return func(p *Publisher) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithHooks registers observability callbacks.
func WithHooks(h domain.Hooks) Option {
	return func(p *Publisher) {
		p.hooks = h
	}
}

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// WithClock overrides the time source of heartbeats.
func WithClock(now func() time.Time) Option {
	return func(p *Publisher) {
		p.now = now
	}
}

// NewPublisher creates a publisher over the store.
func NewPublisher(store ports.Store, opts ...Option) *Publisher {
	p := &Publisher{
		store:    store,
		interval: DefaultInterval,
		logger:   logging.NewNop(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Interval returns the configured poll delay.
func (p *Publisher) Interval() time.Duration {
	return p.interval
}

// Poll returns the events newer than cursor, in order: log entries by
// ascending seq, entity updates, the scene update, and a final heartbeat.
// The returned cursor covers every event emitted.
func (p *Publisher) Poll(ctx context.Context, sessionID string, cursor domain.Cursor) ([]domain.FeedEvent, domain.Cursor, error) {
	if _, err := p.store.GetSession(ctx, sessionID); err != nil {
		return nil, cursor, err
	}

	var events []domain.FeedEvent
	now := p.now()

	entries, err := p.store.LogSince(ctx, sessionID, cursor.Seq, 0)
	if err != nil {
		return nil, cursor, err
	}
	for i := range entries {
		e := entries[i]
		events = append(events, domain.FeedEvent{Type: domain.FeedLog, Time: e.CreatedAt, Entry: &e})
	}

	entities, err := p.store.EntitiesUpdatedSince(ctx, sessionID, cursor.EntitiesAt)
	if err != nil {
		return nil, cursor, err
	}
	for i := range entities {
		e := entities[i]
		events = append(events, domain.FeedEvent{Type: domain.FeedEntityUpdate, Time: e.LastUpdated, Entity: &e})
	}

	st, err := p.store.GetScene(ctx, sessionID)
	if err != nil {
		return nil, cursor, err
	}
	if st.LastUpdated.After(cursor.SceneAt) {
		events = append(events, domain.FeedEvent{Type: domain.FeedSceneUpdate, Time: st.LastUpdated, Scene: &st})
	}

	events = append(events, domain.FeedEvent{Type: domain.FeedHeartbeat, Time: now})
	for _, ev := range events {
		cursor = Advance(cursor, ev)
	}

	p.hooks.Poll(ctx, &domain.PollEvent{Timestamp: now, SessionID: sessionID, Events: len(events) - 1})
	return events, cursor, nil
}

// Advance returns c moved past ev. Heartbeats leave it unchanged.
func Advance(c domain.Cursor, ev domain.FeedEvent) domain.Cursor {
	switch {
	case ev.Entry != nil && ev.Entry.Seq > c.Seq:
		c.Seq = ev.Entry.Seq
	case ev.Entity != nil && ev.Entity.LastUpdated.After(c.EntitiesAt):
		c.EntitiesAt = ev.Entity.LastUpdated
	case ev.Scene != nil && ev.Scene.LastUpdated.After(c.SceneAt):
		c.SceneAt = ev.Scene.LastUpdated
	}
	return c
}

// EmitFunc receives stream events together with the cursor that includes
// them and everything emitted before.
// Returning an error stops the stream.
type EmitFunc func(event domain.FeedEvent, cursor domain.Cursor) error

// Stream polls the session until ctx is done or emit fails. It waits
// Interval between cycles, or less when the notifier signals a write.
// It returns nil when ctx is canceled.
func (p *Publisher) Stream(ctx context.Context, sessionID string, cursor domain.Cursor, emit EmitFunc) error {
	var wake <-chan struct{}
	if p.notifier != nil {
		ch, cancel := p.notifier.Subscribe(ctx, sessionID)
		defer cancel()
		wake = ch
	}

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		case <-wake:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}

		events, next, err := p.Poll(ctx, sessionID, cursor)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		for _, ev := range events {
			cursor = Advance(cursor, ev)
			if err := emit(ev, cursor); err != nil {
				p.logger.Debug("Feed consumer gone", "session_id", sessionID, "err", err)
				return err
			}
		}
		cursor = next
		timer.Reset(p.interval)
	}
}

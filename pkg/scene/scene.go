// Package scene maintains the single "current situation" record of each
// session.
package scene

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aretw0/wren/internal/logging"
	"github.com/aretw0/wren/pkg/domain"
	"github.com/aretw0/wren/pkg/ports"
	"github.com/aretw0/wren/pkg/session"
)

// Service reads and mutates scene state.
type Service struct {
	store    ports.Store
	locks    *session.Manager
	notifier ports.Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures the Service.
type Option func(*Service)

// WithNotifier wakes change-feed subscribers after each mutation.
func WithNotifier(n ports.Notifier) Option {
	return func(s *Service) {
		s.notifier = n
	}
}

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// New creates a scene service.
func New(store ports.Store, locks *session.Manager, opts ...Option) *Service {
	s := &Service{
		store:  store,
		locks:  locks,
		logger: logging.NewNop(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Read returns the current scene state.
func (s *Service) Read(ctx context.Context, sessionID string) (domain.SceneState, error) {
	if _, err := s.store.GetSession(ctx, sessionID); err != nil {
		return domain.SceneState{}, err
	}
	return s.store.GetScene(ctx, sessionID)
}

// Apply sets the given fields and, when advance is true, increments the scene
// number. Blank values leave their field untouched. LastUpdated always moves
// forward so change feeds observe every mutation.
func (s *Service) Apply(ctx context.Context, sessionID string, updates map[domain.SceneField]string, advance bool) (domain.SceneState, error) {
	out, err := s.mutate(ctx, sessionID, func(current *domain.SceneState) error {
		for field, value := range updates {
			value = strings.TrimSpace(value)
			if value == "" {
				continue
			}
			if err := current.Set(field, value); err != nil {
				return err
			}
		}
		if advance {
			current.SceneNumber++
		}
		return nil
	})
	if err != nil {
		return domain.SceneState{}, err
	}
	s.logger.Info("Scene updated",
		"session_id", sessionID,
		"scene_number", out.SceneNumber,
		"fields", len(updates),
	)
	return out, nil
}

// Restore puts back the fields and scene number of prev, undoing an Apply
// whose accompanying log write failed. LastUpdated still moves forward.
func (s *Service) Restore(ctx context.Context, prev domain.SceneState) (domain.SceneState, error) {
	out, err := s.mutate(ctx, prev.SessionID, func(current *domain.SceneState) error {
		last := current.LastUpdated
		*current = prev
		current.LastUpdated = last
		return nil
	})
	if err != nil {
		return domain.SceneState{}, err
	}
	s.logger.Warn("Scene restored", "session_id", prev.SessionID, "scene_number", out.SceneNumber)
	return out, nil
}

// mutate runs fn on the current scene under the session lock, stamps and
// saves the result, then wakes feed subscribers.
func (s *Service) mutate(ctx context.Context, sessionID string, fn func(*domain.SceneState) error) (domain.SceneState, error) {
	var out domain.SceneState
	err := s.locks.WithLock(ctx, sessionID, func(ctx context.Context) error {
		sess, err := s.store.GetSession(ctx, sessionID)
		if err != nil {
			return err
		}
		if !sess.IsActive {
			return fmt.Errorf("%w: session %s is inactive", domain.ErrSessionNotFound, sessionID)
		}
		current, err := s.store.GetScene(ctx, sessionID)
		if err != nil {
			return err
		}
		if err := fn(&current); err != nil {
			return err
		}
		current.LastUpdated = after(s.now(), current.LastUpdated)

		if err := s.store.SaveScene(ctx, current); err != nil {
			return err
		}
		out = current
		return nil
	})
	if err != nil {
		return domain.SceneState{}, err
	}

	if s.notifier != nil {
		if err := s.notifier.Notify(ctx, sessionID); err != nil {
			s.logger.Warn("Failed to notify feed subscribers", "session_id", sessionID, "err", err)
		}
	}
	return out, nil
}

// after returns now, or prev plus one nanosecond when the clock has not moved.
func after(now, prev time.Time) time.Time {
	if now.After(prev) {
		return now
	}
	return prev.Add(time.Nanosecond)
}

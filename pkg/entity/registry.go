// Package entity manages the actors present in a session's scene.
// Entities are soft-deleted: Retire clears the active flag and the row stays
// visible to change feeds as an update.
package entity

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
	"github.com/google/uuid"
)

// SummonRequest describes a new entity.
type SummonRequest struct {
	SessionID   string
	CreatorID   string
	Name        string
	Type        domain.EntityType
	Description string
	Meta        map[string]any
}

// Registry is the entity service.
type Registry struct {
	store    ports.Store
	locks    *session.Manager
	notifier ports.Notifier
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string
}

// Option configures the Registry.
type Option func(*Registry)

// WithNotifier wakes change-feed subscribers after each mutation.
func WithNotifier(n ports.Notifier) Option {
	return func(r *Registry) {
		r.notifier = n
	}
}

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// WithIDGenerator overrides entity ID allocation.
func WithIDGenerator(fn func() string) Option {
	return func(r *Registry) {
		r.newID = fn
	}
}

// NewEntityID returns a short random identifier.
func NewEntityID() string {
	return uuid.NewString()[:8]
}

// New creates an entity registry.
func New(store ports.Store, locks *session.Manager, opts ...Option) *Registry {
	r := &Registry{
		store:  store,
		locks:  locks,
		logger: logging.NewNop(),
		now:    func() time.Time { return time.Now().UTC() },
		newID:  NewEntityID,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Summon inserts an active entity. Type defaults to npc.
func (r *Registry) Summon(ctx context.Context, req SummonRequest) (domain.Entity, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Entity{}, fmt.Errorf("%w: entity name is required", domain.ErrValidation)
	}
	typ := domain.EntityType(strings.ToLower(strings.TrimSpace(string(req.Type))))
	if typ == "" {
		typ = domain.EntityNPC
	}

	var out domain.Entity
	err := r.locks.WithLock(ctx, req.SessionID, func(ctx context.Context) error {
		if err := r.requireActive(ctx, req.SessionID); err != nil {
			return err
		}
		at, err := r.stamp(ctx, req.SessionID)
		if err != nil {
			return err
		}
		e := domain.Entity{
			SessionID:   req.SessionID,
			ID:          r.newID(),
			Name:        name,
			Type:        typ,
			Status:      domain.StatusActive,
			Description: strings.TrimSpace(req.Description),
			IsActive:    true,
			CreatedBy:   req.CreatorID,
			CreatedAt:   at,
			LastUpdated: at,
			Meta:        req.Meta,
		}
		if err := r.store.InsertEntity(ctx, e); err != nil {
			return err
		}
		out = e
		return nil
	})
	if err != nil {
		return domain.Entity{}, err
	}

	r.logger.Info("Entity summoned", "session_id", out.SessionID, "entity_id", out.ID, "type", out.Type)
	r.notify(ctx, out.SessionID)
	return out, nil
}

// Get returns one entity, active or not.
func (r *Registry) Get(ctx context.Context, sessionID, entityID string) (domain.Entity, error) {
	return r.store.GetEntity(ctx, sessionID, entityID)
}

// Find resolves an entity by ID, falling back to a case-insensitive match on
// the name of an active entity.
func (r *Registry) Find(ctx context.Context, sessionID, ref string) (domain.Entity, error) {
	ref = strings.TrimSpace(ref)
	e, err := r.store.GetEntity(ctx, sessionID, ref)
	if err == nil {
		return e, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.Entity{}, err
	}
	active, err := r.store.ListActiveEntities(ctx, sessionID)
	if err != nil {
		return domain.Entity{}, err
	}
	for _, e := range active {
		if strings.EqualFold(e.Name, ref) {
			return e, nil
		}
	}
	return domain.Entity{}, fmt.Errorf("%w: entity %q", domain.ErrNotFound, ref)
}

// ListActive returns active entities in creation order.
func (r *Registry) ListActive(ctx context.Context, sessionID string) ([]domain.Entity, error) {
	return r.store.ListActiveEntities(ctx, sessionID)
}

// UpdatedSince returns entities whose last_updated is strictly after since.
func (r *Registry) UpdatedSince(ctx context.Context, sessionID string, since time.Time) ([]domain.Entity, error) {
	return r.store.EntitiesUpdatedSince(ctx, sessionID, since)
}

// Retire clears the active flag. Retiring an already retired entity is a no-op.
func (r *Registry) Retire(ctx context.Context, sessionID, entityID string) (domain.Entity, error) {
	var out domain.Entity
	changed := false
	err := r.locks.WithLock(ctx, sessionID, func(ctx context.Context) error {
		if err := r.requireActive(ctx, sessionID); err != nil {
			return err
		}
		e, err := r.store.GetEntity(ctx, sessionID, entityID)
		if err != nil {
			return err
		}
		if !e.IsActive {
			out = e
			return nil
		}
		at, err := r.stamp(ctx, sessionID)
		if err != nil {
			return err
		}
		e.IsActive = false
		e.Status = domain.StatusRetired
		e.LastUpdated = at
		if err := r.store.UpdateEntity(ctx, e); err != nil {
			return err
		}
		out, changed = e, true
		return nil
	})
	if err != nil {
		return domain.Entity{}, err
	}
	if changed {
		r.logger.Info("Entity retired", "session_id", sessionID, "entity_id", entityID)
		r.notify(ctx, sessionID)
	}
	return out, nil
}

func (r *Registry) requireActive(ctx context.Context, sessionID string) error {
	sess, err := r.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if !sess.IsActive {
		return fmt.Errorf("%w: session %s is inactive", domain.ErrSessionNotFound, sessionID)
	}
	return nil
}

// stamp returns a timestamp later than every entity update already stored
// for the session, so feed cursors never skip a write. Caller holds the lock.
func (r *Registry) stamp(ctx context.Context, sessionID string) (time.Time, error) {
	now := r.now()
	recent, err := r.store.EntitiesUpdatedSince(ctx, sessionID, now.Add(-time.Nanosecond))
	if err != nil {
		return time.Time{}, err
	}
	for _, e := range recent {
		if !e.LastUpdated.Before(now) {
			now = e.LastUpdated.Add(time.Nanosecond)
		}
	}
	return now, nil
}

func (r *Registry) notify(ctx context.Context, sessionID string) {
	if r.notifier == nil {
		return
	}
	if err := r.notifier.Notify(ctx, sessionID); err != nil {
		r.logger.Warn("Failed to notify feed subscribers", "session_id", sessionID, "err", err)
	}
}

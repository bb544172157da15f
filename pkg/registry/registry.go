// Package registry implements the session registry: session creation,
// membership and snapshots.
package registry

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

// DefaultRecentLimit is the number of log entries returned by Snapshot.
const DefaultRecentLimit = 20

// CreateRequest describes a new session.
type CreateRequest struct {
	Name      string         `json:"name" mapstructure:"name"`
	CreatorID string         `json:"creator" mapstructure:"creator"`
	Theme     string         `json:"theme" mapstructure:"theme"`
	Meta      map[string]any `json:"meta" mapstructure:"meta"`
}

// JoinRequest describes a participant entering a session.
type JoinRequest struct {
	SessionID     string `json:"session_id" mapstructure:"session_id"`
	ParticipantID string `json:"participant_id" mapstructure:"participant_id"`
	Role          string `json:"role" mapstructure:"role"`
	CharacterName string `json:"character_name" mapstructure:"character_name"`
}

// Registry manages sessions and memberships.
type Registry struct {
	store       ports.Store
	locks       *session.Manager
	logger      *slog.Logger
	now         func() time.Time
	newID       func() string
	recentLimit int
}

// Option configures the Registry.
type Option func(*Registry)

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

// WithIDGenerator overrides session ID allocation.
func WithIDGenerator(fn func() string) Option {
	return func(r *Registry) {
		r.newID = fn
	}
}

// WithRecentLimit sets how many log entries Snapshot returns.
func WithRecentLimit(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.recentLimit = n
		}
	}
}

// NewSessionID returns a fresh "sr-" prefixed identifier.
func NewSessionID() string {
	return "sr-" + uuid.NewString()[:8]
}

// New creates a Registry over the store.
func New(store ports.Store, locks *session.Manager, opts ...Option) *Registry {
	r := &Registry{
		store:       store,
		locks:       locks,
		logger:      logging.NewNop(),
		now:         func() time.Time { return time.Now().UTC() },
		newID:       NewSessionID,
		recentLimit: DefaultRecentLimit,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create allocates a session, its default scene state and the creator's
// game-master membership atomically.
func (r *Registry) Create(ctx context.Context, req CreateRequest) (domain.Session, error) {
	now := r.now()
	sess := domain.Session{
		ID:         r.newID(),
		Name:       strings.TrimSpace(req.Name),
		CreatedBy:  strings.TrimSpace(req.CreatorID),
		CreatedAt:  now,
		LastActive: now,
		IsActive:   true,
		Theme:      strings.TrimSpace(req.Theme),
		Meta:       req.Meta,
	}
	if sess.Name == "" {
		sess.Name = domain.DefaultSessionName
	}
	if sess.CreatedBy == "" {
		sess.CreatedBy = domain.DefaultCreator
	}
	if sess.Theme == "" {
		sess.Theme = domain.DefaultTheme
	}
	gm := domain.Membership{
		SessionID:     sess.ID,
		ParticipantID: sess.CreatedBy,
		Role:          domain.RoleGameMaster,
		CharacterName: domain.GameMasterCharacter,
		JoinedAt:      now,
	}

	if err := r.store.CreateSession(ctx, sess, domain.NewSceneState(sess.ID, now), gm); err != nil {
		return domain.Session{}, asStorage("create session", err)
	}
	r.logger.Info("Session created", "session_id", sess.ID, "created_by", sess.CreatedBy)
	return sess, nil
}

// Join enrolls a participant. A second join is an error, not a no-op.
func (r *Registry) Join(ctx context.Context, req JoinRequest) (domain.Membership, error) {
	participant := strings.TrimSpace(req.ParticipantID)
	if participant == "" {
		return domain.Membership{}, fmt.Errorf("%w: participant id is required", domain.ErrValidation)
	}
	role, err := domain.ParseRole(strings.ToLower(strings.TrimSpace(req.Role)))
	if err != nil {
		return domain.Membership{}, err
	}
	if _, err := r.RequireActive(ctx, req.SessionID); err != nil {
		return domain.Membership{}, err
	}

	character := strings.TrimSpace(req.CharacterName)
	if character == "" {
		character = "Runner-" + domain.ShortID(participant)
	}
	now := r.now()
	m := domain.Membership{
		SessionID:     req.SessionID,
		ParticipantID: participant,
		Role:          role,
		CharacterName: character,
		JoinedAt:      now,
	}
	if err := r.store.AddMembership(ctx, m); err != nil {
		return domain.Membership{}, err
	}
	if err := r.store.TouchSession(ctx, req.SessionID, now); err != nil {
		r.logger.Warn("Failed to bump last_active after join", "session_id", req.SessionID, "err", err)
	}
	r.logger.Info("Participant joined", "session_id", req.SessionID, "participant_id", participant, "role", role)
	return m, nil
}

// Session returns a session whether active or not.
func (r *Registry) Session(ctx context.Context, sessionID string) (domain.Session, error) {
	return r.store.GetSession(ctx, sessionID)
}

// RequireActive returns the session, or domain.ErrSessionNotFound when it is
// missing or closed.
func (r *Registry) RequireActive(ctx context.Context, sessionID string) (domain.Session, error) {
	sess, err := r.store.GetSession(ctx, sessionID)
	if err != nil {
		return domain.Session{}, err
	}
	if !sess.IsActive {
		return domain.Session{}, fmt.Errorf("%w: session %s is inactive", domain.ErrSessionNotFound, sessionID)
	}
	return sess, nil
}

// Membership reads the latest committed membership. Roles are never cached.
func (r *Registry) Membership(ctx context.Context, sessionID, participantID string) (domain.Membership, error) {
	return r.store.GetMembership(ctx, sessionID, participantID)
}

// Snapshot returns the view handed to clients joining mid-session.
func (r *Registry) Snapshot(ctx context.Context, sessionID string) (domain.Snapshot, error) {
	sess, err := r.store.GetSession(ctx, sessionID)
	if err != nil {
		return domain.Snapshot{}, err
	}
	members, err := r.store.ListMemberships(ctx, sessionID)
	if err != nil {
		return domain.Snapshot{}, err
	}
	scene, err := r.store.GetScene(ctx, sessionID)
	if err != nil {
		return domain.Snapshot{}, err
	}
	entities, err := r.store.ListActiveEntities(ctx, sessionID)
	if err != nil {
		return domain.Snapshot{}, err
	}
	recent, err := r.store.RecentLog(ctx, sessionID, r.recentLimit)
	if err != nil {
		return domain.Snapshot{}, err
	}
	return domain.Snapshot{
		Session:   sess,
		Members:   members,
		Scene:     scene,
		Entities:  entities,
		RecentLog: recent,
	}, nil
}

// List returns every session, most recently active first.
func (r *Registry) List(ctx context.Context) ([]domain.Session, error) {
	return r.store.ListSessions(ctx)
}

// Close deactivates a session. Only its game-master may close it.
func (r *Registry) Close(ctx context.Context, sessionID, participantID string) error {
	if _, err := r.RequireActive(ctx, sessionID); err != nil {
		return err
	}
	m, err := r.store.GetMembership(ctx, sessionID, participantID)
	if err != nil {
		return err
	}
	if !m.IsGameMaster() {
		return fmt.Errorf("%w: only the game-master can close the session", domain.ErrUnauthorized)
	}
	return r.locks.WithLock(ctx, sessionID, func(ctx context.Context) error {
		if err := r.store.CloseSession(ctx, sessionID, r.now()); err != nil {
			return err
		}
		r.logger.Info("Session closed", "session_id", sessionID, "participant_id", participantID)
		return nil
	})
}

func asStorage(op string, err error) error {
	if errors.Is(err, domain.ErrStorage) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", domain.ErrStorage, op, err)
}

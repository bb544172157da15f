package ports

import (
	"context"
	"time"

	"github.com/aretw0/wren/pkg/domain"
)

// SessionStore persists sessions together with their initial scene state and
// game-master membership.
type SessionStore interface {
	// CreateSession inserts the session, its scene state and the creator's
	// membership in a single transaction. Nothing is persisted on failure.
	CreateSession(ctx context.Context, session domain.Session, scene domain.SceneState, gm domain.Membership) error

	// GetSession returns domain.ErrSessionNotFound if the session does not exist.
	GetSession(ctx context.Context, sessionID string) (domain.Session, error)

	// ListSessions returns every session, most recently active first.
	ListSessions(ctx context.Context) ([]domain.Session, error)

	// TouchSession bumps last_active.
	TouchSession(ctx context.Context, sessionID string, at time.Time) error

	// CloseSession clears is_active. Sessions are never deleted.
	CloseSession(ctx context.Context, sessionID string, at time.Time) error
}

// MembershipStore persists participant roles.
type MembershipStore interface {
	// AddMembership returns domain.ErrAlreadyMember on a duplicate (session, participant).
	AddMembership(ctx context.Context, m domain.Membership) error

	// GetMembership returns domain.ErrNotAMember if the participant never joined.
	GetMembership(ctx context.Context, sessionID, participantID string) (domain.Membership, error)

	// ListMemberships returns members in join order.
	ListMemberships(ctx context.Context, sessionID string) ([]domain.Membership, error)
}

// LogStore persists the append-only scene log.
type LogStore interface {
	// AppendLog assigns entry.Seq = max(seq)+1 (1 for an empty log), inserts
	// the entry and bumps the session's last_active atomically.
	AppendLog(ctx context.Context, entry domain.LogEntry) (domain.LogEntry, error)

	// LogSince returns entries with seq > afterSeq in ascending order.
	// A limit <= 0 means no limit.
	LogSince(ctx context.Context, sessionID string, afterSeq int64, limit int) ([]domain.LogEntry, error)

	// RecentLog returns the last limit entries in ascending order.
	RecentLog(ctx context.Context, sessionID string, limit int) ([]domain.LogEntry, error)
}

// SceneStore persists the per-session scene state.
type SceneStore interface {
	// GetScene returns domain.ErrNotFound if the session has no scene state.
	GetScene(ctx context.Context, sessionID string) (domain.SceneState, error)

	// SaveScene overwrites the scene state of an existing session.
	SaveScene(ctx context.Context, scene domain.SceneState) error
}

// EntityStore persists scene entities.
type EntityStore interface {
	InsertEntity(ctx context.Context, e domain.Entity) error

	// GetEntity returns domain.ErrNotFound for an unknown entity.
	GetEntity(ctx context.Context, sessionID, entityID string) (domain.Entity, error)

	// UpdateEntity overwrites the mutable fields of an existing entity.
	UpdateEntity(ctx context.Context, e domain.Entity) error

	// ListActiveEntities returns active entities in creation order.
	ListActiveEntities(ctx context.Context, sessionID string) ([]domain.Entity, error)

	// EntitiesUpdatedSince returns entities, active or not, whose last_updated
	// is strictly after since, oldest update first.
	EntitiesUpdatedSince(ctx context.Context, sessionID string, since time.Time) ([]domain.Entity, error)
}

// Store is the single source of truth for session state.
// Failures other than the documented sentinels wrap domain.ErrStorage.
type Store interface {
	SessionStore
	MembershipStore
	LogStore
	SceneStore
	EntityStore
}

// ConversationStore keeps the per-participant history fed to the completion bridge.
type ConversationStore interface {
	Append(ctx context.Context, participantID string, msg domain.Message) error

	// Recent returns up to limit messages in chronological order.
	Recent(ctx context.Context, participantID string, limit int) ([]domain.Message, error)
}

package memory

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/aretw0/wren/pkg/domain"
)

// Store implements ports.Store in memory.
// Safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]domain.Session
	members  map[string][]domain.Membership
	logs     map[string][]domain.LogEntry
	scenes   map[string]domain.SceneState
	entities map[string][]domain.Entity
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		sessions: make(map[string]domain.Session),
		members:  make(map[string][]domain.Membership),
		logs:     make(map[string][]domain.LogEntry),
		scenes:   make(map[string]domain.SceneState),
		entities: make(map[string][]domain.Entity),
	}
}

// CreateSession inserts the session, its scene and the game-master membership.
func (s *Store) CreateSession(ctx context.Context, session domain.Session, scene domain.SceneState, gm domain.Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[session.ID]; ok {
		return fmt.Errorf("%w: create session: duplicate id %q", domain.ErrStorage, session.ID)
	}
	session.Meta = maps.Clone(session.Meta)
	s.sessions[session.ID] = session
	s.scenes[session.ID] = scene
	s.members[session.ID] = []domain.Membership{gm}
	return nil
}

// GetSession retrieves a session by ID.
func (s *Store) GetSession(ctx context.Context, sessionID string) (domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	session.Meta = maps.Clone(session.Meta)
	return session, nil
}

// ListSessions returns all sessions, most recently active first.
func (s *Store) ListSessions(ctx context.Context) ([]domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		session.Meta = maps.Clone(session.Meta)
		out = append(out, session)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastActive.After(out[j].LastActive)
	})
	return out, nil
}

// TouchSession bumps last_active.
func (s *Store) TouchSession(ctx context.Context, sessionID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.touch(sessionID, at)
}

func (s *Store) touch(sessionID string, at time.Time) error {
	session, ok := s.sessions[sessionID]
	if !ok {
		return domain.ErrSessionNotFound
	}
	session.LastActive = at
	s.sessions[sessionID] = session
	return nil
}

// CloseSession marks the session inactive.
func (s *Store) CloseSession(ctx context.Context, sessionID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return domain.ErrSessionNotFound
	}
	session.IsActive = false
	session.LastActive = at
	s.sessions[sessionID] = session
	return nil
}

// AddMembership enrolls a participant.
func (s *Store) AddMembership(ctx context.Context, m domain.Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[m.SessionID]; !ok {
		return domain.ErrSessionNotFound
	}
	for _, existing := range s.members[m.SessionID] {
		if existing.ParticipantID == m.ParticipantID {
			return domain.ErrAlreadyMember
		}
	}
	s.members[m.SessionID] = append(s.members[m.SessionID], m)
	return nil
}

// GetMembership looks up a participant's membership.
func (s *Store) GetMembership(ctx context.Context, sessionID, participantID string) (domain.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, m := range s.members[sessionID] {
		if m.ParticipantID == participantID {
			return m, nil
		}
	}
	return domain.Membership{}, domain.ErrNotAMember
}

// ListMemberships returns members in join order.
func (s *Store) ListMemberships(ctx context.Context, sessionID string) ([]domain.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]domain.Membership(nil), s.members[sessionID]...), nil
}

// AppendLog assigns the next sequence number and stores the entry.
func (s *Store) AppendLog(ctx context.Context, entry domain.LogEntry) (domain.LogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[entry.SessionID]; !ok {
		return domain.LogEntry{}, domain.ErrSessionNotFound
	}
	entry.Seq = int64(len(s.logs[entry.SessionID])) + 1
	s.logs[entry.SessionID] = append(s.logs[entry.SessionID], entry)
	if err := s.touch(entry.SessionID, entry.CreatedAt); err != nil {
		return domain.LogEntry{}, err
	}
	return entry, nil
}

// LogSince returns entries after afterSeq.
func (s *Store) LogSince(ctx context.Context, sessionID string, afterSeq int64, limit int) ([]domain.LogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log := s.logs[sessionID]
	if afterSeq < 0 {
		afterSeq = 0
	}
	if afterSeq >= int64(len(log)) {
		return []domain.LogEntry{}, nil
	}
	// Seq n lives at index n-1.
	tail := log[afterSeq:]
	if limit > 0 && len(tail) > limit {
		tail = tail[:limit]
	}
	return append([]domain.LogEntry(nil), tail...), nil
}

// RecentLog returns the last limit entries.
func (s *Store) RecentLog(ctx context.Context, sessionID string, limit int) ([]domain.LogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log := s.logs[sessionID]
	if limit > 0 && len(log) > limit {
		log = log[len(log)-limit:]
	}
	return append([]domain.LogEntry(nil), log...), nil
}

// GetScene returns the scene state of a session.
func (s *Store) GetScene(ctx context.Context, sessionID string) (domain.SceneState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	scene, ok := s.scenes[sessionID]
	if !ok {
		return domain.SceneState{}, domain.ErrNotFound
	}
	return scene, nil
}

// SaveScene overwrites the scene state.
func (s *Store) SaveScene(ctx context.Context, scene domain.SceneState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.scenes[scene.SessionID]; !ok {
		return domain.ErrNotFound
	}
	s.scenes[scene.SessionID] = scene
	return nil
}

// InsertEntity stores a new entity.
func (s *Store) InsertEntity(ctx context.Context, e domain.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[e.SessionID]; !ok {
		return domain.ErrSessionNotFound
	}
	for _, existing := range s.entities[e.SessionID] {
		if existing.ID == e.ID {
			return fmt.Errorf("%w: insert entity: duplicate id %q", domain.ErrStorage, e.ID)
		}
	}
	e.Meta = maps.Clone(e.Meta)
	s.entities[e.SessionID] = append(s.entities[e.SessionID], e)
	return nil
}

// GetEntity looks up one entity.
func (s *Store) GetEntity(ctx context.Context, sessionID, entityID string) (domain.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, e := range s.entities[sessionID] {
		if e.ID == entityID {
			e.Meta = maps.Clone(e.Meta)
			return e, nil
		}
	}
	return domain.Entity{}, domain.ErrNotFound
}

// UpdateEntity overwrites an existing entity.
func (s *Store) UpdateEntity(ctx context.Context, e domain.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.entities[e.SessionID]
	for i := range list {
		if list[i].ID == e.ID {
			e.CreatedAt = list[i].CreatedAt
			e.CreatedBy = list[i].CreatedBy
			e.Meta = maps.Clone(e.Meta)
			list[i] = e
			return nil
		}
	}
	return domain.ErrNotFound
}

// ListActiveEntities returns active entities in creation order.
func (s *Store) ListActiveEntities(ctx context.Context, sessionID string) ([]domain.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []domain.Entity{}
	for _, e := range s.entities[sessionID] {
		if e.IsActive {
			e.Meta = maps.Clone(e.Meta)
			out = append(out, e)
		}
	}
	return out, nil
}

// EntitiesUpdatedSince returns entities touched strictly after since.
func (s *Store) EntitiesUpdatedSince(ctx context.Context, sessionID string, since time.Time) ([]domain.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []domain.Entity{}
	for _, e := range s.entities[sessionID] {
		if e.LastUpdated.After(since) {
			e.Meta = maps.Clone(e.Meta)
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LastUpdated.Before(out[j].LastUpdated)
	})
	return out, nil
}

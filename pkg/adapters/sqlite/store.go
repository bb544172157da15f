// Package sqlite provides a SQLite-backed implementation of the session store.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/aretw0/wren/internal/migrate"
	"github.com/aretw0/wren/pkg/adapters/sqlite/migrations"
	"github.com/aretw0/wren/pkg/domain"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// Store persists sessions, the scene log, scene state and entities in SQLite.
type Store struct {
	db *sql.DB
}

func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UTC().UnixNano()
}

func fromNanos(v int64) time.Time {
	if v == 0 {
		return time.Time{}
	}
	return time.Unix(0, v).UTC()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Open opens a SQLite store and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// A single connection serializes writers inside the process.
	db.SetMaxOpenConns(1)

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := migrate.Apply(ctx, db, migrations.FS, "."); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Conversations returns a conversation store sharing this database.
func (s *Store) Conversations() *Conversations {
	return &Conversations{db: s.db}
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", domain.ErrStorage, op, err)
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

func encodeMeta(meta map[string]any) (string, error) {
	if len(meta) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeMeta(raw string) map[string]any {
	if raw == "" || raw == "{}" {
		return nil
	}
	var meta map[string]any
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		return nil
	}
	return meta
}

// CreateSession inserts the session, its scene state and the game-master
// membership in one transaction.
func (s *Store) CreateSession(ctx context.Context, session domain.Session, scene domain.SceneState, gm domain.Membership) error {
	meta, err := encodeMeta(session.Meta)
	if err != nil {
		return storageErr("encode session meta", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("begin create session", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO sessions (session_id, name, created_by, created_at, last_active, is_active, theme, meta_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		session.ID, session.Name, session.CreatedBy,
		toNanos(session.CreatedAt), toNanos(session.LastActive),
		boolToInt(session.IsActive), session.Theme, meta,
	); err != nil {
		return storageErr("insert session", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO scene_state (session_id, location, goal, opposition, magical_conditions, scene_number, last_updated)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		scene.SessionID, scene.Location, scene.Goal, scene.Opposition,
		scene.MagicalConditions, scene.SceneNumber, toNanos(scene.LastUpdated),
	); err != nil {
		return storageErr("insert scene state", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO memberships (session_id, participant_id, role, character_name, joined_at)
		 VALUES (?, ?, ?, ?, ?)`,
		gm.SessionID, gm.ParticipantID, string(gm.Role), gm.CharacterName, toNanos(gm.JoinedAt),
	); err != nil {
		return storageErr("insert membership", err)
	}
	if err := tx.Commit(); err != nil {
		return storageErr("commit create session", err)
	}
	return nil
}

const sessionColumns = `session_id, name, created_by, created_at, last_active, is_active, theme, meta_json`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (domain.Session, error) {
	var (
		sess                  domain.Session
		createdAt, lastActive int64
		active                int64
		meta                  string
	)
	if err := row.Scan(&sess.ID, &sess.Name, &sess.CreatedBy, &createdAt, &lastActive, &active, &sess.Theme, &meta); err != nil {
		return domain.Session{}, err
	}
	sess.CreatedAt = fromNanos(createdAt)
	sess.LastActive = fromNanos(lastActive)
	sess.IsActive = active != 0
	sess.Meta = decodeMeta(meta)
	return sess, nil
}

// GetSession returns one session.
func (s *Store) GetSession(ctx context.Context, sessionID string) (domain.Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE session_id = ?`, sessionID)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.Session{}, storageErr("get session", err)
	}
	return sess, nil
}

// ListSessions returns all sessions, most recently active first.
func (s *Store) ListSessions(ctx context.Context) ([]domain.Session, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sessionColumns+` FROM sessions ORDER BY last_active DESC`)
	if err != nil {
		return nil, storageErr("list sessions", err)
	}
	defer rows.Close()

	out := []domain.Session{}
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, storageErr("scan session", err)
		}
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list sessions", err)
	}
	return out, nil
}

// TouchSession bumps last_active.
func (s *Store) TouchSession(ctx context.Context, sessionID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE sessions SET last_active = ? WHERE session_id = ?`, toNanos(at), sessionID)
	return expectOne(res, err, "touch session", domain.ErrSessionNotFound)
}

// CloseSession clears is_active.
func (s *Store) CloseSession(ctx context.Context, sessionID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET is_active = 0, last_active = ? WHERE session_id = ?`, toNanos(at), sessionID)
	return expectOne(res, err, "close session", domain.ErrSessionNotFound)
}

func expectOne(res sql.Result, err error, op string, missing error) error {
	if err != nil {
		return storageErr(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storageErr(op, err)
	}
	if n == 0 {
		return missing
	}
	return nil
}

// AddMembership enrolls a participant.
func (s *Store) AddMembership(ctx context.Context, m domain.Membership) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO memberships (session_id, participant_id, role, character_name, joined_at)
		 VALUES (?, ?, ?, ?, ?)`,
		m.SessionID, m.ParticipantID, string(m.Role), m.CharacterName, toNanos(m.JoinedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyMember
		}
		return storageErr("add membership", err)
	}
	return nil
}

func scanMembership(row rowScanner) (domain.Membership, error) {
	var (
		m        domain.Membership
		role     string
		joinedAt int64
	)
	if err := row.Scan(&m.SessionID, &m.ParticipantID, &role, &m.CharacterName, &joinedAt); err != nil {
		return domain.Membership{}, err
	}
	m.Role = domain.Role(role)
	m.JoinedAt = fromNanos(joinedAt)
	return m, nil
}

// GetMembership looks up a participant's membership.
func (s *Store) GetMembership(ctx context.Context, sessionID, participantID string) (domain.Membership, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT session_id, participant_id, role, character_name, joined_at
		 FROM memberships WHERE session_id = ? AND participant_id = ?`, sessionID, participantID)
	m, err := scanMembership(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Membership{}, domain.ErrNotAMember
	}
	if err != nil {
		return domain.Membership{}, storageErr("get membership", err)
	}
	return m, nil
}

// ListMemberships returns members in join order.
func (s *Store) ListMemberships(ctx context.Context, sessionID string) ([]domain.Membership, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, participant_id, role, character_name, joined_at
		 FROM memberships WHERE session_id = ? ORDER BY joined_at, rowid`, sessionID)
	if err != nil {
		return nil, storageErr("list memberships", err)
	}
	defer rows.Close()

	out := []domain.Membership{}
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, storageErr("scan membership", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list memberships", err)
	}
	return out, nil
}

// AppendLog computes max(seq)+1 and inserts the entry in a single statement,
// then bumps last_active within the same transaction.
func (s *Store) AppendLog(ctx context.Context, entry domain.LogEntry) (domain.LogEntry, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.LogEntry{}, storageErr("begin append", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`UPDATE sessions SET last_active = ? WHERE session_id = ?`, toNanos(entry.CreatedAt), entry.SessionID)
	if err := expectOne(res, err, "touch session", domain.ErrSessionNotFound); err != nil {
		return domain.LogEntry{}, err
	}

	err = tx.QueryRowContext(ctx,
		`INSERT INTO scene_log (session_id, seq, author_id, speaker, content, command_kind, is_override, created_at)
		 SELECT ?, COALESCE(MAX(seq), 0) + 1, ?, ?, ?, ?, ?, ?
		 FROM scene_log WHERE session_id = ?
		 RETURNING seq`,
		entry.SessionID, entry.AuthorID, entry.Speaker, entry.Content,
		string(entry.Kind), boolToInt(entry.IsOverride), toNanos(entry.CreatedAt),
		entry.SessionID,
	).Scan(&entry.Seq)
	if err != nil {
		return domain.LogEntry{}, storageErr("insert log entry", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.LogEntry{}, storageErr("commit append", err)
	}
	return entry, nil
}

const logColumns = `session_id, seq, author_id, speaker, content, command_kind, is_override, created_at`

func scanLogEntries(rows *sql.Rows) ([]domain.LogEntry, error) {
	defer rows.Close()

	out := []domain.LogEntry{}
	for rows.Next() {
		var (
			e         domain.LogEntry
			kind      string
			override  int64
			createdAt int64
		)
		if err := rows.Scan(&e.SessionID, &e.Seq, &e.AuthorID, &e.Speaker, &e.Content, &kind, &override, &createdAt); err != nil {
			return nil, storageErr("scan log entry", err)
		}
		e.Kind = domain.CommandKind(kind)
		e.IsOverride = override != 0
		e.CreatedAt = fromNanos(createdAt)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("read log", err)
	}
	return out, nil
}

// LogSince returns entries after afterSeq in ascending order.
func (s *Store) LogSince(ctx context.Context, sessionID string, afterSeq int64, limit int) ([]domain.LogEntry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+logColumns+` FROM scene_log WHERE session_id = ? AND seq > ? ORDER BY seq ASC LIMIT ?`,
		sessionID, afterSeq, limit)
	if err != nil {
		return nil, storageErr("log since", err)
	}
	return scanLogEntries(rows)
}

// RecentLog returns the last limit entries in ascending order.
func (s *Store) RecentLog(ctx context.Context, sessionID string, limit int) ([]domain.LogEntry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+logColumns+` FROM (
		   SELECT `+logColumns+` FROM scene_log WHERE session_id = ? ORDER BY seq DESC LIMIT ?
		 ) ORDER BY seq ASC`,
		sessionID, limit)
	if err != nil {
		return nil, storageErr("recent log", err)
	}
	return scanLogEntries(rows)
}

// GetScene returns the scene state of a session.
func (s *Store) GetScene(ctx context.Context, sessionID string) (domain.SceneState, error) {
	var (
		scene   domain.SceneState
		updated int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT session_id, location, goal, opposition, magical_conditions, scene_number, last_updated
		 FROM scene_state WHERE session_id = ?`, sessionID,
	).Scan(&scene.SessionID, &scene.Location, &scene.Goal, &scene.Opposition,
		&scene.MagicalConditions, &scene.SceneNumber, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.SceneState{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.SceneState{}, storageErr("get scene", err)
	}
	scene.LastUpdated = fromNanos(updated)
	return scene, nil
}

// SaveScene overwrites the scene state.
func (s *Store) SaveScene(ctx context.Context, scene domain.SceneState) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE scene_state
		 SET location = ?, goal = ?, opposition = ?, magical_conditions = ?, scene_number = ?, last_updated = ?
		 WHERE session_id = ?`,
		scene.Location, scene.Goal, scene.Opposition, scene.MagicalConditions,
		scene.SceneNumber, toNanos(scene.LastUpdated), scene.SessionID,
	)
	return expectOne(res, err, "save scene", domain.ErrNotFound)
}

// InsertEntity stores a new entity.
func (s *Store) InsertEntity(ctx context.Context, e domain.Entity) error {
	meta, err := encodeMeta(e.Meta)
	if err != nil {
		return storageErr("encode entity meta", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO entities (session_id, entity_id, name, type, status, description, is_active, created_by, created_at, last_updated, meta_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.SessionID, e.ID, e.Name, string(e.Type), e.Status, e.Description,
		boolToInt(e.IsActive), e.CreatedBy, toNanos(e.CreatedAt), toNanos(e.LastUpdated), meta,
	)
	if err != nil {
		return storageErr("insert entity", err)
	}
	return nil
}

const entityColumns = `session_id, entity_id, name, type, status, description, is_active, created_by, created_at, last_updated, meta_json`

func scanEntity(row rowScanner) (domain.Entity, error) {
	var (
		e                  domain.Entity
		typ, meta          string
		active             int64
		createdAt, updated int64
	)
	if err := row.Scan(&e.SessionID, &e.ID, &e.Name, &typ, &e.Status, &e.Description,
		&active, &e.CreatedBy, &createdAt, &updated, &meta); err != nil {
		return domain.Entity{}, err
	}
	e.Type = domain.EntityType(typ)
	e.IsActive = active != 0
	e.CreatedAt = fromNanos(createdAt)
	e.LastUpdated = fromNanos(updated)
	e.Meta = decodeMeta(meta)
	return e, nil
}

func (s *Store) queryEntities(ctx context.Context, op, query string, args ...any) ([]domain.Entity, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr(op, err)
	}
	defer rows.Close()

	out := []domain.Entity{}
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, storageErr("scan entity", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(op, err)
	}
	return out, nil
}

// GetEntity looks up one entity.
func (s *Store) GetEntity(ctx context.Context, sessionID, entityID string) (domain.Entity, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+entityColumns+` FROM entities WHERE session_id = ? AND entity_id = ?`, sessionID, entityID)
	e, err := scanEntity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Entity{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Entity{}, storageErr("get entity", err)
	}
	return e, nil
}

// UpdateEntity overwrites the mutable fields of an entity.
func (s *Store) UpdateEntity(ctx context.Context, e domain.Entity) error {
	meta, err := encodeMeta(e.Meta)
	if err != nil {
		return storageErr("encode entity meta", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE entities
		 SET name = ?, type = ?, status = ?, description = ?, is_active = ?, last_updated = ?, meta_json = ?
		 WHERE session_id = ? AND entity_id = ?`,
		e.Name, string(e.Type), e.Status, e.Description, boolToInt(e.IsActive),
		toNanos(e.LastUpdated), meta, e.SessionID, e.ID,
	)
	return expectOne(res, err, "update entity", domain.ErrNotFound)
}

// ListActiveEntities returns active entities in creation order.
func (s *Store) ListActiveEntities(ctx context.Context, sessionID string) ([]domain.Entity, error) {
	return s.queryEntities(ctx, "list active entities",
		`SELECT `+entityColumns+` FROM entities WHERE session_id = ? AND is_active = 1 ORDER BY created_at, rowid`,
		sessionID)
}

// EntitiesUpdatedSince returns entities touched strictly after since.
func (s *Store) EntitiesUpdatedSince(ctx context.Context, sessionID string, since time.Time) ([]domain.Entity, error) {
	return s.queryEntities(ctx, "entities updated since",
		`SELECT `+entityColumns+` FROM entities WHERE session_id = ? AND last_updated > ? ORDER BY last_updated, rowid`,
		sessionID, toNanos(since))
}

package domain

import (
	"fmt"
	"time"
)

const (
	// DefaultSessionName is used when a session is created without a name.
	DefaultSessionName = "Unnamed Shadowrun Mission"
	// DefaultTheme is the theme tag assigned when none is provided.
	DefaultTheme = "shadowrunBarren"
	// DefaultCreator identifies sessions created without a creator.
	DefaultCreator = "anonymous"
	// GameMasterCharacter is the character name of the creator's membership.
	GameMasterCharacter = "Game Master"
)

// Role is the privilege level a participant holds in a session.
type Role string

const (
	RoleGameMaster Role = "gm"
	RolePlayer     Role = "player"
	RoleObserver   Role = "observer"
)

// ParseRole validates a role name. Empty input defaults to RolePlayer.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case "":
		return RolePlayer, nil
	case RoleGameMaster, RolePlayer, RoleObserver:
		return Role(s), nil
	}
	return "", fmt.Errorf("%w: unknown role %q", ErrValidation, s)
}

// Session is an isolated collaborative narrative instance.
// Only LastActive and IsActive change after creation.
type Session struct {
	ID         string         `json:"session_id"`
	Name       string         `json:"name"`
	CreatedBy  string         `json:"created_by"`
	CreatedAt  time.Time      `json:"created_at"`
	LastActive time.Time      `json:"last_active"`
	IsActive   bool           `json:"is_active"`
	Theme      string         `json:"theme"`
	Meta       map[string]any `json:"meta,omitempty"`
}

// Membership binds a participant to a session with a fixed role.
type Membership struct {
	SessionID     string    `json:"session_id"`
	ParticipantID string    `json:"participant_id"`
	Role          Role      `json:"role"`
	CharacterName string    `json:"character_name"`
	JoinedAt      time.Time `json:"joined_at"`
}

// IsGameMaster reports whether the membership carries the privileged role.
func (m Membership) IsGameMaster() bool {
	return m.Role == RoleGameMaster
}

// Snapshot is the read-mostly view handed to clients joining mid-session.
type Snapshot struct {
	Session   Session      `json:"session"`
	Members   []Membership `json:"members"`
	Scene     SceneState   `json:"scene"`
	Entities  []Entity     `json:"entities"`
	RecentLog []LogEntry   `json:"recent_log"`
}

// ShortID returns the last four characters of an identity, used to derive
// default display names.
func ShortID(id string) string {
	if len(id) <= 4 {
		return id
	}
	return id[len(id)-4:]
}

package domain

import "time"

// EntityType is a free tag; the constants below are the ones with behavior attached.
type EntityType string

const (
	EntityNPC      EntityType = "npc"
	EntitySpirit   EntityType = "spirit"
	EntityDrone    EntityType = "drone"
	EntityVehicle  EntityType = "vehicle"
	EntityBoss     EntityType = "boss"
	EntitySecurity EntityType = "security"
	EntityThreat   EntityType = "threat"
	EntityContact  EntityType = "contact"
)

const (
	StatusActive  = "active"
	StatusRetired = "retired"
)

// Restricted reports whether only a game-master may bring this type into a scene.
func (t EntityType) Restricted() bool {
	switch t {
	case EntityBoss, EntitySecurity, EntityThreat:
		return true
	}
	return false
}

// Known reports whether the type is one of the predefined tags.
func (t EntityType) Known() bool {
	switch t {
	case EntityNPC, EntitySpirit, EntityDrone, EntityVehicle,
		EntityBoss, EntitySecurity, EntityThreat, EntityContact:
		return true
	}
	return false
}

// Verb is the narration verb used when the entity enters a scene.
func (t EntityType) Verb() string {
	switch t {
	case EntitySpirit, EntityDrone, EntityVehicle:
		return "summoned"
	case EntityNPC, EntityContact:
		return "called"
	}
	return "added"
}

// Entity is an actor present in a scene. Entities are never removed;
// retiring one clears IsActive so feeds observe it as a transition.
type Entity struct {
	SessionID   string         `json:"session_id"`
	ID          string         `json:"entity_id"`
	Name        string         `json:"name"`
	Type        EntityType     `json:"type"`
	Status      string         `json:"status"`
	Description string         `json:"description,omitempty"`
	IsActive    bool           `json:"is_active"`
	CreatedBy   string         `json:"created_by"`
	CreatedAt   time.Time      `json:"created_at"`
	LastUpdated time.Time      `json:"last_updated"`
	Meta        map[string]any `json:"meta,omitempty"`
}

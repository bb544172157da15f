package domain

import (
	"fmt"
	"time"
)

// SceneField names one of the free-text fields of a SceneState.
type SceneField string

const (
	FieldLocation          SceneField = "location"
	FieldGoal              SceneField = "goal"
	FieldOpposition        SceneField = "opposition"
	FieldMagicalConditions SceneField = "magical_conditions"
)

// SceneFields lists every field in presentation order.
var SceneFields = []SceneField{FieldLocation, FieldGoal, FieldOpposition, FieldMagicalConditions}

// ParseSceneField validates a field name.
func ParseSceneField(s string) (SceneField, error) {
	for _, f := range SceneFields {
		if string(f) == s {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w: unknown scene field %q", ErrValidation, s)
}

// SceneState is the single "current situation" record of a session.
type SceneState struct {
	SessionID         string    `json:"session_id"`
	Location          string    `json:"location"`
	Goal              string    `json:"goal"`
	Opposition        string    `json:"opposition"`
	MagicalConditions string    `json:"magical_conditions"`
	SceneNumber       int       `json:"scene_number"`
	LastUpdated       time.Time `json:"last_updated"`
}

// NewSceneState returns the defaults every session starts with.
func NewSceneState(sessionID string, at time.Time) SceneState {
	return SceneState{
		SessionID:         sessionID,
		Location:          "Unknown location",
		Goal:              "Awaiting mission briefing",
		Opposition:        "Unknown",
		MagicalConditions: "Normal",
		SceneNumber:       1,
		LastUpdated:       at,
	}
}

// Set assigns a single field.
func (s *SceneState) Set(field SceneField, value string) error {
	switch field {
	case FieldLocation:
		s.Location = value
	case FieldGoal:
		s.Goal = value
	case FieldOpposition:
		s.Opposition = value
	case FieldMagicalConditions:
		s.MagicalConditions = value
	default:
		return fmt.Errorf("%w: unknown scene field %q", ErrValidation, field)
	}
	return nil
}

package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FeedEventType defines the category of a change-feed event.
type FeedEventType string

const (
	FeedLog          FeedEventType = "log"
	FeedEntityUpdate FeedEventType = "entity_update"
	FeedSceneUpdate  FeedEventType = "scene_update"
	FeedHeartbeat    FeedEventType = "heartbeat"
)

// FeedEvent is a single change delivered to an observer.
// Exactly one of Entry, Entity or Scene is set, except for heartbeats.
type FeedEvent struct {
	Type   FeedEventType `json:"type"`
	Time   time.Time     `json:"time"`
	Entry  *LogEntry     `json:"entry,omitempty"`
	Entity *Entity       `json:"entity,omitempty"`
	Scene  *SceneState   `json:"scene,omitempty"`
}

// Cursor is everything an observer has already consumed.
// The publisher keeps no copy of it.
type Cursor struct {
	Seq        int64     `json:"seq"`
	EntitiesAt time.Time `json:"entities_at"`
	SceneAt    time.Time `json:"scene_at"`
}

// String encodes the cursor as "seq:entitiesNanos:sceneNanos".
func (c Cursor) String() string {
	return fmt.Sprintf("%d:%d:%d", c.Seq, nanos(c.EntitiesAt), nanos(c.SceneAt))
}

// ParseCursor decodes a cursor produced by String. A bare sequence number
// is accepted as well; empty input yields the zero cursor.
func ParseCursor(s string) (Cursor, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Cursor{}, nil
	}
	parts := strings.Split(s, ":")
	if len(parts) != 1 && len(parts) != 3 {
		return Cursor{}, fmt.Errorf("%w: malformed cursor %q", ErrValidation, s)
	}
	values := make([]int64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseInt(p, 10, 64)
		if err != nil || v < 0 {
			return Cursor{}, fmt.Errorf("%w: malformed cursor %q", ErrValidation, s)
		}
		values[i] = v
	}
	c := Cursor{Seq: values[0]}
	if len(values) == 3 {
		c.EntitiesAt = fromNanos(values[1])
		c.SceneAt = fromNanos(values[2])
	}
	return c, nil
}

func nanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromNanos(v int64) time.Time {
	if v == 0 {
		return time.Time{}
	}
	return time.Unix(0, v).UTC()
}

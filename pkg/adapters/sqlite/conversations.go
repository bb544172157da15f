package sqlite

import (
	"context"
	"database/sql"

	"github.com/aretw0/wren/pkg/domain"
)

// Conversations implements ports.ConversationStore on the session database.
type Conversations struct {
	db *sql.DB
}

// Append records one message for the participant.
func (c *Conversations) Append(ctx context.Context, participantID string, msg domain.Message) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO conversations (participant_id, role, content, created_at) VALUES (?, ?, ?, ?)`,
		participantID, string(msg.Role), msg.Content, toNanos(msg.CreatedAt),
	)
	if err != nil {
		return storageErr("append conversation", err)
	}
	return nil
}

// Recent returns up to limit messages in chronological order.
func (c *Conversations) Recent(ctx context.Context, participantID string, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := c.db.QueryContext(ctx,
		`SELECT role, content, created_at FROM (
		   SELECT message_id, role, content, created_at FROM conversations
		   WHERE participant_id = ? ORDER BY message_id DESC LIMIT ?
		 ) ORDER BY message_id ASC`,
		participantID, limit)
	if err != nil {
		return nil, storageErr("recent conversation", err)
	}
	defer rows.Close()

	out := []domain.Message{}
	for rows.Next() {
		var (
			msg       domain.Message
			role      string
			createdAt int64
		)
		if err := rows.Scan(&role, &msg.Content, &createdAt); err != nil {
			return nil, storageErr("scan conversation", err)
		}
		msg.Role = domain.MessageRole(role)
		msg.CreatedAt = fromNanos(createdAt)
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("recent conversation", err)
	}
	return out, nil
}

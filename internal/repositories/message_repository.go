package repositories

import (
	"context"

	"github.com/jmoiron/sqlx"

	"chat-backbone/internal/models"
)

// MessageRepository defines interactions for stored messages.
type MessageRepository interface {
	Insert(ctx context.Context, conversationID, senderID, content string) (models.Message, error)
	ListByConversation(ctx context.Context, conversationID string, limit int) ([]models.Message, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// Insert stores a message and returns it with the server-assigned id
// and timestamp.
func (r *MessageRepo) Insert(ctx context.Context, conversationID, senderID, content string) (models.Message, error) {
	var msg models.Message
	err := r.db.QueryRowxContext(ctx, `INSERT INTO messages (conversation_id, sender_id, content)
        VALUES ($1, $2, $3)
        RETURNING id, conversation_id, sender_id, content, created_at`,
		conversationID, senderID, content).StructScan(&msg)
	return msg, err
}

// ListByConversation returns messages newest-first, ties broken by id.
// A limit of 0 or less returns the full history.
func (r *MessageRepo) ListByConversation(ctx context.Context, conversationID string, limit int) ([]models.Message, error) {
	query := `SELECT id, conversation_id, sender_id, content, created_at
        FROM messages
        WHERE conversation_id=$1
        ORDER BY created_at DESC, id DESC`
	args := []interface{}{conversationID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs, query, args...)
	return msgs, err
}

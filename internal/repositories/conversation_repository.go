package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"chat-backbone/internal/models"
)

var ErrConversationNotFound = errors.New("conversation not found")

// ConversationRepository abstracts conversation persistence.
type ConversationRepository interface {
	FindBetween(ctx context.Context, userA, userB string) (models.Conversation, error)
	Create(ctx context.Context, userA, userB string) (models.Conversation, error)
	EnsureParticipants(ctx context.Context, conversationID string, userIDs ...string) error
	Get(ctx context.Context, conversationID string) (models.Conversation, error)
	Touch(ctx context.Context, conversationID string) error
	ListWithLastMessage(ctx context.Context, userID string) ([]models.ConversationSummary, error)
}

// ConversationRepo is a sqlx implementation of ConversationRepository.
type ConversationRepo struct {
	db *sqlx.DB
}

// NewConversationRepo constructs a ConversationRepo.
func NewConversationRepo(db *sqlx.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

const conversationColumns = `id, user1_id, user2_id, created_at, updated_at`

// FindBetween returns the conversation between two users, matching the
// pair in either order. If duplicates exist from before the uniqueness
// index the earliest-created row wins.
func (r *ConversationRepo) FindBetween(ctx context.Context, userA, userB string) (models.Conversation, error) {
	var conv models.Conversation
	query := `SELECT ` + conversationColumns + ` FROM conversations
        WHERE (user1_id=$1 AND user2_id=$2) OR (user1_id=$2 AND user2_id=$1)
        ORDER BY created_at ASC, id ASC
        LIMIT 1`
	err := r.db.GetContext(ctx, &conv, query, userA, userB)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Conversation{}, ErrConversationNotFound
	}
	return conv, err
}

// Create inserts a conversation for the pair. A concurrent create for
// the same pair trips the unordered-pair unique index; in that case the
// winner's row is re-read and returned, so callers always converge on
// one id.
func (r *ConversationRepo) Create(ctx context.Context, userA, userB string) (models.Conversation, error) {
	var conv models.Conversation
	err := r.db.QueryRowxContext(ctx, `INSERT INTO conversations (user1_id, user2_id) VALUES ($1, $2)
        ON CONFLICT DO NOTHING
        RETURNING `+conversationColumns, userA, userB).StructScan(&conv)
	if errors.Is(err, sql.ErrNoRows) {
		return r.FindBetween(ctx, userA, userB)
	}
	return conv, err
}

// EnsureParticipants inserts missing participant-link rows. Existing
// links are left alone.
func (r *ConversationRepo) EnsureParticipants(ctx context.Context, conversationID string, userIDs ...string) error {
	for _, userID := range userIDs {
		_, err := r.db.ExecContext(ctx, `INSERT INTO conversation_participants (conversation_id, user_id)
            VALUES ($1, $2) ON CONFLICT (conversation_id, user_id) DO NOTHING`, conversationID, userID)
		if err != nil {
			return err
		}
	}
	return nil
}

// Get fetches a conversation by id.
func (r *ConversationRepo) Get(ctx context.Context, conversationID string) (models.Conversation, error) {
	var conv models.Conversation
	err := r.db.GetContext(ctx, &conv, `SELECT `+conversationColumns+` FROM conversations WHERE id=$1`, conversationID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Conversation{}, ErrConversationNotFound
	}
	return conv, err
}

// Touch bumps the last-activity timestamp. Concurrent bumps commute, so
// no locking is needed.
func (r *ConversationRepo) Touch(ctx context.Context, conversationID string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE conversations SET updated_at=NOW() WHERE id=$1`, conversationID)
	return err
}

// ListWithLastMessage returns the user's conversations ordered by last
// activity, each joined with the peer's identity and the latest message.
func (r *ConversationRepo) ListWithLastMessage(ctx context.Context, userID string) ([]models.ConversationSummary, error) {
	query := `SELECT c.id, c.created_at, c.updated_at,
            u.id AS peer_id, u.username AS peer_username, u.avatar_url AS peer_avatar_url,
            m.sender_id AS last_sender_id, m.content AS last_content, m.created_at AS last_created_at
        FROM conversations c
        JOIN users u ON u.id = CASE WHEN c.user1_id = $1 THEN c.user2_id ELSE c.user1_id END
        LEFT JOIN LATERAL (
            SELECT sender_id, content, created_at FROM messages
            WHERE conversation_id = c.id
            ORDER BY created_at DESC, id DESC
            LIMIT 1
        ) m ON TRUE
        WHERE c.user1_id = $1 OR c.user2_id = $1
        ORDER BY c.updated_at DESC`

	type row struct {
		ID            string         `db:"id"`
		CreatedAt     sql.NullTime   `db:"created_at"`
		UpdatedAt     sql.NullTime   `db:"updated_at"`
		PeerID        string         `db:"peer_id"`
		PeerUsername  string         `db:"peer_username"`
		PeerAvatarURL *string        `db:"peer_avatar_url"`
		LastSenderID  sql.NullString `db:"last_sender_id"`
		LastContent   sql.NullString `db:"last_content"`
		LastCreatedAt sql.NullTime   `db:"last_created_at"`
	}

	var rows []row
	if err := r.db.SelectContext(ctx, &rows, query, userID); err != nil {
		return nil, err
	}

	summaries := make([]models.ConversationSummary, 0, len(rows))
	for _, rw := range rows {
		summary := models.ConversationSummary{
			ConversationID: rw.ID,
			PeerID:         rw.PeerID,
			PeerUsername:   rw.PeerUsername,
			PeerAvatarURL:  rw.PeerAvatarURL,
			CreatedAt:      rw.CreatedAt.Time,
			UpdatedAt:      rw.UpdatedAt.Time,
			LastMessageAt:  rw.UpdatedAt.Time,
		}
		if rw.LastContent.Valid {
			summary.LastMessage = rw.LastContent.String
			summary.LastSenderID = rw.LastSenderID.String
			summary.LastMessageAt = rw.LastCreatedAt.Time
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

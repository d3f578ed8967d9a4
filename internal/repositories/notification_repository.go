package repositories

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"chat-backbone/internal/models"
)

// NotificationRepository defines interactions for notification records.
type NotificationRepository interface {
	Insert(ctx context.Context, userID, title, message string) (models.Notification, error)
	ListForUser(ctx context.Context, userID string) ([]models.Notification, error)
	MarkRead(ctx context.Context, userID string, ids []string) (int64, error)
	CountUnread(ctx context.Context, userID string) (int64, error)
}

// NotificationRepo is a sqlx-backed repository.
type NotificationRepo struct {
	db *sqlx.DB
}

// NewNotificationRepo constructs NotificationRepo.
func NewNotificationRepo(db *sqlx.DB) *NotificationRepo {
	return &NotificationRepo{db: db}
}

// Insert stores one notification row.
func (r *NotificationRepo) Insert(ctx context.Context, userID, title, message string) (models.Notification, error) {
	var n models.Notification
	err := r.db.QueryRowxContext(ctx, `INSERT INTO notifications (user_id, title, message)
        VALUES ($1, $2, $3)
        RETURNING id, user_id, title, message, is_read, created_at`,
		userID, title, message).StructScan(&n)
	return n, err
}

// ListForUser returns the user's notifications newest-first.
func (r *NotificationRepo) ListForUser(ctx context.Context, userID string) ([]models.Notification, error) {
	var list []models.Notification
	err := r.db.SelectContext(ctx, &list, `SELECT id, user_id, title, message, is_read, created_at
        FROM notifications WHERE user_id=$1 ORDER BY created_at DESC`, userID)
	return list, err
}

// MarkRead flips the read flag for the given ids, or for all of the
// user's unread notifications when ids is empty. Returns the number of
// rows updated.
func (r *NotificationRepo) MarkRead(ctx context.Context, userID string, ids []string) (int64, error) {
	var (
		res sql.Result
		err error
	)
	if len(ids) > 0 {
		res, err = r.db.ExecContext(ctx, `UPDATE notifications SET is_read=TRUE
            WHERE user_id=$1 AND is_read=FALSE AND id=ANY($2)`, userID, pq.Array(ids))
	} else {
		res, err = r.db.ExecContext(ctx, `UPDATE notifications SET is_read=TRUE
            WHERE user_id=$1 AND is_read=FALSE`, userID)
	}
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CountUnread returns the number of unread notifications for the user.
func (r *NotificationRepo) CountUnread(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM notifications
        WHERE user_id=$1 AND is_read=FALSE`, userID)
	return count, err
}

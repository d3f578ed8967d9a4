package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"chat-backbone/internal/models"
)

var ErrUserNotFound = errors.New("user not found")

// UserRepository reads identity rows. Users are owned by the auth layer
// and never written here.
type UserRepository interface {
	Get(ctx context.Context, userID string) (models.User, error)
	Search(ctx context.Context, term, excludeUserID string, limit int) ([]models.User, error)
	Bulk(ctx context.Context, ids []string) ([]models.User, error)
}

// UserRepo is a sqlx-backed repository.
type UserRepo struct {
	db *sqlx.DB
}

// NewUserRepo constructs UserRepo.
func NewUserRepo(db *sqlx.DB) *UserRepo {
	return &UserRepo{db: db}
}

const userColumns = `id, username, avatar_url, created_at`

// Get fetches one user by id.
func (r *UserRepo) Get(ctx context.Context, userID string) (models.User, error) {
	var u models.User
	err := r.db.GetContext(ctx, &u, `SELECT `+userColumns+` FROM users WHERE id=$1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	return u, err
}

// Search returns users whose username contains the term,
// case-insensitively, excluding the requester.
func (r *UserRepo) Search(ctx context.Context, term, excludeUserID string, limit int) ([]models.User, error) {
	var users []models.User
	err := r.db.SelectContext(ctx, &users, `SELECT `+userColumns+` FROM users
        WHERE username ILIKE $1 AND id <> $2
        ORDER BY username ASC
        LIMIT $3`, "%"+term+"%", excludeUserID, limit)
	return users, err
}

// Bulk fetches multiple users in one query.
func (r *UserRepo) Bulk(ctx context.Context, ids []string) ([]models.User, error) {
	if len(ids) == 0 {
		return []models.User{}, nil
	}
	var users []models.User
	err := r.db.SelectContext(ctx, &users, `SELECT `+userColumns+` FROM users WHERE id=ANY($1)`, pq.Array(ids))
	return users, err
}

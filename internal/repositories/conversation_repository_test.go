package repositories

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = raw.Close() })
	return sqlx.NewDb(raw, "sqlmock"), mock
}

func conversationRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "user1_id", "user2_id", "created_at", "updated_at"})
}

func TestCreateReturnsInsertedRow(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewConversationRepo(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO conversations`)).
		WithArgs("alice", "bob").
		WillReturnRows(conversationRows().AddRow("conv-1", "alice", "bob", now, now))

	conv, err := repo.Create(context.Background(), "alice", "bob")
	require.NoError(t, err)
	require.Equal(t, "conv-1", conv.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

// A concurrent create for the same pair trips the unordered-pair
// unique index, so the insert returns no row and the winner's row is
// re-read.
func TestCreateConflictRereadsWinner(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewConversationRepo(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO conversations`)).
		WithArgs("bob", "alice").
		WillReturnRows(conversationRows())
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, user1_id, user2_id, created_at, updated_at FROM conversations`)).
		WithArgs("bob", "alice").
		WillReturnRows(conversationRows().AddRow("conv-1", "alice", "bob", now, now))

	conv, err := repo.Create(context.Background(), "bob", "alice")
	require.NoError(t, err)
	require.Equal(t, "conv-1", conv.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindBetweenNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewConversationRepo(db)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, user1_id, user2_id, created_at, updated_at FROM conversations`)).
		WithArgs("alice", "bob").
		WillReturnRows(conversationRows())

	_, err := repo.FindBetween(context.Background(), "alice", "bob")
	require.ErrorIs(t, err, ErrConversationNotFound)
}

package chat

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chat-backbone/internal/mocks"
	"chat-backbone/internal/models"
	"chat-backbone/internal/repositories"
)

// racingConversationStore simulates the storage layer during a
// creation race: every existence check misses, and the unordered-pair
// unique constraint makes the losing insert return the winner's row.
type racingConversationStore struct {
	mocks.ConversationRepositoryMock

	mu      sync.Mutex
	winner  *models.Conversation
	creates int
}

func (s *racingConversationStore) FindBetween(ctx context.Context, userA, userB string) (models.Conversation, error) {
	return models.Conversation{}, repositories.ErrConversationNotFound
}

func (s *racingConversationStore) Create(ctx context.Context, userA, userB string) (models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creates++
	if s.winner == nil {
		s.winner = &models.Conversation{ID: "conv-1", User1ID: userA, User2ID: userB}
	}
	return *s.winner, nil
}

func (s *racingConversationStore) EnsureParticipants(ctx context.Context, conversationID string, userIDs ...string) error {
	return nil
}

func TestResolveRejectsInvalidParticipants(t *testing.T) {
	resolver := NewResolver(new(mocks.ConversationRepositoryMock))

	cases := [][2]string{
		{"", "bob"},
		{"alice", ""},
		{"alice", "alice"},
	}
	for _, pair := range cases {
		_, err := resolver.Resolve(context.Background(), pair[0], pair[1])
		require.ErrorIs(t, err, ErrInvalidParticipant)
	}
}

func TestResolveReturnsExistingConversation(t *testing.T) {
	conversations := new(mocks.ConversationRepositoryMock)
	conv := models.Conversation{ID: "conv-1", User1ID: "alice", User2ID: "bob"}
	conversations.On("FindBetween", mock.Anything, "alice", "bob").Return(conv, nil).Once()

	resolver := NewResolver(conversations)
	got, err := resolver.Resolve(context.Background(), "alice", "bob")
	require.NoError(t, err)
	require.Equal(t, conv, got)

	conversations.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
}

func TestResolveCreatesOnFirstContact(t *testing.T) {
	conversations := new(mocks.ConversationRepositoryMock)
	conv := models.Conversation{ID: "conv-1", User1ID: "alice", User2ID: "bob"}
	conversations.On("FindBetween", mock.Anything, "alice", "bob").Return(models.Conversation{}, repositories.ErrConversationNotFound).Once()
	conversations.On("Create", mock.Anything, "alice", "bob").Return(conv, nil).Once()
	conversations.On("EnsureParticipants", mock.Anything, "conv-1", "alice", "bob").Return(nil).Once()

	resolver := NewResolver(conversations)
	got, err := resolver.Resolve(context.Background(), "alice", "bob")
	require.NoError(t, err)
	require.Equal(t, "conv-1", got.ID)

	conversations.AssertExpectations(t)
}

func TestResolveSurvivesParticipantLinkFailure(t *testing.T) {
	conversations := new(mocks.ConversationRepositoryMock)
	conv := models.Conversation{ID: "conv-1", User1ID: "alice", User2ID: "bob"}
	conversations.On("FindBetween", mock.Anything, "alice", "bob").Return(models.Conversation{}, repositories.ErrConversationNotFound)
	conversations.On("Create", mock.Anything, "alice", "bob").Return(conv, nil)
	conversations.On("EnsureParticipants", mock.Anything, "conv-1", "alice", "bob").Return(errors.New("links table gone"))

	resolver := NewResolver(conversations)
	got, err := resolver.Resolve(context.Background(), "alice", "bob")
	require.NoError(t, err)
	require.Equal(t, "conv-1", got.ID)
}

func TestResolveConcurrentCallsConvergeOnOneConversation(t *testing.T) {
	store := &racingConversationStore{}
	resolver := NewResolver(store)

	pairs := [][2]string{{"alice", "bob"}, {"bob", "alice"}}
	results := make([]models.Conversation, len(pairs))
	errs := make([]error, len(pairs))

	var wg sync.WaitGroup
	for i, pair := range pairs {
		wg.Add(1)
		go func(i int, userA, userB string) {
			defer wg.Done()
			results[i], errs[i] = resolver.Resolve(context.Background(), userA, userB)
		}(i, pair[0], pair[1])
	}
	wg.Wait()

	for i := range pairs {
		require.NoError(t, errs[i])
	}
	require.Equal(t, results[0].ID, results[1].ID)
	require.Equal(t, 2, store.creates, "both callers raced past the existence check")
}

func TestResolveWrapsLookupAndCreateErrors(t *testing.T) {
	conversations := new(mocks.ConversationRepositoryMock)
	conversations.On("FindBetween", mock.Anything, "alice", "bob").Return(models.Conversation{}, errors.New("db down")).Once()

	resolver := NewResolver(conversations)
	_, err := resolver.Resolve(context.Background(), "alice", "bob")
	require.ErrorIs(t, err, ErrConversationLookup)

	conversations = new(mocks.ConversationRepositoryMock)
	conversations.On("FindBetween", mock.Anything, "alice", "bob").Return(models.Conversation{}, repositories.ErrConversationNotFound).Once()
	conversations.On("Create", mock.Anything, "alice", "bob").Return(models.Conversation{}, errors.New("db down")).Once()

	resolver = NewResolver(conversations)
	_, err = resolver.Resolve(context.Background(), "alice", "bob")
	require.ErrorIs(t, err, ErrConversationCreate)
}

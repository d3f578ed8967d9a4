package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chat-backbone/internal/chat"
	"chat-backbone/internal/mocks"
	"chat-backbone/internal/models"
	"chat-backbone/internal/repositories"
)

func setupConversationRouter(handler *ConversationHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", "alice")
		c.Next()
	})
	r.POST("/conversations/resolve", handler.Resolve)
	r.GET("/conversations", handler.List)
	return r
}

func newConversationHandler(conversations *mocks.ConversationRepositoryMock, messages *mocks.MessageRepositoryMock, users *mocks.UserRepositoryMock) *ConversationHandler {
	resolver := chat.NewResolver(conversations)
	service := chat.NewService(conversations, messages)
	return NewConversationHandler(resolver, service, users)
}

func TestResolveCreatesConversation(t *testing.T) {
	conversations := new(mocks.ConversationRepositoryMock)
	users := new(mocks.UserRepositoryMock)
	handler := newConversationHandler(conversations, new(mocks.MessageRepositoryMock), users)
	router := setupConversationRouter(handler)

	users.On("Get", mock.Anything, "bob").Return(models.User{ID: "bob", Username: "bob"}, nil).Once()
	conversations.On("FindBetween", mock.Anything, "alice", "bob").Return(models.Conversation{}, repositories.ErrConversationNotFound).Once()
	conversations.On("Create", mock.Anything, "alice", "bob").Return(models.Conversation{ID: "conv-1", User1ID: "alice", User2ID: "bob"}, nil).Once()
	conversations.On("EnsureParticipants", mock.Anything, "conv-1", "alice", "bob").Return(nil).Once()

	body := bytes.NewBufferString(`{"peer_id":"bob"}`)
	req := httptest.NewRequest(http.MethodPost, "/conversations/resolve", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Conversation models.Conversation `json:"conversation"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Equal(t, "conv-1", resp.Conversation.ID)

	conversations.AssertExpectations(t)
	users.AssertExpectations(t)
}

func TestResolveUnknownPeer(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	handler := newConversationHandler(new(mocks.ConversationRepositoryMock), new(mocks.MessageRepositoryMock), users)
	router := setupConversationRouter(handler)

	users.On("Get", mock.Anything, "ghost").Return(models.User{}, repositories.ErrUserNotFound).Once()

	body := bytes.NewBufferString(`{"peer_id":"ghost"}`)
	req := httptest.NewRequest(http.MethodPost, "/conversations/resolve", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	users.AssertExpectations(t)
}

func TestResolveSelfIsRejected(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	handler := newConversationHandler(new(mocks.ConversationRepositoryMock), new(mocks.MessageRepositoryMock), users)
	router := setupConversationRouter(handler)

	users.On("Get", mock.Anything, "alice").Return(models.User{ID: "alice"}, nil).Once()

	body := bytes.NewBufferString(`{"peer_id":"alice"}`)
	req := httptest.NewRequest(http.MethodPost, "/conversations/resolve", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestResolveMissingBody(t *testing.T) {
	handler := newConversationHandler(new(mocks.ConversationRepositoryMock), new(mocks.MessageRepositoryMock), new(mocks.UserRepositoryMock))
	router := setupConversationRouter(handler)

	req := httptest.NewRequest(http.MethodPost, "/conversations/resolve", bytes.NewBufferString(`{}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListConversationsSuccess(t *testing.T) {
	conversations := new(mocks.ConversationRepositoryMock)
	handler := newConversationHandler(conversations, new(mocks.MessageRepositoryMock), new(mocks.UserRepositoryMock))
	router := setupConversationRouter(handler)

	conversations.On("ListWithLastMessage", mock.Anything, "alice").Return([]models.ConversationSummary{
		{ConversationID: "conv-1", PeerID: "bob", LastMessage: "hey", LastSenderID: "bob"},
	}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/conversations", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Conversations []models.ConversationSummary `json:"conversations"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Conversations, 1)
	require.Equal(t, "hey", resp.Conversations[0].LastMessage)

	conversations.AssertExpectations(t)
}

func TestListConversationsRepoError(t *testing.T) {
	conversations := new(mocks.ConversationRepositoryMock)
	handler := newConversationHandler(conversations, new(mocks.MessageRepositoryMock), new(mocks.UserRepositoryMock))
	router := setupConversationRouter(handler)

	conversations.On("ListWithLastMessage", mock.Anything, "alice").Return(([]models.ConversationSummary)(nil), assert.AnError).Once()

	req := httptest.NewRequest(http.MethodGet, "/conversations", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

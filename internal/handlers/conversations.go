package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"chat-backbone/internal/chat"
	"chat-backbone/internal/repositories"
)

// ConversationHandler manages conversation endpoints.
type ConversationHandler struct {
	resolver *chat.Resolver
	service  *chat.Service
	users    repositories.UserRepository
}

// NewConversationHandler builds a ConversationHandler.
func NewConversationHandler(resolver *chat.Resolver, service *chat.Service, users repositories.UserRepository) *ConversationHandler {
	return &ConversationHandler{
		resolver: resolver,
		service:  service,
		users:    users,
	}
}

// Resolve returns the conversation between the caller and a peer,
// creating it when none exists yet.
func (h *ConversationHandler) Resolve(c *gin.Context) {
	var req struct {
		PeerID string `json:"peer_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetString("userID")
	if _, err := h.users.Get(c.Request.Context(), req.PeerID); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrUserNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "peer not found"})
		return
	}

	conv, err := h.resolver.Resolve(c.Request.Context(), userID, req.PeerID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, chat.ErrInvalidParticipant) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": "could not resolve conversation"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"conversation": conv})
}

// List returns the caller's conversations with their last message.
func (h *ConversationHandler) List(c *gin.Context) {
	userID := c.GetString("userID")

	summaries, err := h.service.ListConversations(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load conversations"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"conversations": summaries})
}

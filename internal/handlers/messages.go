package handlers

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"chat-backbone/internal/chat"
	"chat-backbone/internal/repositories"
)

const defaultHistoryLimit = 0

// MessageHandler manages message endpoints for a conversation.
type MessageHandler struct {
	sender        *chat.Sender
	service       *chat.Service
	conversations repositories.ConversationRepository
}

// NewMessageHandler builds a MessageHandler.
func NewMessageHandler(sender *chat.Sender, service *chat.Service, conversations repositories.ConversationRepository) *MessageHandler {
	return &MessageHandler{
		sender:        sender,
		service:       service,
		conversations: conversations,
	}
}

// Post stores a message in the conversation and triggers the post-send
// side effects.
func (h *MessageHandler) Post(c *gin.Context) {
	conversationID := c.Param("conversation_id")
	userID := c.GetString("userID")

	conv, err := h.conversations.Get(c.Request.Context(), conversationID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrConversationNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "conversation not found"})
		return
	}
	if !conv.HasParticipant(userID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a conversation member"})
		return
	}

	var req struct {
		Content string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, err := h.sender.Send(c.Request.Context(), conversationID, userID, req.Content)
	if err != nil {
		if errors.Is(err, chat.ErrInvalidMessage) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message"})
			return
		}
		log.Printf("send failed request_id=%s conversation=%s: %v", requestIDFromContext(c), conversationID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not store message"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": msg})
}

// List returns the conversation history, newest first.
func (h *MessageHandler) List(c *gin.Context) {
	conversationID := c.Param("conversation_id")
	userID := c.GetString("userID")

	conv, err := h.conversations.Get(c.Request.Context(), conversationID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrConversationNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "conversation not found"})
		return
	}
	if !conv.HasParticipant(userID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a conversation member"})
		return
	}

	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = parsed
	}

	msgs, err := h.service.History(c.Request.Context(), conversationID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"chat-backbone/internal/repositories"
)

const searchResultLimit = 20

// UserHandler manages user lookup endpoints.
type UserHandler struct {
	users repositories.UserRepository
}

// NewUserHandler builds a UserHandler.
func NewUserHandler(users repositories.UserRepository) *UserHandler {
	return &UserHandler{users: users}
}

// Search returns users whose username matches the query term. The
// caller is excluded from the results.
func (h *UserHandler) Search(c *gin.Context) {
	term := strings.TrimSpace(c.Query("q"))
	if term == "" {
		c.JSON(http.StatusOK, gin.H{"users": []struct{}{}})
		return
	}

	userID := c.GetString("userID")
	users, err := h.users.Search(c.Request.Context(), term, userID, searchResultLimit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to search users"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"users": users})
}

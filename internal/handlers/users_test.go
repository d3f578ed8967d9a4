package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chat-backbone/internal/mocks"
	"chat-backbone/internal/models"
)

func setupUserRouter(users *mocks.UserRepositoryMock) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", "alice")
		c.Next()
	})
	r.GET("/users/search", NewUserHandler(users).Search)
	return r
}

func TestSearchUsersExcludesCaller(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	router := setupUserRouter(users)

	users.On("Search", mock.Anything, "bo", "alice", 20).Return([]models.User{
		{ID: "bob", Username: "bob"},
	}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/users/search?q=bo", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Users []models.User `json:"users"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Users, 1)
	require.Equal(t, "bob", resp.Users[0].Username)

	users.AssertExpectations(t)
}

func TestSearchUsersEmptyTerm(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	router := setupUserRouter(users)

	req := httptest.NewRequest(http.MethodGet, "/users/search?q=+", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	users.AssertNotCalled(t, "Search", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"chatify-service/internal/presence"
	"chatify-service/internal/repositories"
	"chatify-service/internal/roster"
)

// ContactsHandler serves the sidebar contact list.
type ContactsHandler struct {
	users    repositories.UserRepository
	messages repositories.MessageRepository
	presence presence.Tracker
}

// NewContactsHandler builds a ContactsHandler.
func NewContactsHandler(users repositories.UserRepository, messages repositories.MessageRepository, tracker presence.Tracker) *ContactsHandler {
	return &ContactsHandler{users: users, messages: messages, presence: tracker}
}

// ListContacts returns every other user with unread counts and
// last-message previews, filtered by ?q= and ?filter=recent|all and
// ranked by conversation recency.
func (h *ContactsHandler) ListContacts(c *gin.Context) {
	userID := userIDFromContext(c)

	users, err := h.users.ListOtherUsers(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load users"})
		return
	}

	msgs, err := h.messages.ListMessagesForUser(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load conversations"})
		return
	}

	stats := roster.Aggregate(msgs, userID)
	contacts := roster.BuildContacts(users, stats, userID, c.Query("q"), roster.ParseFilter(c.Query("filter")))

	for i := range contacts {
		online, err := h.presence.IsOnline(c.Request.Context(), contacts[i].ID)
		if err == nil {
			contacts[i].Online = online
		}
	}

	c.JSON(http.StatusOK, gin.H{"contacts": contacts})
}

package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"chatify-service/internal/conversation"
	"chatify-service/internal/feed"
	"chatify-service/internal/models"
	"chatify-service/internal/observability"
	"chatify-service/internal/repositories"
	"chatify-service/internal/telemetry"
	"chatify-service/internal/translate"
)

// ChatHandler manages conversation endpoints: listing, sending,
// variant cycling and read receipts.
type ChatHandler struct {
	users    repositories.UserRepository
	messages repositories.MessageRepository
	pipeline *translate.Pipeline
	feed     *feed.Feed
	audit    *telemetry.AuditEmitter
}

// NewChatHandler builds a ChatHandler.
func NewChatHandler(users repositories.UserRepository, messages repositories.MessageRepository, pipeline *translate.Pipeline, f *feed.Feed, audit *telemetry.AuditEmitter) *ChatHandler {
	return &ChatHandler{users: users, messages: messages, pipeline: pipeline, feed: f, audit: audit}
}

func (h *ChatHandler) resolveFriend(c *gin.Context) (models.User, string, bool) {
	userID := userIDFromContext(c)
	friendID := c.Param("friend_id")
	if friendID == "" || friendID == userID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid friend id"})
		return models.User{}, "", false
	}

	friend, err := h.users.GetUser(c.Request.Context(), friendID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrUserNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "friend not found"})
		return models.User{}, "", false
	}
	return friend, conversation.DeriveID(userID, friendID), true
}

// GetMessages returns the full ordered conversation with the friend.
func (h *ChatHandler) GetMessages(c *gin.Context) {
	_, conversationID, ok := h.resolveFriend(c)
	if !ok {
		return
	}

	msgs, err := h.messages.ListConversationMessages(c.Request.Context(), conversationID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"conversation_id": conversationID, "messages": msgs})
}

// PostMessage performs the optimistic send: the placeholder row is
// returned immediately while translation runs in the background.
func (h *ChatHandler) PostMessage(c *gin.Context) {
	friend, conversationID, ok := h.resolveFriend(c)
	if !ok {
		return
	}

	var req struct {
		Text    string `json:"text" binding:"required"`
		ReplyTo string `json:"reply_to,omitempty"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := userIDFromContext(c)
	replyTo := h.resolveReplyTo(c, conversationID, req.ReplyTo)

	msg, err := h.pipeline.Send(c.Request.Context(), userID, friend, req.Text, replyTo)
	if err != nil {
		switch {
		case errors.Is(err, translate.ErrEmptyMessage):
			c.JSON(http.StatusBadRequest, gin.H{"error": "message is empty"})
		case errors.Is(err, translate.ErrSendInFlight):
			c.JSON(http.StatusConflict, gin.H{"error": "a send is already in flight"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to send message"})
		}
		return
	}

	observability.IncMessageSent()
	h.audit.Emit(c.Request.Context(), "message_sent", "message accepted", requestIDFromContext(c), userID)
	c.JSON(http.StatusCreated, msg)
}

// resolveReplyTo snapshots the quoted message at send time. A missing
// target is a silent miss: the message goes out without the quote.
func (h *ChatHandler) resolveReplyTo(c *gin.Context, conversationID, replyToID string) *models.ReplyRef {
	if replyToID == "" {
		return nil
	}
	target, ok := h.feed.Lookup(conversationID, replyToID)
	if !ok {
		var err error
		target, err = h.messages.GetMessage(c.Request.Context(), replyToID)
		if err != nil || target.ConversationID != conversationID {
			return nil
		}
	}
	return &models.ReplyRef{MessageID: target.MessageID, Message: target.Message, SenderID: target.SenderID}
}

// GetMessage resolves a single message, used for reply-to navigation.
func (h *ChatHandler) GetMessage(c *gin.Context) {
	_, conversationID, ok := h.resolveFriend(c)
	if !ok {
		return
	}

	msg, found := h.feed.Lookup(conversationID, c.Param("message_id"))
	if !found {
		var err error
		msg, err = h.messages.GetMessage(c.Request.Context(), c.Param("message_id"))
		if err != nil || msg.ConversationID != conversationID {
			c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
			return
		}
	}

	c.JSON(http.StatusOK, msg)
}

// CycleVariant advances the displayed text through the translation
// variants. The current state is re-read so a concurrent finalize is
// never overwritten from a stale cache.
func (h *ChatHandler) CycleVariant(c *gin.Context) {
	_, conversationID, ok := h.resolveFriend(c)
	if !ok {
		return
	}

	msg, err := h.messages.GetMessage(c.Request.Context(), c.Param("message_id"))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrMessageNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "message not found"})
		return
	}
	if msg.ConversationID != conversationID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message does not belong to conversation"})
		return
	}

	index, text, ok := msg.NextVariant()
	if !ok {
		c.JSON(http.StatusConflict, gin.H{"error": "message has no alternate phrasings"})
		return
	}

	if err := h.messages.SetDisplayedVariant(c.Request.Context(), msg.MessageID, index, text); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not cycle variant"})
		return
	}
	// The write stands even if the republish fails; subscribers catch
	// up on the next change.
	_ = h.feed.Invalidate(c.Request.Context(), conversationID)

	msg.Message = text
	msg.DisplayedVariant = index
	c.JSON(http.StatusOK, msg)
}

// MarkRead flips every unread message from the friend to read. Safe to
// re-trigger on every snapshot while the viewport sits at the bottom.
func (h *ChatHandler) MarkRead(c *gin.Context) {
	_, conversationID, ok := h.resolveFriend(c)
	if !ok {
		return
	}

	userID := userIDFromContext(c)
	marked, err := h.messages.MarkConversationRead(c.Request.Context(), conversationID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not mark messages read"})
		return
	}

	observability.AddMessagesMarkedRead(marked)
	if marked > 0 {
		_ = h.feed.Invalidate(c.Request.Context(), conversationID)
		h.audit.Emit(c.Request.Context(), "conversation_read", "messages marked read", requestIDFromContext(c), userID)
	}

	c.JSON(http.StatusOK, gin.H{"marked": marked})
}

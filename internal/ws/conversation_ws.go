package ws

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"chatify-service/internal/auth"
	"chatify-service/internal/conversation"
	"chatify-service/internal/ids"
	"chatify-service/internal/observability"
	"chatify-service/internal/repositories"
)

// ConversationWebSocketHandler handles live conversation subscriptions.
type ConversationWebSocketHandler struct {
	hub    *Hub
	users  repositories.UserRepository
	tokens *auth.TokenManager
}

// NewConversationWebSocketHandler constructs the handler.
func NewConversationWebSocketHandler(hub *Hub, users repositories.UserRepository, tokens *auth.TokenManager) *ConversationWebSocketHandler {
	return &ConversationWebSocketHandler{hub: hub, users: users, tokens: tokens}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle upgrades the connection and registers the client in the room
// for the conversation with :friend_id. Switching conversations on the
// client side closes this socket, which releases the room's feed
// subscription before (or while) the next one is established.
func (h *ConversationWebSocketHandler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("chatify-service/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	token := c.GetHeader("Authorization")
	if token == "" {
		token = c.Query("token")
		if token != "" {
			token = "Bearer " + token
		}
	}

	userID, err := h.validateToken(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	friendID := c.Param("friend_id")
	if friendID == "" || friendID == userID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid friend id"})
		return
	}
	if _, err := h.users.GetUser(ctx, friendID); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrUserNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "friend not found"})
		return
	}

	conversationID := conversation.DeriveID(userID, friendID)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	info := ConnInfo{
		ConnID:      ids.New(),
		UserID:      userID,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}
	if err := h.hub.AddClient(ctx, conversationID, conn, info); err != nil {
		conn.Close()
		return
	}

	observability.IncWSActive()
	observability.IncWSEvent("ws_connect")
	publishLifecycleEvent(ctx, "ws_connect", conversationID, info, "")

	go h.readLoop(conversationID, conn, info)
}

func (h *ConversationWebSocketHandler) readLoop(conversationID string, conn *websocket.Conn, info ConnInfo) {
	var closeReason string
	defer func() {
		h.hub.RemoveClient(context.Background(), conversationID, conn)
		observability.DecWSActive()
		observability.IncWSEvent("ws_disconnect")
		publishLifecycleEvent(context.Background(), "ws_disconnect", conversationID, info, closeReason)
		conn.Close()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			closeReason = err.Error()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				observability.IncWSEvent("ws_error")
				publishLifecycleEvent(context.Background(), "ws_error", conversationID, info, closeReason)
			}
			return
		}
	}
}

func (h *ConversationWebSocketHandler) validateToken(header string) (string, error) {
	parts := strings.Split(header, " ")
	if len(parts) == 2 {
		return h.tokens.Validate(parts[1])
	}
	return "", fmt.Errorf("invalid token")
}

func publishLifecycleEvent(ctx context.Context, event, conversationID string, info ConnInfo, reason string) {
	headers := observability.BuildHeaders(info.RequestID, info.TraceID)
	_ = observability.PublishEvent(ctx, "ws_events.conversations", observability.EventEnvelope{
		EventType: "ws_events",
		EventName: event,
		Payload: map[string]interface{}{
			"ws": map[string]interface{}{
				"conversation_id": conversationID,
				"event":           event,
				"conn_id":         info.ConnID,
				"duration_ms":     time.Since(info.ConnectedAt).Milliseconds(),
				"reason":          reason,
			},
			"identity": map[string]interface{}{
				"user_id":   info.UserID,
				"device_id": info.DeviceID,
				"ip":        info.IP,
			},
		},
	}, headers)
}

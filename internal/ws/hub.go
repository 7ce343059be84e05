package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"chatify-service/internal/feed"
	"chatify-service/internal/logger"
	"chatify-service/internal/models"
	"chatify-service/internal/observability"
	"chatify-service/internal/presence"
)

// Hub maintains one room per active conversation. A room owns exactly
// one feed subscription, taken when the first client joins and released
// when the last one leaves, so listener growth stays bounded by the
// number of open conversations. Presence flips on a user's first and
// last connection.
type Hub struct {
	feed     *feed.Feed
	presence presence.Tracker

	mu        sync.RWMutex
	rooms     map[string]*room
	userConns map[string]int
}

type room struct {
	conns  map[*websocket.Conn]ConnInfo
	cancel func()
}

// NewHub creates an empty hub.
func NewHub(f *feed.Feed, tracker presence.Tracker) *Hub {
	return &Hub{
		feed:      f,
		presence:  tracker,
		rooms:     make(map[string]*room),
		userConns: make(map[string]int),
	}
}

// AddClient registers a websocket connection to a conversation room.
// The feed delivers the current snapshot to the room immediately, so a
// freshly joined client sees the conversation without a separate fetch.
func (h *Hub) AddClient(ctx context.Context, conversationID string, conn *websocket.Conn, info ConnInfo) error {
	h.mu.Lock()
	r, existed := h.rooms[conversationID]
	if !existed {
		r = &room{conns: make(map[*websocket.Conn]ConnInfo)}
		h.rooms[conversationID] = r
	}
	r.conns[conn] = info
	h.userConns[info.UserID]++
	firstConn := h.userConns[info.UserID] == 1
	h.mu.Unlock()

	if firstConn {
		if err := h.presence.SetOnline(ctx, info.UserID); err != nil {
			logger.Warn("presence set online", zap.String("user_id", info.UserID), zap.Error(err))
		}
	}

	if !existed {
		cancel, err := h.feed.Subscribe(ctx, conversationID, func(msgs []models.Message) {
			h.BroadcastSnapshot(conversationID, msgs)
		})
		if err != nil {
			h.RemoveClient(ctx, conversationID, conn)
			return err
		}
		h.mu.Lock()
		if current, ok := h.rooms[conversationID]; ok && current == r {
			current.cancel = cancel
		} else {
			// Room vanished while subscribing; drop the subscription.
			h.mu.Unlock()
			cancel()
			return nil
		}
		h.mu.Unlock()
	}
	return nil
}

// RemoveClient removes a websocket connection, releasing the room's
// feed subscription with the last client and flipping the user offline
// with their last connection.
func (h *Hub) RemoveClient(ctx context.Context, conversationID string, conn *websocket.Conn) {
	var cancel func()

	h.mu.Lock()
	r, ok := h.rooms[conversationID]
	if !ok {
		h.mu.Unlock()
		return
	}
	info, present := r.conns[conn]
	if !present {
		h.mu.Unlock()
		return
	}
	delete(r.conns, conn)
	if len(r.conns) == 0 {
		cancel = r.cancel
		delete(h.rooms, conversationID)
	}

	lastConn := false
	if h.userConns[info.UserID] > 0 {
		h.userConns[info.UserID]--
		if h.userConns[info.UserID] == 0 {
			delete(h.userConns, info.UserID)
			lastConn = true
		}
	}
	h.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if lastConn {
		if err := h.presence.SetOffline(ctx, info.UserID); err != nil {
			logger.Warn("presence set offline", zap.String("user_id", info.UserID), zap.Error(err))
		}
	}
}

// BroadcastSnapshot pushes the full ordered conversation to every
// client in the room.
func (h *Hub) BroadcastSnapshot(conversationID string, msgs []models.Message) {
	h.mu.RLock()
	r, ok := h.rooms[conversationID]
	var conns []*websocket.Conn
	if ok {
		conns = make([]*websocket.Conn, 0, len(r.conns))
		for conn := range r.conns {
			conns = append(conns, conn)
		}
	}
	h.mu.RUnlock()

	event := models.ChatEvent{Type: "snapshot", Messages: msgs}
	payload, _ := json.Marshal(event)
	for _, conn := range conns {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			logger.Warnf("websocket write error: %v", err)
			conn.Close()
			h.publishWSError(conversationID, conn, err)
			h.RemoveClient(context.Background(), conversationID, conn)
		}
	}
}

// Rooms reports the number of active rooms.
func (h *Hub) Rooms() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

func (h *Hub) publishWSError(conversationID string, conn *websocket.Conn, err error) {
	info, ok := h.getConnInfo(conversationID, conn)
	if !ok {
		return
	}

	observability.IncWSEvent("ws_error")
	headers := observability.BuildHeaders(info.RequestID, info.TraceID)
	_ = observability.PublishEvent(context.Background(), "ws_events.conversations", observability.EventEnvelope{
		EventType: "ws_events",
		EventName: "ws_error",
		Payload: map[string]interface{}{
			"ws": map[string]interface{}{
				"conversation_id": conversationID,
				"event":           "ws_error",
				"conn_id":         info.ConnID,
				"duration_ms":     time.Since(info.ConnectedAt).Milliseconds(),
				"reason":          err.Error(),
			},
			"identity": map[string]interface{}{
				"user_id":   info.UserID,
				"device_id": info.DeviceID,
				"ip":        info.IP,
			},
		},
	}, headers)
}

func (h *Hub) getConnInfo(conversationID string, conn *websocket.Conn) (ConnInfo, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if r, ok := h.rooms[conversationID]; ok {
		info, exists := r.conns[conn]
		return info, exists
	}
	return ConnInfo{}, false
}

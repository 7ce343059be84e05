package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chatify-service/internal/feed"
	"chatify-service/internal/mocks"
	"chatify-service/internal/models"
	"chatify-service/internal/presence"
)

// wsPair upgrades one in-process websocket and returns both ends.
func wsPair(t *testing.T) (server *websocket.Conn, client *websocket.Conn) {
	t.Helper()

	serverConns := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		serverConns <- conn
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	server = <-serverConns
	t.Cleanup(func() { server.Close() })
	return server, client
}

func readSnapshot(t *testing.T, client *websocket.Conn) models.ChatEvent {
	t.Helper()
	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, payload, err := client.ReadMessage()
	require.NoError(t, err)

	var event models.ChatEvent
	require.NoError(t, json.Unmarshal(payload, &event))
	return event
}

func TestHubDeliversSnapshotOnJoin(t *testing.T) {
	repo := new(mocks.MessageRepositoryMock)
	repo.On("ListConversationMessages", mock.Anything, "alice_bob").
		Return([]models.Message{{MessageID: "m1", ConversationID: "alice_bob", Message: "Hola"}}, nil).Once()

	hub := NewHub(feed.New(repo), presence.NoopTracker{})
	server, client := wsPair(t)

	require.NoError(t, hub.AddClient(context.Background(), "alice_bob", server, ConnInfo{ConnID: "c1", UserID: "alice"}))
	defer hub.RemoveClient(context.Background(), "alice_bob", server)

	event := readSnapshot(t, client)
	assert.Equal(t, "snapshot", event.Type)
	require.Len(t, event.Messages, 1)
	assert.Equal(t, "m1", event.Messages[0].MessageID)

	assert.Equal(t, 1, hub.Rooms())
	repo.AssertExpectations(t)
}

func TestHubRoomSharesOneSubscription(t *testing.T) {
	repo := new(mocks.MessageRepositoryMock)
	repo.On("ListConversationMessages", mock.Anything, "alice_bob").
		Return([]models.Message{{MessageID: "m1", ConversationID: "alice_bob"}}, nil)

	f := feed.New(repo)
	hub := NewHub(f, presence.NoopTracker{})

	server1, client1 := wsPair(t)
	server2, client2 := wsPair(t)

	require.NoError(t, hub.AddClient(context.Background(), "alice_bob", server1, ConnInfo{ConnID: "c1", UserID: "alice"}))
	readSnapshot(t, client1)
	require.NoError(t, hub.AddClient(context.Background(), "alice_bob", server2, ConnInfo{ConnID: "c2", UserID: "bob"}))

	// One room, one feed subscription, one snapshot load.
	assert.Equal(t, 1, hub.Rooms())
	assert.Equal(t, 1, f.Subscribers("alice_bob"))
	repo.AssertNumberOfCalls(t, "ListConversationMessages", 1)

	// A republish reaches every client in the room.
	require.NoError(t, f.Invalidate(context.Background(), "alice_bob"))
	readSnapshot(t, client1)
	readSnapshot(t, client2)

	hub.RemoveClient(context.Background(), "alice_bob", server1)
	assert.Equal(t, 1, hub.Rooms())
	assert.Equal(t, 1, f.Subscribers("alice_bob"))

	hub.RemoveClient(context.Background(), "alice_bob", server2)
	assert.Equal(t, 0, hub.Rooms())
	assert.Equal(t, 0, f.Subscribers("alice_bob"))
}

func TestHubPresenceFlipsOnFirstAndLastConn(t *testing.T) {
	repo := new(mocks.MessageRepositoryMock)
	repo.On("ListConversationMessages", mock.Anything, mock.Anything).
		Return([]models.Message{}, nil)

	tracker := new(mocks.TrackerMock)
	tracker.On("SetOnline", mock.Anything, "alice").Return(nil).Once()
	tracker.On("SetOffline", mock.Anything, "alice").Return(nil).Once()

	hub := NewHub(feed.New(repo), tracker)

	server1, client1 := wsPair(t)
	server2, client2 := wsPair(t)

	// Two rooms, same user: presence flips only once.
	require.NoError(t, hub.AddClient(context.Background(), "alice_bob", server1, ConnInfo{ConnID: "c1", UserID: "alice"}))
	readSnapshot(t, client1)
	require.NoError(t, hub.AddClient(context.Background(), "alice_carol", server2, ConnInfo{ConnID: "c2", UserID: "alice"}))
	readSnapshot(t, client2)

	hub.RemoveClient(context.Background(), "alice_bob", server1)
	tracker.AssertNotCalled(t, "SetOffline", mock.Anything, "alice")

	hub.RemoveClient(context.Background(), "alice_carol", server2)
	tracker.AssertExpectations(t)
}

func TestHubRemoveUnknownClientIsNoop(t *testing.T) {
	hub := NewHub(feed.New(new(mocks.MessageRepositoryMock)), presence.NoopTracker{})
	hub.RemoveClient(context.Background(), "nobody_watching", nil)
	assert.Equal(t, 0, hub.Rooms())
}

package api

import (
	"context"
	"testing"

	"github.com/fadedpez/stemverse/internal/logging"
	"github.com/fadedpez/stemverse/pkg/entities"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(roomID string, buffer int) *roomClient {
	return &roomClient{roomID: roomID, send: make(chan RoomEvent, buffer)}
}

func TestRoomHubBroadcastsToRoom(t *testing.T) {
	hub := NewRoomHub(logging.NewDiscard())
	inRoom := newTestClient("room-1", 1)
	elsewhere := newTestClient("room-2", 1)
	require.True(t, hub.register(inRoom))
	require.True(t, hub.register(elsewhere))

	err := hub.OnMessage(context.Background(), &entities.ChatMessage{Seq: 7, ID: "msg-1", RoomID: "room-1", UserID: "user-1", Text: "hi"})
	require.NoError(t, err)

	event := <-inRoom.send
	assert.Equal(t, EventMessage, event.Type)
	assert.Equal(t, int64(7), event.seq)
	assert.Equal(t, "hi", event.Data.(MessageResponse).Text)
	assert.Empty(t, elsewhere.send)
}

func TestRoomHubDropsSlowClient(t *testing.T) {
	hub := NewRoomHub(logging.NewDiscard())
	slow := newTestClient("room-1", 1)
	require.True(t, hub.register(slow))

	message := &entities.ChatMessage{Seq: 1, RoomID: "room-1"}
	require.NoError(t, hub.OnMessage(context.Background(), message))
	require.NoError(t, hub.OnMessage(context.Background(), message))

	assert.Equal(t, 0, hub.Clients("room-1"))
	<-slow.send
	_, open := <-slow.send
	assert.False(t, open)

	// Removing an already dropped client is a no-op
	hub.unregister(slow)
}

func TestRoomHubClose(t *testing.T) {
	hub := NewRoomHub(logging.NewDiscard())
	client := newTestClient("room-1", 1)
	require.True(t, hub.register(client))
	assert.Equal(t, 1, hub.Clients("room-1"))

	hub.Close()

	_, open := <-client.send
	assert.False(t, open)
	assert.Equal(t, 0, hub.Clients("room-1"))
	assert.False(t, hub.register(newTestClient("room-1", 1)))

	hub.unregister(client)
	hub.Close()
}

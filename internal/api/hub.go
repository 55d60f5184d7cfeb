package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/fadedpez/stemverse/internal/logging"
	"github.com/fadedpez/stemverse/pkg/entities"
	"github.com/gorilla/websocket"
)

const (
	EventBacklog = "BACKLOG"
	EventMessage = "MESSAGE"

	clientBuffer = 64
	writeTimeout = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Sockets are authorized by session token, not by origin
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// RoomEvent is one frame pushed to a room socket
type RoomEvent struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`

	seq int64
}

type roomClient struct {
	roomID string
	send   chan RoomEvent
}

// RoomHub fans new chat messages out to every socket open on their room
type RoomHub struct {
	mu     sync.Mutex
	rooms  map[string]map[*roomClient]struct{}
	closed bool
	logger *logging.Logger
}

// NewRoomHub creates an empty hub
func NewRoomHub(logger *logging.Logger) *RoomHub {
	if logger == nil {
		logger = logging.Default
	}
	return &RoomHub{
		rooms:  make(map[string]map[*roomClient]struct{}),
		logger: logger,
	}
}

// OnMessage pushes a stored message to the room's sockets
func (h *RoomHub) OnMessage(ctx context.Context, message *entities.ChatMessage) error {
	h.broadcast(message.RoomID, RoomEvent{
		Type: EventMessage,
		Data: newMessageResponse(message),
		seq:  message.Seq,
	})
	return nil
}

// Clients returns how many sockets are open on a room
func (h *RoomHub) Clients(roomID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms[roomID])
}

// Close disconnects every socket and refuses new ones
func (h *RoomHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for _, clients := range h.rooms {
		for client := range clients {
			h.removeLocked(client)
		}
	}
}

func (h *RoomHub) register(client *roomClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return false
	}
	if h.rooms[client.roomID] == nil {
		h.rooms[client.roomID] = make(map[*roomClient]struct{})
	}
	h.rooms[client.roomID][client] = struct{}{}
	return true
}

func (h *RoomHub) unregister(client *roomClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(client)
}

// removeLocked closes the client's channel exactly once
func (h *RoomHub) removeLocked(client *roomClient) {
	clients, ok := h.rooms[client.roomID]
	if !ok {
		return
	}
	if _, ok := clients[client]; !ok {
		return
	}

	delete(clients, client)
	if len(clients) == 0 {
		delete(h.rooms, client.roomID)
	}
	close(client.send)
}

func (h *RoomHub) broadcast(roomID string, event RoomEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.rooms[roomID] {
		select {
		case client.send <- event:
		default:
			// A client this far behind is dropped; it can resync by polling
			h.removeLocked(client)
			h.logger.WithField("room_id", roomID).Warn("Dropped slow room socket")
		}
	}
}

// writePump sends the backlog, then every live event newer than it. It owns
// all writes to conn and closes conn when the client is removed.
func writePump(conn *websocket.Conn, client *roomClient, backlog RoomEvent, backlogSeq int64) {
	defer conn.Close()

	if err := writeEvent(conn, backlog); err != nil {
		return
	}

	for event := range client.send {
		// Already delivered in the backlog
		if event.seq <= backlogSeq {
			continue
		}
		if err := writeEvent(conn, event); err != nil {
			return
		}
	}

	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "room closed"))
}

func writeEvent(conn *websocket.Conn, event RoomEvent) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return conn.WriteJSON(event)
}

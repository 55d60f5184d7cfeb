package api

import (
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/fadedpez/stemverse/internal/types"
	"github.com/fadedpez/stemverse/pkg/entities"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// JoinRoomRequest names the room to join; an empty code creates a new room
type JoinRoomRequest struct {
	Code string `json:"code"`
}

// RoleRequest picks the caller's role in a room
type RoleRequest struct {
	Role string `json:"role" binding:"required"`
}

// MessageRequest is one chat line
type MessageRequest struct {
	Text string `json:"text" binding:"required"`
}

// RoomResponse is a room as the client sees it
type RoomResponse struct {
	Code       string           `json:"code"`
	Status     string           `json:"status"`
	InviteLink string           `json:"invite_link"`
	CreatedAt  time.Time        `json:"created_at"`
	Members    []MemberResponse `json:"members,omitempty"`
}

// MemberResponse is one room member
type MemberResponse struct {
	UserID   string    `json:"user_id"`
	Role     string    `json:"role"`
	JoinedAt time.Time `json:"joined_at"`
}

// MessageResponse is one chat line
type MessageResponse struct {
	Seq       int64     `json:"seq"`
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// MessagesResponse is one poll result. NextSince is the cursor for the next poll.
type MessagesResponse struct {
	Messages  []MessageResponse `json:"messages"`
	NextSince int64             `json:"next_since"`
}

// JoinRoom creates or joins a buddy room
func (h *Handler) JoinRoom(c *gin.Context) {
	var req JoinRoomRequest
	if c.Request.ContentLength != 0 {
		if err := bindJSON(c, &req); err != nil {
			h.badRequest(c, "invalid room request: "+err.Error())
			return
		}
	}

	room, created, err := h.buddy.JoinRoom(c.Request.Context(), req.Code)
	if err != nil {
		h.writeError(c, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, newRoomResponse(room, nil))
}

// GetRoom returns a room with its members
func (h *Handler) GetRoom(c *gin.Context) {
	ctx := c.Request.Context()

	room, err := h.buddy.GetRoom(ctx, c.Param("code"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	members, err := h.buddy.ListMembers(ctx, room.Code)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, newRoomResponse(room, members))
}

// ListMembers returns a room's members
func (h *Handler) ListMembers(c *gin.Context) {
	members, err := h.buddy.ListMembers(c.Request.Context(), c.Param("code"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, newMemberResponses(members))
}

// SetRole records the caller's role in a room
func (h *Handler) SetRole(c *gin.Context) {
	var req RoleRequest
	if err := bindJSON(c, &req); err != nil {
		h.badRequest(c, "invalid role request: "+err.Error())
		return
	}

	members, err := h.buddy.SetRole(c.Request.Context(), c.Param("code"), c.GetString(userIDKey), req.Role)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, newMemberResponses(members))
}

// PostMessage adds a chat line to a room
func (h *Handler) PostMessage(c *gin.Context) {
	var req MessageRequest
	if err := bindJSON(c, &req); err != nil {
		h.badRequest(c, "invalid message: "+err.Error())
		return
	}

	message, err := h.buddy.PostMessage(c.Request.Context(), c.Param("code"), c.GetString(userIDKey), req.Text)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, newMessageResponse(message))
}

// MentorPing asks for a mentor in a room
func (h *Handler) MentorPing(c *gin.Context) {
	message, err := h.buddy.MentorPing(c.Request.Context(), c.Param("code"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, newMessageResponse(message))
}

// GetMessages returns messages posted after the since cursor
func (h *Handler) GetMessages(c *gin.Context) {
	since, ok := h.int64Query(c, "since")
	if !ok {
		return
	}
	limit, ok := h.int64Query(c, "limit")
	if !ok {
		return
	}

	messages, err := h.buddy.Messages(c.Request.Context(), c.Param("code"), since, int(limit))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, newMessagesResponse(messages, since))
}

// RoomSocket streams a room's chat: first a BACKLOG frame with everything
// after since, then one MESSAGE frame per new message.
func (h *Handler) RoomSocket(c *gin.Context) {
	ctx := c.Request.Context()

	since, ok := h.int64Query(c, "since")
	if !ok {
		return
	}

	room, err := h.buddy.GetRoom(ctx, c.Param("code"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	// Register before reading the backlog so nothing posted in between is missed
	client := &roomClient{roomID: room.ID, send: make(chan RoomEvent, clientBuffer)}
	if !h.hub.register(client) {
		h.writeError(c, types.NewAppError(types.ErrInternalError, "server is shutting down"))
		return
	}
	defer h.hub.unregister(client)

	backlog, err := h.buddy.Messages(ctx, room.Code, since, 0)
	if err != nil {
		h.writeError(c, err)
		return
	}
	backlogResponse := newMessagesResponse(backlog, since)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already answered the client
		h.logger.WithFields(requestFields(c)).WithError(err).Warn("Room socket upgrade failed")
		return
	}

	go writePump(conn, client, RoomEvent{Type: EventBacklog, Data: backlogResponse}, backlogResponse.NextSince)

	// Inbound frames are ignored; reading surfaces the close
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.WithFields(requestFields(c)).WithError(err).Debug("Room socket closed")
			}
			return
		}
	}
}

func (h *Handler) int64Query(c *gin.Context, key string) (int64, bool) {
	raw := c.Query(key)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		h.badRequest(c, key+" must be an integer")
		return 0, false
	}
	return n, true
}

func newRoomResponse(room *entities.Room, members []*entities.RoomMember) RoomResponse {
	return RoomResponse{
		Code:       room.Code,
		Status:     room.Status,
		InviteLink: "?room=" + url.QueryEscape(room.Code),
		CreatedAt:  room.CreatedAt,
		Members:    newMemberResponses(members),
	}
}

func newMemberResponses(members []*entities.RoomMember) []MemberResponse {
	out := make([]MemberResponse, 0, len(members))
	for _, member := range members {
		out = append(out, MemberResponse{
			UserID:   member.UserID,
			Role:     member.Role,
			JoinedAt: member.JoinedAt,
		})
	}
	return out
}

func newMessageResponse(message *entities.ChatMessage) MessageResponse {
	return MessageResponse{
		Seq:       message.Seq,
		ID:        message.ID,
		UserID:    message.UserID,
		Text:      message.Text,
		Timestamp: message.Timestamp,
	}
}

func newMessagesResponse(messages []*entities.ChatMessage, since int64) MessagesResponse {
	out := MessagesResponse{
		Messages:  make([]MessageResponse, 0, len(messages)),
		NextSince: since,
	}
	for _, message := range messages {
		out.Messages = append(out.Messages, newMessageResponse(message))
		out.NextSince = message.Seq
	}
	return out
}

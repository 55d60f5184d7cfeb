package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"time"

	"github.com/fadedpez/stemverse/internal/types"
	"github.com/fadedpez/stemverse/pkg/entities"
	"github.com/fadedpez/stemverse/pkg/services/buddy"
	"github.com/gorilla/websocket"
)

type socketFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func (s *HandlersTestSuite) joinRoom(token, body string, expectedStatus int) RoomResponse {
	w := s.do(http.MethodPost, "/api/rooms", token, body)
	s.Require().Equal(expectedStatus, w.Code, w.Body.String())

	var room RoomResponse
	s.decode(w, &room)
	return room
}

func (s *HandlersTestSuite) postMessage(token, code, text string) MessageResponse {
	w := s.do(http.MethodPost, "/api/rooms/"+code+"/messages", token, `{"text":"`+text+`"}`)
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())

	var message MessageResponse
	s.decode(w, &message)
	return message
}

func (s *HandlersTestSuite) TestJoinRoom() {
	token := s.newSession("").Token

	room := s.joinRoom(token, `{"code":"stem-lab"}`, http.StatusCreated)
	s.Equal("STEM-LAB", room.Code)
	s.Equal(entities.RoomStatusOpen, room.Status)
	s.Equal("?room=STEM-LAB", room.InviteLink)

	again := s.joinRoom(s.newSession("").Token, `{"code":"STEM-LAB"}`, http.StatusOK)
	s.Equal(room.Code, again.Code)
	s.Equal(room.CreatedAt, again.CreatedAt)

	generated := s.joinRoom(token, "", http.StatusCreated)
	s.True(strings.HasPrefix(generated.Code, "STEM-"), generated.Code)

	w := s.do(http.MethodPost, "/api/rooms", token, `{"code":"no"}`)
	s.Equal(http.StatusBadRequest, w.Code)
	s.Equal(types.ErrInvalidArgument, s.errorCode(w))

	w = s.do(http.MethodPost, "/api/rooms", "", `{"code":"STEM-LAB"}`)
	s.Equal(http.StatusUnauthorized, w.Code)
}

func (s *HandlersTestSuite) TestRoomRoles() {
	ada := s.newSession("")
	grace := s.newSession("")
	room := s.joinRoom(ada.Token, `{"code":"ROLES"}`, http.StatusCreated)

	w := s.do(http.MethodPut, "/api/rooms/"+room.Code+"/role", ada.Token, `{"role":"Circuit Planner"}`)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	w = s.do(http.MethodPut, "/api/rooms/"+room.Code+"/role", grace.Token, `{"role":"Switch Operator"}`)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	var members []MemberResponse
	s.decode(w, &members)
	s.Require().Len(members, 2)
	s.Equal(ada.UserID, members[0].UserID)
	s.Equal(entities.RoleCircuitPlanner, members[0].Role)
	s.Equal(grace.UserID, members[1].UserID)
	s.Equal(entities.RoleSwitchOperator, members[1].Role)

	w = s.do(http.MethodPut, "/api/rooms/"+room.Code+"/role", ada.Token, `{"role":"Captain"}`)
	s.Equal(http.StatusBadRequest, w.Code)

	w = s.do(http.MethodGet, "/api/rooms/roles", ada.Token, "")
	s.Require().Equal(http.StatusOK, w.Code)
	var got RoomResponse
	s.decode(w, &got)
	s.Len(got.Members, 2)

	w = s.do(http.MethodGet, "/api/rooms/"+room.Code+"/members", grace.Token, "")
	s.Require().Equal(http.StatusOK, w.Code)
	s.decode(w, &members)
	s.Len(members, 2)
}

func (s *HandlersTestSuite) TestRoomNotFound() {
	token := s.newSession("").Token

	for _, path := range []string{"/api/rooms/NOPE", "/api/rooms/NOPE/members", "/api/rooms/NOPE/messages", "/api/rooms/NOPE/ws"} {
		w := s.do(http.MethodGet, path, token, "")
		s.Equal(http.StatusNotFound, w.Code, path)
		s.Equal(types.ErrNotFound, s.errorCode(w), path)
	}

	w := s.do(http.MethodPost, "/api/rooms/NOPE/messages", token, `{"text":"hi"}`)
	s.Equal(http.StatusNotFound, w.Code)
}

func (s *HandlersTestSuite) TestRoomMessagesSince() {
	token := s.newSession("").Token
	room := s.joinRoom(token, `{"code":"POLL"}`, http.StatusCreated)

	first := s.postMessage(token, room.Code, "hello")
	s.postMessage(token, room.Code, "anyone here?")

	w := s.do(http.MethodPost, "/api/rooms/"+room.Code+"/ping", token, "")
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	var ping MessageResponse
	s.decode(w, &ping)
	s.Equal(entities.SystemUserID, ping.UserID)
	s.Equal(buddy.MentorPingText, ping.Text)

	var page MessagesResponse
	w = s.do(http.MethodGet, "/api/rooms/"+room.Code+"/messages", token, "")
	s.Require().Equal(http.StatusOK, w.Code)
	s.decode(w, &page)
	s.Require().Len(page.Messages, 3)
	s.Equal("hello", page.Messages[0].Text)
	s.Equal(ping.Seq, page.NextSince)

	w = s.do(http.MethodGet, "/api/rooms/"+room.Code+"/messages?since="+strconv.FormatInt(first.Seq, 10)+"&limit=1", token, "")
	s.Require().Equal(http.StatusOK, w.Code)
	s.decode(w, &page)
	s.Require().Len(page.Messages, 1)
	s.Equal("anyone here?", page.Messages[0].Text)

	w = s.do(http.MethodGet, "/api/rooms/"+room.Code+"/messages?since="+strconv.FormatInt(ping.Seq, 10), token, "")
	s.Require().Equal(http.StatusOK, w.Code)
	s.decode(w, &page)
	s.Empty(page.Messages)
	s.Equal(ping.Seq, page.NextSince)

	w = s.do(http.MethodGet, "/api/rooms/"+room.Code+"/messages?since=abc", token, "")
	s.Equal(http.StatusBadRequest, w.Code)
	w = s.do(http.MethodGet, "/api/rooms/"+room.Code+"/messages?since=-1", token, "")
	s.Equal(http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPost, "/api/rooms/"+room.Code+"/messages", token, `{"text":"   "}`)
	s.Equal(http.StatusBadRequest, w.Code)
}

func (s *HandlersTestSuite) TestRoomSocket() {
	token := s.newSession("").Token
	room := s.joinRoom(token, `{"code":"LIVE"}`, http.StatusCreated)
	earlier := s.postMessage(token, room.Code, "before the socket")

	server := httptest.NewServer(s.router)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/rooms/" + room.Code + "/ws?access_token=" + token
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	s.Require().NoError(err)
	defer resp.Body.Close()
	defer conn.Close()
	s.Require().NoError(conn.SetReadDeadline(time.Now().Add(5 * time.Second)))

	var frame socketFrame
	s.Require().NoError(conn.ReadJSON(&frame))
	s.Equal(EventBacklog, frame.Type)
	var backlog MessagesResponse
	s.Require().NoError(json.Unmarshal(frame.Data, &backlog))
	s.Require().Len(backlog.Messages, 1)
	s.Equal(earlier.ID, backlog.Messages[0].ID)

	posted := s.postMessage(token, room.Code, "live now")

	s.Require().NoError(conn.ReadJSON(&frame))
	s.Equal(EventMessage, frame.Type)
	var message MessageResponse
	s.Require().NoError(json.Unmarshal(frame.Data, &message))
	s.Equal(posted.ID, message.ID)
	s.Equal("live now", message.Text)

	s.hub.Close()
	_, _, err = conn.ReadMessage()
	s.True(websocket.IsCloseError(err, websocket.CloseGoingAway), err)
}

func (s *HandlersTestSuite) TestRoomSocketRequiresSession() {
	token := s.newSession("").Token
	room := s.joinRoom(token, `{"code":"LOCKED"}`, http.StatusCreated)

	server := httptest.NewServer(s.router)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/rooms/" + room.Code + "/ws?access_token=bogus"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	s.Require().Error(err)
	s.Require().NotNil(resp)
	s.Equal(http.StatusUnauthorized, resp.StatusCode)
}

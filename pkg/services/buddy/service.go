package buddy

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/fadedpez/stemverse/internal/logging"
	"github.com/fadedpez/stemverse/internal/types"
	"github.com/fadedpez/stemverse/pkg/entities"
	buddyRepo "github.com/fadedpez/stemverse/pkg/repositories/buddy"
	"github.com/google/uuid"
)

const (
	// MaxMessageLength bounds a single chat line
	MaxMessageLength = 500

	// DefaultMessageLimit is how many messages one poll returns
	DefaultMessageLimit = 100

	// MaxMessageLimit caps any single poll
	MaxMessageLimit = 500

	// MentorPingText is posted by the system when a room asks for a mentor
	MentorPingText = "Mentor ping requested."

	codePrefix = "STEM-"
)

var codePattern = regexp.MustCompile(`^[A-Z0-9-]{4,32}$`)

// MessageObserver is told about every message after it is stored
type MessageObserver interface {
	OnMessage(ctx context.Context, message *entities.ChatMessage) error
}

// Service runs buddy rooms: shared codes, roles and chat
type Service struct {
	repo      buddyRepo.Repository
	observers []MessageObserver
	logger    *logging.Logger
	now       func() time.Time
	newID     func() string
}

// Option configures a Service
type Option func(*Service)

// WithMessageObserver registers an observer for new messages
func WithMessageObserver(observer MessageObserver) Option {
	return func(s *Service) {
		s.observers = append(s.observers, observer)
	}
}

// WithLogger sets the service logger
func WithLogger(logger *logging.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// NewService creates a new buddy service
func NewService(repo buddyRepo.Repository, opts ...Option) *Service {
	s := &Service{
		repo:   repo,
		logger: logging.Default,
		now:    time.Now,
		newID:  func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GenerateCode returns a fresh shareable room code such as STEM-3FA9C1D2
func GenerateCode() string {
	raw := strings.ReplaceAll(uuid.New().String(), "-", "")
	return codePrefix + strings.ToUpper(raw[:8])
}

// NormalizeCode trims and upper-cases a room code
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// JoinRoom finds the room with code, creating it when it does not exist yet.
// An empty code creates a room with a generated one.
func (s *Service) JoinRoom(ctx context.Context, code string) (*entities.Room, bool, error) {
	code = NormalizeCode(code)
	if code == "" {
		code = GenerateCode()
	}
	if !codePattern.MatchString(code) {
		return nil, false, types.NewAppError(types.ErrInvalidArgument, "room code must be 4-32 letters, digits or dashes")
	}

	room, created, err := s.repo.FindOrCreateRoom(ctx, &entities.Room{
		ID:        s.newID(),
		Code:      code,
		Status:    entities.RoomStatusOpen,
		CreatedAt: s.now().UTC(),
	})
	if err != nil {
		return nil, false, types.WrapError(types.ErrInternalError, "could not open room", err)
	}

	if created {
		s.logger.WithField("room_code", room.Code).Info("Buddy room created")
	}
	return room, created, nil
}

// GetRoom looks a room up by code
func (s *Service) GetRoom(ctx context.Context, code string) (*entities.Room, error) {
	code = NormalizeCode(code)
	if code == "" {
		return nil, types.NewAppError(types.ErrInvalidArgument, "room code is required")
	}

	room, err := s.repo.GetRoom(ctx, code)
	if err != nil {
		return nil, classify("could not read room", err)
	}
	return room, nil
}

// SetRole records the user as a member of the room with role and returns the
// updated member list.
func (s *Service) SetRole(ctx context.Context, code, userID, role string) ([]*entities.RoomMember, error) {
	if err := validateUserID(userID); err != nil {
		return nil, err
	}
	if !entities.ValidRole(role) {
		return nil, types.NewAppError(types.ErrInvalidArgument, "unknown role "+role)
	}

	room, err := s.GetRoom(ctx, code)
	if err != nil {
		return nil, err
	}

	err = s.repo.SaveMember(ctx, &entities.RoomMember{
		RoomID:   room.ID,
		UserID:   userID,
		Role:     role,
		JoinedAt: s.now().UTC(),
	})
	if err != nil {
		return nil, types.WrapError(types.ErrInternalError, "could not save role", err)
	}

	return s.listMembers(ctx, room)
}

// ListMembers returns the room's members in join order
func (s *Service) ListMembers(ctx context.Context, code string) ([]*entities.RoomMember, error) {
	room, err := s.GetRoom(ctx, code)
	if err != nil {
		return nil, err
	}
	return s.listMembers(ctx, room)
}

func (s *Service) listMembers(ctx context.Context, room *entities.Room) ([]*entities.RoomMember, error) {
	members, err := s.repo.ListMembers(ctx, room.ID)
	if err != nil {
		return nil, types.WrapError(types.ErrInternalError, "could not list members", err)
	}
	return members, nil
}

// PostMessage adds a chat line from userID to the room
func (s *Service) PostMessage(ctx context.Context, code, userID, text string) (*entities.ChatMessage, error) {
	if err := validateUserID(userID); err != nil {
		return nil, err
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, types.NewAppError(types.ErrInvalidArgument, "message text is required")
	}
	if len([]rune(text)) > MaxMessageLength {
		return nil, types.NewAppError(types.ErrInvalidArgument, "message is too long")
	}

	room, err := s.GetRoom(ctx, code)
	if err != nil {
		return nil, err
	}
	return s.post(ctx, room, userID, text)
}

// MentorPing posts a system message asking for a mentor
func (s *Service) MentorPing(ctx context.Context, code string) (*entities.ChatMessage, error) {
	room, err := s.GetRoom(ctx, code)
	if err != nil {
		return nil, err
	}
	return s.post(ctx, room, entities.SystemUserID, MentorPingText)
}

func (s *Service) post(ctx context.Context, room *entities.Room, userID, text string) (*entities.ChatMessage, error) {
	message := &entities.ChatMessage{
		ID:        s.newID(),
		RoomID:    room.ID,
		UserID:    userID,
		Text:      text,
		Timestamp: s.now().UTC(),
	}

	if err := s.repo.AddMessage(ctx, message); err != nil {
		return nil, types.WrapError(types.ErrInternalError, "could not post message", err)
	}

	for _, observer := range s.observers {
		if err := observer.OnMessage(ctx, message); err != nil {
			s.logger.WithFields(logging.Fields{
				"room_code":  room.Code,
				"message_id": message.ID,
			}).WithError(err).Warn("Message observer failed")
		}
	}

	return message, nil
}

// Messages returns up to limit messages posted after the since cursor, oldest
// first. A limit of zero or less uses DefaultMessageLimit.
func (s *Service) Messages(ctx context.Context, code string, since int64, limit int) ([]*entities.ChatMessage, error) {
	if since < 0 {
		return nil, types.NewAppError(types.ErrInvalidArgument, "since must not be negative")
	}
	if limit <= 0 {
		limit = DefaultMessageLimit
	}
	if limit > MaxMessageLimit {
		limit = MaxMessageLimit
	}

	room, err := s.GetRoom(ctx, code)
	if err != nil {
		return nil, err
	}

	messages, err := s.repo.GetMessages(ctx, room.ID, since, limit)
	if err != nil {
		return nil, types.WrapError(types.ErrInternalError, "could not read messages", err)
	}
	return messages, nil
}

func validateUserID(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return types.NewAppError(types.ErrInvalidArgument, "user id is required")
	}
	return nil
}

func classify(message string, err error) error {
	if errors.Is(err, buddyRepo.ErrRoomNotFound) {
		return types.WrapError(types.ErrNotFound, "room not found", err)
	}
	return types.WrapError(types.ErrInternalError, message, err)
}

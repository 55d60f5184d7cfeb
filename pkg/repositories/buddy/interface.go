package buddy

import (
	"context"
	"errors"

	"github.com/fadedpez/stemverse/pkg/entities"
)

var ErrRoomNotFound = errors.New("room not found")

// Repository defines the interface for buddy room storage
type Repository interface {
	// FindOrCreateRoom returns the room with room.Code, inserting room when no
	// such room exists. It reports whether the room was created.
	FindOrCreateRoom(ctx context.Context, room *entities.Room) (*entities.Room, bool, error)

	// GetRoom retrieves a room by its code
	GetRoom(ctx context.Context, code string) (*entities.Room, error)

	// SaveMember adds a member, or changes the role of an existing one
	SaveMember(ctx context.Context, member *entities.RoomMember) error

	// ListMembers returns a room's members in join order
	ListMembers(ctx context.Context, roomID string) ([]*entities.RoomMember, error)

	// AddMessage appends a message and fills in its Seq
	AddMessage(ctx context.Context, message *entities.ChatMessage) error

	// GetMessages returns up to limit messages with Seq greater than since, oldest first
	GetMessages(ctx context.Context, roomID string, since int64, limit int) ([]*entities.ChatMessage, error)
}

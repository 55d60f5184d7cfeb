package buddy

import (
	"context"
	"sync"

	"github.com/fadedpez/stemverse/pkg/entities"
)

// MemoryRepository implements Repository using in-memory storage
type MemoryRepository struct {
	rooms    map[string]*entities.Room          // by code
	members  map[string][]*entities.RoomMember  // by room ID, in join order
	messages map[string][]*entities.ChatMessage // by room ID, in seq order
	seq      int64
	mu       sync.RWMutex
}

// NewMemoryRepository creates a new in-memory buddy repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		rooms:    make(map[string]*entities.Room),
		members:  make(map[string][]*entities.RoomMember),
		messages: make(map[string][]*entities.ChatMessage),
	}
}

// FindOrCreateRoom inserts the room unless its code is taken, then returns the stored room
func (r *MemoryRepository) FindOrCreateRoom(ctx context.Context, room *entities.Room) (*entities.Room, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.rooms[room.Code]; ok {
		roomCopy := *existing
		return &roomCopy, false, nil
	}

	stored := *room
	r.rooms[room.Code] = &stored
	roomCopy := stored
	return &roomCopy, true, nil
}

// GetRoom retrieves a room by its code
func (r *MemoryRepository) GetRoom(ctx context.Context, code string) (*entities.Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, ok := r.rooms[code]
	if !ok {
		return nil, ErrRoomNotFound
	}
	roomCopy := *room
	return &roomCopy, nil
}

// SaveMember adds a member, or changes the role of an existing one
func (r *MemoryRepository) SaveMember(ctx context.Context, member *entities.RoomMember) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.members[member.RoomID] {
		if existing.UserID == member.UserID {
			existing.Role = member.Role
			return nil
		}
	}

	memberCopy := *member
	r.members[member.RoomID] = append(r.members[member.RoomID], &memberCopy)
	return nil
}

// ListMembers returns a room's members in join order
func (r *MemoryRepository) ListMembers(ctx context.Context, roomID string) ([]*entities.RoomMember, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := make([]*entities.RoomMember, 0, len(r.members[roomID]))
	for _, member := range r.members[roomID] {
		memberCopy := *member
		members = append(members, &memberCopy)
	}
	return members, nil
}

// AddMessage appends a message and fills in its Seq
func (r *MemoryRepository) AddMessage(ctx context.Context, message *entities.ChatMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	message.Seq = r.seq

	messageCopy := *message
	r.messages[message.RoomID] = append(r.messages[message.RoomID], &messageCopy)
	return nil
}

// GetMessages returns up to limit messages after since, oldest first
func (r *MemoryRepository) GetMessages(ctx context.Context, roomID string, since int64, limit int) ([]*entities.ChatMessage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	messages := []*entities.ChatMessage{}
	for _, message := range r.messages[roomID] {
		if len(messages) >= limit {
			break
		}
		if message.Seq <= since {
			continue
		}
		messageCopy := *message
		messages = append(messages, &messageCopy)
	}
	return messages, nil
}

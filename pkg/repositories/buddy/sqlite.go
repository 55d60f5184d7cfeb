package buddy

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fadedpez/stemverse/pkg/entities"
)

const (
	insertRoomSQL = `
		INSERT INTO rooms (id, code, status, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(code) DO NOTHING
	`

	selectRoomSQL = `SELECT id, code, status, created_at FROM rooms WHERE code = ?`

	upsertMemberSQL = `
		INSERT INTO room_members (room_id, user_id, role, joined_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(room_id, user_id) DO UPDATE SET role = excluded.role
	`

	selectMembersSQL = `
		SELECT room_id, user_id, role, joined_at
		FROM room_members
		WHERE room_id = ?
		ORDER BY joined_at ASC, user_id ASC
	`

	insertMessageSQL = `INSERT INTO messages (id, room_id, user_id, text, ts) VALUES (?, ?, ?, ?, ?)`

	selectMessagesSQL = `
		SELECT seq, id, room_id, user_id, text, ts
		FROM messages
		WHERE room_id = ? AND seq > ?
		ORDER BY seq ASC
		LIMIT ?
	`
)

// SQLiteRepository implements Repository on the shared SQLite database
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a buddy repository over an opened, migrated database
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// FindOrCreateRoom inserts the room unless its code is taken, then returns the stored room
func (r *SQLiteRepository) FindOrCreateRoom(ctx context.Context, room *entities.Room) (*entities.Room, bool, error) {
	result, err := r.db.ExecContext(ctx, insertRoomSQL,
		room.ID,
		room.Code,
		room.Status,
		formatTime(room.CreatedAt),
	)
	if err != nil {
		return nil, false, fmt.Errorf("error creating room: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("error getting rows affected: %w", err)
	}

	stored, err := r.GetRoom(ctx, room.Code)
	if err != nil {
		return nil, false, err
	}
	return stored, rowsAffected == 1, nil
}

// GetRoom retrieves a room by its code
func (r *SQLiteRepository) GetRoom(ctx context.Context, code string) (*entities.Room, error) {
	var room entities.Room
	var createdAt string

	err := r.db.QueryRowContext(ctx, selectRoomSQL, code).Scan(&room.ID, &room.Code, &room.Status, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRoomNotFound
		}
		return nil, fmt.Errorf("error getting room: %w", err)
	}

	if room.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &room, nil
}

// SaveMember adds a member, or changes the role of an existing one
func (r *SQLiteRepository) SaveMember(ctx context.Context, member *entities.RoomMember) error {
	_, err := r.db.ExecContext(ctx, upsertMemberSQL,
		member.RoomID,
		member.UserID,
		member.Role,
		formatTime(member.JoinedAt),
	)
	if err != nil {
		return fmt.Errorf("error saving room member: %w", err)
	}
	return nil
}

// ListMembers returns a room's members in join order
func (r *SQLiteRepository) ListMembers(ctx context.Context, roomID string) ([]*entities.RoomMember, error) {
	rows, err := r.db.QueryContext(ctx, selectMembersSQL, roomID)
	if err != nil {
		return nil, fmt.Errorf("error listing room members: %w", err)
	}
	defer rows.Close()

	members := []*entities.RoomMember{}
	for rows.Next() {
		var member entities.RoomMember
		var joinedAt string
		if err := rows.Scan(&member.RoomID, &member.UserID, &member.Role, &joinedAt); err != nil {
			return nil, fmt.Errorf("error scanning room member: %w", err)
		}
		if member.JoinedAt, err = parseTime(joinedAt); err != nil {
			return nil, err
		}
		members = append(members, &member)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating room members: %w", err)
	}
	return members, nil
}

// AddMessage appends a message and fills in its Seq
func (r *SQLiteRepository) AddMessage(ctx context.Context, message *entities.ChatMessage) error {
	result, err := r.db.ExecContext(ctx, insertMessageSQL,
		message.ID,
		message.RoomID,
		message.UserID,
		message.Text,
		formatTime(message.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("error adding message: %w", err)
	}

	if message.Seq, err = result.LastInsertId(); err != nil {
		return fmt.Errorf("error getting message sequence: %w", err)
	}
	return nil
}

// GetMessages returns up to limit messages after since, oldest first
func (r *SQLiteRepository) GetMessages(ctx context.Context, roomID string, since int64, limit int) ([]*entities.ChatMessage, error) {
	if limit <= 0 {
		return []*entities.ChatMessage{}, nil
	}

	rows, err := r.db.QueryContext(ctx, selectMessagesSQL, roomID, since, limit)
	if err != nil {
		return nil, fmt.Errorf("error getting messages: %w", err)
	}
	defer rows.Close()

	messages := []*entities.ChatMessage{}
	for rows.Next() {
		var message entities.ChatMessage
		var ts string
		if err := rows.Scan(&message.Seq, &message.ID, &message.RoomID, &message.UserID, &message.Text, &ts); err != nil {
			return nil, fmt.Errorf("error scanning message: %w", err)
		}
		if message.Timestamp, err = parseTime(ts); err != nil {
			return nil, err
		}
		messages = append(messages, &message)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}
	return messages, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("error parsing timestamp '%s': %w", value, err)
	}
	return t, nil
}

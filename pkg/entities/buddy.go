package entities

import "time"

const (
	RoomStatusOpen = "open"

	// SystemUserID authors messages the server posts on its own
	SystemUserID = "system"
)

// Buddy roles a room member can take
const (
	RoleCircuitPlanner = "Circuit Planner"
	RoleSwitchOperator = "Switch Operator"
)

// BuddyRoles lists every role a member may pick
var BuddyRoles = []string{RoleCircuitPlanner, RoleSwitchOperator}

// ValidRole reports whether role is a known buddy role
func ValidRole(role string) bool {
	for _, r := range BuddyRoles {
		if r == role {
			return true
		}
	}
	return false
}

// Room is a buddy chat room, found by its shareable code
type Room struct {
	ID        string
	Code      string
	Status    string
	CreatedAt time.Time
}

// RoomMember is a user who picked a role in a room
type RoomMember struct {
	RoomID   string
	UserID   string
	Role     string
	JoinedAt time.Time
}

// ChatMessage is one line of room chat. Seq orders messages and is the
// cursor clients poll with.
type ChatMessage struct {
	Seq       int64
	ID        string
	RoomID    string
	UserID    string
	Text      string
	Timestamp time.Time
}

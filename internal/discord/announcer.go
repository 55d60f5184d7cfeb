package discord

import (
	"context"
	"fmt"
	"strings"

	"github.com/fadedpez/stemverse/pkg/entities"
)

// ProfileLookup resolves a user ID to a display profile
type ProfileLookup interface {
	GetProfile(ctx context.Context, userID string) (*entities.Profile, error)
}

// Announcer posts every grant to a classroom Discord channel
type Announcer struct {
	session   SessionHandler
	channelID string
	profiles  ProfileLookup
}

// NewAnnouncer creates an announcer for channelID. profiles may be nil, in
// which case users are shown by a shortened ID.
func NewAnnouncer(session SessionHandler, channelID string, profiles ProfileLookup) *Announcer {
	return &Announcer{
		session:   session,
		channelID: channelID,
		profiles:  profiles,
	}
}

// OnGrant posts the grant to the channel
func (a *Announcer) OnGrant(ctx context.Context, tx *entities.Transaction) error {
	message := FormatGrant(a.displayName(ctx, tx.UserID), tx)
	if _, err := a.session.ChannelMessageSend(a.channelID, message); err != nil {
		return fmt.Errorf("error announcing grant: %w", err)
	}
	return nil
}

// Close closes the underlying Discord session
func (a *Announcer) Close() error {
	return a.session.Close()
}

func (a *Announcer) displayName(ctx context.Context, userID string) string {
	if a.profiles != nil {
		if profile, err := a.profiles.GetProfile(ctx, userID); err == nil && strings.TrimSpace(profile.Nickname) != "" {
			return profile.Nickname
		}
	}
	return ShortUserID(userID)
}

// FormatGrant renders the announcement text for a grant
func FormatGrant(name string, tx *entities.Transaction) string {
	return fmt.Sprintf("🪙 %s earned +%d coins: %s", name, tx.Amount, tx.Reason)
}

// ShortUserID trims an anonymous UUID to something readable
func ShortUserID(userID string) string {
	if len(userID) > 8 {
		return "player-" + userID[:8]
	}
	return userID
}

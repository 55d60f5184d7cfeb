package discord

import (
	"context"
	"errors"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/fadedpez/stemverse/internal/discord/mock"
	"github.com/fadedpez/stemverse/pkg/entities"
	"github.com/stretchr/testify/assert"
	testifymock "github.com/stretchr/testify/mock"
)

type stubProfiles map[string]*entities.Profile

func (s stubProfiles) GetProfile(ctx context.Context, userID string) (*entities.Profile, error) {
	profile, ok := s[userID]
	if !ok {
		return nil, errors.New("not found")
	}
	return profile, nil
}

func TestAnnouncerUsesNickname(t *testing.T) {
	session := new(mock.SessionHandler)
	session.On("ChannelMessageSend", "classroom", "🪙 Ada earned +100 coins: Treasure Hunt — Gear Lab complete").
		Return(&discordgo.Message{ID: "m1"}, nil)

	announcer := NewAnnouncer(session, "classroom", stubProfiles{"u1": {ID: "u1", Nickname: "Ada"}})
	err := announcer.OnGrant(context.Background(), &entities.Transaction{
		UserID: "u1",
		Amount: 100,
		Reason: "Treasure Hunt — Gear Lab complete",
	})

	assert.NoError(t, err)
	session.AssertExpectations(t)
}

func TestAnnouncerFallsBackToShortID(t *testing.T) {
	session := new(mock.SessionHandler)
	session.On("ChannelMessageSend", "classroom", "🪙 player-0b9e1c2d earned +10 coins: Heads Up correct").
		Return(&discordgo.Message{ID: "m1"}, nil)

	announcer := NewAnnouncer(session, "classroom", stubProfiles{})
	err := announcer.OnGrant(context.Background(), &entities.Transaction{
		UserID: "0b9e1c2d-7d3f-4a51-9f0e-8c6b2a1d4e5f",
		Amount: 10,
		Reason: "Heads Up correct",
	})

	assert.NoError(t, err)
	session.AssertExpectations(t)
}

func TestAnnouncerSendFailure(t *testing.T) {
	session := new(mock.SessionHandler)
	session.On("ChannelMessageSend", testifymock.Anything, testifymock.Anything).
		Return(nil, errors.New("missing access"))

	announcer := NewAnnouncer(session, "classroom", nil)
	err := announcer.OnGrant(context.Background(), &entities.Transaction{UserID: "u1", Amount: 10})

	assert.ErrorContains(t, err, "missing access")
}

func TestShortUserID(t *testing.T) {
	assert.Equal(t, "u1", ShortUserID("u1"))
	assert.Equal(t, "player-12345678", ShortUserID("123456789abc"))
}

package profile

import (
	"context"
	"errors"

	"github.com/fadedpez/stemverse/pkg/entities"
)

var ErrProfileNotFound = errors.New("profile not found")

// Repository defines the interface for profile storage
type Repository interface {
	// CreateProfile inserts the profile unless one with the same ID exists.
	// It reports whether a row was created.
	CreateProfile(ctx context.Context, profile *entities.Profile) (bool, error)

	// GetProfile retrieves a profile by user ID
	GetProfile(ctx context.Context, userID string) (*entities.Profile, error)

	// UpdateProfile changes nickname and grade
	UpdateProfile(ctx context.Context, userID, nickname, grade string) error

	// UpdatePreferences replaces the stored preferences
	UpdatePreferences(ctx context.Context, userID string, prefs entities.Preferences) error
}

package profile

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/fadedpez/stemverse/internal/types"
	"github.com/fadedpez/stemverse/pkg/entities"
	profileRepo "github.com/fadedpez/stemverse/pkg/repositories/profile"
)

// MaxNicknameLength bounds what the sidebar has room to show
const MaxNicknameLength = 40

// Service handles profile bootstrap and settings
type Service struct {
	repo profileRepo.Repository
	now  func() time.Time
}

// NewService creates a new profile service
func NewService(repo profileRepo.Repository) *Service {
	return &Service{
		repo: repo,
		now:  time.Now,
	}
}

// EnsureProfile creates a profile with default preferences unless one exists,
// and returns the stored profile either way.
func (s *Service) EnsureProfile(ctx context.Context, userID, nickname, grade string) (*entities.Profile, error) {
	if err := validateUserID(userID); err != nil {
		return nil, err
	}
	nickname, err := validateProfile(nickname, grade)
	if err != nil {
		return nil, err
	}

	_, err = s.repo.CreateProfile(ctx, &entities.Profile{
		ID:          userID,
		Nickname:    nickname,
		Grade:       grade,
		Preferences: entities.DefaultPreferences(),
		CreatedAt:   s.now().UTC(),
	})
	if err != nil {
		return nil, types.WrapError(types.ErrInternalError, "could not create profile", err)
	}

	return s.GetProfile(ctx, userID)
}

// GetProfile returns the user's profile
func (s *Service) GetProfile(ctx context.Context, userID string) (*entities.Profile, error) {
	if err := validateUserID(userID); err != nil {
		return nil, err
	}

	profile, err := s.repo.GetProfile(ctx, userID)
	if err != nil {
		return nil, classify("could not read profile", err)
	}
	return profile, nil
}

// UpdateProfile changes nickname and grade
func (s *Service) UpdateProfile(ctx context.Context, userID, nickname, grade string) (*entities.Profile, error) {
	if err := validateUserID(userID); err != nil {
		return nil, err
	}
	nickname, err := validateProfile(nickname, grade)
	if err != nil {
		return nil, err
	}

	if err := s.repo.UpdateProfile(ctx, userID, nickname, grade); err != nil {
		return nil, classify("could not update profile", err)
	}
	return s.GetProfile(ctx, userID)
}

// UpdatePreferences replaces the user's preferences after validating them
func (s *Service) UpdatePreferences(ctx context.Context, userID string, prefs entities.Preferences) (*entities.Profile, error) {
	if err := validateUserID(userID); err != nil {
		return nil, err
	}
	if err := prefs.Validate(); err != nil {
		return nil, types.WrapError(types.ErrInvalidArgument, "invalid preferences", err)
	}

	if err := s.repo.UpdatePreferences(ctx, userID, prefs); err != nil {
		return nil, classify("could not update preferences", err)
	}
	return s.GetProfile(ctx, userID)
}

func validateUserID(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return types.NewAppError(types.ErrInvalidArgument, "user id is required")
	}
	return nil
}

func validateProfile(nickname, grade string) (string, error) {
	nickname = strings.TrimSpace(nickname)
	if len([]rune(nickname)) > MaxNicknameLength {
		return "", types.NewAppError(types.ErrInvalidArgument, "nickname is too long")
	}
	if !entities.ValidGrade(grade) {
		return "", types.NewAppError(types.ErrInvalidArgument, "unknown grade "+grade)
	}
	return nickname, nil
}

func classify(message string, err error) error {
	if errors.Is(err, profileRepo.ErrProfileNotFound) {
		return types.WrapError(types.ErrNotFound, "profile not found", err)
	}
	return types.WrapError(types.ErrInternalError, message, err)
}

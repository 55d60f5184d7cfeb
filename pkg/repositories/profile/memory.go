package profile

import (
	"context"
	"sync"

	"github.com/fadedpez/stemverse/pkg/entities"
)

// MemoryRepository implements Repository using in-memory storage
type MemoryRepository struct {
	profiles map[string]*entities.Profile
	mu       sync.RWMutex
}

// NewMemoryRepository creates a new in-memory profile repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		profiles: make(map[string]*entities.Profile),
	}
}

// CreateProfile inserts the profile unless it already exists
func (r *MemoryRepository) CreateProfile(ctx context.Context, profile *entities.Profile) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.profiles[profile.ID]; exists {
		return false, nil
	}

	profileCopy := *profile
	r.profiles[profile.ID] = &profileCopy
	return true, nil
}

// GetProfile retrieves a profile by user ID
func (r *MemoryRepository) GetProfile(ctx context.Context, userID string) (*entities.Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	profile, exists := r.profiles[userID]
	if !exists {
		return nil, ErrProfileNotFound
	}

	profileCopy := *profile
	return &profileCopy, nil
}

// UpdateProfile changes nickname and grade
func (r *MemoryRepository) UpdateProfile(ctx context.Context, userID, nickname, grade string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	profile, exists := r.profiles[userID]
	if !exists {
		return ErrProfileNotFound
	}

	profile.Nickname = nickname
	profile.Grade = grade
	return nil
}

// UpdatePreferences replaces the stored preferences
func (r *MemoryRepository) UpdatePreferences(ctx context.Context, userID string, prefs entities.Preferences) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	profile, exists := r.profiles[userID]
	if !exists {
		return ErrProfileNotFound
	}

	profile.Preferences = prefs
	return nil
}

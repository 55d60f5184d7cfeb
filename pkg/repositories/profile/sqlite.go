package profile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fadedpez/stemverse/pkg/entities"
)

const (
	insertProfileSQL = `
		INSERT INTO users (
			id, nickname, grade, lang, tts_enabled, high_contrast,
			large_text, reduced_motion, captions_enabled, transcript_enabled, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`

	selectProfileSQL = `
		SELECT id, nickname, grade, lang, tts_enabled, high_contrast,
			large_text, reduced_motion, captions_enabled, transcript_enabled, created_at
		FROM users
		WHERE id = ?
	`

	updateProfileSQL = `UPDATE users SET nickname = ?, grade = ? WHERE id = ?`

	updatePreferencesSQL = `
		UPDATE users
		SET lang = ?,
			tts_enabled = ?,
			high_contrast = ?,
			large_text = ?,
			reduced_motion = ?,
			captions_enabled = ?,
			transcript_enabled = ?
		WHERE id = ?
	`
)

// SQLiteRepository implements Repository on the shared SQLite database
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a profile repository over an opened, migrated database
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// CreateProfile inserts the profile unless it already exists
func (r *SQLiteRepository) CreateProfile(ctx context.Context, profile *entities.Profile) (bool, error) {
	prefs := profile.Preferences
	result, err := r.db.ExecContext(ctx, insertProfileSQL,
		profile.ID,
		profile.Nickname,
		profile.Grade,
		string(prefs.Language),
		prefs.TTSEnabled,
		prefs.HighContrast,
		prefs.LargeText,
		prefs.ReducedMotion,
		prefs.CaptionsEnabled,
		prefs.TranscriptEnabled,
		profile.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return false, fmt.Errorf("error creating profile: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("error getting rows affected: %w", err)
	}
	return rowsAffected == 1, nil
}

// GetProfile retrieves a profile by user ID
func (r *SQLiteRepository) GetProfile(ctx context.Context, userID string) (*entities.Profile, error) {
	var profile entities.Profile
	var lang, createdAt string

	err := r.db.QueryRowContext(ctx, selectProfileSQL, userID).Scan(
		&profile.ID,
		&profile.Nickname,
		&profile.Grade,
		&lang,
		&profile.Preferences.TTSEnabled,
		&profile.Preferences.HighContrast,
		&profile.Preferences.LargeText,
		&profile.Preferences.ReducedMotion,
		&profile.Preferences.CaptionsEnabled,
		&profile.Preferences.TranscriptEnabled,
		&createdAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("error getting profile: %w", err)
	}

	profile.Preferences.Language = entities.Language(lang)
	if profile.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("error parsing created_at '%s': %w", createdAt, err)
	}

	return &profile, nil
}

// UpdateProfile changes nickname and grade
func (r *SQLiteRepository) UpdateProfile(ctx context.Context, userID, nickname, grade string) error {
	result, err := r.db.ExecContext(ctx, updateProfileSQL, nickname, grade, userID)
	if err != nil {
		return fmt.Errorf("error updating profile: %w", err)
	}
	return requireRow(result)
}

// UpdatePreferences replaces the stored preferences
func (r *SQLiteRepository) UpdatePreferences(ctx context.Context, userID string, prefs entities.Preferences) error {
	result, err := r.db.ExecContext(ctx, updatePreferencesSQL,
		string(prefs.Language),
		prefs.TTSEnabled,
		prefs.HighContrast,
		prefs.LargeText,
		prefs.ReducedMotion,
		prefs.CaptionsEnabled,
		prefs.TranscriptEnabled,
		userID,
	)
	if err != nil {
		return fmt.Errorf("error updating preferences: %w", err)
	}
	return requireRow(result)
}

func requireRow(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrProfileNotFound
	}
	return nil
}

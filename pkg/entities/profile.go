package entities

import (
	"fmt"
	"time"
)

// Language is a supported interface language code
type Language string

const (
	LanguageEnglish Language = "en-US"
	LanguageSpanish Language = "es-ES"
	LanguageFrench  Language = "fr-FR"
)

// SupportedLanguages lists the languages the interface is translated into
var SupportedLanguages = []Language{LanguageEnglish, LanguageSpanish, LanguageFrench}

// Grades a profile may select; empty means not set
var Grades = []string{"4-5", "6-8", "9-10", "11-12", "Other"}

// Preferences holds every recognized accessibility and language setting
type Preferences struct {
	Language          Language `json:"language"`
	TTSEnabled        bool     `json:"tts_enabled"`
	HighContrast      bool     `json:"high_contrast"`
	LargeText         bool     `json:"large_text"`
	ReducedMotion     bool     `json:"reduced_motion"`
	CaptionsEnabled   bool     `json:"captions_enabled"`
	TranscriptEnabled bool     `json:"transcript_enabled"`
}

// DefaultPreferences returns the settings a new profile starts with
func DefaultPreferences() Preferences {
	return Preferences{
		Language:          LanguageEnglish,
		CaptionsEnabled:   true,
		TranscriptEnabled: true,
	}
}

// Validate checks that the preferences only use supported values
func (p Preferences) Validate() error {
	for _, lang := range SupportedLanguages {
		if p.Language == lang {
			return nil
		}
	}
	return fmt.Errorf("unsupported language %q", p.Language)
}

// Profile is a player's identity and settings
type Profile struct {
	ID          string
	Nickname    string
	Grade       string
	Preferences Preferences
	CreatedAt   time.Time
}

// ValidGrade reports whether grade is empty or one of Grades
func ValidGrade(grade string) bool {
	if grade == "" {
		return true
	}
	for _, g := range Grades {
		if g == grade {
			return true
		}
	}
	return false
}

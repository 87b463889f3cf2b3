package repository

import (
	"context"

	"telegram-voice-assistant/internal/domain/model"
)

// -----------------------------
// Chat Sessions
// -----------------------------

type ChatSessionRepository interface {
	// Load returns the stored history, creating an empty durable record when none exists.
	Load(ctx context.Context, key model.SessionKey) ([]model.ChatMessage, error)
	// Save overwrites the whole history for key.
	Save(ctx context.Context, key model.SessionKey, messages []model.ChatMessage) error
	// ReplaceActive overwrites the user's default session.
	ReplaceActive(ctx context.Context, userID string, messages []model.ChatMessage) error
	// Exists reports whether the user's default session has ever been created.
	Exists(ctx context.Context, userID string) (bool, error)
}

// -----------------------------
// Preferences
// -----------------------------

type PreferenceRepository interface {
	GetVoice(ctx context.Context, userID string) (bool, error)
	ToggleVoice(ctx context.Context, userID string) (bool, error)
}

package application

import (
	"context"

	"telegram-voice-assistant/internal/domain/model"
	"telegram-voice-assistant/internal/usecase"
)

// ---- small interfaces to decouple the facade from concrete types ----
// Tests pass light-weight fakes for each of them.

type ChatUseCaseIface interface {
	HandleTurn(ctx context.Context, userID, sessionName, utterance string) (*usecase.TurnResult, error)
	Exclusive(ctx context.Context, userID string, fn func(ctx context.Context) error) error
}

type SessionStoreIface interface {
	Load(ctx context.Context, key model.SessionKey) ([]model.ChatMessage, error)
	Save(ctx context.Context, key model.SessionKey, messages []model.ChatMessage) error
	ReplaceActive(ctx context.Context, userID string, messages []model.ChatMessage) error
	Exists(ctx context.Context, userID string) (bool, error)
}

type PreferenceStoreIface interface {
	GetVoice(ctx context.Context, userID string) (bool, error)
	ToggleVoice(ctx context.Context, userID string) (bool, error)
}

type TranslatorIface interface {
	T(key string, args ...interface{}) string
}

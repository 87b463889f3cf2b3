package adapter

import "context"

// TelegramBotAdapter delivers replies produced by the assistant.
type TelegramBotAdapter interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
	SendAudio(ctx context.Context, chatID int64, audio []byte, title string) error
	SendTyping(ctx context.Context, chatID int64) error
}

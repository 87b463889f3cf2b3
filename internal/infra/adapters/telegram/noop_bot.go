package telegram

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"telegram-voice-assistant/internal/application"
	"telegram-voice-assistant/internal/domain/ports/adapter"
	"telegram-voice-assistant/internal/infra/logging"
)

var _ adapter.TelegramBotAdapter = (*NoopBotAdapter)(nil)

// NoopBotAdapter implements adapter.TelegramBotAdapter for local/dev runs.
// It reads lines from an input stream as private messages of one user and
// prints replies instead of talking to Telegram.
type NoopBotAdapter struct {
	facade *application.BotFacade
	userID int64
	in     io.Reader
	mu     sync.Mutex
	out    io.Writer
	log    *zerolog.Logger
}

func NewNoopBotAdapter(facade *application.BotFacade, userID int64, in io.Reader, out io.Writer, log *zerolog.Logger) *NoopBotAdapter {
	if log == nil {
		log = logging.Nop()
	}
	return &NoopBotAdapter{facade: facade, userID: userID, in: in, out: out, log: log}
}

// StartPolling feeds each input line through the facade until EOF or ctx ends.
func (b *NoopBotAdapter) StartPolling(ctx context.Context) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(b.in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- sc.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			if err := b.handleLine(ctx, line); err != nil {
				return err
			}
		}
	}
}

func (b *NoopBotAdapter) handleLine(ctx context.Context, line string) error {
	cc := application.ChatContext{SenderID: b.userID, ChatID: b.userID}
	_ = b.SendTyping(ctx, cc.ChatID)
	replies, err := b.facade.HandleMessage(ctx, application.Inbound{Chat: cc, Text: line})
	if err != nil {
		b.log.Warn().Err(err).Msg("message handled with error")
	}
	for _, rep := range replies {
		if rep.Text != "" {
			if err := b.SendMessage(ctx, cc.ChatID, rep.Text); err != nil {
				return err
			}
		}
		if len(rep.Audio) > 0 {
			if err := b.SendAudio(ctx, cc.ChatID, rep.Audio, rep.AudioTitle); err != nil {
				return err
			}
		}
	}
	return nil
}

func (b *NoopBotAdapter) SendMessage(ctx context.Context, chatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	_, err := fmt.Fprintf(b.out, "bot> %s\n", text)
	return err
}

func (b *NoopBotAdapter) SendAudio(ctx context.Context, chatID int64, audio []byte, title string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	_, err := fmt.Fprintf(b.out, "bot> [audio %q, %d bytes]\n", title, len(audio))
	return err
}

func (b *NoopBotAdapter) SendTyping(ctx context.Context, chatID int64) error {
	b.log.Debug().Int64("chat_id", chatID).Msg("typing")
	return nil
}

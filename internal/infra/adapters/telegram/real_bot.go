package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"telegram-voice-assistant/internal/application"
	"telegram-voice-assistant/internal/config"
	"telegram-voice-assistant/internal/domain/ports/adapter"
	"telegram-voice-assistant/internal/infra/logging"
	"telegram-voice-assistant/internal/infra/metrics"
	red "telegram-voice-assistant/internal/infra/redis"
	"telegram-voice-assistant/internal/infra/worker"
)

var _ adapter.TelegramBotAdapter = (*RealTelegramBotAdapter)(nil)

const (
	maxMessageRunes = 4096
	maxVoiceBytes   = 20 << 20
	typingInterval  = 4 * time.Second
)

// RateLimiter is satisfied by the Redis fixed-window limiter.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// RealTelegramBotAdapter uses tgbotapi to poll updates and delegates to BotFacade.
type RealTelegramBotAdapter struct {
	bot         *tgbotapi.BotAPI
	cfg         *config.BotConfig
	facade      *application.BotFacade
	translator  application.TranslatorIface
	rateLimiter RateLimiter
	pool        *worker.Pool
	httpClient  *http.Client
	log         *zerolog.Logger

	cancelPolling context.CancelFunc
}

func NewRealTelegramBotAdapter(
	cfg *config.BotConfig,
	facade *application.BotFacade,
	translator application.TranslatorIface,
	rateLimiter RateLimiter,
	pool *worker.Pool,
	log *zerolog.Logger,
) (*RealTelegramBotAdapter, error) {
	if cfg == nil {
		return nil, errors.New("bot config is nil")
	}
	if facade == nil {
		return nil, errors.New("bot facade is nil")
	}
	if pool == nil {
		return nil, errors.New("worker pool is nil")
	}
	if log == nil {
		log = logging.Nop()
	}

	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("telegram login: %w", err)
	}
	if cfg.Username == "" {
		cfg.Username = bot.Self.UserName
	}
	facade.Router.SetBotUsername(cfg.Username)
	log.Info().Str("bot", cfg.Username).Int64("bot_id", bot.Self.ID).Msg("telegram bot authorized")

	return &RealTelegramBotAdapter{
		bot:         bot,
		cfg:         cfg,
		facade:      facade,
		translator:  translator,
		rateLimiter: rateLimiter,
		pool:        pool,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		log:         log,
	}, nil
}

// StartPolling blocks until ctx is cancelled or StopPolling is called.
func (r *RealTelegramBotAdapter) StartPolling(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	r.cancelPolling = cancel
	defer cancel()

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := r.bot.GetUpdatesChan(u)
	defer r.bot.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			if err := r.pool.Submit(ctx, func(ctx context.Context) error {
				return r.handleUpdate(ctx, up)
			}); err != nil {
				r.log.Warn().Err(err).Int("update_id", up.UpdateID).Msg("dropping update")
			}
		}
	}
}

func (r *RealTelegramBotAdapter) StopPolling() {
	if r.cancelPolling != nil {
		r.cancelPolling()
	}
}

// SendMessage sends text, splitting it at the Telegram size limit.
func (r *RealTelegramBotAdapter) SendMessage(ctx context.Context, chatID int64, text string) error {
	for _, part := range splitMessage(text, maxMessageRunes) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := r.bot.Send(tgbotapi.NewMessage(chatID, part)); err != nil {
			return err
		}
	}
	return nil
}

func (r *RealTelegramBotAdapter) SendAudio(ctx context.Context, chatID int64, audio []byte, title string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if title == "" {
		title = "reply"
	}
	msg := tgbotapi.NewAudio(chatID, tgbotapi.FileBytes{Name: title + ".mp3", Bytes: audio})
	msg.Title = title
	_, err := r.bot.Send(msg)
	return err
}

func (r *RealTelegramBotAdapter) SendTyping(ctx context.Context, chatID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := r.bot.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping))
	return err
}

func (r *RealTelegramBotAdapter) handleUpdate(ctx context.Context, update tgbotapi.Update) error {
	msg := update.Message
	if msg == nil || msg.From == nil || msg.Chat == nil {
		metrics.IncTelegramUpdate("other")
		return nil
	}
	metrics.IncTelegramUpdate(updateKind(msg))

	ctx = logging.WithTraceID(ctx, uuid.NewString())
	cc := chatContext(msg, r.cfg.Username, r.bot.Self.ID)
	if !r.facade.Addressed(cc) {
		return nil
	}
	log := logging.With(logging.WithChatID(ctx, cc.ChatID), r.log)

	if !r.allow(ctx, log, msg) {
		return r.SendMessage(ctx, cc.ChatID, r.translator.T("error_rate_limited"))
	}

	stopTyping := r.keepTyping(ctx, cc.ChatID)
	defer stopTyping()

	in := application.Inbound{Chat: cc, Text: messageText(msg)}
	if msg.Voice != nil {
		audio, err := r.download(ctx, msg.Voice.FileID, msg.Voice.FileSize)
		if err != nil {
			log.Error().Err(err).Msg("voice download failed")
			return r.SendMessage(ctx, cc.ChatID, r.translator.T("error_transcribe"))
		}
		in.Voice, in.VoiceFile = audio, "voice.ogg"
	}

	replies, err := r.facade.HandleMessage(ctx, in)
	if err != nil {
		log.Warn().Err(err).Msg("message handled with error")
	}
	return r.deliver(ctx, cc.ChatID, replies)
}

func (r *RealTelegramBotAdapter) deliver(ctx context.Context, chatID int64, replies []application.Reply) error {
	for _, rep := range replies {
		if strings.TrimSpace(rep.Text) != "" {
			if err := r.SendMessage(ctx, chatID, rep.Text); err != nil {
				return fmt.Errorf("send message: %w", err)
			}
		}
		if len(rep.Audio) > 0 {
			if err := r.SendAudio(ctx, chatID, rep.Audio, rep.AudioTitle); err != nil {
				return fmt.Errorf("send audio: %w", err)
			}
		}
	}
	return nil
}

// allow applies the per-user, per-command rate limit. Limiter failures let the message through.
func (r *RealTelegramBotAdapter) allow(ctx context.Context, log *zerolog.Logger, msg *tgbotapi.Message) bool {
	if r.rateLimiter == nil || r.cfg.RateLimitPerMinute <= 0 {
		return true
	}
	key := red.UserCommandKey(msg.From.ID, commandName(msg))
	allowed, err := r.rateLimiter.Allow(ctx, key, r.cfg.RateLimitPerMinute, time.Minute)
	if err != nil {
		log.Error().Err(err).Msg("rate limit check failed")
		return true
	}
	if !allowed {
		metrics.IncRateLimitTriggered()
	}
	return allowed
}

// keepTyping refreshes the typing indicator until the returned func is called.
func (r *RealTelegramBotAdapter) keepTyping(ctx context.Context, chatID int64) func() {
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		t := time.NewTicker(typingInterval)
		defer t.Stop()
		for {
			if err := r.SendTyping(ctx, chatID); err != nil && ctx.Err() == nil {
				r.log.Debug().Err(err).Int64("chat_id", chatID).Msg("typing indicator failed")
			}
			select {
			case <-ctx.Done():
				return
			case <-t.C:
			}
		}
	}()
	return cancel
}

func (r *RealTelegramBotAdapter) download(ctx context.Context, fileID string, size int) ([]byte, error) {
	if size > maxVoiceBytes {
		return nil, fmt.Errorf("voice note too large: %d bytes", size)
	}
	url, err := r.bot.GetFileDirectURL(fileID)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("file download: status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxVoiceBytes))
}

// chatContext derives the routing context of a message.
func chatContext(msg *tgbotapi.Message, botUsername string, botID int64) application.ChatContext {
	cc := application.ChatContext{
		SenderID: msg.From.ID,
		ChatID:   msg.Chat.ID,
		IsGroup:  msg.Chat.IsGroup() || msg.Chat.IsSuperGroup(),
	}
	cc.MentionsBot = mentionsBot(msg, botUsername, botID)
	if reply := msg.ReplyToMessage; reply != nil && reply.From != nil {
		cc.IsReplyToBot = reply.From.ID == botID
	}
	return cc
}

func mentionsBot(msg *tgbotapi.Message, botUsername string, botID int64) bool {
	for _, entities := range [][]tgbotapi.MessageEntity{msg.Entities, msg.CaptionEntities} {
		for _, e := range entities {
			if e.IsTextMention() && e.User != nil && e.User.ID == botID {
				return true
			}
		}
	}
	if botUsername == "" {
		return false
	}
	return application.HasMention(messageText(msg), botUsername)
}

func messageText(msg *tgbotapi.Message) string {
	if msg.Text != "" {
		return msg.Text
	}
	return msg.Caption
}

func updateKind(msg *tgbotapi.Message) string {
	switch {
	case msg.Voice != nil:
		return "voice"
	case msg.IsCommand():
		return "command"
	case msg.Text != "":
		return "text"
	default:
		return "other"
	}
}

// splitMessage cuts text into chunks of at most limit runes, preferring line breaks.
func splitMessage(text string, limit int) []string {
	if utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}
	var parts []string
	runes := []rune(text)
	for len(runes) > limit {
		cut := limit
		for i := limit; i > limit/2; i-- {
			if runes[i-1] == '\n' {
				cut = i
				break
			}
		}
		parts = append(parts, string(runes[:cut]))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		parts = append(parts, string(runes))
	}
	return parts
}

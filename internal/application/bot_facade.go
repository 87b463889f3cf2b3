package application

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"telegram-voice-assistant/internal/domain"
	"telegram-voice-assistant/internal/domain/model"
	"telegram-voice-assistant/internal/domain/ports/adapter"
	derror "telegram-voice-assistant/internal/error"
	"telegram-voice-assistant/internal/infra/logging"
	"telegram-voice-assistant/internal/infra/metrics"
)

// Reply is one outbound message. Audio, when set, is sent alongside Text.
type Reply struct {
	Text       string
	Audio      []byte
	AudioTitle string
}

// Inbound is a message handed over by the transport.
type Inbound struct {
	Chat ChatContext
	Text string
	// Voice holds a downloaded voice note; when set Text is ignored.
	Voice     []byte
	VoiceFile string
}

// Speech bundles the optional speech collaborators. Nil members disable the feature.
type Speech struct {
	STT      adapter.SpeechToText
	TTS      adapter.TextToSpeech
	Detector adapter.LanguageDetector
}

type commandHandler func(ctx context.Context, userID string, args []string) ([]Reply, error)

// BotFacade turns routed messages into replies.
// It is the only place where errors become user-facing text; the transport just forwards replies.
type BotFacade struct {
	Router   *CommandRouter
	ChatUC   ChatUseCaseIface
	Sessions SessionStoreIface
	Prefs    PreferenceStoreIface
	Speech   Speech
	tr       TranslatorIface
	log      *zerolog.Logger
}

func NewBotFacade(
	router *CommandRouter,
	chatUC ChatUseCaseIface,
	sessions SessionStoreIface,
	prefs PreferenceStoreIface,
	speech Speech,
	tr TranslatorIface,
	log *zerolog.Logger,
) *BotFacade {
	if log == nil {
		log = logging.Nop()
	}
	return &BotFacade{
		Router:   router,
		ChatUC:   chatUC,
		Sessions: sessions,
		Prefs:    prefs,
		Speech:   speech,
		tr:       tr,
		log:      log,
	}
}

// Addressed reports whether the message deserves a reaction (typing indicator, replies).
func (b *BotFacade) Addressed(cc ChatContext) bool {
	return b.Router.Addressed(cc)
}

// HandleMessage routes one inbound message and returns the replies to deliver.
// A non-nil error is returned for logging only; the replies already carry the user-facing text.
func (b *BotFacade) HandleMessage(ctx context.Context, in Inbound) ([]Reply, error) {
	if !b.Router.Addressed(in.Chat) {
		return nil, nil
	}
	userID := strconv.FormatInt(in.Chat.SenderID, 10)
	ctx = logging.WithUserID(ctx, userID)
	ctx = logging.WithChatID(ctx, in.Chat.ChatID)
	log := logging.With(ctx, b.log)

	in.Chat.IsNewUser = b.isNewUser(ctx, log, userID)

	var (
		route         Route
		transcribeErr error
	)
	if in.Voice != nil {
		text, err := b.transcribe(ctx, in.Voice, in.VoiceFile)
		if err != nil {
			transcribeErr = err
			route = Route{Kind: RouteIgnore, ShowHelp: in.Chat.IsNewUser}
		} else {
			// Transcripts are always conversation, never commands.
			route = Route{Kind: RouteUtterance, Text: text, ShowHelp: in.Chat.IsNewUser}
			metrics.IncRouted(RouteUtterance.String(), "voice")
		}
	} else {
		route = b.Router.Route(in.Text, in.Chat)
	}

	var out []Reply
	if route.ShowHelp {
		out = append(out, Reply{Text: b.tr.T("help")})
	}
	if in.Chat.IsNewUser && (route.ShowHelp || route.Kind == RouteCommand) {
		b.markContacted(ctx, log, userID)
	}
	if transcribeErr != nil {
		log.Error().Err(transcribeErr).Msg("transcription failed")
		return append(out, Reply{Text: b.tr.T("error_transcribe")}), transcribeErr
	}

	var (
		replies []Reply
		err     error
	)
	switch route.Kind {
	case RouteIgnore:
		return out, nil
	case RouteCommand:
		replies, err = b.handleCommand(ctx, userID, route)
	case RouteUtterance:
		replies, err = b.handleUtterance(ctx, userID, route.Text)
	}
	if err != nil {
		log.Warn().Err(err).Str("route", route.Kind.String()).Str("command", route.Command).Msg("message handling failed")
		return append(out, Reply{Text: b.errorText(err)}), err
	}
	return append(out, replies...), nil
}

func (b *BotFacade) commandRoutes() map[string]commandHandler {
	return map[string]commandHandler{
		CmdStart: b.handleStart,
		CmdHelp:  b.handleHelp,
		CmdSave:  b.handleSave,
		CmdLoad:  b.handleLoad,
		CmdVoice: b.handleVoice,
	}
}

func (b *BotFacade) handleCommand(ctx context.Context, userID string, route Route) ([]Reply, error) {
	if route.Err != nil {
		return nil, route.Err
	}
	h, ok := b.commandRoutes()[route.Command]
	if !ok {
		return nil, fmt.Errorf("no handler for command %q", route.Command)
	}
	if route.Command == CmdHelp {
		return h(ctx, userID, route.Args)
	}
	// State-changing commands must not interleave with an in-flight turn.
	var replies []Reply
	err := b.ChatUC.Exclusive(ctx, userID, func(ctx context.Context) error {
		var err error
		replies, err = h(ctx, userID, route.Args)
		return err
	})
	return replies, err
}

// handleStart resets the default session and shows usage.
func (b *BotFacade) handleStart(ctx context.Context, userID string, _ []string) ([]Reply, error) {
	if err := b.Sessions.ReplaceActive(ctx, userID, nil); err != nil {
		return nil, err
	}
	return []Reply{{Text: b.tr.T("welcome") + "\n\n" + b.tr.T("help")}}, nil
}

func (b *BotFacade) handleHelp(_ context.Context, _ string, _ []string) ([]Reply, error) {
	return []Reply{{Text: b.tr.T("help")}}, nil
}

// handleSave copies the default session under the given name.
func (b *BotFacade) handleSave(ctx context.Context, userID string, args []string) ([]Reply, error) {
	name := sessionName(args)
	if name == "" {
		return nil, &domain.UsageError{Command: CmdSave}
	}
	msgs, err := b.Sessions.Load(ctx, model.NewSessionKey(userID, model.DefaultSessionName))
	if err != nil {
		return nil, err
	}
	if err := b.Sessions.Save(ctx, model.NewSessionKey(userID, name), msgs); err != nil {
		return nil, err
	}
	return []Reply{{Text: b.tr.T("saved", name)}}, nil
}

// handleLoad makes a named session the active one and replays its last message.
func (b *BotFacade) handleLoad(ctx context.Context, userID string, args []string) ([]Reply, error) {
	name := sessionName(args)
	if name == "" {
		return nil, &domain.UsageError{Command: CmdLoad}
	}
	msgs, err := b.Sessions.Load(ctx, model.NewSessionKey(userID, name))
	if err != nil {
		return nil, err
	}
	if err := b.Sessions.ReplaceActive(ctx, userID, msgs); err != nil {
		return nil, err
	}

	last, ok := model.LastMessage(msgs)
	if !ok {
		return []Reply{{Text: b.tr.T("loaded_empty", name)}}, nil
	}
	replay := Reply{Text: last.Content}
	replay.Audio = b.synthesize(ctx, last.Content)
	if replay.Audio != nil {
		replay.AudioTitle = name
	}
	return []Reply{{Text: b.tr.T("loaded", name)}, replay}, nil
}

func (b *BotFacade) handleVoice(ctx context.Context, userID string, _ []string) ([]Reply, error) {
	on, err := b.Prefs.ToggleVoice(ctx, userID)
	if err != nil {
		return nil, err
	}
	if on {
		return []Reply{{Text: b.tr.T("voice_on")}}, nil
	}
	return []Reply{{Text: b.tr.T("voice_off")}}, nil
}

func (b *BotFacade) handleUtterance(ctx context.Context, userID, text string) ([]Reply, error) {
	res, err := b.ChatUC.HandleTurn(ctx, userID, model.DefaultSessionName, text)
	if err != nil {
		return nil, err
	}
	reply := Reply{Text: res.Text()}

	on, err := b.Prefs.GetVoice(ctx, userID)
	if err != nil {
		// The turn is already committed; fall back to text.
		logging.With(ctx, b.log).Warn().Err(err).Msg("voice preference unavailable")
	} else if on {
		reply.Audio = b.synthesize(ctx, res.Reply)
		if reply.Audio != nil {
			reply.AudioTitle = "reply"
		}
	}
	return []Reply{reply}, nil
}

func (b *BotFacade) transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	if b.Speech.STT == nil {
		return "", &domain.ServiceError{Collaborator: "stt", Err: errors.New("speech-to-text not configured")}
	}
	text, err := b.Speech.STT.Transcribe(ctx, audio, filename)
	if err != nil {
		return "", &domain.ServiceError{Collaborator: "stt", Err: err}
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", derror.ErrEmptyUtterance
	}
	return text, nil
}

// synthesize returns nil when speech output is unavailable or fails.
func (b *BotFacade) synthesize(ctx context.Context, text string) []byte {
	if b.Speech.TTS == nil || strings.TrimSpace(text) == "" {
		return nil
	}
	log := logging.With(ctx, b.log)

	lang := ""
	if b.Speech.Detector != nil {
		code, err := b.Speech.Detector.Detect(ctx, text)
		if err != nil {
			log.Warn().Err(err).Msg("language detection failed")
		}
		lang = code
	}
	audio, err := b.Speech.TTS.Synthesize(ctx, lang, text)
	if err != nil {
		log.Error().Err(err).Str("lang", lang).Msg("speech synthesis failed")
		return nil
	}
	return audio
}

func (b *BotFacade) isNewUser(ctx context.Context, log *zerolog.Logger, userID string) bool {
	exists, err := b.Sessions.Exists(ctx, userID)
	if err != nil {
		log.Warn().Err(err).Msg("session lookup failed")
		return false
	}
	if !exists {
		metrics.IncFirstContact()
	}
	return !exists
}

// markContacted materializes the default session so first-contact help is shown once,
// whatever the first message was.
func (b *BotFacade) markContacted(ctx context.Context, log *zerolog.Logger, userID string) {
	err := b.ChatUC.Exclusive(ctx, userID, func(ctx context.Context) error {
		_, err := b.Sessions.Load(ctx, model.NewSessionKey(userID, model.DefaultSessionName))
		return err
	})
	if err != nil {
		log.Warn().Err(err).Msg("record first contact failed")
	}
}

func (b *BotFacade) errorText(err error) string {
	var ue *domain.UsageError
	switch {
	case errors.As(err, &ue):
		if ue.Command == CmdLoad {
			return b.tr.T("usage_load")
		}
		return b.tr.T("usage_save")
	case errors.Is(err, derror.ErrTurnInProgress):
		return b.tr.T("error_busy")
	case errors.Is(err, derror.ErrRateLimited):
		return b.tr.T("error_rate_limited")
	case errors.Is(err, derror.ErrEmptyUtterance):
		return b.tr.T("error_transcribe")
	case errors.Is(err, domain.ErrStorage):
		return b.tr.T("error_storage")
	default:
		return b.tr.T("error_generic")
	}
}

func sessionName(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

package application

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"telegram-voice-assistant/internal/domain"
	"telegram-voice-assistant/internal/infra/metrics"
)

type RouteKind int

const (
	RouteIgnore RouteKind = iota
	RouteCommand
	RouteUtterance
)

func (k RouteKind) String() string {
	switch k {
	case RouteCommand:
		return "command"
	case RouteUtterance:
		return "utterance"
	default:
		return "ignore"
	}
}

// Command names understood by the bot.
const (
	CmdStart = "start"
	CmdHelp  = "help"
	CmdSave  = "save"
	CmdLoad  = "load"
	CmdVoice = "voice"
)

// ChatContext describes where an inbound message came from.
type ChatContext struct {
	SenderID     int64
	ChatID       int64
	IsGroup      bool
	MentionsBot  bool
	IsReplyToBot bool
	IsNewUser    bool
}

// Route is the router's decision for one inbound message.
type Route struct {
	Kind    RouteKind
	Command string
	Args    []string
	Text    string
	// ShowHelp asks the caller to send usage instructions before handling the route.
	ShowHelp bool
	// Err is set for commands that are missing a required argument.
	Err error
}

type commandPattern struct {
	token    string
	name     string
	needsArg bool
}

// CommandRouter classifies inbound text as a command, an utterance or noise.
type CommandRouter struct {
	mention  string
	patterns []commandPattern
}

func NewCommandRouter(botUsername string) *CommandRouter {
	r := &CommandRouter{
		patterns: []commandPattern{
			{token: "/start", name: CmdStart},
			{token: "/help", name: CmdHelp},
			{token: "/save", name: CmdSave, needsArg: true},
			{token: "/load", name: CmdLoad, needsArg: true},
			{token: "/voice", name: CmdVoice},
		},
	}
	r.SetBotUsername(botUsername)
	return r
}

// SetBotUsername sets the mention stripped from inbound text. Call it before routing starts.
func (r *CommandRouter) SetBotUsername(name string) {
	name = strings.TrimPrefix(strings.TrimSpace(name), "@")
	r.mention = ""
	if name != "" {
		r.mention = "@" + name
	}
}

// BotUsername returns the configured username without the leading "@".
func (r *CommandRouter) BotUsername() string {
	return strings.TrimPrefix(r.mention, "@")
}

// Addressed reports whether the bot should react to a message from this chat at all.
func (r *CommandRouter) Addressed(cc ChatContext) bool {
	return !cc.IsGroup || cc.MentionsBot || cc.IsReplyToBot
}

func (r *CommandRouter) Route(text string, cc ChatContext) Route {
	if !r.Addressed(cc) {
		metrics.IncRouted(RouteIgnore.String(), "")
		return Route{Kind: RouteIgnore}
	}

	text = strings.TrimSpace(r.stripMention(text))
	if text == "" {
		metrics.IncRouted(RouteIgnore.String(), "")
		return Route{Kind: RouteIgnore}
	}

	for _, p := range r.patterns {
		rest, ok := matchCommand(text, p.token)
		if !ok {
			continue
		}
		route := Route{
			Kind:     RouteCommand,
			Command:  p.name,
			Args:     strings.Fields(rest),
			ShowHelp: cc.IsNewUser && p.name != CmdStart && p.name != CmdHelp,
		}
		if p.needsArg && len(route.Args) == 0 {
			route.Err = &domain.UsageError{Command: p.name}
		}
		metrics.IncRouted(RouteCommand.String(), p.name)
		return route
	}

	metrics.IncRouted(RouteUtterance.String(), "")
	return Route{Kind: RouteUtterance, Text: text, ShowHelp: cc.IsNewUser}
}

// stripMention removes the first bot mention. A standalone mention also takes
// the separator after it; a mention glued to a command ("/save@bot") does not.
func (r *CommandRouter) stripMention(text string) string {
	if r.mention == "" {
		return text
	}
	idx := mentionIndex(text, r.mention)
	if idx < 0 {
		return text
	}
	before, after := text[:idx], text[idx+len(r.mention):]
	if idx == 0 || unicode.IsSpace(rune(text[idx-1])) {
		after = strings.TrimLeft(after, ",:")
		after = strings.TrimLeftFunc(after, unicode.IsSpace)
	}
	return before + after
}

// matchCommand reports whether text starts with token (case-insensitive)
// followed by end of text, whitespace or a "@bot" suffix.
func matchCommand(text, token string) (string, bool) {
	if len(text) < len(token) || !strings.EqualFold(text[:len(token)], token) {
		return "", false
	}
	rest := text[len(token):]
	if rest == "" {
		return "", true
	}
	switch c := rest[0]; {
	case c == '@':
		// "/load@otherbot x": drop the addressee.
		if sp := strings.IndexFunc(rest, unicode.IsSpace); sp >= 0 {
			return rest[sp:], true
		}
		return "", true
	case c == ' ' || c == '\t' || c == '\n' || c == '\r':
		return rest, true
	}
	return "", false
}

// HasMention reports whether text mentions "@username" as a whole name, so
// "@VoiceBotFan" does not count as a mention of VoiceBot.
func HasMention(text, username string) bool {
	username = strings.TrimPrefix(username, "@")
	if username == "" {
		return false
	}
	return mentionIndex(text, "@"+username) >= 0
}

// mentionIndex finds the first case-insensitive occurrence of mention that is
// followed by end of text, whitespace or punctuation.
func mentionIndex(text, mention string) int {
	for from := 0; from < len(text); {
		i := indexFold(text[from:], mention)
		if i < 0 {
			return -1
		}
		i += from
		end := i + len(mention)
		if end == len(text) {
			return i
		}
		if c, _ := utf8.DecodeRuneInString(text[end:]); c != '_' && !unicode.IsLetter(c) && !unicode.IsDigit(c) {
			return i
		}
		from = i + 1
	}
	return -1
}

func indexFold(s, substr string) int {
	n := len(substr)
	for i := 0; i+n <= len(s); i++ {
		if strings.EqualFold(s[i:i+n], substr) {
			return i
		}
	}
	return -1
}

package telegram

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"telegram-voice-assistant/internal/application"
)

// menuCommands lists the commands shown in the Telegram command menu, in display order.
func menuCommands(t application.TranslatorIface) []tgbotapi.BotCommand {
	return []tgbotapi.BotCommand{
		{Command: application.CmdStart, Description: t.T("cmd_start_desc")},
		{Command: application.CmdHelp, Description: t.T("cmd_help_desc")},
		{Command: application.CmdSave, Description: t.T("cmd_save_desc")},
		{Command: application.CmdLoad, Description: t.T("cmd_load_desc")},
		{Command: application.CmdVoice, Description: t.T("cmd_voice_desc")},
	}
}

// SetMenuCommands registers the command menu for all chats.
func (r *RealTelegramBotAdapter) SetMenuCommands(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := r.bot.Request(tgbotapi.NewSetMyCommands(menuCommands(r.translator)...))
	return err
}

// commandName is the rate-limit bucket of a message: the lower-cased command or "message".
func commandName(msg *tgbotapi.Message) string {
	if msg.Voice != nil {
		return "voice_note"
	}
	if cmd := msg.Command(); cmd != "" {
		return "/" + strings.ToLower(cmd)
	}
	return "message"
}

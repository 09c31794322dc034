package telegram

import (
	"html"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func newHTMLMessage(chatID int64, text string) tgbotapi.MessageConfig {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	return msg
}

// esc escapes catalog text for HTML parse mode.
func esc(s string) string {
	return html.EscapeString(s)
}

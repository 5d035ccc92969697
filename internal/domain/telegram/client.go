package telegram

import (
	"context"

	"gopkg.in/telebot.v3"
)

// Client defines an interface for sending messages via a Telegram bot.
// This helps in decoupling the application logic from the specific bot library.
type Client interface {
	// SendMessage delivers text to the chat. It must return once ctx is done.
	SendMessage(ctx context.Context, recipientChatID int64, text string, options *telebot.SendOptions) error
}

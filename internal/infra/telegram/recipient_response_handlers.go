package telegram

import (
	"context"
	"errors"
	"pyrus_reminder_bot/internal/app"
	"pyrus_reminder_bot/internal/domain/notification"
	"pyrus_reminder_bot/internal/domain/recipient"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

const (
	msgAckAccepted = "Принято! Больше не напомню об этой задаче."
	msgAckClosed   = "Напоминание уже закрыто."
	msgAckNotYours = "Это напоминание адресовано не вам."
	msgAckUnlinked = "Этот чат не привязан к пользователю Pyrus."
	msgAckError    = "Произошла ошибка. Пожалуйста, попробуйте позже."
)

// Canceller cancels a pending reminder on behalf of its recipient.
type Canceller interface {
	Cancel(ctx context.Context, r notification.ReactionEvent) (bool, error)
}

// RegisterRecipientResponseHandlers wires the "accepted" button under reminders.
func RegisterRecipientResponseHandlers(
	ctx context.Context,
	b *telebot.Bot,
	canceller Canceller,
	recipientRepo recipient.Repository,
	baseLogger *logrus.Entry,
) {
	b.Handle("\f"+app.AckUnique, func(c telebot.Context) error {
		reply := HandleAck(ctx, c.Sender().ID, c.Callback().Data, canceller, recipientRepo, baseLogger)
		if c.Message() != nil && (reply == msgAckAccepted || reply == msgAckClosed) {
			// The reminder is gone either way; drop its button.
			if _, err := c.Bot().EditReplyMarkup(c.Message(), nil); err != nil {
				baseLogger.WithError(err).Warn("Failed to remove ack button")
			}
		}
		return c.Respond(&telebot.CallbackResponse{Text: reply})
	})
}

// HandleAck cancels the reminder named by data if the pressing chat owns it
// and returns the text to show in the callback answer.
func HandleAck(
	ctx context.Context,
	senderID int64,
	data string,
	canceller Canceller,
	recipientRepo recipient.Repository,
	baseLogger *logrus.Entry,
) string {
	handlerLogger := baseLogger.WithFields(logrus.Fields{
		"handler":   "ack_callback",
		"sender_id": senderID,
		"data":      data,
	})

	key, err := app.ParseAckCallback(data)
	if err != nil {
		handlerLogger.WithError(err).Error("Invalid callback data")
		return msgAckError
	}
	handlerLogger = handlerLogger.WithFields(logrus.Fields{
		"task_id":      key.TaskID,
		"recipient_id": key.RecipientID,
	})

	rec, err := recipientRepo.GetByTelegramID(ctx, senderID)
	if err != nil {
		if errors.Is(err, recipient.ErrNotFound) {
			handlerLogger.Warn("Ack from unlinked chat")
			return msgAckUnlinked
		}
		handlerLogger.WithError(err).Error("Failed to resolve recipient")
		return msgAckError
	}
	if rec.ID != key.RecipientID {
		handlerLogger.WithField("linked_recipient_id", rec.ID).Warn("Ack for someone else's reminder")
		return msgAckNotYours
	}

	removed, err := canceller.Cancel(ctx, notification.ReactionEvent{TaskID: key.TaskID, RecipientID: key.RecipientID})
	if err != nil {
		handlerLogger.WithError(err).Error("Failed to cancel reminder")
		return msgAckError
	}
	if !removed {
		handlerLogger.Info("Ack for a reminder that is already gone")
		return msgAckClosed
	}
	handlerLogger.Info("Reminder acknowledged")
	return msgAckAccepted
}

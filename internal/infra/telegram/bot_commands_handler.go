package telegram

import (
	"context"
	"errors"
	"fmt"
	"pyrus_reminder_bot/internal/app"
	"pyrus_reminder_bot/internal/domain/recipient"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

func RegisterBotCommands(
	ctx context.Context,
	b *telebot.Bot,
	adminService *app.AdminService,
	recipientRepo recipient.Repository,
	baseLogger *logrus.Entry, // For contextual logging
) {
	startHelpLogger := baseLogger.WithField("handler_group", "start_help")

	b.Handle("/start", func(c telebot.Context) error {
		senderID := c.Sender().ID
		logCtx := startHelpLogger.WithField("command", "/start").WithField("sender_id", senderID)
		logCtx.Info("Processing /start command")

		if adminService.IsAdmin(senderID) {
			logCtx.Info("User identified as Admin")
			return c.Send(fmt.Sprintf("Привет, Администратор %s! Я готов к работе. Используйте /help для списка команд.", c.Sender().FirstName))
		}

		rec, err := recipientRepo.GetByTelegramID(ctx, senderID)
		if err == nil {
			logCtx.WithField("recipient_id", rec.ID).Info("User identified as linked recipient")
			return c.Send(fmt.Sprintf("Привет, %s! Я напомню, если вас упомянут в задаче Pyrus и вы не ответите.", rec.DisplayName()))
		} else if !errors.Is(err, recipient.ErrNotFound) {
			logCtx.WithError(err).Error("Error checking recipient for /start command")
			return c.Send("Произошла ошибка при проверке вашего статуса. Пожалуйста, попробуйте позже.")
		}

		logCtx.Info("User is unknown")
		return c.Send("Привет! Я присылаю напоминания о неотвеченных упоминаниях в Pyrus. Чтобы получать их, отправьте /link <ваш ID пользователя Pyrus>.")
	})

	b.Handle("/help", func(c telebot.Context) error {
		senderID := c.Sender().ID
		logCtx := startHelpLogger.WithField("command", "/help").WithField("sender_id", senderID)
		logCtx.Info("Processing /help command")
		return c.Send(HelpText(adminService.IsAdmin(senderID)), &telebot.SendOptions{ParseMode: telebot.ModeMarkdown})
	})

	b.Handle("/whoami", func(c telebot.Context) error {
		senderID := c.Sender().ID
		logCtx := startHelpLogger.WithField("command", "/whoami").WithField("sender_id", senderID)
		logCtx.Info("Processing /whoami command")

		rec, err := recipientRepo.GetByTelegramID(ctx, senderID)
		if err != nil {
			if errors.Is(err, recipient.ErrNotFound) {
				return c.Send("Этот чат не привязан к пользователю Pyrus. Используйте /link <ID пользователя Pyrus>.")
			}
			logCtx.WithError(err).Error("Error looking up recipient for /whoami")
			return c.Send("Произошла ошибка. Пожалуйста, попробуйте позже.")
		}
		return c.Send(FormatWhoami(rec))
	})

	b.Handle("/link", func(c telebot.Context) error {
		senderID := c.Sender().ID
		logCtx := baseLogger.WithFields(logrus.Fields{
			"handler":   "/link",
			"sender_id": senderID,
		})
		logCtx.Info("Command received")

		args := c.Args()
		if len(args) != 1 {
			return c.Send("Неверный формат команды. Используйте: /link <ID пользователя Pyrus>")
		}
		pyrusUserID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return c.Send("Ошибка: ID пользователя Pyrus должен быть числом.")
		}

		fullName := strings.TrimSpace(c.Sender().FirstName + " " + c.Sender().LastName)
		rec, err := adminService.LinkRecipient(ctx, senderID, pyrusUserID, fullName)
		if err != nil {
			logWithError := logCtx.WithError(err).WithField("pyrus_user_id", pyrusUserID)
			switch {
			case errors.Is(err, app.ErrInvalidPyrusUserID):
				return c.Send("Ошибка: ID пользователя Pyrus должен быть положительным числом.")
			case errors.Is(err, recipient.ErrUserAlreadyLinked):
				logWithError.Warn("Pyrus user already linked to another chat")
				return c.Send(fmt.Sprintf("Пользователь Pyrus %d уже привязан к другому чату Telegram.", pyrusUserID))
			case errors.Is(err, recipient.ErrTelegramIDTaken):
				logWithError.Warn("Chat already linked to another Pyrus user")
				return c.Send("Этот чат уже привязан к другому пользователю Pyrus.")
			default:
				logWithError.Error("Failed to link recipient")
				return c.Send("Произошла ошибка при привязке. Пожалуйста, попробуйте позже.")
			}
		}

		logCtx.WithField("pyrus_user_id", rec.ID).Info("Recipient linked")
		return c.Send(fmt.Sprintf("Готово! Напоминания для пользователя Pyrus %d будут приходить в этот чат.", rec.ID))
	})
}

// FormatWhoami renders the /whoami reply.
func FormatWhoami(rec *recipient.Recipient) string {
	name := "не указано"
	if rec.FullName.Valid && rec.FullName.String != "" {
		name = rec.FullName.String
	}
	return fmt.Sprintf("Pyrus ID: %d\nИмя: %s\nTelegram: %d\nОбновлено: %s",
		rec.ID, name, rec.TelegramID, rec.UpdatedAt.Format("02.01.2006 15:04"))
}

// HelpText lists the commands available to the sender.
func HelpText(isAdmin bool) string {
	var helpText strings.Builder
	helpText.WriteString("Доступные команды:\n\n")
	helpText.WriteString("`/link <ID Pyrus>`\n - Привязать этот чат к пользователю Pyrus.\n\n")
	helpText.WriteString("`/whoami`\n - Показать, к кому привязан этот чат.\n\n")
	helpText.WriteString("`/help`\n - Показать это справочное сообщение.")
	if isAdmin {
		helpText.WriteString("\n\nКоманды Администратора:\n\n")
		helpText.WriteString("`/enable_all`\n - Включить рассылку напоминаний.\n\n")
		helpText.WriteString("`/disable_all`\n - Выключить рассылку (очередь продолжит накапливаться).\n\n")
		helpText.WriteString("`/status`\n - Состояние рассылки и очереди.\n\n")
		helpText.WriteString("`/queue`\n - Кто дольше всех не отвечает.\n\n")
		helpText.WriteString("`/users`\n - Список привязанных пользователей.")
	}
	return helpText.String()
}

package telegram

import (
	"context"
	"errors"
	"fmt"
	"pyrus_reminder_bot/internal/app"
	"pyrus_reminder_bot/internal/domain/recipient"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

const (
	queueTopLimit   = 10
	usersListLimit  = 50
	msgUnauthorized = "Ошибка: У вас нет прав для выполнения этой команды."
)

// RegisterAdminHandlers registers handlers for admin commands.
func RegisterAdminHandlers(ctx context.Context, b *telebot.Bot, adminService *app.AdminService, baseLogger *logrus.Entry) {
	b.Handle("/enable_all", func(c telebot.Context) error {
		return handleSetDelivery(ctx, c, adminService, baseLogger, true)
	})
	b.Handle("/disable_all", func(c telebot.Context) error {
		return handleSetDelivery(ctx, c, adminService, baseLogger, false)
	})
	b.Handle("/status", func(c telebot.Context) error {
		return handleStatus(ctx, c, adminService, baseLogger)
	})
	b.Handle("/queue", func(c telebot.Context) error {
		return handleQueue(ctx, c, adminService, baseLogger)
	})
	b.Handle("/users", func(c telebot.Context) error {
		return handleUsers(ctx, c, adminService, baseLogger)
	})
}

func handleSetDelivery(ctx context.Context, c telebot.Context, adminService *app.AdminService, baseLogger *logrus.Entry, enabled bool) error {
	handlerLogger := baseLogger.WithFields(logrus.Fields{
		"handler":   "/set_delivery",
		"enabled":   enabled,
		"sender_id": c.Sender().ID,
	})
	handlerLogger.Info("Command received")

	if err := adminService.SetDelivery(ctx, c.Sender().ID, enabled); err != nil {
		if errors.Is(err, app.ErrAdminNotAuthorized) {
			handlerLogger.Warn("Unauthorized access attempt")
			return c.Send(msgUnauthorized)
		}
		handlerLogger.WithError(err).Error("Failed to change delivery flag")
		return c.Send(fmt.Sprintf("Произошла ошибка: %s", err.Error()))
	}

	handlerLogger.Info("Delivery flag changed")
	if enabled {
		return c.Send("✅ Рассылка напоминаний включена.")
	}
	return c.Send("⏸ Рассылка напоминаний выключена. Очередь продолжит накапливаться.")
}

func handleStatus(ctx context.Context, c telebot.Context, adminService *app.AdminService, baseLogger *logrus.Entry) error {
	handlerLogger := baseLogger.WithFields(logrus.Fields{
		"handler":   "/status",
		"sender_id": c.Sender().ID,
	})
	handlerLogger.Info("Command received")

	report, err := adminService.Status(ctx, c.Sender().ID)
	if err != nil {
		if errors.Is(err, app.ErrAdminNotAuthorized) {
			handlerLogger.Warn("Unauthorized access attempt")
			return c.Send(msgUnauthorized)
		}
		handlerLogger.WithError(err).Error("Failed to build status")
		return c.Send(fmt.Sprintf("Произошла ошибка: %s", err.Error()))
	}
	return c.Send(FormatStatus(report))
}

func handleQueue(ctx context.Context, c telebot.Context, adminService *app.AdminService, baseLogger *logrus.Entry) error {
	handlerLogger := baseLogger.WithFields(logrus.Fields{
		"handler":   "/queue",
		"sender_id": c.Sender().ID,
	})
	handlerLogger.Info("Command received")

	entries, err := adminService.QueueTop(ctx, c.Sender().ID, queueTopLimit)
	if err != nil {
		if errors.Is(err, app.ErrAdminNotAuthorized) {
			handlerLogger.Warn("Unauthorized access attempt")
			return c.Send(msgUnauthorized)
		}
		handlerLogger.WithError(err).Error("Failed to list queue")
		return c.Send(fmt.Sprintf("Произошла ошибка: %s", err.Error()))
	}
	return c.Send(FormatQueue(entries, time.Now()))
}

func handleUsers(ctx context.Context, c telebot.Context, adminService *app.AdminService, baseLogger *logrus.Entry) error {
	handlerLogger := baseLogger.WithFields(logrus.Fields{
		"handler":   "/users",
		"sender_id": c.Sender().ID,
	})
	handlerLogger.Info("Command received")

	recs, err := adminService.Recipients(ctx, c.Sender().ID)
	if err != nil {
		if errors.Is(err, app.ErrAdminNotAuthorized) {
			handlerLogger.Warn("Unauthorized access attempt")
			return c.Send(msgUnauthorized)
		}
		handlerLogger.WithError(err).Error("Failed to list recipients")
		return c.Send(fmt.Sprintf("Произошла ошибка: %s", err.Error()))
	}
	return c.Send(FormatUsers(recs))
}

// FormatUsers renders the /users reply, capped at usersListLimit lines.
func FormatUsers(recs []*recipient.Recipient) string {
	if len(recs) == 0 {
		return "Нет привязанных пользователей."
	}
	var b strings.Builder
	b.WriteString("Привязанные пользователи:\n")
	for i, r := range recs {
		if i == usersListLimit {
			fmt.Fprintf(&b, "... и ещё %d\n", len(recs)-usersListLimit)
			break
		}
		fmt.Fprintf(&b, "%d. %s (Pyrus %d, TG %d)\n", i+1, r.DisplayName(), r.ID, r.TelegramID)
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatStatus renders the /status reply.
func FormatStatus(r *app.StatusReport) string {
	state := "выключена ⏸"
	if r.DeliveryEnabled {
		state = "включена ✅"
	}
	return fmt.Sprintf("Рассылка: %s\nВ очереди: %d\nК отправке сейчас: %d\nПривязанных пользователей: %d",
		state, r.Pending, r.Due, r.Recipients)
}

// FormatQueue renders the /queue reply: recipients waiting longest first.
func FormatQueue(entries []app.QueueEntry, now time.Time) string {
	if len(entries) == 0 {
		return "Очередь пуста."
	}
	var b strings.Builder
	b.WriteString("Топ ожидающих ответа:\n")
	for i, e := range entries {
		hours := int(now.Sub(e.OldestMentionAt).Hours())
		mark := ""
		if !e.Linked {
			mark = " (не привязан)"
		}
		fmt.Fprintf(&b, "%d. %s%s: задач %d, ждёт %d ч\n", i+1, e.Name, mark, e.Pending, hours)
	}
	return strings.TrimRight(b.String(), "\n")
}

package telegram

import (
	"context"
	"fmt"
	"math"
	"pyrus_reminder_bot/internal/domain/eventlog"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
	"gopkg.in/telebot.v3"
)

// sender is the part of *telebot.Bot the adapter uses.
type sender interface {
	Send(to telebot.Recipient, what interface{}, opts ...interface{}) (*telebot.Message, error)
}

// TelebotAdapter implements the domain Client interface using the gopkg.in/telebot.v3 library.
// Outgoing messages share one rate limiter so bursts of due reminders stay under Telegram's limits.
type TelebotAdapter struct {
	bot     sender
	limiter *rate.Limiter
}

// NewTelebotAdapter wraps b. ratePerSec <= 0 disables limiting.
func NewTelebotAdapter(b *telebot.Bot, ratePerSec float64) *TelebotAdapter {
	return newTelebotAdapter(b, ratePerSec)
}

func newTelebotAdapter(b sender, ratePerSec float64) *TelebotAdapter {
	limit, burst := rate.Inf, 1
	if ratePerSec > 0 {
		limit = rate.Limit(ratePerSec)
		burst = int(math.Max(1, math.Ceil(ratePerSec)))
	}
	return &TelebotAdapter{bot: b, limiter: rate.NewLimiter(limit, burst)}
}

type sendResult struct {
	err error
}

// SendMessage sends a text message to the chat. It returns ctx.Err() once ctx is done,
// even if the underlying HTTP call is still running.
func (tba *TelebotAdapter) SendMessage(ctx context.Context, recipientChatID int64, text string, options *telebot.SendOptions) error {
	if options == nil {
		options = &telebot.SendOptions{}
	}
	if err := tba.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	done := make(chan sendResult, 1)
	go func() {
		recipient := &telebot.Chat{ID: recipientChatID}
		_, err := tba.bot.Send(recipient, text, options)
		done <- sendResult{err: err}
	}()

	select {
	case res := <-done:
		return res.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// DryRunClient logs reminders instead of sending them. Used when no bot token is configured.
type DryRunClient struct {
	logger *logrus.Entry
	events eventlog.Repository
}

func NewDryRunClient(logger *logrus.Entry, events eventlog.Repository) *DryRunClient {
	return &DryRunClient{logger: logger, events: events}
}

func (c *DryRunClient) SendMessage(ctx context.Context, recipientChatID int64, text string, options *telebot.SendOptions) error {
	c.logger.WithFields(logrus.Fields{
		"telegram_id": recipientChatID,
		"text":        text,
	}).Info("DRY RUN: reminder not sent")
	if c.events != nil {
		if err := c.events.Record(ctx, eventlog.EventNotifyDryRun, map[string]any{
			"telegram_id": recipientChatID,
			"text":        text,
		}); err != nil {
			c.logger.WithError(err).Warn("Failed to write event log")
		}
	}
	return nil
}

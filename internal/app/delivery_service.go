package app

import (
	"context"
	"errors"
	"fmt"
	"pyrus_reminder_bot/internal/domain/eventlog"
	"pyrus_reminder_bot/internal/domain/notification"
	"pyrus_reminder_bot/internal/domain/quiethours"
	"pyrus_reminder_bot/internal/domain/recipient"
	"pyrus_reminder_bot/internal/domain/settings"
	domainTelegram "pyrus_reminder_bot/internal/domain/telegram"
	"pyrus_reminder_bot/internal/infra/metrics"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// DeliveryConfig holds the timing knobs of the worker loop.
type DeliveryConfig struct {
	RepeatInterval time.Duration
	TTL            time.Duration
	MaxRepeats     int // 0 means repeat until TTL
	SendTimeout    time.Duration
	Concurrency    int
	Render         RenderOptions
}

// Outcome of evaluating one due row.
type Outcome string

const (
	OutcomeSent      Outcome = "sent"
	OutcomeExhausted Outcome = "exhausted" // sent, and the repeat cap was reached
	OutcomeFailed    Outcome = "failed"
	OutcomeExpired   Outcome = "expired"
	OutcomeDeferred  Outcome = "deferred"
	OutcomeKept      Outcome = "kept"
	OutcomeVanished  Outcome = "vanished" // cancelled before the worker got the lock
	OutcomePanicked  Outcome = "panicked"
)

// TickResult counts outcomes of one loop pass.
type TickResult struct {
	Due      int
	Disabled bool
	Outcomes map[Outcome]int
}

// DeliveryService runs the worker loop body: expire, defer, send and reschedule due rows.
type DeliveryService struct {
	queue      notification.Queue
	recipients recipient.Repository
	settings   settings.Repository
	sender     domainTelegram.Client
	events     eventlog.Repository
	window     quiethours.Window
	cfg        DeliveryConfig
	logger     *logrus.Entry
	now        func() time.Time
}

func NewDeliveryService(
	queue notification.Queue,
	recipients recipient.Repository,
	settingsRepo settings.Repository,
	sender domainTelegram.Client,
	events eventlog.Repository,
	window quiethours.Window,
	cfg DeliveryConfig,
	logger *logrus.Entry,
) *DeliveryService {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return &DeliveryService{
		queue:      queue,
		recipients: recipients,
		settings:   settingsRepo,
		sender:     sender,
		events:     events,
		window:     window,
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
	}
}

// Tick runs one pass over the rows due at the current time.
func (s *DeliveryService) Tick(ctx context.Context) (TickResult, error) {
	timer := prometheus.NewTimer(metrics.TickDuration)
	defer timer.ObserveDuration()

	now := s.now()
	res := TickResult{Outcomes: make(map[Outcome]int)}

	due, err := s.queue.ListDue(ctx, now, now.Add(-s.cfg.TTL))
	if err != nil {
		return res, fmt.Errorf("failed to list due reminders: %w", err)
	}
	res.Due = len(due)
	metrics.PendingReminders.Set(float64(len(due)))
	if len(due) == 0 {
		return res, nil
	}

	enabled, err := settings.DeliveryEnabled(ctx, s.settings)
	if err != nil {
		s.logger.WithError(err).Warn("Could not read delivery flag, treating delivery as disabled")
		enabled = false
	}
	if !enabled {
		s.logger.WithField("due", len(due)).Info("Delivery disabled, leaving due reminders queued")
		metrics.RemindersTotal.WithLabelValues("skipped_disabled").Add(float64(len(due)))
		res.Disabled = true
		return res, nil
	}

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, s.cfg.Concurrency)
	)
	for _, p := range due {
		key := p.Key()
		sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			outcome := s.processRow(ctx, key, now)
			mu.Lock()
			res.Outcomes[outcome]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	s.logger.WithFields(logrus.Fields{
		"due":      res.Due,
		"outcomes": res.Outcomes,
	}).Info("Worker tick finished")
	return res, nil
}

// processRow evaluates one row under its lock. It never panics.
func (s *DeliveryService) processRow(ctx context.Context, key notification.Key, now time.Time) (outcome Outcome) {
	logCtx := s.logger.WithFields(logrus.Fields{
		"task_id":      key.TaskID,
		"recipient_id": key.RecipientID,
	})
	defer func() {
		if r := recover(); r != nil {
			logCtx.WithField("panic", r).Error("Recovered from panic while processing reminder")
			outcome = OutcomePanicked
		}
		metrics.RemindersTotal.WithLabelValues(string(outcome)).Inc()
	}()

	var (
		sendErr  error
		snapshot notification.Pending
	)
	err := s.queue.WithLockedRow(ctx, key, func(p *notification.Pending) (notification.Action, error) {
		if p.Age(now) >= s.cfg.TTL {
			outcome = OutcomeExpired
			snapshot = *p
			return notification.ActionDelete, nil
		}

		candidate := p.NextSendAt
		if now.After(candidate) {
			candidate = now
		}
		if adjusted := s.window.Adjust(candidate); adjusted.After(now) {
			outcome = OutcomeDeferred
			p.NextSendAt = adjusted
			snapshot = *p
			return notification.ActionUpdate, nil
		}

		sendErr = s.send(ctx, p)
		if sendErr != nil {
			outcome = OutcomeFailed
			snapshot = *p
			return notification.ActionKeep, nil
		}

		p.TimesSent++
		snapshot = *p
		if s.cfg.MaxRepeats > 0 && p.TimesSent >= s.cfg.MaxRepeats {
			outcome = OutcomeExhausted
			return notification.ActionDelete, nil
		}
		outcome = OutcomeSent
		p.NextSendAt = now.Add(s.cfg.RepeatInterval)
		snapshot.NextSendAt = p.NextSendAt
		return notification.ActionUpdate, nil
	})
	if errors.Is(err, notification.ErrNotFound) {
		logCtx.Debug("Reminder vanished before it could be processed")
		return OutcomeVanished
	}
	if err != nil {
		// a failed commit after a successful send still counts as a kept row; it is retried
		logCtx.WithError(err).Error("Failed to process due reminder")
		if outcome == "" || outcome == OutcomeSent || outcome == OutcomeExhausted {
			return OutcomeKept
		}
		return outcome
	}

	s.record(ctx, logCtx, outcome, &snapshot, sendErr)
	return outcome
}

// send resolves the recipient and delivers the rendered reminder within SendTimeout.
func (s *DeliveryService) send(ctx context.Context, p *notification.Pending) error {
	rec, err := s.recipients.GetByID(ctx, p.RecipientID)
	if err != nil {
		if errors.Is(err, recipient.ErrNotFound) {
			return fmt.Errorf("%w: recipient %d has no linked telegram chat", notification.ErrSendFailure, p.RecipientID)
		}
		return fmt.Errorf("%w: resolve recipient %d: %v", notification.ErrSendFailure, p.RecipientID, err)
	}

	text := RenderReminder(p, s.cfg.Render)

	sendCtx, cancel := context.WithTimeout(ctx, s.cfg.SendTimeout)
	defer cancel()

	timer := prometheus.NewTimer(metrics.ReminderSendDuration.WithLabelValues("telegram"))
	err = s.sender.SendMessage(sendCtx, rec.TelegramID, text, ReminderMarkup(p.Key()))
	timer.ObserveDuration()
	if err != nil {
		return fmt.Errorf("%w: %v", notification.ErrSendFailure, err)
	}
	return nil
}

func (s *DeliveryService) record(ctx context.Context, logCtx *logrus.Entry, outcome Outcome, p *notification.Pending, sendErr error) {
	payload := map[string]any{
		"task_id":    p.TaskID,
		"user_id":    p.RecipientID,
		"times_sent": p.TimesSent,
	}
	var event string
	switch outcome {
	case OutcomeSent, OutcomeExhausted:
		event = eventlog.EventNotifySent
		payload["final"] = outcome == OutcomeExhausted
		logCtx.WithField("times_sent", p.TimesSent).Info("Reminder sent")
	case OutcomeFailed:
		event = eventlog.EventNotifyFailed
		payload["error"] = sendErr.Error()
		logCtx.WithError(sendErr).Warn("Reminder send failed, will retry on next poll")
	case OutcomeExpired:
		event = eventlog.EventNotifyExpired
		payload["first_mention_at"] = p.FirstMentionAt.UTC().Format(time.RFC3339)
		logCtx.Info("Reminder expired")
	case OutcomeDeferred:
		event = eventlog.EventNotifyDeferred
		payload["next_send_at"] = p.NextSendAt.UTC().Format(time.RFC3339)
		logCtx.WithField("next_send_at", p.NextSendAt).Debug("Reminder deferred by quiet hours")
	default:
		return
	}
	if err := s.events.Record(ctx, event, payload); err != nil {
		logCtx.WithError(err).WithField("event", event).Warn("Failed to write event log")
	}
}

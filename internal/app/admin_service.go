package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"pyrus_reminder_bot/internal/domain/eventlog"
	"pyrus_reminder_bot/internal/domain/notification"
	"pyrus_reminder_bot/internal/domain/recipient"
	"pyrus_reminder_bot/internal/domain/settings"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Custom application-level errors for admin service
var ErrAdminNotAuthorized = errors.New("performing user is not authorized as an admin")
var ErrInvalidPyrusUserID = errors.New("pyrus user id must be positive")

// StatusReport is what /status shows.
type StatusReport struct {
	DeliveryEnabled bool
	Pending         int
	Due             int
	Recipients      int
}

// QueueEntry aggregates the pending reminders of one recipient.
type QueueEntry struct {
	RecipientID     int64
	Name            string
	Linked          bool
	Pending         int
	OldestMentionAt time.Time
}

type AdminService struct {
	queue      notification.Queue
	recipients recipient.Repository
	settings   settings.Repository
	events     eventlog.Repository
	adminIDs   map[int64]struct{}
	logger     *logrus.Entry
	now        func() time.Time
}

func NewAdminService(
	queue notification.Queue,
	recipients recipient.Repository,
	settingsRepo settings.Repository,
	events eventlog.Repository,
	adminTelegramIDs []int64,
	logger *logrus.Entry,
) *AdminService {
	ids := make(map[int64]struct{}, len(adminTelegramIDs))
	for _, id := range adminTelegramIDs {
		ids[id] = struct{}{}
	}
	return &AdminService{
		queue:      queue,
		recipients: recipients,
		settings:   settingsRepo,
		events:     events,
		adminIDs:   ids,
		logger:     logger,
		now:        time.Now,
	}
}

// IsAdmin reports whether the Telegram user may run admin commands.
func (s *AdminService) IsAdmin(telegramID int64) bool {
	_, ok := s.adminIDs[telegramID]
	return ok
}

// SetDelivery turns reminder delivery on or off for everyone.
func (s *AdminService) SetDelivery(ctx context.Context, performingAdminID int64, enabled bool) error {
	if !s.IsAdmin(performingAdminID) {
		return ErrAdminNotAuthorized
	}
	if err := settings.SetDeliveryEnabled(ctx, s.settings, enabled); err != nil {
		return fmt.Errorf("failed to update delivery flag: %w", err)
	}

	event := eventlog.EventServiceDisabled
	if enabled {
		event = eventlog.EventServiceEnabled
	}
	s.record(ctx, event, map[string]any{"admin_telegram_id": performingAdminID})
	return nil
}

// Status summarizes the flag and the queue.
func (s *AdminService) Status(ctx context.Context, performingAdminID int64) (*StatusReport, error) {
	if !s.IsAdmin(performingAdminID) {
		return nil, ErrAdminNotAuthorized
	}
	enabled, err := settings.DeliveryEnabled(ctx, s.settings)
	if err != nil {
		return nil, fmt.Errorf("failed to read delivery flag: %w", err)
	}
	rows, err := s.queue.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending reminders: %w", err)
	}
	recs, err := s.recipients.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list recipients: %w", err)
	}

	now := s.now()
	report := &StatusReport{
		DeliveryEnabled: enabled,
		Pending:         len(rows),
		Recipients:      len(recs),
	}
	for _, p := range rows {
		if !p.NextSendAt.After(now) {
			report.Due++
		}
	}
	return report, nil
}

// QueueTop lists recipients with the longest-waiting reminders first.
func (s *AdminService) QueueTop(ctx context.Context, performingAdminID int64, limit int) ([]QueueEntry, error) {
	if !s.IsAdmin(performingAdminID) {
		return nil, ErrAdminNotAuthorized
	}
	rows, err := s.queue.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending reminders: %w", err)
	}

	byRecipient := make(map[int64]*QueueEntry)
	for _, p := range rows {
		e, ok := byRecipient[p.RecipientID]
		if !ok {
			e = &QueueEntry{RecipientID: p.RecipientID, OldestMentionAt: p.FirstMentionAt}
			byRecipient[p.RecipientID] = e
		}
		e.Pending++
		if p.FirstMentionAt.Before(e.OldestMentionAt) {
			e.OldestMentionAt = p.FirstMentionAt
		}
	}

	entries := make([]QueueEntry, 0, len(byRecipient))
	for _, e := range byRecipient {
		rec, err := s.recipients.GetByID(ctx, e.RecipientID)
		switch {
		case err == nil:
			e.Name = rec.DisplayName()
			e.Linked = true
		case errors.Is(err, recipient.ErrNotFound):
			e.Name = (&recipient.Recipient{ID: e.RecipientID}).DisplayName()
		default:
			return nil, fmt.Errorf("failed to resolve recipient %d: %w", e.RecipientID, err)
		}
		entries = append(entries, *e)
	}

	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].OldestMentionAt.Equal(entries[j].OldestMentionAt) {
			return entries[i].OldestMentionAt.Before(entries[j].OldestMentionAt)
		}
		return entries[i].RecipientID < entries[j].RecipientID
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// Recipients lists every linked Pyrus user for /users.
func (s *AdminService) Recipients(ctx context.Context, performingAdminID int64) ([]*recipient.Recipient, error) {
	if !s.IsAdmin(performingAdminID) {
		return nil, ErrAdminNotAuthorized
	}
	recs, err := s.recipients.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list recipients: %w", err)
	}
	return recs, nil
}

// LinkRecipient binds a Telegram chat to a Pyrus user so reminders for that user reach it.
func (s *AdminService) LinkRecipient(ctx context.Context, telegramID, pyrusUserID int64, fullName string) (*recipient.Recipient, error) {
	if pyrusUserID <= 0 {
		return nil, ErrInvalidPyrusUserID
	}

	var name sql.NullString
	if fullName = strings.TrimSpace(fullName); fullName != "" {
		name.String = fullName
		name.Valid = true
	}

	existing, err := s.recipients.GetByID(ctx, pyrusUserID)
	switch {
	case err == nil && existing.TelegramID != telegramID:
		return nil, recipient.ErrUserAlreadyLinked
	case err != nil && !errors.Is(err, recipient.ErrNotFound):
		return nil, fmt.Errorf("failed to look up pyrus user %d: %w", pyrusUserID, err)
	}

	rec := &recipient.Recipient{
		ID:         pyrusUserID,
		TelegramID: telegramID,
		FullName:   name,
		UpdatedAt:  s.now(),
	}
	if err := s.recipients.Upsert(ctx, rec); err != nil {
		if errors.Is(err, recipient.ErrTelegramIDTaken) || errors.Is(err, recipient.ErrUserAlreadyLinked) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to link recipient: %w", err)
	}

	s.record(ctx, eventlog.EventRecipientLinked, map[string]any{
		"user_id":     pyrusUserID,
		"telegram_id": telegramID,
	})
	return rec, nil
}

// record writes an audit entry. The change it describes is already stored, so a
// failure is only logged.
func (s *AdminService) record(ctx context.Context, event string, payload map[string]any) {
	if err := s.events.Record(ctx, event, payload); err != nil {
		s.logger.WithError(err).WithField("event", event).Warn("Failed to write event log")
	}
}

package app

import (
	"context"
	"fmt"
	"pyrus_reminder_bot/internal/domain/eventlog"
	"pyrus_reminder_bot/internal/domain/notification"
	"time"

	"github.com/sirupsen/logrus"
)

// MaintenanceService prunes idempotency markers and old event log rows.
type MaintenanceService struct {
	guard              notification.Guard
	events             eventlog.Repository
	processedRetention time.Duration
	logsRetention      time.Duration
	logger             *logrus.Entry
	now                func() time.Time
}

func NewMaintenanceService(guard notification.Guard, events eventlog.Repository, processedRetention, logsRetention time.Duration, logger *logrus.Entry) *MaintenanceService {
	return &MaintenanceService{
		guard:              guard,
		events:             events,
		processedRetention: processedRetention,
		logsRetention:      logsRetention,
		logger:             logger,
		now:                time.Now,
	}
}

// Cleanup deletes processed-comment markers and event log rows past their retention.
// A retention of zero keeps the corresponding rows forever.
func (s *MaintenanceService) Cleanup(ctx context.Context) error {
	now := s.now()

	var processed, logs int64
	var err error
	if s.processedRetention > 0 {
		processed, err = s.guard.PruneProcessed(ctx, now.Add(-s.processedRetention))
		if err != nil {
			return fmt.Errorf("failed to prune processed comments: %w", err)
		}
	}
	if s.logsRetention > 0 {
		logs, err = s.events.PruneBefore(ctx, now.Add(-s.logsRetention))
		if err != nil {
			return fmt.Errorf("failed to prune event log: %w", err)
		}
	}

	s.logger.WithFields(logrus.Fields{
		"processed_deleted": processed,
		"logs_deleted":      logs,
	}).Info("Cleanup finished")

	if err := s.events.Record(ctx, eventlog.EventLogsCleanup, map[string]any{
		"processed_deleted": processed,
		"logs_deleted":      logs,
	}); err != nil {
		s.logger.WithError(err).Warn("Failed to write event log")
	}
	return nil
}

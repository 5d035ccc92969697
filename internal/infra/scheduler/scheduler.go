package scheduler

import (
	"context"
	"fmt"
	"pyrus_reminder_bot/internal/app"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

const (
	tickJobTimeout    = 5 * time.Minute
	cleanupJobTimeout = 5 * time.Minute
)

// Ticker runs one pass of the worker loop.
type Ticker interface {
	Tick(ctx context.Context) (app.TickResult, error)
}

// Cleaner prunes stale bookkeeping rows.
type Cleaner interface {
	Cleanup(ctx context.Context) error
}

// NotificationScheduler drives the worker loop on a fixed interval and the daily cleanup.
type NotificationScheduler struct {
	cronEngine      *cron.Cron
	ticker          Ticker
	cleaner         Cleaner
	logger          *logrus.Entry
	pollInterval    time.Duration
	cronSpecCleanup string
}

func NewNotificationScheduler(
	ticker Ticker,
	cleaner Cleaner,
	logger *logrus.Entry,
	loc *time.Location,
	pollInterval time.Duration, // e.g. 60s
	cronSpecCleanup string, // e.g., "0 3 * * *" (3 AM daily)
) *NotificationScheduler {
	if loc == nil {
		loc = time.Local
	}
	cronLogger := cron.PrintfLogger(logger)
	return &NotificationScheduler{
		cronEngine: cron.New(
			cron.WithLocation(loc),
			// a slow tick makes the next one skip instead of overlapping it
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		ticker:          ticker,
		cleaner:         cleaner,
		logger:          logger,
		pollInterval:    pollInterval,
		cronSpecCleanup: cronSpecCleanup,
	}
}

// Start registers the jobs and starts the cron engine.
func (s *NotificationScheduler) Start() error {
	s.logger.Info("Starting notification scheduler...")

	if s.pollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", s.pollInterval)
	}
	s.cronEngine.Schedule(cron.Every(s.pollInterval), cron.FuncJob(s.runTick))

	if s.cleaner != nil && s.cronSpecCleanup != "" {
		if _, err := s.cronEngine.AddFunc(s.cronSpecCleanup, s.runCleanup); err != nil {
			return fmt.Errorf("could not add cleanup cron job %q: %w", s.cronSpecCleanup, err)
		}
	}

	s.cronEngine.Start()
	s.logger.WithFields(logrus.Fields{
		"poll_interval": s.pollInterval.String(),
		"cleanup_spec":  s.cronSpecCleanup,
	}).Info("Notification scheduler started with jobs.")
	return nil
}

func (s *NotificationScheduler) runTick() {
	ctx, cancel := context.WithTimeout(context.Background(), tickJobTimeout)
	defer cancel()
	if _, err := s.ticker.Tick(ctx); err != nil {
		s.logger.WithError(err).Error("Worker tick failed")
	}
}

func (s *NotificationScheduler) runCleanup() {
	s.logger.Info("Cron job triggered for cleanup.")
	ctx, cancel := context.WithTimeout(context.Background(), cleanupJobTimeout)
	defer cancel()
	if err := s.cleaner.Cleanup(ctx); err != nil {
		s.logger.WithError(err).Error("Cleanup failed")
	}
}

// Stop stops scheduling new runs and waits for a running tick to finish.
func (s *NotificationScheduler) Stop() {
	s.logger.Info("Stopping notification scheduler...")
	ctx := s.cronEngine.Stop() // Stops the scheduler from adding new jobs, waits for running jobs.
	<-ctx.Done()
	s.logger.Info("Notification scheduler gracefully stopped.")
}

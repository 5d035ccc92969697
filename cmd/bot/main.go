package main

import (
	"context"
	"database/sql"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"pyrus_reminder_bot/internal/app"
	"pyrus_reminder_bot/internal/domain/eventlog"
	"pyrus_reminder_bot/internal/domain/notification"
	"pyrus_reminder_bot/internal/domain/quiethours"
	"pyrus_reminder_bot/internal/domain/recipient"
	"pyrus_reminder_bot/internal/domain/settings"
	domainTelegram "pyrus_reminder_bot/internal/domain/telegram"
	"pyrus_reminder_bot/internal/infra/config"
	idb "pyrus_reminder_bot/internal/infra/database"
	"pyrus_reminder_bot/internal/infra/httpapi"
	"pyrus_reminder_bot/internal/infra/logger"
	"pyrus_reminder_bot/internal/infra/memstore"
	"pyrus_reminder_bot/internal/infra/metrics"
	"pyrus_reminder_bot/internal/infra/scheduler"
	"pyrus_reminder_bot/internal/infra/telegram"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

const shutdownTimeout = 10 * time.Second

type storage struct {
	store      notification.Store
	recipients recipient.Repository
	settings   settings.Repository
	events     eventlog.Repository
	db         *sql.DB // nil for the memory driver
}

func openStorage(ctx context.Context, cfg *config.AppConfig, mainLogger *logrus.Entry) (*storage, error) {
	if cfg.StorageDriver == config.StorageDriverMemory {
		mainLogger.Warn("Using in-memory storage: the queue is lost on restart")
		return &storage{
			store:      memstore.New(),
			recipients: memstore.NewRecipients(),
			settings:   memstore.NewSettings(),
			events:     memstore.NewEventLog(),
		}, nil
	}

	db, err := idb.NewPostgresConnection(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("could not connect to database: %w", err)
	}
	if err := idb.Migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not apply schema: %w", err)
	}
	mainLogger.Info("Database connection established and schema applied")
	return &storage{
		store:      idb.NewPostgresNotificationRepository(db),
		recipients: idb.NewPostgresRecipientRepository(db),
		settings:   idb.NewPostgresSettingsRepository(db),
		events:     idb.NewPostgresEventLogRepository(db),
		db:         db,
	}, nil
}

func main() {
	fmt.Println("Pyrus Reminder Bot starting...")

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Could not load application configuration: %v", err)
	}
	logger.Init(cfg)
	mainLogger := logger.Component("main")

	loc, err := cfg.Location()
	if err != nil {
		mainLogger.WithError(err).Fatal("Invalid time zone")
	}
	window, err := quiethours.New(cfg.QuietStart, cfg.QuietEnd, loc)
	if err != nil {
		mainLogger.WithError(err).Fatal("Invalid quiet hours")
	}

	metrics.InitAPIMetrics()
	metrics.InitWorkerMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStorage(ctx, cfg, mainLogger)
	if err != nil {
		mainLogger.WithError(err).Fatal("Storage initialization failed")
	}

	// Telegram: a real bot when a token is configured, otherwise log-only delivery.
	var bot *telebot.Bot
	var sender domainTelegram.Client
	if cfg.DryRun() {
		mainLogger.Warn("TELEGRAM_TOKEN is not set: reminders will only be logged")
		sender = telegram.NewDryRunClient(logger.Component("dry_run"), st.events)
	} else {
		botLogger := logger.Component("telebot")
		bot, err = telebot.NewBot(telebot.Settings{
			Token:  cfg.TelegramToken,
			Poller: &telebot.LongPoller{Timeout: 10 * time.Second},
			OnError: func(err error, c telebot.Context) {
				entry := botLogger.WithError(err)
				if c != nil && c.Sender() != nil && c.Chat() != nil {
					entry = entry.WithFields(logrus.Fields{
						"sender_id": c.Sender().ID,
						"chat_id":   c.Chat().ID,
						"text":      c.Text(),
					})
				}
				entry.Error("Telegram handler error")
			},
		})
		if err != nil {
			mainLogger.WithError(err).Fatal("Could not create Telegram bot")
		}
		sender = telegram.NewTelebotAdapter(bot, cfg.TelegramRatePerSec)
	}

	ingestService := app.NewIngestService(st.store, cfg.Delay, logger.Component("ingest"))
	deliveryService := app.NewDeliveryService(
		st.store,
		st.recipients,
		st.settings,
		sender,
		st.events,
		window,
		app.DeliveryConfig{
			RepeatInterval: cfg.RepeatInterval,
			TTL:            cfg.TTL,
			MaxRepeats:     cfg.MaxRepeats,
			SendTimeout:    cfg.SendTimeout,
			Concurrency:    cfg.WorkerConcurrency,
			Render: app.RenderOptions{
				TaskURLBase:     cfg.TaskURLBase,
				TaskTitleMaxLen: cfg.TruncTaskTitleLen,
				CommentMaxLen:   cfg.TruncCommentLen,
			},
		},
		logger.Component("delivery"),
	)
	adminService := app.NewAdminService(st.store, st.recipients, st.settings, st.events, cfg.AdminTelegramIDs, logger.Component("admin"))
	maintenanceService := app.NewMaintenanceService(st.store, st.events, cfg.ProcessedRetention, cfg.LogsRetention, logger.Component("maintenance"))

	notifScheduler := scheduler.NewNotificationScheduler(
		deliveryService,
		maintenanceService,
		logger.Component("scheduler"),
		loc,
		cfg.PollInterval,
		cfg.CronSpecCleanup,
	)
	if err := notifScheduler.Start(); err != nil {
		mainLogger.WithError(err).Fatal("Could not start scheduler")
	}

	if bot != nil {
		handlersLogger := logger.Component("telegram")
		telegram.RegisterBotCommands(ctx, bot, adminService, st.recipients, handlersLogger)
		telegram.RegisterAdminHandlers(ctx, bot, adminService, handlersLogger)
		telegram.RegisterRecipientResponseHandlers(ctx, bot, ingestService, st.recipients, handlersLogger)
		go bot.Start()
		mainLogger.Info("Telegram bot started")
	}

	router := httpapi.NewRouter(ingestService, httpapi.WebhookOptions{
		Secret:        cfg.PyrusWebhookSecret,
		SkipSignature: cfg.WebhookSkipSignature,
	}, logger.Component("webhook"))
	server := httpapi.NewServer(cfg.HTTPAddr, router, logger.Component("http"))
	server.Start()

	mainLogger.Info("Application setup complete")
	<-ctx.Done()
	mainLogger.Info("Shutting down application...")

	// Waits for a running tick, so in-flight sends finish or time out first.
	notifScheduler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		mainLogger.WithError(err).Error("HTTP server shutdown failed")
	}
	if bot != nil {
		bot.Stop()
	}
	if st.db != nil {
		if err := st.db.Close(); err != nil {
			mainLogger.WithError(err).Error("Failed to close database")
		}
	}
	mainLogger.Info("Application shut down gracefully")
}

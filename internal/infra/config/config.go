package config

import (
	"fmt"
	"os"
	"strconv"
	"strings" // For LogLevel normalization
	"time"

	"github.com/joho/godotenv"
)

const (
	StorageDriverPostgres = "postgres"
	StorageDriverMemory   = "memory"
)

// AppConfig holds all configuration for the application
type AppConfig struct {
	TelegramToken    string // empty means dry-run: reminders are logged, not sent
	StorageDriver    string
	DatabaseURL      string
	AdminTelegramIDs []int64
	LogLevel         string
	Environment      string

	TimeZone       string
	Delay          time.Duration
	RepeatInterval time.Duration
	TTL            time.Duration
	MaxRepeats     int // 0 means unlimited until TTL
	QuietStart     string
	QuietEnd       string

	PollInterval       time.Duration
	SendTimeout        time.Duration
	WorkerConcurrency  int
	TelegramRatePerSec float64

	HTTPAddr             string
	PyrusWebhookSecret   string
	WebhookSkipSignature bool

	TaskURLBase       string
	TruncTaskTitleLen int
	TruncCommentLen   int

	ProcessedRetention time.Duration
	LogsRetention      time.Duration
	CronSpecCleanup    string
}

// DryRun reports whether reminders are only logged.
func (c *AppConfig) DryRun() bool {
	return c.TelegramToken == ""
}

// Load reads configuration from environment variables and .env file (if present).
func Load() (*AppConfig, error) {
	// Attempt to load .env file. Errors are ignored if the file doesn't exist.
	// godotenv.Load will not override existing env variables.
	_ = godotenv.Load()

	cfg := &AppConfig{}
	var err error

	cfg.TelegramToken = os.Getenv("TELEGRAM_TOKEN")

	cfg.StorageDriver = strings.ToLower(getEnv("STORAGE_DRIVER", StorageDriverPostgres))
	switch cfg.StorageDriver {
	case StorageDriverPostgres:
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is not set")
		}
	case StorageDriverMemory:
	default:
		return nil, fmt.Errorf("invalid STORAGE_DRIVER %q: want %s or %s", cfg.StorageDriver, StorageDriverPostgres, StorageDriverMemory)
	}

	cfg.AdminTelegramIDs, err = parseIDList(os.Getenv("ADMIN_TELEGRAM_IDS"))
	if err != nil {
		return nil, fmt.Errorf("invalid ADMIN_TELEGRAM_IDS: %w", err)
	}

	cfg.LogLevel = strings.ToLower(getEnv("LOG_LEVEL", "info"))
	cfg.Environment = strings.ToLower(getEnv("ENVIRONMENT", "development"))

	cfg.TimeZone = getEnv("TZ_NAME", "Asia/Yekaterinburg")
	if _, err = time.LoadLocation(cfg.TimeZone); err != nil {
		return nil, fmt.Errorf("invalid TZ_NAME: %w", err)
	}

	if cfg.Delay, err = getDuration("DELAY", 3*time.Hour); err != nil {
		return nil, err
	}
	if cfg.RepeatInterval, err = getDuration("REPEAT_INTERVAL", 3*time.Hour); err != nil {
		return nil, err
	}
	if cfg.TTL, err = getDuration("TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.MaxRepeats, err = getInt("MAX_REPEATS", 8); err != nil {
		return nil, err
	}
	if cfg.MaxRepeats < 0 {
		return nil, fmt.Errorf("MAX_REPEATS must not be negative")
	}
	cfg.QuietStart = getEnv("QUIET_START", "22:00")
	cfg.QuietEnd = getEnv("QUIET_END", "09:00")

	if cfg.PollInterval, err = getDuration("POLL_INTERVAL", 60*time.Second); err != nil {
		return nil, err
	}
	if cfg.SendTimeout, err = getDuration("SEND_TIMEOUT", 15*time.Second); err != nil {
		return nil, err
	}
	if cfg.WorkerConcurrency, err = getInt("WORKER_CONCURRENCY", 1); err != nil {
		return nil, err
	}
	if cfg.WorkerConcurrency < 1 {
		return nil, fmt.Errorf("WORKER_CONCURRENCY must be at least 1")
	}
	if cfg.TelegramRatePerSec, err = getFloat("TELEGRAM_RATE_PER_SEC", 25); err != nil {
		return nil, err
	}

	cfg.HTTPAddr = getEnv("HTTP_ADDR", ":8000")
	cfg.PyrusWebhookSecret = os.Getenv("PYRUS_WEBHOOK_SECRET")
	if cfg.WebhookSkipSignature, err = getBool("WEBHOOK_SKIP_SIGNATURE", false); err != nil {
		return nil, err
	}
	if cfg.PyrusWebhookSecret == "" && !cfg.WebhookSkipSignature {
		return nil, fmt.Errorf("PYRUS_WEBHOOK_SECRET is not set (set WEBHOOK_SKIP_SIGNATURE=true to accept unsigned webhooks)")
	}

	cfg.TaskURLBase = getEnv("TASK_URL_BASE", "https://pyrus.com/t#id")
	if cfg.TruncTaskTitleLen, err = getInt("TRUNC_TASK_TITLE_LEN", 50); err != nil {
		return nil, err
	}
	if cfg.TruncCommentLen, err = getInt("TRUNC_COMMENT_LEN", 50); err != nil {
		return nil, err
	}

	if cfg.ProcessedRetention, err = getDuration("PROCESSED_RETENTION", 7*24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.LogsRetention, err = getDuration("LOGS_RETENTION", 48*time.Hour); err != nil {
		return nil, err
	}
	cfg.CronSpecCleanup = getEnv("CRON_SPEC_CLEANUP", "0 3 * * *") // Default: 3 AM daily

	return cfg, nil
}

// Location returns the loaded TZ_NAME location.
func (c *AppConfig) Location() (*time.Location, error) {
	return time.LoadLocation(c.TimeZone)
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid %s: must not be negative", key)
	}
	return d, nil
}

func getInt(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getFloat(key string, def float64) (float64, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}

func getBool(key string, def bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func parseIDList(s string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Package eventlog keeps an operator-facing trail of what the bot did.
package eventlog

import (
	"context"
	"time"
)

const (
	EventNotifySent      = "notify_sent"
	EventNotifyFailed    = "notify_failed"
	EventNotifyExpired   = "notify_expired"
	EventNotifyDeferred  = "notify_deferred"
	EventNotifyDryRun    = "notify_dry_run"
	EventServiceEnabled  = "service_enabled"
	EventServiceDisabled = "service_disabled"
	EventRecipientLinked = "recipient_linked"
	EventLogsCleanup     = "logs_cleanup"
)

// Entry is one row of the 'logs' table.
type Entry struct {
	ID      int64
	Event   string
	Payload map[string]any
	TS      time.Time
}

// Repository stores log entries.
type Repository interface {
	Record(ctx context.Context, event string, payload map[string]any) error
	PruneBefore(ctx context.Context, before time.Time) (int64, error)
}

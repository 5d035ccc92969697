package database

import (
	"context"
	"database/sql"
	"fmt"
)

// schema is applied on startup; every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS recipients (
		user_id     BIGINT PRIMARY KEY,
		telegram_id BIGINT NOT NULL,
		full_name   TEXT,
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT recipients_telegram_id_key UNIQUE (telegram_id)
	)`,
	`CREATE TABLE IF NOT EXISTS pending_notifications (
		task_id                   BIGINT NOT NULL,
		recipient_id              BIGINT NOT NULL,
		task_title                TEXT NOT NULL DEFAULT '',
		first_mention_at          TIMESTAMPTZ NOT NULL,
		last_mention_at           TIMESTAMPTZ NOT NULL,
		last_mention_comment_id   BIGINT NOT NULL,
		last_mention_comment_text TEXT NOT NULL DEFAULT '',
		next_send_at              TIMESTAMPTZ NOT NULL,
		times_sent                INTEGER NOT NULL DEFAULT 0,
		created_at                TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at                TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (task_id, recipient_id)
	)`,
	`CREATE INDEX IF NOT EXISTS pending_notifications_due_idx
		ON pending_notifications (next_send_at, task_id, recipient_id)`,
	`CREATE INDEX IF NOT EXISTS pending_notifications_first_mention_idx
		ON pending_notifications (first_mention_at)`,
	`CREATE TABLE IF NOT EXISTS processed_comments (
		task_id      BIGINT NOT NULL,
		comment_id   BIGINT NOT NULL,
		processed_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (task_id, comment_id)
	)`,
	`CREATE INDEX IF NOT EXISTS processed_comments_processed_at_idx
		ON processed_comments (processed_at)`,
	`CREATE TABLE IF NOT EXISTS settings (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS logs (
		id      BIGSERIAL PRIMARY KEY,
		event   TEXT NOT NULL,
		payload JSONB NOT NULL DEFAULT '{}'::jsonb,
		ts      TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS logs_ts_idx ON logs (ts)`,
}

// Migrate creates the tables the bot needs if they are missing.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement %d: %w", i, err)
		}
	}
	return nil
}

// internal/infra/database/postgres_notification_repository.go
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"pyrus_reminder_bot/internal/domain/notification"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const pendingColumns = `task_id, recipient_id, task_title, first_mention_at, last_mention_at,
	last_mention_comment_id, last_mention_comment_text, next_send_at, times_sent, created_at, updated_at`

// PostgresNotificationRepository implements notification.Store on top of
// pending_notifications and processed_comments.
type PostgresNotificationRepository struct {
	db *sql.DB
}

func NewPostgresNotificationRepository(db *sql.DB) *PostgresNotificationRepository {
	return &PostgresNotificationRepository{db: db}
}

// --- ProcessedComment Methods ---

func admit(ctx context.Context, q querier, taskID, commentID int64, processedAt time.Time) (bool, error) {
	query := `INSERT INTO processed_comments (task_id, comment_id, processed_at)
               VALUES ($1, $2, $3)
               ON CONFLICT (task_id, comment_id) DO NOTHING`
	res, err := q.ExecContext(ctx, query, taskID, commentID, processedAt)
	if err != nil {
		return false, fmt.Errorf("error recording processed comment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("error reading rows affected for processed comment: %w", err)
	}
	return n == 1, nil
}

func (r *PostgresNotificationRepository) Admit(ctx context.Context, taskID, commentID int64, processedAt time.Time) (bool, error) {
	return admit(ctx, r.db, taskID, commentID, processedAt)
}

func (r *PostgresNotificationRepository) PruneProcessed(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM processed_comments WHERE processed_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("error pruning processed comments: %w", err)
	}
	return res.RowsAffected()
}

// --- PendingNotification Methods ---

// merge relies on ON CONFLICT so concurrent mentions of the same pair cannot both insert.
// next_send_at, times_sent and first_mention_at are only written on insert.
func merge(ctx context.Context, q querier, m notification.MentionEvent, nextSendAt time.Time) (bool, error) {
	query := `INSERT INTO pending_notifications (task_id, recipient_id, task_title, first_mention_at, last_mention_at,
                   last_mention_comment_id, last_mention_comment_text, next_send_at, times_sent)
               VALUES ($1, $2, $3, $4, $4, $5, $6, $7, 0)
               ON CONFLICT (task_id, recipient_id) DO UPDATE SET
                   last_mention_at = EXCLUDED.last_mention_at,
                   last_mention_comment_id = EXCLUDED.last_mention_comment_id,
                   last_mention_comment_text = EXCLUDED.last_mention_comment_text,
                   task_title = COALESCE(NULLIF(EXCLUDED.task_title, ''), pending_notifications.task_title),
                   updated_at = NOW()
               RETURNING (xmax = 0) AS inserted`
	var inserted bool
	err := q.QueryRowContext(ctx, query, m.TaskID, m.RecipientID, m.TaskTitle, m.OccurredAt,
		m.CommentID, m.CommentText, nextSendAt).Scan(&inserted)
	if err != nil {
		return false, fmt.Errorf("error merging pending notification (T:%d, R:%d): %w", m.TaskID, m.RecipientID, err)
	}
	return inserted, nil
}

func (r *PostgresNotificationRepository) Merge(ctx context.Context, m notification.MentionEvent, nextSendAt time.Time) (bool, error) {
	return merge(ctx, r.db, m, nextSendAt)
}

func deletePending(ctx context.Context, q querier, key notification.Key) (bool, error) {
	res, err := q.ExecContext(ctx, `DELETE FROM pending_notifications WHERE task_id = $1 AND recipient_id = $2`,
		key.TaskID, key.RecipientID)
	if err != nil {
		return false, fmt.Errorf("error deleting pending notification (T:%d, R:%d): %w", key.TaskID, key.RecipientID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("error reading rows affected for delete: %w", err)
	}
	return n > 0, nil
}

func (r *PostgresNotificationRepository) Delete(ctx context.Context, key notification.Key) (bool, error) {
	return deletePending(ctx, r.db, key)
}

func (r *PostgresNotificationRepository) DeleteByTask(ctx context.Context, taskID int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM pending_notifications WHERE task_id = $1`, taskID)
	if err != nil {
		return 0, fmt.Errorf("error deleting pending notifications for task %d: %w", taskID, err)
	}
	return res.RowsAffected()
}

func scanPending(row interface{ Scan(dest ...any) error }) (*notification.Pending, error) {
	p := &notification.Pending{}
	err := row.Scan(
		&p.TaskID, &p.RecipientID, &p.TaskTitle, &p.FirstMentionAt, &p.LastMentionAt,
		&p.LastMentionCommentID, &p.LastMentionCommentText, &p.NextSendAt, &p.TimesSent,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Helper to scan multiple rows
func scanPendingRows(rows *sql.Rows) ([]*notification.Pending, error) {
	out := make([]*notification.Pending, 0)
	for rows.Next() {
		p, err := scanPending(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning pending notification row: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pending notification rows: %w", err)
	}
	return out, nil
}

func (r *PostgresNotificationRepository) Get(ctx context.Context, key notification.Key) (*notification.Pending, error) {
	query := `SELECT ` + pendingColumns + ` FROM pending_notifications WHERE task_id = $1 AND recipient_id = $2`
	p, err := scanPending(r.db.QueryRowContext(ctx, query, key.TaskID, key.RecipientID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notification.ErrNotFound
		}
		return nil, fmt.Errorf("error getting pending notification: %w", err)
	}
	return p, nil
}

func (r *PostgresNotificationRepository) ListDue(ctx context.Context, now, expiredBefore time.Time) ([]*notification.Pending, error) {
	query := `SELECT ` + pendingColumns + `
               FROM pending_notifications
               WHERE next_send_at <= $1 OR first_mention_at <= $2
               ORDER BY next_send_at ASC, task_id ASC, recipient_id ASC`
	rows, err := r.db.QueryContext(ctx, query, now, expiredBefore)
	if err != nil {
		return nil, fmt.Errorf("error querying due pending notifications: %w", err)
	}
	defer rows.Close()
	return scanPendingRows(rows)
}

func (r *PostgresNotificationRepository) List(ctx context.Context) ([]*notification.Pending, error) {
	query := `SELECT ` + pendingColumns + `
               FROM pending_notifications
               ORDER BY next_send_at ASC, task_id ASC, recipient_id ASC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error listing pending notifications: %w", err)
	}
	defer rows.Close()
	return scanPendingRows(rows)
}

// WithLockedRow holds SELECT ... FOR UPDATE for the duration of fn, so a concurrent
// cancellation DELETE waits until the decision is committed.
func (r *PostgresNotificationRepository) WithLockedRow(ctx context.Context, key notification.Key, fn func(p *notification.Pending) (notification.Action, error)) error {
	txn, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction for row lock: %w", err)
	}
	defer txn.Rollback() // Rollback if not committed

	query := `SELECT ` + pendingColumns + `
               FROM pending_notifications
               WHERE task_id = $1 AND recipient_id = $2
               FOR UPDATE`
	p, err := scanPending(txn.QueryRowContext(ctx, query, key.TaskID, key.RecipientID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return notification.ErrNotFound
		}
		return fmt.Errorf("error locking pending notification (T:%d, R:%d): %w", key.TaskID, key.RecipientID, err)
	}

	action, err := fn(p)
	if err != nil {
		return err
	}

	switch action {
	case notification.ActionUpdate:
		_, err = txn.ExecContext(ctx, `UPDATE pending_notifications
               SET next_send_at = $1, times_sent = $2, updated_at = NOW()
               WHERE task_id = $3 AND recipient_id = $4`,
			p.NextSendAt, p.TimesSent, key.TaskID, key.RecipientID)
	case notification.ActionDelete:
		_, err = txn.ExecContext(ctx, `DELETE FROM pending_notifications WHERE task_id = $1 AND recipient_id = $2`,
			key.TaskID, key.RecipientID)
	case notification.ActionKeep:
		return nil
	}
	if err != nil {
		return fmt.Errorf("error applying %s to pending notification (T:%d, R:%d): %w", action, key.TaskID, key.RecipientID, err)
	}
	return txn.Commit()
}

// --- Transactions ---

type postgresTx struct {
	txn *sql.Tx
}

func (t *postgresTx) Admit(ctx context.Context, taskID, commentID int64, processedAt time.Time) (bool, error) {
	return admit(ctx, t.txn, taskID, commentID, processedAt)
}

func (t *postgresTx) Merge(ctx context.Context, m notification.MentionEvent, nextSendAt time.Time) (bool, error) {
	return merge(ctx, t.txn, m, nextSendAt)
}

func (t *postgresTx) Delete(ctx context.Context, key notification.Key) (bool, error) {
	return deletePending(ctx, t.txn, key)
}

func (r *PostgresNotificationRepository) WithinTx(ctx context.Context, fn func(tx notification.Tx) error) error {
	txn, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer txn.Rollback() // Rollback if not committed

	if err := fn(&postgresTx{txn: txn}); err != nil {
		return err
	}
	if err := txn.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

var _ notification.Store = (*PostgresNotificationRepository)(nil)

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"pyrus_reminder_bot/internal/domain/recipient"
)

type PostgresRecipientRepository struct {
	db *sql.DB
}

func NewPostgresRecipientRepository(db *sql.DB) *PostgresRecipientRepository {
	return &PostgresRecipientRepository{db: db}
}

func (r *PostgresRecipientRepository) GetByID(ctx context.Context, id int64) (*recipient.Recipient, error) {
	query := `SELECT user_id, telegram_id, full_name, updated_at FROM recipients WHERE user_id = $1`
	rec := &recipient.Recipient{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(&rec.ID, &rec.TelegramID, &rec.FullName, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, recipient.ErrNotFound
		}
		return nil, fmt.Errorf("error getting recipient by ID: %w", err)
	}
	return rec, nil
}

func (r *PostgresRecipientRepository) GetByTelegramID(ctx context.Context, telegramID int64) (*recipient.Recipient, error) {
	query := `SELECT user_id, telegram_id, full_name, updated_at FROM recipients WHERE telegram_id = $1`
	rec := &recipient.Recipient{}
	err := r.db.QueryRowContext(ctx, query, telegramID).Scan(&rec.ID, &rec.TelegramID, &rec.FullName, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, recipient.ErrNotFound
		}
		return nil, fmt.Errorf("error getting recipient by Telegram ID: %w", err)
	}
	return rec, nil
}

func (r *PostgresRecipientRepository) Upsert(ctx context.Context, rec *recipient.Recipient) error {
	query := `INSERT INTO recipients (user_id, telegram_id, full_name, updated_at)
               VALUES ($1, $2, $3, NOW())
               ON CONFLICT (user_id) DO UPDATE SET
                   telegram_id = EXCLUDED.telegram_id,
                   full_name = COALESCE(EXCLUDED.full_name, recipients.full_name),
                   updated_at = NOW()
               WHERE recipients.telegram_id = EXCLUDED.telegram_id
               RETURNING updated_at`
	err := r.db.QueryRowContext(ctx, query, rec.ID, rec.TelegramID, rec.FullName).Scan(&rec.UpdatedAt)
	if err != nil {
		// the conflict update is skipped when the user is bound to another chat
		if errors.Is(err, sql.ErrNoRows) {
			return recipient.ErrUserAlreadyLinked
		}
		if isUniqueViolation(err, "recipients_telegram_id_key") {
			return recipient.ErrTelegramIDTaken
		}
		return fmt.Errorf("error upserting recipient: %w", err)
	}
	return nil
}

func (r *PostgresRecipientRepository) ListAll(ctx context.Context) ([]*recipient.Recipient, error) {
	query := `SELECT user_id, telegram_id, full_name, updated_at FROM recipients ORDER BY user_id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error listing recipients: %w", err)
	}
	defer rows.Close()

	recipients := make([]*recipient.Recipient, 0)
	for rows.Next() {
		rec := &recipient.Recipient{}
		if err := rows.Scan(&rec.ID, &rec.TelegramID, &rec.FullName, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("error scanning recipient: %w", err)
		}
		recipients = append(recipients, rec)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating recipients: %w", err)
	}
	return recipients, nil
}

package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

type PostgresEventLogRepository struct {
	db *sql.DB
}

func NewPostgresEventLogRepository(db *sql.DB) *PostgresEventLogRepository {
	return &PostgresEventLogRepository{db: db}
}

func (r *PostgresEventLogRepository) Record(ctx context.Context, event string, payload map[string]any) error {
	if payload == nil {
		payload = map[string]any{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("error encoding payload for event %s: %w", event, err)
	}
	if _, err := r.db.ExecContext(ctx, `INSERT INTO logs (event, payload) VALUES ($1, $2::jsonb)`, event, string(raw)); err != nil {
		return fmt.Errorf("error recording event %s: %w", event, err)
	}
	return nil
}

func (r *PostgresEventLogRepository) PruneBefore(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM logs WHERE ts < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("error pruning logs: %w", err)
	}
	return res.RowsAffected()
}

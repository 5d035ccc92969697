// internal/domain/notification/repository.go
package notification

import (
	"context"
	"time"
)

// Guard records which (task, comment) pairs were already folded into the queue.
type Guard interface {
	// Admit returns true and records the pair on the first call for it, false afterwards.
	// Check and record happen as one atomic step.
	Admit(ctx context.Context, taskID, commentID int64, processedAt time.Time) (bool, error)
	// PruneProcessed deletes markers older than before.
	PruneProcessed(ctx context.Context, before time.Time) (int64, error)
}

// Queue is the table of pending deliveries keyed by (task, recipient).
type Queue interface {
	// Merge creates the row for m.Key() with the given nextSendAt, or folds m into the
	// existing row without touching its timing. created reports which happened.
	Merge(ctx context.Context, m MentionEvent, nextSendAt time.Time) (created bool, err error)
	// Delete removes one row. Deleting a missing row is not an error.
	Delete(ctx context.Context, key Key) (bool, error)
	// DeleteByTask removes every row of a task and returns how many went away.
	DeleteByTask(ctx context.Context, taskID int64) (int64, error)
	Get(ctx context.Context, key Key) (*Pending, error)
	// ListDue returns rows with NextSendAt <= now, plus rows whose cycle started at or
	// before expiredBefore, ordered by next_send_at, task_id, recipient_id.
	ListDue(ctx context.Context, now, expiredBefore time.Time) ([]*Pending, error)
	List(ctx context.Context) ([]*Pending, error)
	// WithLockedRow re-reads the row under a row lock and applies the Action fn returns
	// before releasing it. Returns ErrNotFound when the row is gone.
	WithLockedRow(ctx context.Context, key Key, fn func(p *Pending) (Action, error)) error
}

// Tx is the subset of Guard and Queue bound to one transaction.
type Tx interface {
	Admit(ctx context.Context, taskID, commentID int64, processedAt time.Time) (bool, error)
	Merge(ctx context.Context, m MentionEvent, nextSendAt time.Time) (bool, error)
	Delete(ctx context.Context, key Key) (bool, error)
}

// Store is the queue and the guard backed by the same storage.
type Store interface {
	Guard
	Queue
	// WithinTx runs fn in one transaction; any error rolls back everything fn did.
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
}

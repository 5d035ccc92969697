// Package memstore keeps the notification queue, idempotency markers, settings,
// recipients and the event log in process memory. It backs STORAGE_DRIVER=memory.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"pyrus_reminder_bot/internal/domain/notification"
)

type commentKey struct {
	taskID    int64
	commentID int64
}

// Store implements notification.Store.
//
// Lock order: txMu, then a row lock, then mu.
type Store struct {
	txMu sync.Mutex // serializes WithinTx and direct Admit calls

	rowMu    sync.Mutex
	rowLocks map[notification.Key]*sync.Mutex

	mu        sync.Mutex
	pending   map[notification.Key]*notification.Pending
	processed map[commentKey]time.Time

	now func() time.Time
}

func New() *Store {
	return &Store{
		rowLocks:  make(map[notification.Key]*sync.Mutex),
		pending:   make(map[notification.Key]*notification.Pending),
		processed: make(map[commentKey]time.Time),
		now:       time.Now,
	}
}

func (s *Store) rowLock(key notification.Key) *sync.Mutex {
	s.rowMu.Lock()
	defer s.rowMu.Unlock()
	l, ok := s.rowLocks[key]
	if !ok {
		l = &sync.Mutex{}
		s.rowLocks[key] = l
	}
	return l
}

func clone(p *notification.Pending) *notification.Pending {
	c := *p
	return &c
}

// --- Guard ---

func (s *Store) Admit(ctx context.Context, taskID, commentID int64, processedAt time.Time) (bool, error) {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return s.admit(ctx, taskID, commentID, processedAt)
}

func (s *Store) admit(ctx context.Context, taskID, commentID int64, processedAt time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	k := commentKey{taskID: taskID, commentID: commentID}
	if _, ok := s.processed[k]; ok {
		return false, nil
	}
	s.processed[k] = processedAt
	return true, nil
}

func (s *Store) PruneProcessed(ctx context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k, at := range s.processed {
		if at.Before(before) {
			delete(s.processed, k)
			n++
		}
	}
	return n, nil
}

// --- Queue ---

func (s *Store) Merge(ctx context.Context, m notification.MentionEvent, nextSendAt time.Time) (bool, error) {
	created, _, err := s.merge(ctx, m, nextSendAt)
	return created, err
}

// merge returns the previous row (nil when created) so a transaction can undo it.
func (s *Store) merge(ctx context.Context, m notification.MentionEvent, nextSendAt time.Time) (bool, *notification.Pending, error) {
	if err := ctx.Err(); err != nil {
		return false, nil, err
	}
	l := s.rowLock(m.Key())
	l.Lock()
	defer l.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if p, ok := s.pending[m.Key()]; ok {
		prev := clone(p)
		p.ApplyMention(m)
		p.UpdatedAt = now
		return false, prev, nil
	}
	p := notification.NewPending(m, nextSendAt)
	p.CreatedAt, p.UpdatedAt = now, now
	s.pending[m.Key()] = p
	return true, nil, nil
}

func (s *Store) Delete(ctx context.Context, key notification.Key) (bool, error) {
	prev, err := s.remove(ctx, key)
	return prev != nil, err
}

// remove deletes the row after any worker holding its lock is done and returns it.
func (s *Store) remove(ctx context.Context, key notification.Key) (*notification.Pending, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l := s.rowLock(key)
	l.Lock()
	defer l.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending[key]
	if !ok {
		return nil, nil
	}
	delete(s.pending, key)
	return p, nil
}

func (s *Store) DeleteByTask(ctx context.Context, taskID int64) (int64, error) {
	s.mu.Lock()
	var keys []notification.Key
	for k := range s.pending {
		if k.TaskID == taskID {
			keys = append(keys, k)
		}
	}
	s.mu.Unlock()
	sort.Slice(keys, func(i, j int) bool { return keys[i].RecipientID < keys[j].RecipientID })

	var n int64
	for _, k := range keys {
		deleted, err := s.Delete(ctx, k)
		if err != nil {
			return n, err
		}
		if deleted {
			n++
		}
	}
	return n, nil
}

func (s *Store) Get(ctx context.Context, key notification.Key) (*notification.Pending, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending[key]
	if !ok {
		return nil, notification.ErrNotFound
	}
	return clone(p), nil
}

func (s *Store) ListDue(ctx context.Context, now, expiredBefore time.Time) ([]*notification.Pending, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	due := make([]*notification.Pending, 0)
	for _, p := range s.pending {
		if !p.NextSendAt.After(now) || !p.FirstMentionAt.After(expiredBefore) {
			due = append(due, clone(p))
		}
	}
	sortPending(due)
	return due, nil
}

func (s *Store) List(ctx context.Context) ([]*notification.Pending, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := make([]*notification.Pending, 0, len(s.pending))
	for _, p := range s.pending {
		all = append(all, clone(p))
	}
	sortPending(all)
	return all, nil
}

func sortPending(rows []*notification.Pending) {
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if !a.NextSendAt.Equal(b.NextSendAt) {
			return a.NextSendAt.Before(b.NextSendAt)
		}
		if a.TaskID != b.TaskID {
			return a.TaskID < b.TaskID
		}
		return a.RecipientID < b.RecipientID
	})
}

func (s *Store) WithLockedRow(ctx context.Context, key notification.Key, fn func(p *notification.Pending) (notification.Action, error)) error {
	l := s.rowLock(key)
	l.Lock()
	defer l.Unlock()

	s.mu.Lock()
	p, ok := s.pending[key]
	if !ok {
		s.mu.Unlock()
		return notification.ErrNotFound
	}
	row := clone(p)
	s.mu.Unlock()

	action, err := fn(row)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	switch action {
	case notification.ActionUpdate:
		cur, ok := s.pending[key]
		if !ok {
			return notification.ErrNotFound
		}
		cur.NextSendAt = row.NextSendAt
		cur.TimesSent = row.TimesSent
		cur.UpdatedAt = s.now()
	case notification.ActionDelete:
		delete(s.pending, key)
	}
	return nil
}

// --- Transactions ---

type memTx struct {
	s    *Store
	undo []func()
}

func (t *memTx) Admit(ctx context.Context, taskID, commentID int64, processedAt time.Time) (bool, error) {
	ok, err := t.s.admit(ctx, taskID, commentID, processedAt)
	if ok {
		k := commentKey{taskID: taskID, commentID: commentID}
		t.undo = append(t.undo, func() { delete(t.s.processed, k) })
	}
	return ok, err
}

func (t *memTx) Merge(ctx context.Context, m notification.MentionEvent, nextSendAt time.Time) (bool, error) {
	created, prev, err := t.s.merge(ctx, m, nextSendAt)
	if err != nil {
		return false, err
	}
	key := m.Key()
	if created {
		t.undo = append(t.undo, func() { delete(t.s.pending, key) })
	} else {
		// Only the mention fields are ours; timing may have moved since.
		t.undo = append(t.undo, func() {
			if cur, ok := t.s.pending[key]; ok {
				cur.TaskTitle = prev.TaskTitle
				cur.LastMentionAt = prev.LastMentionAt
				cur.LastMentionCommentID = prev.LastMentionCommentID
				cur.LastMentionCommentText = prev.LastMentionCommentText
			}
		})
	}
	return created, nil
}

func (t *memTx) Delete(ctx context.Context, key notification.Key) (bool, error) {
	prev, err := t.s.remove(ctx, key)
	if err != nil || prev == nil {
		return false, err
	}
	t.undo = append(t.undo, func() {
		if _, ok := t.s.pending[key]; !ok {
			t.s.pending[key] = prev
		}
	})
	return true, nil
}

// WithinTx runs fn with all other transactions excluded and undoes its writes on error.
func (s *Store) WithinTx(ctx context.Context, fn func(tx notification.Tx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	tx := &memTx{s: s}
	if err := fn(tx); err != nil {
		s.mu.Lock()
		for i := len(tx.undo) - 1; i >= 0; i-- {
			tx.undo[i]()
		}
		s.mu.Unlock()
		return err
	}
	return nil
}

var _ notification.Store = (*Store)(nil)

package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"pyrus_reminder_bot/internal/domain/eventlog"
	"pyrus_reminder_bot/internal/domain/recipient"
)

// Recipients implements recipient.Repository.
type Recipients struct {
	mu   sync.RWMutex
	byID map[int64]*recipient.Recipient
}

func NewRecipients() *Recipients {
	return &Recipients{byID: make(map[int64]*recipient.Recipient)}
}

func (r *Recipients) GetByID(ctx context.Context, id int64) (*recipient.Recipient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.byID[id]
	if !ok {
		return nil, recipient.ErrNotFound
	}
	c := *rec
	return &c, nil
}

func (r *Recipients) GetByTelegramID(ctx context.Context, telegramID int64) (*recipient.Recipient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rec := range r.byID {
		if rec.TelegramID == telegramID {
			c := *rec
			return &c, nil
		}
	}
	return nil, recipient.ErrNotFound
}

func (r *Recipients) Upsert(ctx context.Context, rec *recipient.Recipient) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.byID[rec.ID]; ok {
		if cur.TelegramID != rec.TelegramID {
			return recipient.ErrUserAlreadyLinked
		}
		if !rec.FullName.Valid {
			rec.FullName = cur.FullName
		}
	}
	for id, other := range r.byID {
		if id != rec.ID && other.TelegramID == rec.TelegramID {
			return recipient.ErrTelegramIDTaken
		}
	}
	rec.UpdatedAt = time.Now()
	c := *rec
	r.byID[rec.ID] = &c
	return nil
}

func (r *Recipients) ListAll(ctx context.Context) ([]*recipient.Recipient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*recipient.Recipient, 0, len(r.byID))
	for _, rec := range r.byID {
		c := *rec
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Settings implements settings.Repository.
type Settings struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewSettings() *Settings {
	return &Settings{values: make(map[string]string)}
}

func (s *Settings) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *Settings) Set(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

// EventLog implements eventlog.Repository.
type EventLog struct {
	mu      sync.Mutex
	entries []eventlog.Entry
	now     func() time.Time
}

func NewEventLog() *EventLog {
	return &EventLog{now: time.Now}
}

func (l *EventLog) Record(ctx context.Context, event string, payload map[string]any) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, eventlog.Entry{
		ID:      int64(len(l.entries) + 1),
		Event:   event,
		Payload: payload,
		TS:      l.now(),
	})
	return nil
}

func (l *EventLog) PruneBefore(ctx context.Context, before time.Time) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kept := l.entries[:0]
	var n int64
	for _, e := range l.entries {
		if e.TS.Before(before) {
			n++
			continue
		}
		kept = append(kept, e)
	}
	l.entries = kept
	return n, nil
}

// Entries returns a copy of the log, optionally filtered by event name.
func (l *EventLog) Entries(event string) []eventlog.Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]eventlog.Entry, 0, len(l.entries))
	for _, e := range l.entries {
		if event == "" || e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

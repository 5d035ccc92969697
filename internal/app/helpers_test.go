package app

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"pyrus_reminder_bot/internal/domain/notification"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

var t0 = time.Date(2025, time.March, 10, 10, 0, 0, 0, time.UTC)

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

// fakeClock is a settable time source shared by services under test.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type sentMessage struct {
	ChatID int64
	Text   string
	Opts   *telebot.SendOptions
}

// fakeSender records messages. Err, when set, fails every send; OnSend runs before recording.
type fakeSender struct {
	mu     sync.Mutex
	sent   []sentMessage
	Err    error
	OnSend func(ctx context.Context, chatID int64)
}

func (f *fakeSender) SendMessage(ctx context.Context, chatID int64, text string, opts *telebot.SendOptions) error {
	if f.OnSend != nil {
		f.OnSend(ctx, chatID)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.sent = append(f.sent, sentMessage{ChatID: chatID, Text: text, Opts: opts})
	return nil
}

func (f *fakeSender) Sent() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

var errBoom = errors.New("boom")

// failingStore fails every write of the wrapped store.
type failingStore struct {
	notification.Store
}

func (failingStore) Delete(ctx context.Context, key notification.Key) (bool, error) {
	return false, errBoom
}

func (failingStore) DeleteByTask(ctx context.Context, taskID int64) (int64, error) {
	return 0, errBoom
}

func (f failingStore) WithinTx(ctx context.Context, fn func(tx notification.Tx) error) error {
	return f.Store.WithinTx(ctx, func(tx notification.Tx) error {
		return fn(failingTx{tx})
	})
}

type failingTx struct {
	notification.Tx
}

func (failingTx) Merge(ctx context.Context, m notification.MentionEvent, nextSendAt time.Time) (bool, error) {
	return false, errBoom
}

// flakyDeleteStore fails the first transactional Delete, then behaves normally.
type flakyDeleteStore struct {
	notification.Store
	mu       sync.Mutex
	failures int
}

func (f *flakyDeleteStore) WithinTx(ctx context.Context, fn func(tx notification.Tx) error) error {
	return f.Store.WithinTx(ctx, func(tx notification.Tx) error {
		return fn(flakyDeleteTx{Tx: tx, store: f})
	})
}

func (f *flakyDeleteStore) fail() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return true
	}
	return false
}

type flakyDeleteTx struct {
	notification.Tx
	store *flakyDeleteStore
}

func (t flakyDeleteTx) Delete(ctx context.Context, key notification.Key) (bool, error) {
	if t.store.fail() {
		return false, errBoom
	}
	return t.Tx.Delete(ctx, key)
}

func mentionOf(task, recipient, comment int64, at time.Time) notification.MentionEvent {
	return notification.MentionEvent{
		TaskID:      task,
		TaskTitle:   "Task",
		RecipientID: recipient,
		CommentID:   comment,
		CommentText: "@someone ping",
		OccurredAt:  at,
		AuthorID:    99,
	}
}

package telegram

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"testing"
	"time"

	"pyrus_reminder_bot/internal/app"
	"pyrus_reminder_bot/internal/domain/notification"
	"pyrus_reminder_bot/internal/domain/recipient"
	"pyrus_reminder_bot/internal/infra/memstore"

	"github.com/sirupsen/logrus"
)

type stubCanceller struct {
	removed bool
	err     error
	got     []notification.ReactionEvent
}

func (s *stubCanceller) Cancel(ctx context.Context, r notification.ReactionEvent) (bool, error) {
	s.got = append(s.got, r)
	return s.removed, s.err
}

func TestHandleAck(t *testing.T) {
	l := logrus.New()
	l.SetOutput(io.Discard)
	logger := logrus.NewEntry(l)

	ctx := context.Background()
	recipients := memstore.NewRecipients()
	if err := recipients.Upsert(ctx, &recipient.Recipient{ID: 7, TelegramID: 700, FullName: sql.NullString{String: "Ivan", Valid: true}}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	data := app.AckCallbackData(notification.Key{TaskID: 100, RecipientID: 7})

	tests := []struct {
		name       string
		sender     int64
		data       string
		canceller  *stubCanceller
		want       string
		wantCancel bool
	}{
		{"owner acks", 700, data, &stubCanceller{removed: true}, msgAckAccepted, true},
		{"already gone", 700, data, &stubCanceller{}, msgAckClosed, true},
		{"cancel fails", 700, data, &stubCanceller{err: errors.New("db down")}, msgAckError, true},
		{"unlinked chat", 800, data, &stubCanceller{removed: true}, msgAckUnlinked, false},
		{"garbage data", 700, "oops", &stubCanceller{removed: true}, msgAckError, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := HandleAck(ctx, tt.sender, tt.data, tt.canceller, recipients, logger)
			if got != tt.want {
				t.Errorf("reply = %q, want %q", got, tt.want)
			}
			if called := len(tt.canceller.got) > 0; called != tt.wantCancel {
				t.Errorf("cancel called = %v, want %v", called, tt.wantCancel)
			}
			if tt.wantCancel && tt.canceller.got[0] != (notification.ReactionEvent{TaskID: 100, RecipientID: 7}) {
				t.Errorf("cancelled %+v", tt.canceller.got[0])
			}
		})
	}

	other := app.AckCallbackData(notification.Key{TaskID: 100, RecipientID: 9})
	if got := HandleAck(ctx, 700, other, &stubCanceller{removed: true}, recipients, logger); got != msgAckNotYours {
		t.Errorf("foreign reminder reply = %q, want %q", got, msgAckNotYours)
	}
}

func TestHandleAckRemovesQueuedRow(t *testing.T) {
	l := logrus.New()
	l.SetOutput(io.Discard)
	logger := logrus.NewEntry(l)
	ctx := context.Background()

	store := memstore.New()
	at := time.Date(2025, time.March, 10, 10, 0, 0, 0, time.UTC)
	m := notification.MentionEvent{TaskID: 100, RecipientID: 7, CommentID: 1, OccurredAt: at}
	if _, err := store.Merge(ctx, m, at.Add(3*time.Hour)); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	recipients := memstore.NewRecipients()
	if err := recipients.Upsert(ctx, &recipient.Recipient{ID: 7, TelegramID: 700}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	ingest := app.NewIngestService(store, 3*time.Hour, logger)

	data := app.AckCallbackData(m.Key())
	if got := HandleAck(ctx, 700, data, ingest, recipients, logger); got != msgAckAccepted {
		t.Fatalf("reply = %q", got)
	}
	if _, err := store.Get(ctx, m.Key()); !errors.Is(err, notification.ErrNotFound) {
		t.Errorf("Get after ack: err = %v, want ErrNotFound", err)
	}
	if got := HandleAck(ctx, 700, data, ingest, recipients, logger); got != msgAckClosed {
		t.Errorf("second ack reply = %q, want %q", got, msgAckClosed)
	}
}

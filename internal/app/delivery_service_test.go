package app

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"pyrus_reminder_bot/internal/domain/eventlog"
	"pyrus_reminder_bot/internal/domain/notification"
	"pyrus_reminder_bot/internal/domain/quiethours"
	"pyrus_reminder_bot/internal/domain/recipient"
	"pyrus_reminder_bot/internal/domain/settings"
	"pyrus_reminder_bot/internal/infra/memstore"
)

type deliveryFixture struct {
	clock      *fakeClock
	store      *memstore.Store
	recipients *memstore.Recipients
	settings   *memstore.Settings
	events     *memstore.EventLog
	sender     *fakeSender
	ingest     *IngestService
	delivery   *DeliveryService
}

func defaultDeliveryConfig() DeliveryConfig {
	return DeliveryConfig{
		RepeatInterval: 3 * time.Hour,
		TTL:            24 * time.Hour,
		MaxRepeats:     8,
		SendTimeout:    time.Second,
		Concurrency:    4,
		Render: RenderOptions{
			TaskURLBase:     "https://pyrus.com/t#id",
			TaskTitleMaxLen: 50,
			CommentMaxLen:   50,
		},
	}
}

func newDeliveryFixture(t *testing.T, cfg DeliveryConfig) *deliveryFixture {
	t.Helper()
	ctx := context.Background()

	window, err := quiethours.New("22:00", "09:00", time.UTC)
	if err != nil {
		t.Fatalf("quiethours.New: %v", err)
	}

	f := &deliveryFixture{
		clock:      &fakeClock{now: t0},
		store:      memstore.New(),
		recipients: memstore.NewRecipients(),
		settings:   memstore.NewSettings(),
		events:     memstore.NewEventLog(),
		sender:     &fakeSender{},
	}
	f.ingest = newIngest(f.store)
	f.delivery = NewDeliveryService(f.store, f.recipients, f.settings, f.sender, f.events, window, cfg, testLogger())
	f.delivery.now = f.clock.Now

	for _, id := range []int64{1, 2} {
		if err := f.recipients.Upsert(ctx, &recipient.Recipient{ID: id, TelegramID: 1000 + id}); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}
	if err := settings.SetDeliveryEnabled(ctx, f.settings, true); err != nil {
		t.Fatalf("SetDeliveryEnabled: %v", err)
	}
	return f
}

func (f *deliveryFixture) mention(t *testing.T, task, recipientID, comment int64, at time.Time) {
	t.Helper()
	if _, err := f.ingest.Handle(context.Background(), []notification.Event{mentionOf(task, recipientID, comment, at)}); err != nil {
		t.Fatalf("mention: %v", err)
	}
}

func (f *deliveryFixture) tickAt(t *testing.T, at time.Time) TickResult {
	t.Helper()
	f.clock.Set(at)
	res, err := f.delivery.Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	return res
}

func (f *deliveryFixture) row(t *testing.T, task, recipientID int64) *notification.Pending {
	t.Helper()
	p, err := f.store.Get(context.Background(), notification.Key{TaskID: task, RecipientID: recipientID})
	if errors.Is(err, notification.ErrNotFound) {
		return nil
	}
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	return p
}

func TestEndToEndScenario(t *testing.T) {
	f := newDeliveryFixture(t, defaultDeliveryConfig())
	ctx := context.Background()

	f.mention(t, 100, 1, 7, t0)
	p := f.row(t, 100, 1)
	if p == nil || !p.NextSendAt.Equal(t0.Add(3*time.Hour)) {
		t.Fatalf("row after first mention = %+v, want next_send_at T+3h", p)
	}

	f.mention(t, 100, 1, 8, t0.Add(time.Hour))
	p = f.row(t, 100, 1)
	if p.LastMentionCommentID != 8 || !p.NextSendAt.Equal(t0.Add(3*time.Hour)) {
		t.Fatalf("row after second mention = %+v", p)
	}

	if res := f.tickAt(t, t0.Add(2*time.Hour)); res.Due != 0 {
		t.Fatalf("row due too early: %+v", res)
	}

	res := f.tickAt(t, t0.Add(3*time.Hour))
	if res.Outcomes[OutcomeSent] != 1 {
		t.Fatalf("tick at T+3h = %+v, want one send", res)
	}
	p = f.row(t, 100, 1)
	if p.TimesSent != 1 || !p.NextSendAt.Equal(t0.Add(6*time.Hour)) {
		t.Fatalf("row after send = %+v, want times_sent=1 next_send_at=T+6h", p)
	}
	sent := f.sender.Sent()
	if len(sent) != 1 || sent[0].ChatID != 1001 || !strings.Contains(sent[0].Text, "#id100") {
		t.Fatalf("sent = %+v", sent)
	}
	if sent[0].Opts == nil || sent[0].Opts.ReplyMarkup == nil {
		t.Errorf("reminder sent without ack button")
	}

	f.clock.Set(t0.Add(4 * time.Hour))
	if _, err := f.ingest.Handle(ctx, []notification.Event{notification.ReactionEvent{TaskID: 100, RecipientID: 1, CommentID: 9}}); err != nil {
		t.Fatalf("reaction: %v", err)
	}
	if f.row(t, 100, 1) != nil {
		t.Fatal("row survived the reaction")
	}

	f.tickAt(t, t0.Add(6*time.Hour))
	if n := len(f.sender.Sent()); n != 1 {
		t.Errorf("got %d sends, want 1", n)
	}
	if n := len(f.events.Entries(eventlog.EventNotifySent)); n != 1 {
		t.Errorf("got %d notify_sent entries, want 1", n)
	}
}

func TestTickDeliveryDisabled(t *testing.T) {
	f := newDeliveryFixture(t, defaultDeliveryConfig())
	ctx := context.Background()
	f.mention(t, 1, 1, 1, t0)

	if err := settings.SetDeliveryEnabled(ctx, f.settings, false); err != nil {
		t.Fatal(err)
	}
	res := f.tickAt(t, t0.Add(3*time.Hour))
	if !res.Disabled || len(f.sender.Sent()) != 0 {
		t.Fatalf("tick with delivery disabled = %+v, sends=%d", res, len(f.sender.Sent()))
	}
	if p := f.row(t, 1, 1); p.TimesSent != 0 || !p.NextSendAt.Equal(t0.Add(3*time.Hour)) {
		t.Errorf("row modified while disabled: %+v", p)
	}

	// a missing flag counts as disabled too
	f.delivery.settings = memstore.NewSettings()
	if res := f.tickAt(t, t0.Add(3*time.Hour)); !res.Disabled {
		t.Errorf("missing flag should disable delivery: %+v", res)
	}

	if err := settings.SetDeliveryEnabled(ctx, f.settings, true); err != nil {
		t.Fatal(err)
	}
	f.delivery.settings = f.settings
	if res := f.tickAt(t, t0.Add(3*time.Hour)); res.Outcomes[OutcomeSent] != 1 {
		t.Errorf("re-enabled tick = %+v, want one send", res)
	}
}

func TestTickExpiresRegardlessOfNextSendAt(t *testing.T) {
	f := newDeliveryFixture(t, defaultDeliveryConfig())
	ctx := context.Background()
	now := t0.Add(48 * time.Hour)

	m := mentionOf(1, 1, 1, now.Add(-24*time.Hour-time.Second))
	if _, err := f.store.Merge(ctx, m, now.Add(time.Hour)); err != nil {
		t.Fatal(err)
	}

	res := f.tickAt(t, now)
	if res.Outcomes[OutcomeExpired] != 1 {
		t.Fatalf("tick = %+v, want one expiry", res)
	}
	if f.row(t, 1, 1) != nil {
		t.Error("expired row still queued")
	}
	if len(f.sender.Sent()) != 0 {
		t.Error("expired row was sent")
	}
	if n := len(f.events.Entries(eventlog.EventNotifyExpired)); n != 1 {
		t.Errorf("got %d notify_expired entries, want 1", n)
	}
}

func TestTickDefersDuringQuietHours(t *testing.T) {
	f := newDeliveryFixture(t, defaultDeliveryConfig())
	evening := time.Date(2025, time.March, 10, 20, 0, 0, 0, time.UTC)
	f.mention(t, 1, 1, 1, evening)

	res := f.tickAt(t, evening.Add(3*time.Hour))
	if res.Outcomes[OutcomeDeferred] != 1 || len(f.sender.Sent()) != 0 {
		t.Fatalf("tick at 23:00 = %+v", res)
	}
	wantNext := time.Date(2025, time.March, 11, 9, 0, 0, 0, time.UTC)
	if p := f.row(t, 1, 1); !p.NextSendAt.Equal(wantNext) || p.TimesSent != 0 {
		t.Fatalf("deferred row = %+v, want next_send_at %s", p, wantNext)
	}

	if res := f.tickAt(t, wantNext.Add(-time.Minute)); res.Due != 0 {
		t.Fatalf("deferred row due before quiet hours end: %+v", res)
	}
	if res := f.tickAt(t, wantNext); res.Outcomes[OutcomeSent] != 1 {
		t.Fatalf("tick at 09:00 = %+v, want one send", res)
	}
}

func TestTickSendFailureKeepsRow(t *testing.T) {
	f := newDeliveryFixture(t, defaultDeliveryConfig())
	f.sender.Err = errors.New("telegram is down")
	f.mention(t, 1, 1, 1, t0)
	f.mention(t, 1, 3, 2, t0) // recipient 3 never linked a chat

	res := f.tickAt(t, t0.Add(3*time.Hour))
	if res.Outcomes[OutcomeFailed] != 2 {
		t.Fatalf("tick = %+v, want two failures", res)
	}
	for _, r := range []int64{1, 3} {
		p := f.row(t, 1, r)
		if p == nil || p.TimesSent != 0 || !p.NextSendAt.Equal(t0.Add(3*time.Hour)) {
			t.Errorf("row for recipient %d changed after failure: %+v", r, p)
		}
	}
	if n := len(f.events.Entries(eventlog.EventNotifyFailed)); n != 2 {
		t.Errorf("got %d notify_failed entries, want 2", n)
	}

	f.sender.Err = nil
	res = f.tickAt(t, t0.Add(3*time.Hour+time.Minute))
	if res.Outcomes[OutcomeSent] != 1 || res.Outcomes[OutcomeFailed] != 1 {
		t.Errorf("retry tick = %+v, want one send and one failure", res)
	}
}

func TestTickSendTimeout(t *testing.T) {
	cfg := defaultDeliveryConfig()
	cfg.SendTimeout = 20 * time.Millisecond
	f := newDeliveryFixture(t, cfg)
	f.sender.OnSend = func(ctx context.Context, chatID int64) { <-ctx.Done() }
	f.mention(t, 1, 1, 1, t0)

	res := f.tickAt(t, t0.Add(3*time.Hour))
	if res.Outcomes[OutcomeFailed] != 1 {
		t.Fatalf("tick = %+v, want timeout treated as failure", res)
	}
	if p := f.row(t, 1, 1); p == nil || p.TimesSent != 0 {
		t.Errorf("row after timeout = %+v", p)
	}
}

func TestRepeatCapThenNewCycle(t *testing.T) {
	cfg := defaultDeliveryConfig()
	cfg.MaxRepeats = 2
	f := newDeliveryFixture(t, cfg)
	f.mention(t, 1, 1, 1, t0)

	f.tickAt(t, t0.Add(3*time.Hour))
	res := f.tickAt(t, t0.Add(6*time.Hour))
	if res.Outcomes[OutcomeExhausted] != 1 {
		t.Fatalf("second send = %+v, want exhausted", res)
	}
	if f.row(t, 1, 1) != nil {
		t.Fatal("row kept after reaching the repeat cap")
	}
	f.tickAt(t, t0.Add(9*time.Hour))
	if n := len(f.sender.Sent()); n != 2 {
		t.Fatalf("got %d sends, want 2", n)
	}

	f.mention(t, 1, 1, 2, t0.Add(10*time.Hour))
	p := f.row(t, 1, 1)
	if p == nil || p.TimesSent != 0 || !p.FirstMentionAt.Equal(t0.Add(10*time.Hour)) {
		t.Fatalf("new cycle row = %+v", p)
	}
}

func TestTickOrderingWithSingleWorker(t *testing.T) {
	cfg := defaultDeliveryConfig()
	cfg.Concurrency = 1
	f := newDeliveryFixture(t, cfg)
	ctx := context.Background()

	merge := func(task, r int64, next time.Time) {
		if _, err := f.store.Merge(ctx, mentionOf(task, r, task*10+r, t0), next); err != nil {
			t.Fatal(err)
		}
	}
	merge(5, 1, t0.Add(2*time.Hour))
	merge(3, 2, t0.Add(time.Hour))
	merge(3, 1, t0.Add(time.Hour))
	merge(4, 1, t0.Add(time.Hour))

	f.tickAt(t, t0.Add(3*time.Hour))
	var got []string
	for _, m := range f.sender.Sent() {
		got = append(got, m.Text[strings.LastIndex(m.Text, "#id"):])
	}
	want := []string{"#id3", "#id3", "#id4", "#id5"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("send order = %v, want %v", got, want)
	}
}

func TestTickRecoversFromPanic(t *testing.T) {
	f := newDeliveryFixture(t, defaultDeliveryConfig())
	f.sender.OnSend = func(ctx context.Context, chatID int64) {
		if chatID == 1001 {
			panic("bad row")
		}
	}
	f.mention(t, 1, 1, 1, t0)
	f.mention(t, 2, 2, 2, t0)

	res := f.tickAt(t, t0.Add(3*time.Hour))
	if res.Outcomes[OutcomePanicked] != 1 || res.Outcomes[OutcomeSent] != 1 {
		t.Fatalf("tick = %+v, want one panic and one send", res)
	}
	if p := f.row(t, 1, 1); p == nil || p.TimesSent != 0 {
		t.Errorf("panicked row = %+v, want untouched", p)
	}
	// the row lock was released
	if _, err := f.store.Delete(context.Background(), notification.Key{TaskID: 1, RecipientID: 1}); err != nil {
		t.Errorf("Delete after panic: %v", err)
	}
}

func TestCancellationWaitsForInFlightSend(t *testing.T) {
	f := newDeliveryFixture(t, defaultDeliveryConfig())
	f.mention(t, 1, 1, 1, t0)

	cancelled := make(chan error, 1)
	f.sender.OnSend = func(ctx context.Context, chatID int64) {
		go func() {
			_, err := f.ingest.Cancel(context.Background(), notification.ReactionEvent{TaskID: 1, RecipientID: 1})
			cancelled <- err
		}()
		time.Sleep(20 * time.Millisecond)
		select {
		case <-cancelled:
			t.Error("cancellation completed while the send held the row")
		default:
		}
	}

	res := f.tickAt(t, t0.Add(3*time.Hour))
	if res.Outcomes[OutcomeSent] != 1 {
		t.Fatalf("tick = %+v", res)
	}
	select {
	case err := <-cancelled:
		if err != nil {
			t.Fatalf("Cancel: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("cancellation never completed")
	}
	if f.row(t, 1, 1) != nil {
		t.Error("row survived cancellation")
	}
}

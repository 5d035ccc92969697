package app

import (
	"context"
	"testing"
	"time"

	"pyrus_reminder_bot/internal/domain/eventlog"
	"pyrus_reminder_bot/internal/infra/memstore"
)

func TestMaintenanceCleanup(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	events := memstore.NewEventLog()
	wall := time.Now()

	if _, err := store.Admit(ctx, 1, 1, wall.Add(-30*24*time.Hour)); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Admit(ctx, 1, 2, wall); err != nil {
		t.Fatal(err)
	}
	_ = events.Record(ctx, eventlog.EventNotifySent, nil)
	_ = events.Record(ctx, eventlog.EventNotifyFailed, nil)

	svc := NewMaintenanceService(store, events, 7*24*time.Hour, 48*time.Hour, testLogger())
	svc.now = func() time.Time { return wall.Add(72 * time.Hour) }

	if err := svc.Cleanup(ctx); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}

	if ok, _ := store.Admit(ctx, 1, 1, wall); !ok {
		t.Error("old marker was not pruned")
	}
	if ok, _ := store.Admit(ctx, 1, 2, wall); ok {
		t.Error("recent marker was pruned")
	}

	all := events.Entries("")
	if len(all) != 1 || all[0].Event != eventlog.EventLogsCleanup {
		t.Fatalf("entries after cleanup = %+v, want only logs_cleanup", all)
	}
	if got := all[0].Payload["logs_deleted"]; got != int64(2) {
		t.Errorf("logs_deleted = %v, want 2", got)
	}
}

func TestMaintenanceZeroRetentionKeepsRows(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	events := memstore.NewEventLog()
	if _, err := store.Admit(ctx, 1, 1, t0); err != nil {
		t.Fatal(err)
	}

	svc := NewMaintenanceService(store, events, 0, 0, testLogger())
	if err := svc.Cleanup(ctx); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if ok, _ := store.Admit(ctx, 1, 1, t0); ok {
		t.Error("marker pruned with zero retention")
	}
}

package journal_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"wifiguard/internal/alertq"
	"wifiguard/internal/journal"
	"wifiguard/internal/ssid"
	"wifiguard/internal/testsupport"
)

func TestOpenCreatesSchemaAndRecordsAlerts(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenJournal(t, cfg)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, name := range []string{"Rede_Insegura_1", "Rede_Insegura_2", "Rede_Insegura_1"} {
		alert := alertq.NewAlert(ssid.New(name))
		alert.ObservedAt = base.Add(time.Duration(i) * time.Minute)
		if err := store.RecordAlert(ctx, alert); err != nil {
			t.Fatalf("RecordAlert failed: %v", err)
		}
	}

	records, err := store.RecentAlerts(ctx, 10, "")
	if err != nil {
		t.Fatalf("RecentAlerts failed: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 alerts, got %d", len(records))
	}
	if records[0].SSID != "Rede_Insegura_1" || !records[0].ObservedAt.Equal(base.Add(2*time.Minute)) {
		t.Fatalf("expected newest alert first, got %+v", records[0])
	}

	filtered, err := store.RecentAlerts(ctx, 10, "Rede_Insegura_2")
	if err != nil {
		t.Fatalf("RecentAlerts filtered failed: %v", err)
	}
	if len(filtered) != 1 {
		t.Fatalf("expected one filtered alert, got %d", len(filtered))
	}
}

func TestRecordAlertIsIdempotent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenJournal(t, cfg)
	ctx := context.Background()

	alert := alertq.NewAlert(ssid.New("Rede_Insegura_9"))
	for range 2 {
		if err := store.RecordAlert(ctx, alert); err != nil {
			t.Fatalf("RecordAlert failed: %v", err)
		}
	}
	summary, err := store.Summary(ctx, 0)
	if err != nil {
		t.Fatalf("Summary failed: %v", err)
	}
	if summary.Alerts != 1 {
		t.Fatalf("expected duplicate alert ignored, got %d", summary.Alerts)
	}
}

func TestRecordEventAndFilterByKind(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenJournal(t, cfg)
	ctx := context.Background()

	events := []journal.Event{
		{Kind: journal.EventAlertDropped, Worker: "scan", SSID: "Rede_Insegura_3", Detail: "queue full"},
		{Kind: journal.EventWorkerRestarted, Worker: "alert", Detail: "heartbeat stale"},
		{Kind: journal.EventClassificationUnavailable, Worker: "scan", SSID: "WiFi_Casa"},
	}
	for _, ev := range events {
		if err := store.RecordEvent(ctx, ev); err != nil {
			t.Fatalf("RecordEvent failed: %v", err)
		}
	}
	if err := store.RecordEvent(ctx, journal.Event{}); err == nil {
		t.Fatal("expected event without kind to be rejected")
	}

	all, err := store.RecentEvents(ctx, 10)
	if err != nil {
		t.Fatalf("RecentEvents failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 events, got %d", len(all))
	}

	restarts, err := store.RecentEvents(ctx, 10, journal.EventWorkerRestarted)
	if err != nil {
		t.Fatalf("RecentEvents filtered failed: %v", err)
	}
	if len(restarts) != 1 || restarts[0].Worker != "alert" || restarts[0].Detail != "heartbeat stale" {
		t.Fatalf("unexpected restart events: %+v", restarts)
	}
	if restarts[0].SSID != "" {
		t.Fatalf("expected empty ssid for restart, got %q", restarts[0].SSID)
	}
}

func TestSummaryAggregates(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenJournal(t, cfg)
	ctx := context.Background()

	for _, name := range []string{"A", "B", "A", "A"} {
		if err := store.RecordAlert(ctx, alertq.NewAlert(ssid.New(name))); err != nil {
			t.Fatalf("RecordAlert failed: %v", err)
		}
	}
	_ = store.RecordEvent(ctx, journal.Event{Kind: journal.EventAlertDropped, Worker: "scan"})
	_ = store.RecordEvent(ctx, journal.Event{Kind: journal.EventAlertDropped, Worker: "scan"})

	summary, err := store.Summary(ctx, 5)
	if err != nil {
		t.Fatalf("Summary failed: %v", err)
	}
	if summary.Alerts != 4 || summary.DistinctSSIDs != 2 {
		t.Fatalf("unexpected alert summary: %+v", summary)
	}
	if summary.EventsByKind[journal.EventAlertDropped] != 2 {
		t.Fatalf("unexpected event counts: %v", summary.EventsByKind)
	}
	if len(summary.TopNetworks) != 2 || summary.TopNetworks[0].SSID != "A" || summary.TopNetworks[0].Count != 3 {
		t.Fatalf("unexpected top networks: %+v", summary.TopNetworks)
	}
	if summary.LastAlert.IsZero() {
		t.Fatal("expected last alert timestamp")
	}
}

func TestPruneRemovesOldRows(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenJournal(t, cfg)
	ctx := context.Background()

	old := alertq.NewAlert(ssid.New("Old"))
	old.ObservedAt = time.Now().Add(-48 * time.Hour)
	fresh := alertq.NewAlert(ssid.New("Fresh"))
	_ = store.RecordAlert(ctx, old)
	_ = store.RecordAlert(ctx, fresh)
	_ = store.RecordEvent(ctx, journal.Event{Kind: journal.EventWorkerRestarted, OccurredAt: time.Now().Add(-48 * time.Hour)})

	removed, err := store.Prune(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected 2 rows pruned, got %d", removed)
	}
	records, _ := store.RecentAlerts(ctx, 10, "")
	if len(records) != 1 || records[0].SSID != "Fresh" {
		t.Fatalf("unexpected remaining alerts: %+v", records)
	}

	cleared, err := store.Clear(ctx)
	if err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if cleared != 1 {
		t.Fatalf("expected 1 row cleared, got %d", cleared)
	}
}

func TestReopenKeepsData(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store, err := journal.Open(cfg)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := store.RecordAlert(context.Background(), alertq.NewAlert(ssid.New("Persisted"))); err != nil {
		t.Fatalf("RecordAlert failed: %v", err)
	}
	store.Close()

	reopened := testsupport.MustOpenJournal(t, cfg)
	records, err := reopened.RecentAlerts(context.Background(), 1, "")
	if err != nil {
		t.Fatalf("RecentAlerts failed: %v", err)
	}
	if len(records) != 1 || records[0].SSID != "Persisted" {
		t.Fatalf("expected persisted alert, got %+v", records)
	}
}

func TestOpenRejectsSchemaMismatch(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store, err := journal.Open(cfg)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := store.ForceSchemaVersion(context.Background(), 99); err != nil {
		t.Fatalf("ForceSchemaVersion failed: %v", err)
	}
	store.Close()

	_, err = journal.Open(cfg)
	if !errors.Is(err, journal.ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}

func TestParseKind(t *testing.T) {
	if kind, ok := journal.ParseKind("alert_dropped"); !ok || kind != journal.EventAlertDropped {
		t.Fatalf("expected alert_dropped, got %q %v", kind, ok)
	}
	if _, ok := journal.ParseKind("nope"); ok {
		t.Fatal("expected unknown kind to fail")
	}
}

func TestPragmasApplyToEveryConnection(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenJournal(t, cfg)
	ctx := context.Background()

	timeouts, err := store.PragmaPerConn(ctx, "busy_timeout", 3)
	if err != nil {
		t.Fatalf("read busy_timeout: %v", err)
	}
	for i, v := range timeouts {
		if v != "5000" {
			t.Fatalf("connection %d busy_timeout = %q", i, v)
		}
	}
	modes, err := store.PragmaPerConn(ctx, "journal_mode", 3)
	if err != nil {
		t.Fatalf("read journal_mode: %v", err)
	}
	for i, v := range modes {
		if v != "wal" {
			t.Fatalf("connection %d journal_mode = %q", i, v)
		}
	}
}

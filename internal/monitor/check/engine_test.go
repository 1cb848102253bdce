package check

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"chief/internal/monitor/store"
	"chief/pkg/telemetry"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestApplyEvent_NextScheduledSetsExpectedNextAt(t *testing.T) {
	checks := newFakeCheckStore()
	alerts := newFakeAlertStore()
	e := New(checks, alerts, testLogger())

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	next := now.Add(time.Hour)
	ev := telemetry.Event{
		SourceType: telemetry.SourceChief,
		EventType:  telemetry.EventJobNextScheduled,
		Level:      telemetry.LevelInfo,
		Message:    "next run scheduled",
		EventAt:    now,
		JobName:    "etl",
		Metadata:   map[string]interface{}{"next_run_at": next.Format(time.RFC3339)},
	}

	if err := e.ApplyEvent(context.Background(), ev, now); err != nil {
		t.Fatalf("ApplyEvent: %v", err)
	}

	cs, err := checks.GetCheck(context.Background(), "etl")
	if err != nil {
		t.Fatalf("GetCheck: %v", err)
	}
	if cs.ExpectedNextAt == nil || !cs.ExpectedNextAt.Equal(next) {
		t.Errorf("expected ExpectedNextAt %v, got %v", next, cs.ExpectedNextAt)
	}
}

func TestApplyEvent_FailureOpensFailureAlert(t *testing.T) {
	checks := newFakeCheckStore()
	alerts := newFakeAlertStore()
	e := New(checks, alerts, testLogger())

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	ev := telemetry.Event{
		SourceType: telemetry.SourceWorker,
		EventType:  telemetry.EventJobFailed,
		Level:      telemetry.LevelError,
		Message:    "job failed",
		EventAt:    now,
		JobName:    "etl",
	}

	if err := e.ApplyEvent(context.Background(), ev, now); err != nil {
		t.Fatalf("ApplyEvent: %v", err)
	}

	a, err := alerts.GetOpenAlert(context.Background(), "etl:FAILURE")
	if err != nil {
		t.Fatalf("expected a FAILURE alert to be open: %v", err)
	}
	if a.AlertType != store.AlertTypeFailure || a.Severity != store.SeverityError {
		t.Errorf("unexpected alert: %+v", a)
	}

	cs, _ := checks.GetCheck(context.Background(), "etl")
	if cs.ConsecutiveFailures != 1 {
		t.Errorf("expected ConsecutiveFailures 1, got %d", cs.ConsecutiveFailures)
	}
}

func TestApplyEvent_FailureThenSuccessOpensRecoveryAndClosesFailure(t *testing.T) {
	checks := newFakeCheckStore()
	alerts := newFakeAlertStore()
	e := New(checks, alerts, testLogger())

	ctx := context.Background()
	t1 := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Minute)
	success := true

	if err := e.ApplyEvent(ctx, telemetry.Event{
		SourceType: telemetry.SourceWorker, EventType: telemetry.EventJobFailed,
		Level: telemetry.LevelError, Message: "failed", EventAt: t1, JobName: "etl",
	}, t1); err != nil {
		t.Fatalf("ApplyEvent (failure): %v", err)
	}

	if err := e.ApplyEvent(ctx, telemetry.Event{
		SourceType: telemetry.SourceWorker, EventType: telemetry.EventJobCompleted,
		Level: telemetry.LevelInfo, Message: "completed", EventAt: t2, JobName: "etl", Success: &success,
	}, t2); err != nil {
		t.Fatalf("ApplyEvent (success): %v", err)
	}

	if _, err := alerts.GetOpenAlert(ctx, "etl:FAILURE"); err == nil {
		t.Errorf("expected the FAILURE alert to be closed")
	}
	recovery, err := alerts.GetOpenAlert(ctx, "etl:RECOVERY:FAILURE")
	if err != nil {
		t.Fatalf("expected a RECOVERY alert to be open: %v", err)
	}
	if recovery.AlertType != store.AlertTypeRecovery {
		t.Errorf("unexpected alert type: %v", recovery.AlertType)
	}

	cs, _ := checks.GetCheck(ctx, "etl")
	if cs.ConsecutiveFailures != 0 {
		t.Errorf("expected ConsecutiveFailures reset to 0, got %d", cs.ConsecutiveFailures)
	}
}

func TestApplyEvent_HeartbeatClosesMissedAndOpensRecovery(t *testing.T) {
	checks := newFakeCheckStore()
	alerts := newFakeAlertStore()
	e := New(checks, alerts, testLogger())

	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	if err := checks.UpsertCheckDefaults(ctx, "etl", store.CheckConfig{Enabled: true, AlertOnMiss: true, GraceSeconds: 60}, now); err != nil {
		t.Fatalf("seed check: %v", err)
	}
	if _, err := alerts.OpenAlert(ctx, &store.Alert{
		JobName: "etl", AlertType: store.AlertTypeMissed, Severity: store.SeverityWarn,
		OpenedAt: now, DedupeKey: "etl:MISSED", Title: "missed", Details: "{}",
	}); err != nil {
		t.Fatalf("seed missed alert: %v", err)
	}

	ev := telemetry.Event{
		SourceType: telemetry.SourceWorker, EventType: telemetry.EventJobStarted,
		Level: telemetry.LevelInfo, Message: "started", EventAt: now.Add(time.Minute), JobName: "etl",
	}
	if err := e.ApplyEvent(ctx, ev, now.Add(time.Minute)); err != nil {
		t.Fatalf("ApplyEvent: %v", err)
	}

	if _, err := alerts.GetOpenAlert(ctx, "etl:MISSED"); err == nil {
		t.Errorf("expected the MISSED alert to be closed")
	}
	if _, err := alerts.GetOpenAlert(ctx, "etl:RECOVERY:MISSED"); err != nil {
		t.Errorf("expected a RECOVERY alert to be opened: %v", err)
	}

	cs, _ := checks.GetCheck(ctx, "etl")
	if cs.Status != store.CheckStatusUp {
		t.Errorf("expected status UP after heartbeat, got %v", cs.Status)
	}
}

func TestApplyEvent_RepeatedFailuresOnlyOpenAlertOnce(t *testing.T) {
	checks := newFakeCheckStore()
	alerts := newFakeAlertStore()
	e := New(checks, alerts, testLogger())

	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		ev := telemetry.Event{
			SourceType: telemetry.SourceWorker, EventType: telemetry.EventJobFailed,
			Level: telemetry.LevelError, Message: "failed", EventAt: now.Add(time.Duration(i) * time.Minute), JobName: "etl",
		}
		if err := e.ApplyEvent(ctx, ev, ev.EventAt); err != nil {
			t.Fatalf("ApplyEvent #%d: %v", i, err)
		}
	}

	cs, _ := checks.GetCheck(ctx, "etl")
	if cs.ConsecutiveFailures != 3 {
		t.Errorf("expected ConsecutiveFailures 3, got %d", cs.ConsecutiveFailures)
	}
	if len(alerts.open) != 1 {
		t.Errorf("expected exactly one open alert despite 3 failures, got %d", len(alerts.open))
	}
}

func TestApplyEvent_AlertOnFailureDisabledSuppressesAlert(t *testing.T) {
	checks := newFakeCheckStore()
	alerts := newFakeAlertStore()
	e := New(checks, alerts, testLogger())

	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	ev := telemetry.Event{
		SourceType: telemetry.SourceWorker, EventType: telemetry.EventJobFailed,
		Level: telemetry.LevelError, Message: "failed", EventAt: now, JobName: "etl",
		Metadata: map[string]interface{}{"alert_on_failure": false},
	}
	if err := e.ApplyEvent(ctx, ev, now); err != nil {
		t.Fatalf("ApplyEvent: %v", err)
	}

	if len(alerts.open) != 0 {
		t.Errorf("expected no alert opened with alert_on_failure disabled, got %d", len(alerts.open))
	}
}

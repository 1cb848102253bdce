// Package check implements the Monitor's Check Engine and Evaluator:
// deriving per-job heartbeat/health state from the telemetry stream
// and managing the open/closed lifecycle of failure, missed-heartbeat,
// and recovery alerts.
package check

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"chief/internal/monitor/store"
	"chief/pkg/telemetry"
)

const (
	defaultGraceSeconds = 120
)

// CheckStore and AlertStore narrow store.Store to what the Check
// Engine needs, so it can be tested against a fake without depending
// on a live database.
type CheckStore interface {
	UpsertCheckDefaults(ctx context.Context, jobName string, cfg store.CheckConfig, now time.Time) error
	GetCheck(ctx context.Context, jobName string) (*store.CheckState, error)
	UpdateCheck(ctx context.Context, cs *store.CheckState) error
	ListEnabledChecks(ctx context.Context) ([]*store.CheckState, error)
}

type AlertStore interface {
	OpenAlert(ctx context.Context, a *store.Alert) (created bool, err error)
	CloseAlert(ctx context.Context, dedupeKey string, closedAt time.Time) (closed bool, err error)
	GetOpenAlert(ctx context.Context, dedupeKey string) (*store.Alert, error)
	ListOpenRecoveryAlertsOlderThan(ctx context.Context, cutoff time.Time) ([]*store.Alert, error)
	CountOpenAlerts(ctx context.Context) (int, error)
}

// Engine applies telemetry events to per-job check state and manages
// alert lifecycles.
type Engine struct {
	Checks CheckStore
	Alerts AlertStore
	Log    *slog.Logger
}

func New(checks CheckStore, alerts AlertStore, log *slog.Logger) *Engine {
	return &Engine{Checks: checks, Alerts: alerts, Log: log}
}

// ApplyEvent is the Check Engine's single entry point, called once per
// accepted event carrying a non-null jobName.
func (e *Engine) ApplyEvent(ctx context.Context, ev telemetry.Event, receivedAt time.Time) error {
	cfg := checkConfigFromMetadata(ev.Metadata)

	if err := e.Checks.UpsertCheckDefaults(ctx, ev.JobName, cfg, ev.EventAt); err != nil {
		return fmt.Errorf("upsert check defaults for %q: %w", ev.JobName, err)
	}

	cs, err := e.Checks.GetCheck(ctx, ev.JobName)
	if err != nil {
		return fmt.Errorf("get check for %q: %w", ev.JobName, err)
	}

	switch ev.EventType {
	case telemetry.EventJobNextScheduled:
		e.applyNextScheduled(cs, ev)
	case telemetry.EventJobStarted, telemetry.EventJobCompleted, telemetry.EventJobFailed:
		if err := e.applyHeartbeat(ctx, cs, ev); err != nil {
			return err
		}
		if err := e.applyOutcome(ctx, cs, ev); err != nil {
			return err
		}
	}

	if err := e.Checks.UpdateCheck(ctx, cs); err != nil {
		return fmt.Errorf("update check for %q: %w", ev.JobName, err)
	}
	return nil
}

func (e *Engine) applyNextScheduled(cs *store.CheckState, ev telemetry.Event) {
	raw, ok := ev.Metadata["next_run_at"]
	if !ok {
		return
	}
	s, ok := raw.(string)
	if !ok {
		return
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		e.Log.Warn("unparseable next_run_at in metadata", "jobName", ev.JobName, "value", s)
		return
	}
	cs.ExpectedNextAt = &t
}

// applyHeartbeat handles job.started/job.completed/job.failed's shared
// heartbeat semantics: mark UP, and close+recover a dangling MISSED
// alert.
func (e *Engine) applyHeartbeat(ctx context.Context, cs *store.CheckState, ev telemetry.Event) error {
	eventAt := ev.EventAt
	cs.LastHeartbeatAt = &eventAt
	cs.Status = store.CheckStatusUp

	missedKey := dedupeKey(ev.JobName, store.AlertTypeMissed, "")
	closed, err := e.Alerts.CloseAlert(ctx, missedKey, ev.EventAt)
	if err != nil {
		return fmt.Errorf("close missed alert for %q: %w", ev.JobName, err)
	}
	if closed && cs.AlertOnMiss {
		_, err := e.Alerts.OpenAlert(ctx, &store.Alert{
			JobName:   ev.JobName,
			AlertType: store.AlertTypeRecovery,
			Severity:  store.SeverityInfo,
			OpenedAt:  ev.EventAt,
			DedupeKey: dedupeKey(ev.JobName, store.AlertTypeRecovery, string(store.AlertTypeMissed)),
			Title:     fmt.Sprintf("%s recovered from a missed heartbeat", ev.JobName),
			Details:   "{}",
		})
		if err != nil {
			return fmt.Errorf("open recovery alert for %q: %w", ev.JobName, err)
		}
	}
	return nil
}

// applyOutcome handles the failure/success bookkeeping that only
// job.completed and job.failed carry (job.started has neither).
func (e *Engine) applyOutcome(ctx context.Context, cs *store.CheckState, ev telemetry.Event) error {
	failed := ev.EventType == telemetry.EventJobFailed ||
		(ev.EventType == telemetry.EventJobCompleted && ev.Success != nil && !*ev.Success)
	succeeded := ev.EventType == telemetry.EventJobCompleted && ev.Success != nil && *ev.Success

	switch {
	case failed:
		eventAt := ev.EventAt
		cs.ConsecutiveFailures++
		cs.LastFailureAt = &eventAt
		if cs.AlertOnFailure {
			_, err := e.Alerts.OpenAlert(ctx, &store.Alert{
				JobName:   ev.JobName,
				AlertType: store.AlertTypeFailure,
				Severity:  store.SeverityError,
				OpenedAt:  ev.EventAt,
				DedupeKey: dedupeKey(ev.JobName, store.AlertTypeFailure, ""),
				Title:     fmt.Sprintf("%s failed", ev.JobName),
				Details:   "{}",
			})
			if err != nil {
				return fmt.Errorf("open failure alert for %q: %w", ev.JobName, err)
			}
		}
	case succeeded:
		eventAt := ev.EventAt
		cs.LastSuccessAt = &eventAt
		cs.ConsecutiveFailures = 0

		if cs.AlertOnFailure {
			failureKey := dedupeKey(ev.JobName, store.AlertTypeFailure, "")
			closed, err := e.Alerts.CloseAlert(ctx, failureKey, ev.EventAt)
			if err != nil {
				return fmt.Errorf("close failure alert for %q: %w", ev.JobName, err)
			}
			if closed {
				_, err := e.Alerts.OpenAlert(ctx, &store.Alert{
					JobName:   ev.JobName,
					AlertType: store.AlertTypeRecovery,
					Severity:  store.SeverityInfo,
					OpenedAt:  ev.EventAt,
					DedupeKey: dedupeKey(ev.JobName, store.AlertTypeRecovery, string(store.AlertTypeFailure)),
					Title:     fmt.Sprintf("%s recovered from failure", ev.JobName),
					Details:   "{}",
				})
				if err != nil {
					return fmt.Errorf("open recovery alert for %q: %w", ev.JobName, err)
				}
			}
		}
	}
	return nil
}

// dedupeKey builds the {job}:{TYPE}[:{source}] dedupe key spec.md
// names (e.g. "etl:FAILURE", "etl:RECOVERY:FAILURE").
func dedupeKey(jobName string, t store.AlertType, source string) string {
	if source == "" {
		return fmt.Sprintf("%s:%s", jobName, t)
	}
	return fmt.Sprintf("%s:%s:%s", jobName, t, source)
}

func checkConfigFromMetadata(metadata map[string]interface{}) store.CheckConfig {
	cfg := store.CheckConfig{
		Enabled:        true,
		GraceSeconds:   defaultGraceSeconds,
		AlertOnFailure: true,
		AlertOnMiss:    true,
	}
	if metadata == nil {
		return cfg
	}
	if v, ok := metadata["check_enabled"].(bool); ok {
		cfg.Enabled = v
	}
	if v, ok := metadata["grace_seconds"].(float64); ok {
		cfg.GraceSeconds = int(v)
	}
	if v, ok := metadata["alert_on_failure"].(bool); ok {
		cfg.AlertOnFailure = v
	}
	if v, ok := metadata["alert_on_miss"].(bool); ok {
		cfg.AlertOnMiss = v
	}
	return cfg
}

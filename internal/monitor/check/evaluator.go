package check

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"chief/internal/monitor/store"
)

var evaluatorMeter = otel.Meter("chief/monitor/check")

// defaultRecoveryTTL is how long a RECOVERY alert stays OPEN before the
// Evaluator auto-closes it, resolving spec.md's open question on
// recovery-alert lifetime in the absence of an explicit acknowledgement
// workflow.
const defaultRecoveryTTL = 900 * time.Second

// SweepResult reports what a single Evaluator pass found; Run logs it
// whenever a pass found anything LATE, DOWN, or stale.
type SweepResult struct {
	Checked      int
	Late         int
	Down         int
	OpenedMissed int
	ClosedStale  int
}

// Evaluator periodically reconciles check state against the wall
// clock: a job that should have reported in by now but hasn't moves
// from UP to LATE to DOWN, and a DOWN job with alert_on_miss gets a
// MISSED alert opened exactly once per outage.
type Evaluator struct {
	Checks      CheckStore
	Alerts      AlertStore
	Log         *slog.Logger
	RecoveryTTL time.Duration
}

func NewEvaluator(checks CheckStore, alerts AlertStore, log *slog.Logger) *Evaluator {
	ev := &Evaluator{Checks: checks, Alerts: alerts, Log: log, RecoveryTTL: defaultRecoveryTTL}

	gauge, err := evaluatorMeter.Int64ObservableGauge("chief.monitor.open_alert_count",
		metric.WithDescription("number of alerts currently OPEN"))
	if err != nil {
		log.Error("register open alert count gauge failed", "error", err)
		return ev
	}
	if _, err := evaluatorMeter.RegisterCallback(func(ctx context.Context, o metric.Observer) error {
		n, err := ev.Alerts.CountOpenAlerts(ctx)
		if err != nil {
			return err
		}
		o.ObserveInt64(gauge, int64(n))
		return nil
	}, gauge); err != nil {
		log.Error("register open alert count callback failed", "error", err)
	}

	return ev
}

// Run sweeps immediately, then once per interval, until ctx is
// cancelled. Errors from a pass are logged, not returned, so one bad
// sweep doesn't kill the loop.
func (ev *Evaluator) Run(ctx context.Context, interval time.Duration, now func() time.Time) {
	ev.runOnce(ctx, now)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ev.runOnce(ctx, now)
		}
	}
}

func (ev *Evaluator) runOnce(ctx context.Context, now func() time.Time) {
	result, err := ev.Sweep(ctx, now())
	if err != nil {
		ev.Log.Error("evaluator sweep failed", "error", err)
		return
	}
	if result.Late > 0 || result.Down > 0 || result.ClosedStale > 0 {
		ev.Log.Info("evaluator sweep",
			"checked", result.Checked, "late", result.Late, "down", result.Down,
			"openedMissed", result.OpenedMissed, "closedStale", result.ClosedStale,
		)
	}
}

// Sweep runs one evaluation pass over every enabled check, plus the
// RECOVERY auto-close pass, as of now.
func (ev *Evaluator) Sweep(ctx context.Context, now time.Time) (SweepResult, error) {
	var result SweepResult

	checks, err := ev.Checks.ListEnabledChecks(ctx)
	if err != nil {
		return result, fmt.Errorf("list enabled checks: %w", err)
	}

	for _, cs := range checks {
		result.Checked++
		if cs.ExpectedNextAt == nil {
			continue
		}

		diff := now.Sub(*cs.ExpectedNextAt)
		switch {
		case diff > time.Duration(cs.GraceSeconds)*time.Second:
			result.Down++
			opened, err := ev.markDown(ctx, cs, now)
			if err != nil {
				return result, err
			}
			if opened {
				result.OpenedMissed++
			}
		case diff > 0:
			result.Late++
			cs.Status = store.CheckStatusLate
			if err := ev.Checks.UpdateCheck(ctx, cs); err != nil {
				return result, fmt.Errorf("update check %q to LATE: %w", cs.JobName, err)
			}
		default:
			if cs.Status != store.CheckStatusUp {
				cs.Status = store.CheckStatusUp
				if err := ev.Checks.UpdateCheck(ctx, cs); err != nil {
					return result, fmt.Errorf("update check %q to UP: %w", cs.JobName, err)
				}
			}
		}
	}

	closed, err := ev.closeStaleRecoveries(ctx, now)
	if err != nil {
		return result, err
	}
	result.ClosedStale = closed

	return result, nil
}

// markDown transitions a check to DOWN and, if alert_on_miss is set,
// opens the job's MISSED alert. OpenAlert's dedupe key keeps this
// idempotent across repeated sweeps while the outage continues.
func (ev *Evaluator) markDown(ctx context.Context, cs *store.CheckState, now time.Time) (bool, error) {
	cs.Status = store.CheckStatusDown
	if err := ev.Checks.UpdateCheck(ctx, cs); err != nil {
		return false, fmt.Errorf("update check %q to DOWN: %w", cs.JobName, err)
	}

	if !cs.AlertOnMiss {
		return false, nil
	}

	created, err := ev.Alerts.OpenAlert(ctx, &store.Alert{
		JobName:   cs.JobName,
		AlertType: store.AlertTypeMissed,
		Severity:  store.SeverityWarn,
		OpenedAt:  now,
		DedupeKey: dedupeKey(cs.JobName, store.AlertTypeMissed, ""),
		Title:     fmt.Sprintf("%s missed its expected heartbeat", cs.JobName),
		Details:   "{}",
	})
	if err != nil {
		return false, fmt.Errorf("open missed alert for %q: %w", cs.JobName, err)
	}
	return created, nil
}

// closeStaleRecoveries auto-closes any OPEN RECOVERY alert older than
// the configured TTL.
func (ev *Evaluator) closeStaleRecoveries(ctx context.Context, now time.Time) (int, error) {
	ttl := ev.RecoveryTTL
	if ttl <= 0 {
		ttl = defaultRecoveryTTL
	}

	stale, err := ev.Alerts.ListOpenRecoveryAlertsOlderThan(ctx, now.Add(-ttl))
	if err != nil {
		return 0, fmt.Errorf("list stale recovery alerts: %w", err)
	}

	closed := 0
	for _, a := range stale {
		ok, err := ev.Alerts.CloseAlert(ctx, a.DedupeKey, now)
		if err != nil {
			return closed, fmt.Errorf("close stale recovery alert %q: %w", a.DedupeKey, err)
		}
		if ok {
			closed++
		}
	}
	return closed, nil
}

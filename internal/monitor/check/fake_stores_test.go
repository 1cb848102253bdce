package check

import (
	"context"
	"database/sql"
	"time"

	"chief/internal/monitor/store"
)

type fakeCheckStore struct {
	checks map[string]*store.CheckState
}

func newFakeCheckStore() *fakeCheckStore {
	return &fakeCheckStore{checks: map[string]*store.CheckState{}}
}

// UpsertCheckDefaults mirrors the real store's ON CONFLICT behavior:
// an existing row has its config fields refreshed on every call, only
// status/bookkeeping are left untouched.
func (f *fakeCheckStore) UpsertCheckDefaults(ctx context.Context, jobName string, cfg store.CheckConfig, now time.Time) error {
	if cs, ok := f.checks[jobName]; ok {
		cs.Enabled = cfg.Enabled
		cs.AlertOnFailure = cfg.AlertOnFailure
		cs.AlertOnMiss = cfg.AlertOnMiss
		cs.GraceSeconds = cfg.GraceSeconds
		return nil
	}
	f.checks[jobName] = &store.CheckState{
		JobName:        jobName,
		Enabled:        cfg.Enabled,
		AlertOnFailure: cfg.AlertOnFailure,
		AlertOnMiss:    cfg.AlertOnMiss,
		GraceSeconds:   cfg.GraceSeconds,
		Status:         store.CheckStatusUp,
		UpdatedAt:      now,
	}
	return nil
}

func (f *fakeCheckStore) GetCheck(ctx context.Context, jobName string) (*store.CheckState, error) {
	cs, ok := f.checks[jobName]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return cs, nil
}

func (f *fakeCheckStore) UpdateCheck(ctx context.Context, cs *store.CheckState) error {
	f.checks[cs.JobName] = cs
	return nil
}

func (f *fakeCheckStore) ListEnabledChecks(ctx context.Context) ([]*store.CheckState, error) {
	var out []*store.CheckState
	for _, cs := range f.checks {
		if cs.Enabled {
			out = append(out, cs)
		}
	}
	return out, nil
}

type fakeAlertStore struct {
	open map[string]*store.Alert
}

func newFakeAlertStore() *fakeAlertStore {
	return &fakeAlertStore{open: map[string]*store.Alert{}}
}

func (f *fakeAlertStore) OpenAlert(ctx context.Context, a *store.Alert) (bool, error) {
	if _, exists := f.open[a.DedupeKey]; exists {
		return false, nil
	}
	cp := *a
	cp.Status = store.AlertStatusOpen
	f.open[a.DedupeKey] = &cp
	return true, nil
}

func (f *fakeAlertStore) CloseAlert(ctx context.Context, dedupeKey string, closedAt time.Time) (bool, error) {
	if _, exists := f.open[dedupeKey]; !exists {
		return false, nil
	}
	delete(f.open, dedupeKey)
	return true, nil
}

func (f *fakeAlertStore) GetOpenAlert(ctx context.Context, dedupeKey string) (*store.Alert, error) {
	a, ok := f.open[dedupeKey]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return a, nil
}

func (f *fakeAlertStore) ListOpenRecoveryAlertsOlderThan(ctx context.Context, cutoff time.Time) ([]*store.Alert, error) {
	var out []*store.Alert
	for _, a := range f.open {
		if a.AlertType == store.AlertTypeRecovery && a.OpenedAt.Before(cutoff) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeAlertStore) CountOpenAlerts(ctx context.Context) (int, error) {
	return len(f.open), nil
}

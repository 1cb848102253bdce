// Package heartbeat emits a periodic liveness signal for the
// Orchestrator daemon: a telemetry event the Monitor can alert on if
// it stops arriving, and (when running under systemd with
// WatchdogSec= set) an sd_notify watchdog ping.
package heartbeat

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"chief/pkg/telemetry"
)

// Emitter is the subset of telemetry.Emitter the ticker needs.
type Emitter interface {
	Emit(ev telemetry.Event)
}

// Ticker emits chief.heartbeat events on a fixed interval, and pings
// systemd's watchdog when NotifySocket/WatchdogSec are present in the
// environment (daemon.SdNotify is a no-op otherwise).
type Ticker struct {
	Interval time.Duration
	Emitter  Emitter
	Log      *slog.Logger
}

// NewTicker builds a Ticker with the given interval.
func NewTicker(interval time.Duration, emitter Emitter, log *slog.Logger) *Ticker {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Ticker{Interval: interval, Emitter: emitter, Log: log}
}

// Run emits an immediate heartbeat, then one every Interval, until ctx
// is cancelled.
func (t *Ticker) Run(ctx context.Context) {
	t.tick()

	ticker := time.NewTicker(t.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.tick()
		}
	}
}

func (t *Ticker) tick() {
	t.Emitter.Emit(telemetry.Event{
		SourceType: telemetry.SourceChief,
		EventType:  telemetry.EventChiefHeartbeat,
		Level:      telemetry.LevelInfo,
		Message:    "chief heartbeat",
		Metadata: map[string]interface{}{
			"ping_interval_seconds": int(t.Interval / time.Second),
			"mode":                  "daemon",
			"pid":                   os.Getpid(),
		},
	})

	if sent, err := daemon.SdNotify(false, daemon.SdNotifyWatchdog); err != nil {
		t.Log.Warn("sd_notify watchdog ping failed", "error", err)
	} else if sent {
		t.Log.Debug("sd_notify watchdog ping sent")
	}
}

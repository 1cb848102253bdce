// Package config handles environment variable loading for chief and
// overwatch: ports, paths, poll intervals, and auth.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// ChiefConfig holds the Orchestrator daemon's environment-derived
// settings. The job declaration file itself (chief.yaml) is a CLI flag,
// parsed by cmd/chief with yaml.v3, not part of this struct.
type ChiefConfig struct {
	// MonitorEndpoint is the Monitor's ingest base URL, e.g.
	// "http://localhost:6162". Empty disables telemetry delivery.
	MonitorEndpoint string

	// MonitorAPIKey is sent as the x-api-key header on every flush.
	MonitorAPIKey string

	// SpoolPath is where undelivered telemetry is appended when the
	// Monitor is unreachable.
	SpoolPath string

	// PollSeconds is the daemon loop's default tick interval,
	// overridable per-invocation by the CLI's --poll-seconds flag.
	PollSeconds int

	// HeartbeatInterval is how often the Heartbeat Ticker emits
	// chief.heartbeat.
	HeartbeatInterval time.Duration

	// EmitterFlushInterval is how often the Telemetry Emitter drains
	// its buffer to the Monitor.
	EmitterFlushInterval time.Duration

	// EmitterBufferMaxEvents bounds the Telemetry Emitter's in-memory
	// queue (spec.md §4.4's buffer.max_events); Emit drops the newest
	// event once it's full.
	EmitterBufferMaxEvents int

	// EmitterTimeout bounds a single outbound batch POST to the
	// Monitor (spec.md §6's timeout_ms).
	EmitterTimeout time.Duration

	// OTELEndpoint is the OTLP/gRPC collector address.
	OTELEndpoint string
}

// LoadChiefConfig reads the Orchestrator's environment-variable
// configuration, applying defaults for anything unset.
func LoadChiefConfig() (*ChiefConfig, error) {
	pollSeconds, err := envInt("CHIEF_POLL_SECONDS", 5)
	if err != nil {
		return nil, err
	}
	heartbeatInterval, err := envDuration("CHIEF_HEARTBEAT_INTERVAL", 30*time.Second)
	if err != nil {
		return nil, err
	}
	flushInterval, err := envDuration("CHIEF_EMITTER_FLUSH_INTERVAL", 2*time.Second)
	if err != nil {
		return nil, err
	}
	bufferMaxEvents, err := envInt("CHIEF_BUFFER_MAX_EVENTS", 4096)
	if err != nil {
		return nil, err
	}
	emitterTimeoutMs, err := envInt("CHIEF_EMITTER_TIMEOUT_MS", 5000)
	if err != nil {
		return nil, err
	}

	return &ChiefConfig{
		MonitorEndpoint:        os.Getenv("CHIEF_MONITOR_ENDPOINT"),
		MonitorAPIKey:          os.Getenv("CHIEF_MONITOR_API_KEY"),
		SpoolPath:              envString("CHIEF_SPOOL_PATH", "chief-spool.jsonl"),
		PollSeconds:            pollSeconds,
		HeartbeatInterval:      heartbeatInterval,
		EmitterFlushInterval:   flushInterval,
		EmitterBufferMaxEvents: bufferMaxEvents,
		EmitterTimeout:         time.Duration(emitterTimeoutMs) * time.Millisecond,
		OTELEndpoint:           envString("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
	}, nil
}

// OverwatchConfig holds the Monitor daemon's environment-derived
// settings, per spec.md §6's "Monitor environment: host/port, database
// path, api_key, retention_days, evaluator_interval_seconds,
// retention_interval_seconds."
type OverwatchConfig struct {
	Addr   string
	DBPath string
	APIKey string

	RatePerSecond float64
	RateBurst     int
	BatchLimit    int

	RetentionDays            int
	RetentionIntervalSeconds int
	EvaluatorIntervalSeconds int
	RecoveryTTLSeconds       int

	OTELEndpoint string
}

// LoadOverwatchConfig reads the Monitor's environment-variable
// configuration, applying defaults for anything unset.
func LoadOverwatchConfig() (*OverwatchConfig, error) {
	rateBurst, err := envInt("OVERWATCH_RATE_BURST", 20)
	if err != nil {
		return nil, err
	}
	ratePerSecond, err := envFloat("OVERWATCH_RATE_PER_SECOND", 10)
	if err != nil {
		return nil, err
	}
	batchLimit, err := envInt("OVERWATCH_BATCH_LIMIT", 500)
	if err != nil {
		return nil, err
	}
	retentionDays, err := envInt("OVERWATCH_RETENTION_DAYS", 30)
	if err != nil {
		return nil, err
	}
	retentionIntervalSeconds, err := envInt("OVERWATCH_RETENTION_INTERVAL_SECONDS", 3600)
	if err != nil {
		return nil, err
	}
	evaluatorIntervalSeconds, err := envInt("OVERWATCH_EVALUATOR_INTERVAL_SECONDS", 30)
	if err != nil {
		return nil, err
	}
	recoveryTTLSeconds, err := envInt("OVERWATCH_RECOVERY_TTL_SECONDS", 900)
	if err != nil {
		return nil, err
	}

	return &OverwatchConfig{
		Addr:                     envString("OVERWATCH_ADDR", ":6162"),
		DBPath:                   envString("OVERWATCH_DB_PATH", "overwatch.db"),
		APIKey:                   os.Getenv("OVERWATCH_API_KEY"),
		RatePerSecond:            ratePerSecond,
		RateBurst:                rateBurst,
		BatchLimit:               batchLimit,
		RetentionDays:            retentionDays,
		RetentionIntervalSeconds: retentionIntervalSeconds,
		EvaluatorIntervalSeconds: evaluatorIntervalSeconds,
		RecoveryTTLSeconds:       recoveryTTLSeconds,
		OTELEndpoint:             envString("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
	}, nil
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func envFloat(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

package config

import (
	"testing"
	"time"
)

func TestLoadChiefConfig_Defaults(t *testing.T) {
	cfg, err := LoadChiefConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.PollSeconds != 5 {
		t.Errorf("expected PollSeconds 5, got %d", cfg.PollSeconds)
	}
	if cfg.HeartbeatInterval != 30*time.Second {
		t.Errorf("expected HeartbeatInterval 30s, got %v", cfg.HeartbeatInterval)
	}
	if cfg.EmitterFlushInterval != 2*time.Second {
		t.Errorf("expected EmitterFlushInterval 2s, got %v", cfg.EmitterFlushInterval)
	}
	if cfg.SpoolPath != "chief-spool.jsonl" {
		t.Errorf("expected default SpoolPath, got %s", cfg.SpoolPath)
	}
	if cfg.OTELEndpoint != "localhost:4317" {
		t.Errorf("expected default OTELEndpoint, got %s", cfg.OTELEndpoint)
	}
	if cfg.MonitorEndpoint != "" {
		t.Errorf("expected empty MonitorEndpoint by default, got %s", cfg.MonitorEndpoint)
	}
	if cfg.EmitterBufferMaxEvents != 4096 {
		t.Errorf("expected default EmitterBufferMaxEvents 4096, got %d", cfg.EmitterBufferMaxEvents)
	}
	if cfg.EmitterTimeout != 5*time.Second {
		t.Errorf("expected default EmitterTimeout 5s, got %v", cfg.EmitterTimeout)
	}
}

func TestLoadChiefConfig_EnvOverrides(t *testing.T) {
	t.Setenv("CHIEF_MONITOR_ENDPOINT", "http://localhost:6162")
	t.Setenv("CHIEF_MONITOR_API_KEY", "secret")
	t.Setenv("CHIEF_SPOOL_PATH", "/tmp/spool.jsonl")
	t.Setenv("CHIEF_POLL_SECONDS", "10")
	t.Setenv("CHIEF_HEARTBEAT_INTERVAL", "1m")
	t.Setenv("CHIEF_EMITTER_FLUSH_INTERVAL", "500ms")
	t.Setenv("CHIEF_BUFFER_MAX_EVENTS", "8192")
	t.Setenv("CHIEF_EMITTER_TIMEOUT_MS", "2500")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "otel-collector:4317")

	cfg, err := LoadChiefConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.MonitorEndpoint != "http://localhost:6162" {
		t.Errorf("expected MonitorEndpoint from env, got %s", cfg.MonitorEndpoint)
	}
	if cfg.MonitorAPIKey != "secret" {
		t.Errorf("expected MonitorAPIKey from env, got %s", cfg.MonitorAPIKey)
	}
	if cfg.SpoolPath != "/tmp/spool.jsonl" {
		t.Errorf("expected SpoolPath from env, got %s", cfg.SpoolPath)
	}
	if cfg.PollSeconds != 10 {
		t.Errorf("expected PollSeconds 10, got %d", cfg.PollSeconds)
	}
	if cfg.HeartbeatInterval != time.Minute {
		t.Errorf("expected HeartbeatInterval 1m, got %v", cfg.HeartbeatInterval)
	}
	if cfg.EmitterFlushInterval != 500*time.Millisecond {
		t.Errorf("expected EmitterFlushInterval 500ms, got %v", cfg.EmitterFlushInterval)
	}
	if cfg.EmitterBufferMaxEvents != 8192 {
		t.Errorf("expected EmitterBufferMaxEvents 8192, got %d", cfg.EmitterBufferMaxEvents)
	}
	if cfg.EmitterTimeout != 2500*time.Millisecond {
		t.Errorf("expected EmitterTimeout 2500ms, got %v", cfg.EmitterTimeout)
	}
	if cfg.OTELEndpoint != "otel-collector:4317" {
		t.Errorf("expected OTELEndpoint from env, got %s", cfg.OTELEndpoint)
	}
}

func TestLoadChiefConfig_InvalidPollSeconds(t *testing.T) {
	t.Setenv("CHIEF_POLL_SECONDS", "not-a-number")
	if _, err := LoadChiefConfig(); err == nil {
		t.Error("expected error for invalid CHIEF_POLL_SECONDS")
	}
}

func TestLoadChiefConfig_InvalidBufferMaxEvents(t *testing.T) {
	t.Setenv("CHIEF_BUFFER_MAX_EVENTS", "lots")
	if _, err := LoadChiefConfig(); err == nil {
		t.Error("expected error for invalid CHIEF_BUFFER_MAX_EVENTS")
	}
}

func TestLoadOverwatchConfig_Defaults(t *testing.T) {
	cfg, err := LoadOverwatchConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Addr != ":6162" {
		t.Errorf("expected default Addr :6162, got %s", cfg.Addr)
	}
	if cfg.DBPath != "overwatch.db" {
		t.Errorf("expected default DBPath, got %s", cfg.DBPath)
	}
	if cfg.RatePerSecond != 10 {
		t.Errorf("expected default RatePerSecond 10, got %v", cfg.RatePerSecond)
	}
	if cfg.RateBurst != 20 {
		t.Errorf("expected default RateBurst 20, got %d", cfg.RateBurst)
	}
	if cfg.BatchLimit != 500 {
		t.Errorf("expected default BatchLimit 500, got %d", cfg.BatchLimit)
	}
	if cfg.RetentionDays != 30 {
		t.Errorf("expected default RetentionDays 30, got %d", cfg.RetentionDays)
	}
	if cfg.RetentionIntervalSeconds != 3600 {
		t.Errorf("expected default RetentionIntervalSeconds 3600, got %d", cfg.RetentionIntervalSeconds)
	}
	if cfg.EvaluatorIntervalSeconds != 30 {
		t.Errorf("expected default EvaluatorIntervalSeconds 30, got %d", cfg.EvaluatorIntervalSeconds)
	}
	if cfg.RecoveryTTLSeconds != 900 {
		t.Errorf("expected default RecoveryTTLSeconds 900, got %d", cfg.RecoveryTTLSeconds)
	}
}

func TestLoadOverwatchConfig_EnvOverrides(t *testing.T) {
	t.Setenv("OVERWATCH_ADDR", ":9999")
	t.Setenv("OVERWATCH_DB_PATH", "/var/lib/overwatch/data.db")
	t.Setenv("OVERWATCH_API_KEY", "topsecret")
	t.Setenv("OVERWATCH_RATE_PER_SECOND", "50.5")
	t.Setenv("OVERWATCH_RATE_BURST", "100")
	t.Setenv("OVERWATCH_BATCH_LIMIT", "1000")
	t.Setenv("OVERWATCH_RETENTION_DAYS", "7")
	t.Setenv("OVERWATCH_RETENTION_INTERVAL_SECONDS", "60")
	t.Setenv("OVERWATCH_EVALUATOR_INTERVAL_SECONDS", "15")
	t.Setenv("OVERWATCH_RECOVERY_TTL_SECONDS", "120")

	cfg, err := LoadOverwatchConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Addr != ":9999" {
		t.Errorf("expected Addr from env, got %s", cfg.Addr)
	}
	if cfg.DBPath != "/var/lib/overwatch/data.db" {
		t.Errorf("expected DBPath from env, got %s", cfg.DBPath)
	}
	if cfg.APIKey != "topsecret" {
		t.Errorf("expected APIKey from env, got %s", cfg.APIKey)
	}
	if cfg.RatePerSecond != 50.5 {
		t.Errorf("expected RatePerSecond 50.5, got %v", cfg.RatePerSecond)
	}
	if cfg.RateBurst != 100 {
		t.Errorf("expected RateBurst 100, got %d", cfg.RateBurst)
	}
	if cfg.BatchLimit != 1000 {
		t.Errorf("expected BatchLimit 1000, got %d", cfg.BatchLimit)
	}
	if cfg.RetentionDays != 7 {
		t.Errorf("expected RetentionDays 7, got %d", cfg.RetentionDays)
	}
	if cfg.RetentionIntervalSeconds != 60 {
		t.Errorf("expected RetentionIntervalSeconds 60, got %d", cfg.RetentionIntervalSeconds)
	}
	if cfg.EvaluatorIntervalSeconds != 15 {
		t.Errorf("expected EvaluatorIntervalSeconds 15, got %d", cfg.EvaluatorIntervalSeconds)
	}
	if cfg.RecoveryTTLSeconds != 120 {
		t.Errorf("expected RecoveryTTLSeconds 120, got %d", cfg.RecoveryTTLSeconds)
	}
}

func TestLoadOverwatchConfig_InvalidRatePerSecond(t *testing.T) {
	t.Setenv("OVERWATCH_RATE_PER_SECOND", "fast")
	if _, err := LoadOverwatchConfig(); err == nil {
		t.Error("expected error for invalid OVERWATCH_RATE_PER_SECOND")
	}
}

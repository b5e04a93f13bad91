package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Port != "8080" {
		t.Fatalf("expected default port 8080, got %s", cfg.Port)
	}
	if cfg.OTLPEndpoint != "" || cfg.OTLPInsecure {
		t.Fatalf("expected tracing disabled by default, got %q insecure=%v", cfg.OTLPEndpoint, cfg.OTLPInsecure)
	}
	if cfg.RelayPollInterval != time.Second {
		t.Fatalf("expected 1s relay poll interval, got %s", cfg.RelayPollInterval)
	}
	if cfg.RelayBatchSize != 100 {
		t.Fatalf("expected relay batch size 100, got %d", cfg.RelayBatchSize)
	}
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "collector:4317")
	t.Setenv("OTEL_EXPORTER_OTLP_INSECURE", "true")
	t.Setenv("RELAY_POLL_INTERVAL_SECONDS", "5")
	t.Setenv("RATE_LIMIT_PER_MIN", "not-a-number")

	cfg := Load()

	if cfg.Port != "9090" {
		t.Fatalf("expected port 9090, got %s", cfg.Port)
	}
	if cfg.OTLPEndpoint != "collector:4317" || !cfg.OTLPInsecure {
		t.Fatalf("unexpected tracing config: %q insecure=%v", cfg.OTLPEndpoint, cfg.OTLPInsecure)
	}
	if cfg.RelayPollInterval != 5*time.Second {
		t.Fatalf("expected 5s relay poll interval, got %s", cfg.RelayPollInterval)
	}
	if cfg.RateLimitPerMinute != 120 {
		t.Fatalf("expected malformed rate limit to fall back to 120, got %d", cfg.RateLimitPerMinute)
	}
}

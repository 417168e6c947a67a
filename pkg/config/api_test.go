package config

import (
	"testing"
	"time"
)

func TestLoadAPIConfigReadsEnvironment(t *testing.T) {
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("HEALTHCHECK_ENABLED", "true")
	t.Setenv("HEALTHCHECK_INTERVAL_SECONDS", "15")
	t.Setenv("TIMELINE_SLICE", "not-a-number")

	cfg := LoadAPIConfig()
	if !cfg.UseMemoryStore() {
		t.Fatalf("expected memory store backend")
	}
	if !cfg.HealthCheckEnabled {
		t.Fatalf("expected health checks enabled")
	}
	if cfg.HealthCheckInterval != 15*time.Second {
		t.Fatalf("unexpected interval %s", cfg.HealthCheckInterval)
	}
	if cfg.TimelineSlice != 10 {
		t.Fatalf("expected fallback timeline slice, got %d", cfg.TimelineSlice)
	}
	if cfg.MetricsHistoryLimit != 100 {
		t.Fatalf("expected default metrics history of 100, got %d", cfg.MetricsHistoryLimit)
	}
}

func TestInvalidValuesFallBack(t *testing.T) {
	t.Setenv("HEALTHCHECK_ENABLED", "sometimes")
	t.Setenv("REDIS_DB", "two")
	t.Setenv("NOTIFY_TIMEOUT_MS", "soon")

	cfg := LoadAPIConfig()
	if cfg.HealthCheckEnabled {
		t.Fatalf("expected invalid bool to fall back to false")
	}
	if cfg.RedisDB != 0 {
		t.Fatalf("expected invalid int to fall back to 0, got %d", cfg.RedisDB)
	}
	if cfg.NotifyTimeout != 2*time.Second {
		t.Fatalf("expected default notify timeout, got %s", cfg.NotifyTimeout)
	}
}

func TestGetDurationAcceptsUnitsAndBareIntegers(t *testing.T) {
	t.Setenv("HEALTHCHECK_INTERVAL_SECONDS", "90s")
	t.Setenv("HEALTHCHECK_TIMEOUT_SECONDS", "3")

	cfg := LoadAPIConfig()
	if cfg.HealthCheckInterval != 90*time.Second {
		t.Fatalf("unexpected interval %s", cfg.HealthCheckInterval)
	}
	if cfg.HealthCheckTimeout != 3*time.Second {
		t.Fatalf("unexpected timeout %s", cfg.HealthCheckTimeout)
	}
}

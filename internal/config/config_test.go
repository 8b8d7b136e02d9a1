package config

import (
	"strings"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"SANCTUM_BACKEND",
		"SANCTUM_SQLITE_PATH",
		"SANCTUM_PEBBLE_PATH",
		"SANCTUM_MSG_RETENTION",
		"SANCTUM_PARTICIPANT_RETENTION",
		"SANCTUM_RETENTION_OVERRIDES_FILE",
		"SANCTUM_HTTP_ADDR",
		"SANCTUM_HTTP_CORS_ORIGINS",
		"SANCTUM_HTTP_RATE_RPS",
		"SANCTUM_HTTP_RATE_BURST",
		"SANCTUM_HTTP_METRICS",
		"SANCTUM_HTTP_ACCESS_LOG",
		"SANCTUM_HTTP_PPROF",
	} {
		t.Setenv(name, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg := Load()
	if cfg.Store.Backend != BackendSQLite {
		t.Fatalf("backend %q, want sqlite", cfg.Store.Backend)
	}
	if cfg.Store.SQLitePath != "sanctum.db" {
		t.Fatalf("sqlite path %q", cfg.Store.SQLitePath)
	}
	if cfg.Store.MessageRetention != 24*time.Hour {
		t.Fatalf("message retention %s", cfg.Store.MessageRetention)
	}
	if cfg.Store.ParticipantRetention != time.Hour {
		t.Fatalf("participant retention %s", cfg.Store.ParticipantRetention)
	}
	if cfg.HTTP.Addr != ":8765" {
		t.Fatalf("addr %q", cfg.HTTP.Addr)
	}
	if cfg.HTTP.RateRPS != 20 || cfg.HTTP.RateBurst != 40 {
		t.Fatalf("rate %d/%d", cfg.HTTP.RateRPS, cfg.HTTP.RateBurst)
	}
	if !cfg.HTTP.Metrics || !cfg.HTTP.AccessLog || cfg.HTTP.Pprof {
		t.Fatalf("toggles: metrics=%v access=%v pprof=%v",
			cfg.HTTP.Metrics, cfg.HTTP.AccessLog, cfg.HTTP.Pprof)
	}
	if len(cfg.HTTP.CORSOrigins) != 0 {
		t.Fatalf("cors origins %v", cfg.HTTP.CORSOrigins)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("SANCTUM_BACKEND", "pebble")
	t.Setenv("SANCTUM_PEBBLE_PATH", "/data/cache.pebble")
	t.Setenv("SANCTUM_MSG_RETENTION", "6h")
	t.Setenv("SANCTUM_PARTICIPANT_RETENTION", "15m")
	t.Setenv("SANCTUM_RETENTION_OVERRIDES_FILE", "/etc/sanctum/retention.json")
	t.Setenv("SANCTUM_HTTP_ADDR", "127.0.0.1:9000")
	t.Setenv("SANCTUM_HTTP_RATE_RPS", "5")
	t.Setenv("SANCTUM_HTTP_RATE_BURST", "10")
	t.Setenv("SANCTUM_HTTP_METRICS", "false")
	t.Setenv("SANCTUM_HTTP_PPROF", "true")

	cfg := Load()
	if cfg.Store.Backend != BackendPebble {
		t.Fatalf("backend %q, want pebble", cfg.Store.Backend)
	}
	if cfg.Store.PebblePath != "/data/cache.pebble" {
		t.Fatalf("pebble path %q", cfg.Store.PebblePath)
	}
	if cfg.Store.MessageRetention != 6*time.Hour {
		t.Fatalf("message retention %s", cfg.Store.MessageRetention)
	}
	if cfg.Store.ParticipantRetention != 15*time.Minute {
		t.Fatalf("participant retention %s", cfg.Store.ParticipantRetention)
	}
	if cfg.Store.OverridesFile != "/etc/sanctum/retention.json" {
		t.Fatalf("overrides file %q", cfg.Store.OverridesFile)
	}
	if cfg.HTTP.Addr != "127.0.0.1:9000" {
		t.Fatalf("addr %q", cfg.HTTP.Addr)
	}
	if cfg.HTTP.RateRPS != 5 || cfg.HTTP.RateBurst != 10 {
		t.Fatalf("rate %d/%d", cfg.HTTP.RateRPS, cfg.HTTP.RateBurst)
	}
	if cfg.HTTP.Metrics {
		t.Fatal("metrics should be disabled")
	}
	if !cfg.HTTP.Pprof {
		t.Fatal("pprof should be enabled")
	}
}

func TestNormalizeBackend(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"", BackendSQLite},
		{"sqlite", BackendSQLite},
		{"SQLITE", BackendSQLite},
		{"memory", BackendMemory},
		{"mem", BackendMemory},
		{" Pebble ", BackendPebble},
		{"bogus", BackendSQLite},
	}
	for _, tc := range cases {
		if got := normalizeBackend(tc.in); got != tc.want {
			t.Fatalf("normalizeBackend(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestLoadBadValuesFallBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("SANCTUM_MSG_RETENTION", "yesterday")
	t.Setenv("SANCTUM_PARTICIPANT_RETENTION", "-1h")
	t.Setenv("SANCTUM_HTTP_RATE_RPS", "zero")
	t.Setenv("SANCTUM_HTTP_RATE_BURST", "-3")
	t.Setenv("SANCTUM_HTTP_METRICS", "yep")

	cfg := Load()
	if cfg.Store.MessageRetention != 24*time.Hour {
		t.Fatalf("message retention %s", cfg.Store.MessageRetention)
	}
	if cfg.Store.ParticipantRetention != time.Hour {
		t.Fatalf("participant retention %s", cfg.Store.ParticipantRetention)
	}
	if cfg.HTTP.RateRPS != 20 || cfg.HTTP.RateBurst != 40 {
		t.Fatalf("rate %d/%d", cfg.HTTP.RateRPS, cfg.HTTP.RateBurst)
	}
	if !cfg.HTTP.Metrics {
		t.Fatal("metrics should fall back to enabled")
	}
}

func TestSplitListDedupesAndSorts(t *testing.T) {
	got := splitList("https://b.example, https://a.example;https://b.example https://A.example")
	if len(got) != 2 {
		t.Fatalf("got %v", got)
	}
	if got[0] != "https://a.example" || got[1] != "https://b.example" {
		t.Fatalf("got %v", got)
	}
}

func TestSummaryShowsActiveBackendPathOnly(t *testing.T) {
	clearEnv(t)
	t.Setenv("SANCTUM_BACKEND", "pebble")

	s := Load().Summary()
	if s.PebblePath == "" {
		t.Fatal("pebble path missing from summary")
	}
	if s.SQLitePath != "" {
		t.Fatalf("sqlite path leaked into pebble summary: %q", s.SQLitePath)
	}
}

func TestSummaryJSON(t *testing.T) {
	clearEnv(t)
	raw := string(Load().SummaryJSON())
	if !strings.Contains(raw, `"config_summary"`) {
		t.Fatalf("missing wrapper: %s", raw)
	}
	if !strings.Contains(raw, `"backend":"sqlite"`) {
		t.Fatalf("missing backend: %s", raw)
	}
}

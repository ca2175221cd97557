package config

import "testing"

func TestParseCSV(t *testing.T) {
	got := parseCSV("a, b, ,c,,")
	if len(got) != 3 {
		t.Fatalf("expected 3 items, got %d", len(got))
	}
	if got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Fatalf("unexpected values: %#v", got)
	}
}

func TestParseAnyCSV(t *testing.T) {
	raw := []any{"x", " ", "y"}
	got := parseAnyCSV(raw)
	if len(got) != 2 {
		t.Fatalf("expected 2 items, got %d", len(got))
	}
	if got[0] != "x" || got[1] != "y" {
		t.Fatalf("unexpected values: %#v", got)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ENV", "test")
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("HTTP_PORT", "")
	t.Setenv("PORT", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("KAFKA_CASE_EVENTS_TOPIC", "")
	t.Setenv("HOLIDAY_CACHE_TTL_SECONDS", "")

	cfg, problems := Load("qc-api", 8080)
	for _, p := range problems {
		if p.Field == "ENV" {
			t.Fatalf("ENV was provided but still flagged: %v", problems)
		}
	}
	if cfg.Env != "test" {
		t.Fatalf("Env = %q, want %q", cfg.Env, "test")
	}
	if cfg.HTTPPort != 8080 {
		t.Fatalf("HTTPPort = %d, want 8080", cfg.HTTPPort)
	}
	if cfg.LogLevel != "info" {
		t.Fatalf("LogLevel = %q, want %q", cfg.LogLevel, "info")
	}
	if cfg.CaseEventsTopic != "qc.case-events.v1" {
		t.Fatalf("CaseEventsTopic = %q, want default", cfg.CaseEventsTopic)
	}
	if cfg.HolidayCacheTTL != 300 {
		t.Fatalf("HolidayCacheTTL = %d, want 300", cfg.HolidayCacheTTL)
	}
	if cfg.OutboxLockTTLSec != 30 {
		t.Fatalf("OutboxLockTTLSec = %d, want 30", cfg.OutboxLockTTLSec)
	}
	if !cfg.CORSCredentials {
		t.Fatalf("CORSCredentials = false, want true")
	}
	if cfg.CORSMaxAgeSec != 600 {
		t.Fatalf("CORSMaxAgeSec = %d, want 600", cfg.CORSMaxAgeSec)
	}
	if cfg.RateLimitRPS != 20 || cfg.RateLimitBurst != 40 {
		t.Fatalf("rate limit defaults = %v/%d, want 20/40", cfg.RateLimitRPS, cfg.RateLimitBurst)
	}
}

func TestLoadCORSAndRateLimitOverrides(t *testing.T) {
	t.Setenv("ENV", "test")
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://dash.example.com, https://qc.example.com")
	t.Setenv("CORS_ALLOW_CREDENTIALS", "false")
	t.Setenv("CORS_MAX_AGE_SECONDS", "120")
	t.Setenv("RATE_LIMIT_RPS", "2.5")
	t.Setenv("RATE_LIMIT_BURST", "5")

	cfg, _ := Load("qc-api", 8080)
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[0] != "https://dash.example.com" {
		t.Fatalf("CORSOrigins = %#v", cfg.CORSOrigins)
	}
	if cfg.CORSCredentials {
		t.Fatalf("CORSCredentials = true, want false")
	}
	if cfg.CORSMaxAgeSec != 120 {
		t.Fatalf("CORSMaxAgeSec = %d, want 120", cfg.CORSMaxAgeSec)
	}
	if cfg.RateLimitRPS != 2.5 || cfg.RateLimitBurst != 5 {
		t.Fatalf("rate limit = %v/%d, want 2.5/5", cfg.RateLimitRPS, cfg.RateLimitBurst)
	}
}

func TestLoadRejectsNegativeRateLimit(t *testing.T) {
	t.Setenv("ENV", "test")
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("RATE_LIMIT_RPS", "-1")

	cfg, problems := Load("qc-api", 8080)
	found := false
	for _, p := range problems {
		if p.Field == "RATE_LIMIT_RPS" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected RATE_LIMIT_RPS problem, got %v", problems)
	}
	if cfg.RateLimitRPS != 20 {
		t.Fatalf("RateLimitRPS = %v, want fallback 20", cfg.RateLimitRPS)
	}
}

func TestLoadRejectsBadPort(t *testing.T) {
	t.Setenv("ENV", "test")
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("HTTP_PORT", "99999")

	cfg, problems := Load("qc-api", 8080)
	found := false
	for _, p := range problems {
		if p.Field == "HTTP_PORT" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected HTTP_PORT problem, got %v", problems)
	}
	if cfg.HTTPPort != 8080 {
		t.Fatalf("HTTPPort = %d, want fallback 8080", cfg.HTTPPort)
	}
}

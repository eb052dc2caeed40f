package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Port != "8080" {
		t.Fatalf("expected default port 8080, got %s", cfg.Port)
	}
	if cfg.RateURL != DefaultRateURL {
		t.Fatalf("expected default rate URL, got %s", cfg.RateURL)
	}
	if cfg.FallbackRate != DefaultFallbackRate {
		t.Fatalf("expected default fallback rate, got %s", cfg.FallbackRate)
	}
	if cfg.RateTTLSeconds != 300 {
		t.Fatalf("expected default rate TTL 300, got %d", cfg.RateTTLSeconds)
	}
	if cfg.Address() != ":8080" {
		t.Fatalf("unexpected address %s", cfg.Address())
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("RATE_TTL_SECONDS", "60")
	t.Setenv("FALLBACK_RATE", "58.5")

	cfg := Load()
	if cfg.Port != "9090" {
		t.Fatalf("expected port 9090, got %s", cfg.Port)
	}
	if cfg.RateTTLSeconds != 60 {
		t.Fatalf("expected rate TTL 60, got %d", cfg.RateTTLSeconds)
	}
	if cfg.FallbackRate != "58.5" {
		t.Fatalf("expected fallback 58.5, got %s", cfg.FallbackRate)
	}
}

func TestLoadRejectsBadTTL(t *testing.T) {
	t.Setenv("RATE_TTL_SECONDS", "not-a-number")
	cfg := Load()
	if cfg.RateTTLSeconds != 300 {
		t.Fatalf("expected fallback TTL 300, got %d", cfg.RateTTLSeconds)
	}
}

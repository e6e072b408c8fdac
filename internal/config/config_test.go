package config

import (
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	// Clear anything the host environment might set.
	for _, key := range []string{
		"LISTEN_ADDR", "PUBLIC_URL", "REDIS_ADDR", "REDIS_DB",
		"FACEBOOK_REDIRECT_URL", "ALLOWED_ORIGINS",
		"THROTTLE_RATE", "THROTTLE_BURST",
	} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Addr != ":8080" {
		t.Errorf("Addr = %q, want :8080", cfg.Server.Addr)
	}
	if cfg.Redis.Addr != "" {
		t.Errorf("Redis.Addr = %q, want empty (memory store)", cfg.Redis.Addr)
	}
	if want := "http://localhost:8080/oauth/callback"; cfg.Facebook.RedirectURL != want {
		t.Errorf("RedirectURL = %q, want %q", cfg.Facebook.RedirectURL, want)
	}
	if cfg.Throttle.Rate != 20 || cfg.Throttle.Burst != 40 {
		t.Errorf("Throttle = %+v, want rate 20 burst 40", cfg.Throttle)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("LISTEN_ADDR", ":9090")
	t.Setenv("PUBLIC_URL", "https://api.example.com/")
	t.Setenv("FACEBOOK_REDIRECT_URL", "")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("ALLOWED_ORIGINS", "https://app.example.com, https://staging.example.com,")
	t.Setenv("THROTTLE_RATE", "5")
	t.Setenv("THROTTLE_BURST", "10")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Addr != ":9090" {
		t.Errorf("Addr = %q, want :9090", cfg.Server.Addr)
	}
	if cfg.Redis.Addr != "redis:6379" || cfg.Redis.DB != 2 {
		t.Errorf("Redis = %+v, want redis:6379 db 2", cfg.Redis)
	}
	if want := "https://api.example.com/oauth/callback"; cfg.Facebook.RedirectURL != want {
		t.Errorf("RedirectURL = %q, want %q", cfg.Facebook.RedirectURL, want)
	}
	origins := cfg.Secrets.AllowedOrigins
	if len(origins) != 2 || origins[0] != "https://app.example.com" || origins[1] != "https://staging.example.com" {
		t.Errorf("AllowedOrigins = %v, want two trimmed entries", origins)
	}
	if cfg.Throttle.Rate != 5 || cfg.Throttle.Burst != 10 {
		t.Errorf("Throttle = %+v, want rate 5 burst 10", cfg.Throttle)
	}
}

func TestLoadInvalidNumbers(t *testing.T) {
	t.Setenv("REDIS_DB", "not-a-number")

	if _, err := Load(); err == nil {
		t.Error("Load accepted an invalid REDIS_DB")
	}
}

package config

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	t.Run("requires signing secret", func(t *testing.T) {
		t.Setenv("JWT_SECRET", "")
		t.Setenv("ADMIN_PASSWORD", "pw")

		if _, err := Load(); err != ErrMissingSecret {
			t.Errorf("expected ErrMissingSecret, got %v", err)
		}
	})

	t.Run("requires admin credential", func(t *testing.T) {
		t.Setenv("JWT_SECRET", "secret")
		t.Setenv("ADMIN_PASSWORD", "")
		t.Setenv("ADMIN_PASSWORD_HASH", "")

		if _, err := Load(); err != ErrMissingPassword {
			t.Errorf("expected ErrMissingPassword, got %v", err)
		}
	})

	t.Run("defaults", func(t *testing.T) {
		t.Setenv("JWT_SECRET", "secret")
		t.Setenv("ADMIN_PASSWORD", "pw")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Port != "3000" {
			t.Errorf("expected port 3000, got %s", cfg.Port)
		}
		if cfg.MaxFileSize != 5*1024*1024 {
			t.Errorf("expected 5MB limit, got %d", cfg.MaxFileSize)
		}
		if cfg.TokenTTL != 24*time.Hour {
			t.Errorf("expected 24h token TTL, got %v", cfg.TokenTTL)
		}
		if cfg.RateLimitWindow != 15*time.Minute {
			t.Errorf("expected 15m window, got %v", cfg.RateLimitWindow)
		}
		if !cfg.RequireAuthList || !cfg.RequireAuthStatic {
			t.Error("expected hardened access policy by default")
		}
		if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != "*" {
			t.Errorf("expected wildcard origin, got %v", cfg.AllowedOrigins)
		}
	})

	t.Run("overrides", func(t *testing.T) {
		t.Setenv("JWT_SECRET", "secret")
		t.Setenv("ADMIN_PASSWORD_HASH", "$2a$10$abc")
		t.Setenv("ADMIN_PASSWORD", "")
		t.Setenv("MAX_FILE_SIZE", "10485760")
		t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example,")
		t.Setenv("REQUIRE_AUTH_FOR_LISTING", "false")
		t.Setenv("ALLOWED_MIME_TYPES", "text/plain")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.MaxFileSize != 10*1024*1024 {
			t.Errorf("expected 10MB limit, got %d", cfg.MaxFileSize)
		}
		if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.example" {
			t.Errorf("unexpected origins: %v", cfg.AllowedOrigins)
		}

		p := cfg.UploadPolicy()
		if p.RequireAuthForListing {
			t.Error("expected listing to be public")
		}
		if p.MaxFileSizeBytes != 10*1024*1024 {
			t.Errorf("policy size limit not applied: %d", p.MaxFileSizeBytes)
		}
		if !p.MimeAllowlist.Has("text/plain") || p.MimeAllowlist.Has("image/png") {
			t.Error("expected MIME allowlist override")
		}
	})

	t.Run("ignores malformed numbers", func(t *testing.T) {
		t.Setenv("JWT_SECRET", "secret")
		t.Setenv("ADMIN_PASSWORD", "pw")
		t.Setenv("UPLOAD_RATE_LIMIT", "ten")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.UploadRateLimit != 10 {
			t.Errorf("expected fallback 10, got %d", cfg.UploadRateLimit)
		}
	})
}

func TestLoad_RejectsNonPositiveLimits(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"MAX_FILE_SIZE", "0"},
		{"MAX_FILE_SIZE", "-1"},
		{"MAX_FIELD_SIZE", "0"},
		{"RATE_LIMIT_WINDOW_MINUTES", "0"},
		{"RATE_LIMIT_WINDOW_MINUTES", "-5"},
		{"TOKEN_TTL_HOURS", "0"},
		{"SWEEP_INTERVAL_MINUTES", "0"},
		{"TEMP_MAX_AGE_MINUTES", "-1"},
		{"SHUTDOWN_TIMEOUT_SECONDS", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			t.Setenv("JWT_SECRET", "secret")
			t.Setenv("ADMIN_PASSWORD", "pw")
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			if !errors.Is(err, ErrNotPositive) {
				t.Fatalf("expected ErrNotPositive, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.key) {
				t.Errorf("expected error to name %s, got %q", tt.key, err)
			}
		})
	}

	t.Run("zero rate limit disables the limiter", func(t *testing.T) {
		t.Setenv("JWT_SECRET", "secret")
		t.Setenv("ADMIN_PASSWORD", "pw")
		t.Setenv("UPLOAD_RATE_LIMIT", "0")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.UploadRateLimit != 0 {
			t.Errorf("expected 0, got %d", cfg.UploadRateLimit)
		}
	})
}

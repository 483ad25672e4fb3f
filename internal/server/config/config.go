package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"filedrop/internal/server/service"
)

type Config struct {
	Port              string
	StoragePath       string
	BaseURL           string
	JWTSecret         string
	AdminPassword     string
	AdminPasswordHash string
	AllowedOrigins    []string
	TrustProxy        bool
	MaxFileSize       int64
	MaxFieldSize      int64
	AllowedMimeTypes  []string
	RequireAuthList   bool
	RequireAuthStatic bool
	TokenTTL          time.Duration
	UploadRateLimit   int
	APIRateLimit      int
	RateLimitWindow   time.Duration
	SweepInterval     time.Duration
	TempMaxAge        time.Duration
	LogLevel          string
	LogFormat         string
	ShutdownTimeout   time.Duration
}

var (
	ErrMissingSecret   = errors.New("JWT_SECRET must be set")
	ErrMissingPassword = errors.New("ADMIN_PASSWORD or ADMIN_PASSWORD_HASH must be set")
	ErrNotPositive     = errors.New("value must be greater than zero")
)

// Load reads the configuration from the environment. The signing secret and
// the admin credential have no defaults.
func Load() (*Config, error) {
	cfg := &Config{
		Port:              getEnv("PORT", "3000"),
		StoragePath:       getEnv("UPLOAD_DIR", "./uploads"),
		BaseURL:           strings.TrimRight(getEnv("BASE_URL", ""), "/"),
		JWTSecret:         os.Getenv("JWT_SECRET"),
		AdminPassword:     os.Getenv("ADMIN_PASSWORD"),
		AdminPasswordHash: os.Getenv("ADMIN_PASSWORD_HASH"),
		AllowedOrigins:    getEnvList("ALLOWED_ORIGINS", []string{"*"}),
		TrustProxy:        getEnvBool("TRUST_PROXY", false),
		MaxFileSize:       getEnvInt64("MAX_FILE_SIZE", 5*1024*1024), // 5MB
		MaxFieldSize:      getEnvInt64("MAX_FIELD_SIZE", 1024*1024),
		AllowedMimeTypes:  getEnvList("ALLOWED_MIME_TYPES", nil),
		RequireAuthList:   getEnvBool("REQUIRE_AUTH_FOR_LISTING", true),
		RequireAuthStatic: getEnvBool("REQUIRE_AUTH_FOR_STATIC", true),
		TokenTTL:          getEnvDuration("TOKEN_TTL_HOURS", 24*time.Hour),
		UploadRateLimit:   getEnvInt("UPLOAD_RATE_LIMIT", 10),
		APIRateLimit:      getEnvInt("API_RATE_LIMIT", 100),
		RateLimitWindow:   getEnvMinutes("RATE_LIMIT_WINDOW_MINUTES", 15*time.Minute),
		SweepInterval:     getEnvMinutes("SWEEP_INTERVAL_MINUTES", 10*time.Minute),
		TempMaxAge:        getEnvMinutes("TEMP_MAX_AGE_MINUTES", time.Hour),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		LogFormat:         getEnv("LOG_FORMAT", "json"),
		ShutdownTimeout:   time.Duration(getEnvInt("SHUTDOWN_TIMEOUT_SECONDS", 30)) * time.Second,
	}

	if cfg.JWTSecret == "" {
		return nil, ErrMissingSecret
	}
	if cfg.AdminPassword == "" && cfg.AdminPasswordHash == "" {
		return nil, ErrMissingPassword
	}
	if err := cfg.validateLimits(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validateLimits rejects sizes and durations that would make every request
// fail or stop the background loops. Rate limits of zero stay allowed and
// disable the limiter.
func (c *Config) validateLimits() error {
	sizes := []struct {
		key string
		val int64
	}{
		{"MAX_FILE_SIZE", c.MaxFileSize},
		{"MAX_FIELD_SIZE", c.MaxFieldSize},
	}
	for _, s := range sizes {
		if s.val <= 0 {
			return fmt.Errorf("%s: %w", s.key, ErrNotPositive)
		}
	}

	durations := []struct {
		key string
		val time.Duration
	}{
		{"TOKEN_TTL_HOURS", c.TokenTTL},
		{"RATE_LIMIT_WINDOW_MINUTES", c.RateLimitWindow},
		{"SWEEP_INTERVAL_MINUTES", c.SweepInterval},
		{"TEMP_MAX_AGE_MINUTES", c.TempMaxAge},
		{"SHUTDOWN_TIMEOUT_SECONDS", c.ShutdownTimeout},
	}
	for _, d := range durations {
		if d.val <= 0 {
			return fmt.Errorf("%s: %w", d.key, ErrNotPositive)
		}
	}
	return nil
}

// UploadPolicy assembles the admission and access policy from the loaded values.
func (c *Config) UploadPolicy() service.Policy {
	p := service.DefaultPolicy()
	p.MaxFileSizeBytes = c.MaxFileSize
	p.MaxFieldSizeBytes = c.MaxFieldSize
	p.RequireAuthForListing = c.RequireAuthList
	p.RequireAuthForStaticServe = c.RequireAuthStatic
	if len(c.AllowedMimeTypes) > 0 {
		p.MimeAllowlist = service.NewSet(c.AllowedMimeTypes...)
	}
	return p
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.ParseInt(val, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(val, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if hours, err := strconv.ParseFloat(val, 64); err == nil {
			return time.Duration(hours * float64(time.Hour))
		}
	}
	return fallback
}

func getEnvMinutes(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if minutes, err := strconv.ParseFloat(val, 64); err == nil {
			return time.Duration(minutes * float64(time.Minute))
		}
	}
	return fallback
}

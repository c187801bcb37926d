package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// configEnvKeys lists every variable Load reads so tests start from a clean slate.
var configEnvKeys = []string{
	"PORT", "ENV", "API_PREFIX", "FRONTEND_URL", "DATABASE_URL", "AUTO_MIGRATE",
	"SPOTIFY_CLIENT_ID", "SPOTIFY_CLIENT_SECRET", "SPOTIFY_REDIRECT_URI", "OAUTH_STATE_SECRET",
	"REDIS_URL", "SPOTIFY_RATE_PER_MINUTE",
	"R2_BUCKET_NAME", "R2_ACCESS_KEY_ID", "R2_SECRET_ACCESS_KEY", "R2_ENDPOINT", "R2_PUBLIC_URL",
	"TRACING_ENABLED", "OTEL_EXPORTER_TYPE", "OTEL_EXPORTER_OTLP_ENDPOINT", "TRACING_SAMPLE_RATE", "TRACING_INSECURE",
	"PROFILING_ENABLED",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range configEnvKeys {
		t.Setenv(key, "")
	}
}

func containsErr(errs []error, target error) bool {
	for _, err := range errs {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, errs := Load("")
	if len(errs) != 0 {
		t.Fatalf("expected no errors, got %v", errs)
	}
	if cfg.Port != DefaultPort {
		t.Errorf("Port = %d, want %d", cfg.Port, DefaultPort)
	}
	if cfg.APIPrefix != "/api" {
		t.Errorf("APIPrefix = %q, want /api", cfg.APIPrefix)
	}
	if cfg.FrontendURL != "http://localhost:5173" {
		t.Errorf("FrontendURL = %q", cfg.FrontendURL)
	}
	if cfg.DatabaseURL != "" {
		t.Errorf("expected empty DatabaseURL, got %q", cfg.DatabaseURL)
	}
	if !cfg.AutoMigrate {
		t.Error("expected AutoMigrate to default to true")
	}
	if cfg.SpotifyEnabled() || cfg.R2Enabled() {
		t.Error("expected optional integrations to be disabled")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "4000")
	t.Setenv("FRONTEND_URL", "https://dm.example.com/")
	t.Setenv("SPOTIFY_CLIENT_ID", "client")
	t.Setenv("SPOTIFY_CLIENT_SECRET", "secret-value")
	t.Setenv("SPOTIFY_REDIRECT_URI", "http://localhost:3001/api/spotify/callback")
	t.Setenv("AUTO_MIGRATE", "off")
	t.Setenv("PROFILING_ENABLED", "1")

	cfg, errs := Load("")
	if len(errs) != 0 {
		t.Fatalf("expected no errors, got %v", errs)
	}
	if cfg.Port != 4000 {
		t.Errorf("Port = %d, want 4000", cfg.Port)
	}
	if cfg.FrontendURL != "https://dm.example.com" {
		t.Errorf("expected trailing slash to be trimmed, got %q", cfg.FrontendURL)
	}
	if !cfg.SpotifyEnabled() {
		t.Error("expected Spotify to be enabled")
	}
	if cfg.AutoMigrate {
		t.Error("expected AutoMigrate=off to disable migrations")
	}
	if !cfg.ProfilingEnabled {
		t.Error("expected PROFILING_ENABLED=1 to enable profiling")
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr error
	}{
		{"non-numeric port", map[string]string{"PORT": "abc"}, nil},
		{"port out of range", map[string]string{"PORT": "70000"}, ErrInvalidPort},
		{"relative frontend url", map[string]string{"FRONTEND_URL": "localhost:5173"}, ErrInvalidFrontendURL},
		{"prefix without slash", map[string]string{"API_PREFIX": "api"}, ErrInvalidAPIPrefix},
		{"partial spotify", map[string]string{"SPOTIFY_CLIENT_ID": "client"}, ErrMissingSpotifyClientSecret},
		{"partial r2", map[string]string{"R2_BUCKET_NAME": "maps"}, ErrMissingR2PublicURL},
		{"sample rate", map[string]string{"TRACING_SAMPLE_RATE": "2"}, ErrInvalidSampleRate},
		{"rate limit", map[string]string{"SPOTIFY_RATE_PER_MINUTE": "0"}, ErrInvalidRateLimit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, errs := Load("")
			if len(errs) == 0 {
				t.Fatal("expected validation errors")
			}
			if tt.wantErr != nil && !containsErr(errs, tt.wantErr) {
				t.Errorf("expected %v in %v", tt.wantErr, errs)
			}
		})
	}
}

func TestLoad_FileWithEnvPrecedence(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "dmflow.yaml")
	content := "port: 5000\nfrontend_url: https://file.example.com\ndatabase_url: postgres://file@localhost/dmflow\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	t.Setenv("DATABASE_URL", "postgres://env@localhost/dmflow")

	cfg, errs := Load(path)
	if len(errs) != 0 {
		t.Fatalf("expected no errors, got %v", errs)
	}
	if cfg.Port != 5000 {
		t.Errorf("Port = %d, want 5000 from file", cfg.Port)
	}
	if cfg.FrontendURL != "https://file.example.com" {
		t.Errorf("FrontendURL = %q, want file value", cfg.FrontendURL)
	}
	if cfg.DatabaseURL != "postgres://env@localhost/dmflow" {
		t.Errorf("DatabaseURL = %q, want env value", cfg.DatabaseURL)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	clearEnv(t)
	if _, errs := Load(filepath.Join(t.TempDir(), "missing.yaml")); len(errs) != 1 {
		t.Errorf("expected exactly one load error, got %v", errs)
	}
}

func TestLoadDotEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("SPOTIFY_CLIENT_ID=from-dotenv\nPORT=3999\n"), 0o600); err != nil {
		t.Fatalf("failed to write .env: %v", err)
	}
	t.Setenv("PORT", "4001")
	// t.Setenv("", ...) above left SPOTIFY_CLIENT_ID set to empty; godotenv
	// only fills variables that are absent.
	os.Unsetenv("SPOTIFY_CLIENT_ID")

	if err := LoadDotEnv(filepath.Join(dir, "missing.env"), path); err != nil {
		t.Fatalf("LoadDotEnv failed: %v", err)
	}
	t.Cleanup(func() { os.Unsetenv("SPOTIFY_CLIENT_ID") })

	if got := os.Getenv("SPOTIFY_CLIENT_ID"); got != "from-dotenv" {
		t.Errorf("SPOTIFY_CLIENT_ID = %q, want from-dotenv", got)
	}
	if got := os.Getenv("PORT"); got != "4001" {
		t.Errorf("PORT = %q, existing variables must win", got)
	}
}

func TestLogSummary_MasksSecrets(t *testing.T) {
	cfg := &Config{
		Port:                3001,
		DatabaseURL:         "postgres://dm:hunter2@db:5432/dmflow",
		RedisURL:            "redis://:redispass@cache:6379/0",
		SpotifyClientSecret: "abcdefghijklmnop",
		R2SecretAccessKey:   "short",
	}

	summary := cfg.LogSummary()
	for key, value := range summary {
		for _, secret := range []string{"hunter2", "redispass", "abcdefghijklmnop"} {
			if strings.Contains(value, secret) {
				t.Errorf("%s leaks secret: %q", key, value)
			}
		}
	}
	if summary["database_url"] != "postgres://dm:****@db:5432/dmflow" {
		t.Errorf("database_url = %q", summary["database_url"])
	}
	if summary["spotify_client_secret"] != "abcd****" {
		t.Errorf("spotify_client_secret = %q", summary["spotify_client_secret"])
	}
	if summary["r2_secret_access_key"] != "****" {
		t.Errorf("r2_secret_access_key = %q", summary["r2_secret_access_key"])
	}
	if summary["oauth_state_secret"] != "<not set>" {
		t.Errorf("oauth_state_secret = %q", summary["oauth_state_secret"])
	}
}

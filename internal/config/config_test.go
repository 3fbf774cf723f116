package config

import (
	"testing"
	"time"
)

func setBaseEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"APP_NAME", "APP_ENV", "APP_URL", "HTTP_ADDR", "SHUTDOWN_TIMEOUT",
		"AUTH_SESSION_COOKIE_NAME", "AUTH_SESSION_TTL", "AUTH_COOKIE_SECURE", "SESSION_STORE",
		"BCRYPT_COST", "FACEBOOK_ID", "FACEBOOK_SECRET", "API_ACCESS_TOKEN_SECRET", "API_ACCESS_TOKEN_TTL",
		"RESET_WINDOW_SECONDS", "MAIL_HOST", "MAIL_PORT", "MAIL_USERNAME", "MAIL_PASSWORD", "MAIL_FROM",
		"LOG_LEVEL", "LOG_DIR", "REDIS_URL",
		"DATABASE_MAX_CONNS", "DATABASE_MAX_CONN_LIFETIME", "DATABASE_MAX_CONN_IDLE_TIME",
	} {
		t.Setenv(key, "")
	}
	t.Setenv("DATABASE_URL", "postgres://localhost/account_starter")
}

func TestLoadDefaults(t *testing.T) {
	setBaseEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Reset.Window != time.Hour {
		t.Fatalf("expected default reset window of 1h, got %v", cfg.Reset.Window)
	}
	if cfg.Auth.SessionStore != SessionStorePostgres {
		t.Fatalf("expected postgres session store, got %q", cfg.Auth.SessionStore)
	}
	if cfg.Mail.Port != 587 || cfg.Mail.Host != "" {
		t.Fatalf("unexpected mail defaults: %+v", cfg.Mail)
	}
	if cfg.Auth.Facebook.Enabled() {
		t.Fatalf("expected facebook disabled without credentials")
	}
	if cfg.AppURL != "http://127.0.0.1:8080" {
		t.Fatalf("unexpected app url %q", cfg.AppURL)
	}
}

func TestLoadOverrides(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("APP_URL", "https://accounts.example.com/")
	t.Setenv("RESET_WINDOW_SECONDS", "600")
	t.Setenv("FACEBOOK_ID", "fb-id")
	t.Setenv("FACEBOOK_SECRET", "fb-secret")
	t.Setenv("MAIL_HOST", "smtp.example.com")
	t.Setenv("MAIL_PORT", "2525")
	t.Setenv("BCRYPT_COST", "12")
	t.Setenv("SESSION_STORE", "Redis")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.AppURL != "https://accounts.example.com" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.AppURL)
	}
	if cfg.Reset.Window != 10*time.Minute {
		t.Fatalf("expected 600s window, got %v", cfg.Reset.Window)
	}
	if !cfg.Auth.Facebook.Enabled() {
		t.Fatalf("expected facebook enabled")
	}
	if cfg.Mail.Host != "smtp.example.com" || cfg.Mail.Port != 2525 {
		t.Fatalf("unexpected mail config: %+v", cfg.Mail)
	}
	if cfg.Auth.BcryptCost != 12 || cfg.Auth.SessionStore != SessionStoreRedis || cfg.Log.Level != "debug" {
		t.Fatalf("unexpected auth/log config: %+v %+v", cfg.Auth, cfg.Log)
	}
}

func TestLoadValidation(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
	}{
		{"missing database", map[string]string{"DATABASE_URL": ""}},
		{"relative app url", map[string]string{"APP_URL": "/relative"}},
		{"http in production", map[string]string{"APP_ENV": "production", "APP_URL": "http://example.com"}},
		{"bad reset window", map[string]string{"RESET_WINDOW_SECONDS": "soon"}},
		{"zero reset window", map[string]string{"RESET_WINDOW_SECONDS": "0"}},
		{"bad session store", map[string]string{"SESSION_STORE": "memcached"}},
		{"redis without url", map[string]string{"SESSION_STORE": "redis"}},
		{"bad bcrypt cost", map[string]string{"BCRYPT_COST": "2"}},
		{"bad mail port", map[string]string{"MAIL_PORT": "70000"}},
		{"short production secret", map[string]string{"APP_ENV": "production", "APP_URL": "https://example.com", "API_ACCESS_TOKEN_SECRET": "short"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			setBaseEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestParseDurationAcceptsSeconds(t *testing.T) {
	d, err := parseDuration("3600")
	if err != nil || d != time.Hour {
		t.Fatalf("parseDuration(3600) = %v, %v", d, err)
	}
	d, err = parseDuration("90m")
	if err != nil || d != 90*time.Minute {
		t.Fatalf("parseDuration(90m) = %v, %v", d, err)
	}
}

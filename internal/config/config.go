package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultAppName         = "Account Starter"
	defaultAppEnv          = "development"
	defaultAppURL          = "http://127.0.0.1:8080"
	defaultHTTPAddr        = ":8080"
	defaultShutdownTimeout = 5 * time.Second
	defaultSessionCookie   = "account_session"
	defaultSessionTTL      = 14 * 24 * time.Hour
	defaultSessionStore    = SessionStorePostgres
	defaultAPIAccessTTL    = 10 * time.Minute
	defaultResetWindow     = time.Hour
	defaultMailPort        = 587
	defaultMailFrom        = "noreply@account-starter.local"
	defaultLogLevel        = "info"
	defaultLogMaxSizeMB    = 50
	defaultLogMaxBackups   = 5
	defaultLogMaxAgeDays   = 14
	defaultDBMaxConns      = int32(4)
	defaultDBConnLifetime  = 30 * time.Minute
	defaultDBConnIdleTime  = 5 * time.Minute
)

const (
	SessionStorePostgres = "postgres"
	SessionStoreRedis    = "redis"
)

type Config struct {
	AppName         string
	AppEnv          string
	AppURL          string
	Auth            AuthConfig
	Reset           ResetConfig
	Mail            MailConfig
	Log             LogConfig
	Redis           RedisConfig
	HTTPAddr        string
	ShutdownTimeout time.Duration
	Database        DatabaseConfig
}

type AuthConfig struct {
	SessionCookieName string
	SessionTTL        time.Duration
	CookieSecure      bool
	// SessionStore is "postgres" or "redis".
	SessionStore string
	// BcryptCost of 0 means bcrypt.DefaultCost.
	BcryptCost int
	Facebook   OAuthClientConfig
	API        APIAuthConfig
}

type OAuthClientConfig struct {
	ClientID     string
	ClientSecret string
}

func (c OAuthClientConfig) Enabled() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

type APIAuthConfig struct {
	AccessTokenSecret string
	AccessTokenTTL    time.Duration
}

type ResetConfig struct {
	Window time.Duration
}

// MailConfig is the SMTP relay. An empty Host logs messages instead.
type MailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type LogConfig struct {
	Level      string
	Dir        string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

type RedisConfig struct {
	URL string
}

type DatabaseConfig struct {
	URL             string
	MaxConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

func Load() (Config, error) {
	cfg := Config{
		AppName: defaultAppName,
		AppEnv:  defaultAppEnv,
		AppURL:  defaultAppURL,
		Auth: AuthConfig{
			SessionCookieName: defaultSessionCookie,
			SessionTTL:        defaultSessionTTL,
			SessionStore:      defaultSessionStore,
			API: APIAuthConfig{
				AccessTokenTTL: defaultAPIAccessTTL,
			},
		},
		Reset: ResetConfig{Window: defaultResetWindow},
		Mail: MailConfig{
			Port: defaultMailPort,
			From: defaultMailFrom,
		},
		Log: LogConfig{
			Level:      defaultLogLevel,
			MaxSizeMB:  defaultLogMaxSizeMB,
			MaxBackups: defaultLogMaxBackups,
			MaxAgeDays: defaultLogMaxAgeDays,
		},
		HTTPAddr:        defaultHTTPAddr,
		ShutdownTimeout: defaultShutdownTimeout,
		Database: DatabaseConfig{
			MaxConns:        defaultDBMaxConns,
			MaxConnLifetime: defaultDBConnLifetime,
			MaxConnIdleTime: defaultDBConnIdleTime,
		},
	}

	setString(&cfg.AppName, "APP_NAME")
	setString(&cfg.AppEnv, "APP_ENV")
	setString(&cfg.AppURL, "APP_URL")
	setString(&cfg.HTTPAddr, "HTTP_ADDR")
	if err := setDuration(&cfg.ShutdownTimeout, "SHUTDOWN_TIMEOUT"); err != nil {
		return Config{}, err
	}

	setString(&cfg.Auth.SessionCookieName, "AUTH_SESSION_COOKIE_NAME")
	if err := setDuration(&cfg.Auth.SessionTTL, "AUTH_SESSION_TTL"); err != nil {
		return Config{}, err
	}
	if v := env("AUTH_COOKIE_SECURE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("parse AUTH_COOKIE_SECURE: %w", err)
		}
		cfg.Auth.CookieSecure = b
	}
	if v := env("SESSION_STORE"); v != "" {
		cfg.Auth.SessionStore = strings.ToLower(v)
	}
	if v := env("BCRYPT_COST"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 4 || n > 31 {
			return Config{}, errors.New("BCRYPT_COST must be an integer between 4 and 31")
		}
		cfg.Auth.BcryptCost = n
	}
	cfg.Auth.Facebook.ClientID = env("FACEBOOK_ID")
	cfg.Auth.Facebook.ClientSecret = env("FACEBOOK_SECRET")
	cfg.Auth.API.AccessTokenSecret = env("API_ACCESS_TOKEN_SECRET")
	if err := setDuration(&cfg.Auth.API.AccessTokenTTL, "API_ACCESS_TOKEN_TTL"); err != nil {
		return Config{}, err
	}

	if err := setDuration(&cfg.Reset.Window, "RESET_WINDOW_SECONDS"); err != nil {
		return Config{}, err
	}

	setString(&cfg.Mail.Host, "MAIL_HOST")
	if v := env("MAIL_PORT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 65535 {
			return Config{}, errors.New("MAIL_PORT must be a valid port")
		}
		cfg.Mail.Port = n
	}
	setString(&cfg.Mail.Username, "MAIL_USERNAME")
	cfg.Mail.Password = os.Getenv("MAIL_PASSWORD")
	setString(&cfg.Mail.From, "MAIL_FROM")

	setString(&cfg.Log.Level, "LOG_LEVEL")
	setString(&cfg.Log.Dir, "LOG_DIR")
	setString(&cfg.Redis.URL, "REDIS_URL")

	appURL, err := url.Parse(strings.TrimSpace(cfg.AppURL))
	if err != nil || appURL.Scheme == "" || appURL.Host == "" {
		return Config{}, errors.New("APP_URL must be a valid absolute URL")
	}
	if cfg.Production() && !strings.EqualFold(appURL.Scheme, "https") {
		return Config{}, errors.New("APP_URL must use https in production")
	}
	cfg.AppURL = strings.TrimRight(appURL.String(), "/")

	if cfg.Auth.SessionTTL <= 0 {
		cfg.Auth.SessionTTL = defaultSessionTTL
	}
	if cfg.Auth.API.AccessTokenTTL <= 0 {
		cfg.Auth.API.AccessTokenTTL = defaultAPIAccessTTL
	}
	if cfg.Reset.Window <= 0 {
		return Config{}, errors.New("RESET_WINDOW_SECONDS must be positive")
	}
	switch cfg.Auth.SessionStore {
	case SessionStorePostgres:
	case SessionStoreRedis:
		if cfg.Redis.URL == "" {
			return Config{}, errors.New("REDIS_URL is required when SESSION_STORE=redis")
		}
	default:
		return Config{}, fmt.Errorf("SESSION_STORE must be %q or %q", SessionStorePostgres, SessionStoreRedis)
	}
	if cfg.Production() && cfg.Auth.API.AccessTokenSecret != "" && len(cfg.Auth.API.AccessTokenSecret) < 32 {
		return Config{}, errors.New("API_ACCESS_TOKEN_SECRET must be at least 32 characters in production")
	}

	dbURL := env("DATABASE_URL")
	if dbURL == "" {
		return Config{}, errors.New("DATABASE_URL is required")
	}
	cfg.Database.URL = dbURL

	if v := env("DATABASE_MAX_CONNS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Config{}, errors.New("DATABASE_MAX_CONNS must be a positive integer")
		}
		cfg.Database.MaxConns = int32(n)
	}
	if err := setDuration(&cfg.Database.MaxConnLifetime, "DATABASE_MAX_CONN_LIFETIME"); err != nil {
		return Config{}, err
	}
	if err := setDuration(&cfg.Database.MaxConnIdleTime, "DATABASE_MAX_CONN_IDLE_TIME"); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) Production() bool {
	return strings.EqualFold(c.AppEnv, "production")
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func setString(dst *string, key string) {
	if v := env(key); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, key string) error {
	v := env(key)
	if v == "" {
		return nil
	}
	d, err := parseDuration(v)
	if err != nil {
		return fmt.Errorf("parse %s: %w", key, err)
	}
	*dst = d
	return nil
}

// parseDuration accepts Go durations ("90m") and plain seconds ("3600").
func parseDuration(v string) (time.Duration, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, errors.New("empty duration")
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d, nil
	}
	seconds, err := strconv.Atoi(v)
	if err != nil {
		return 0, err
	}
	return time.Duration(seconds) * time.Second, nil
}

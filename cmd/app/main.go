package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/benpsk/account-starter/internal/account"
	"github.com/benpsk/account-starter/internal/config"
	"github.com/benpsk/account-starter/internal/facebook"
	"github.com/benpsk/account-starter/internal/logging"
	"github.com/benpsk/account-starter/internal/mail"
	"github.com/benpsk/account-starter/internal/postgres"
	"github.com/benpsk/account-starter/internal/redis"
	"github.com/benpsk/account-starter/internal/server"
	"github.com/benpsk/account-starter/internal/session"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Error("load .env", slog.Any("err", err))
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config", slog.Any("err", err))
		os.Exit(1)
	}

	logger, closer, err := logging.New(cfg.Log, os.Stderr)
	if err != nil {
		slog.Error("logging", slog.Any("err", err))
		os.Exit(1)
	}
	defer closer.Close()
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", slog.Any("err", err))
		closer.Close()
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Connect(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	sessions, closeSessions, err := sessionStore(ctx, cfg, db)
	if err != nil {
		return err
	}
	defer closeSessions()

	sender, err := mailSender(cfg, logger)
	if err != nil {
		return err
	}

	store := postgres.NewAccountStore(db)
	hasher := account.NewBcryptHasher(cfg.Auth.BcryptCost)
	deps := server.Deps{
		Logger:   logger,
		DB:       db,
		Accounts: account.NewResolver(store, hasher, logger),
		Resets: account.NewPasswordReset(store, hasher, sender, account.RandomHex(), account.ResetConfig{
			Window:  cfg.Reset.Window,
			BaseURL: cfg.AppURL,
			From:    cfg.Mail.From,
		}, logger),
		Sessions: sessions,
	}

	if cfg.Auth.Facebook.Enabled() {
		fb, err := facebook.New(facebook.Config{
			ClientID:     cfg.Auth.Facebook.ClientID,
			ClientSecret: cfg.Auth.Facebook.ClientSecret,
			RedirectURL:  strings.TrimRight(cfg.AppURL, "/") + "/auth/facebook/callback",
		})
		if err != nil {
			return err
		}
		deps.Facebook = fb
	} else {
		logger.Info("facebook login disabled, FACEBOOK_ID or FACEBOOK_SECRET not set")
	}

	srv := server.New(cfg, server.NewRouter(cfg, deps), logger)
	logger.Info("starting", slog.String("app", cfg.AppName), slog.String("env", cfg.AppEnv), slog.String("url", listenURL(cfg.HTTPAddr)))
	return srv.Start(ctx)
}

func sessionStore(ctx context.Context, cfg config.Config, db *pgxpool.Pool) (session.Store, func(), error) {
	if cfg.Auth.SessionStore != config.SessionStoreRedis {
		return postgres.NewSessionStore(db), func() {}, nil
	}
	client, err := redis.Connect(ctx, cfg.Redis.URL)
	if err != nil {
		return nil, nil, err
	}
	return redis.NewSessionStore(client), func() { _ = client.Close() }, nil
}

func mailSender(cfg config.Config, logger *slog.Logger) (mail.Sender, error) {
	if strings.TrimSpace(cfg.Mail.Host) == "" {
		return mail.LogSender{Logger: logger}, nil
	}
	return mail.NewSMTPSender(mail.SMTPConfig{
		Host:     cfg.Mail.Host,
		Port:     cfg.Mail.Port,
		Username: cfg.Mail.Username,
		Password: cfg.Mail.Password,
		From:     cfg.Mail.From,
	})
}

func listenURL(addr string) string {
	listen := addr
	if strings.HasPrefix(listen, ":") {
		listen = "127.0.0.1" + listen
	} else if strings.HasPrefix(listen, "0.0.0.0:") {
		listen = "127.0.0.1" + listen[len("0.0.0.0"):]
	}
	if !strings.Contains(listen, "://") {
		listen = "http://" + listen
	}
	return listen
}

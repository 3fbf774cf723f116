package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	dbembed "github.com/benpsk/account-starter/db"
	"github.com/benpsk/account-starter/internal/config"
	"github.com/benpsk/account-starter/internal/logging"
	"github.com/benpsk/account-starter/internal/postgres"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
)

const (
	defaultMigrationsDir = "db/migrations"
	defaultSeedersDir    = "db/seeders"
)

const usage = "usage: %s [migrate|seed|fresh|status|prune-sessions|dump] [options]\n"

type command struct {
	cfg    config.Config
	logger *slog.Logger
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, usage, os.Args[0])
		os.Exit(2)
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fatal(slog.Default(), "load .env", err)
	}
	cfg, err := config.Load()
	if err != nil {
		fatal(slog.Default(), "config", err)
	}
	logger, closer, err := logging.New(config.LogConfig{Level: cfg.Log.Level}, os.Stderr)
	if err != nil {
		fatal(slog.Default(), "logging", err)
	}
	defer closer.Close()

	c := command{cfg: cfg, logger: logger}
	args := os.Args[2:]
	switch os.Args[1] {
	case "migrate":
		err = c.migrate(args)
	case "seed":
		err = c.seed(args)
	case "fresh":
		err = c.fresh(args)
	case "status":
		err = c.status(args)
	case "prune-sessions":
		err = c.pruneSessions(args)
	case "dump":
		err = c.dump(args)
	default:
		fmt.Fprintf(os.Stderr, usage, os.Args[0])
		os.Exit(2)
	}
	if err != nil {
		fatal(logger, os.Args[1], err)
	}
}

func fatal(logger *slog.Logger, op string, err error) {
	logger.Error(op+" failed", slog.Any("err", err))
	os.Exit(1)
}

func (c command) connect(ctx context.Context) (*pgxpool.Pool, error) {
	return postgres.Connect(ctx, c.cfg.Database)
}

func (c command) migrate(args []string) error {
	flags := flag.NewFlagSet("migrate", flag.ExitOnError)
	migrationsDir := flags.String("path", defaultMigrationsDir, "directory containing .sql migrations (overrides embedded bundle)")
	_ = flags.Parse(args)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pool, err := c.connect(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	applied, err := applyMigrations(ctx, pool, *migrationsDir)
	if err != nil {
		return err
	}
	c.report("migrate", "no migrations applied", applied)
	return nil
}

func (c command) seed(args []string) error {
	flags := flag.NewFlagSet("seed", flag.ExitOnError)
	seedersDir := flags.String("path", defaultSeedersDir, "directory containing .sql seeders (overrides embedded bundle)")
	_ = flags.Parse(args)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pool, err := c.connect(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	applied, err := applySeeders(ctx, pool, *seedersDir)
	if err != nil {
		return err
	}
	c.report("seed", "no seeders applied", applied)
	return nil
}

func (c command) fresh(args []string) error {
	flags := flag.NewFlagSet("fresh", flag.ExitOnError)
	migrationsDir := flags.String("path", defaultMigrationsDir, "directory containing .sql migrations (overrides embedded bundle)")
	seed := flags.Bool("seed", false, "apply seed files after migrations")
	seedersDir := flags.String("seed-path", defaultSeedersDir, "directory containing .sql seeders (overrides embedded bundle)")
	_ = flags.Parse(args)

	if c.cfg.AppEnv != "development" {
		return fmt.Errorf("APP_ENV must be development (got %q)", c.cfg.AppEnv)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pool, err := c.connect(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := postgres.ResetSchema(ctx, pool); err != nil {
		return err
	}
	applied, err := applyMigrations(ctx, pool, *migrationsDir)
	if err != nil {
		return err
	}
	c.report("fresh", "no migrations applied", applied)

	if !*seed {
		return nil
	}
	seeded, err := applySeeders(ctx, pool, *seedersDir)
	if err != nil {
		return err
	}
	c.report("fresh seed", "no seeders applied", seeded)
	return nil
}

// status lists embedded migrations that have not been applied yet.
func (c command) status(args []string) error {
	flags := flag.NewFlagSet("status", flag.ExitOnError)
	_ = flags.Parse(args)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pool, err := c.connect(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	migrationsFS, err := fs.Sub(dbembed.Migrations, "migrations")
	if err != nil {
		return err
	}
	pending, err := postgres.PendingFS(ctx, pool, migrationsFS)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		c.logger.Info("status: schema is up to date")
		return nil
	}
	for _, name := range pending {
		c.logger.Info("status: pending", slog.String("migration", name))
	}
	return nil
}

func (c command) pruneSessions(args []string) error {
	flags := flag.NewFlagSet("prune-sessions", flag.ExitOnError)
	_ = flags.Parse(args)

	if c.cfg.Auth.SessionStore == config.SessionStoreRedis {
		c.logger.Info("prune-sessions: redis sessions expire on their own")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pool, err := c.connect(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	n, err := postgres.NewSessionStore(pool).DeleteExpired(ctx, time.Now())
	if err != nil {
		return err
	}
	c.logger.Info("prune-sessions: done", slog.Int64("deleted", n))
	return nil
}

func (c command) dump(args []string) error {
	flags := flag.NewFlagSet("dump", flag.ExitOnError)
	out := flags.String("out", defaultDumpPath(), "output file path")
	schemaOnly := flags.Bool("schema-only", false, "dump schema only")
	dataOnly := flags.Bool("data-only", false, "dump data only")
	binary := flags.String("pg-dump-bin", "pg_dump", "pg_dump binary path")
	_ = flags.Parse(args)

	if *schemaOnly && *dataOnly {
		return errors.New("choose only one of -schema-only or -data-only")
	}
	if err := os.MkdirAll(filepath.Dir(*out), 0o755); err != nil {
		return fmt.Errorf("mkdir output dir: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	argsOut := []string{
		"--dbname", c.cfg.Database.URL,
		"--format=plain",
		"--no-owner",
		"--no-privileges",
		"--file", *out,
	}
	if *schemaOnly {
		argsOut = append(argsOut, "--schema-only")
	}
	if *dataOnly {
		argsOut = append(argsOut, "--data-only")
	}

	cmd := exec.CommandContext(ctx, *binary, argsOut...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	c.logger.Info("dump: running", slog.String("bin", *binary), slog.String("out", *out))
	if err := cmd.Run(); err != nil {
		return err
	}
	fmt.Printf("dump written: %s\n", *out)
	return nil
}

func (c command) report(op, empty string, names []string) {
	if len(names) == 0 {
		c.logger.Info(op + ": " + empty)
		return
	}
	for _, name := range names {
		c.logger.Info(op+": applied", slog.String("file", name))
	}
}

func applyMigrations(ctx context.Context, pool *pgxpool.Pool, dir string) ([]string, error) {
	useEmbedded, err := shouldUseEmbedded(dir, defaultMigrationsDir)
	if err != nil {
		return nil, err
	}
	if err := postgres.EnsureTable(ctx, pool); err != nil {
		return nil, err
	}
	if !useEmbedded {
		return postgres.Apply(ctx, pool, dir)
	}
	migrationsFS, err := fs.Sub(dbembed.Migrations, "migrations")
	if err != nil {
		return nil, err
	}
	return postgres.ApplyFS(ctx, pool, migrationsFS)
}

func applySeeders(ctx context.Context, pool *pgxpool.Pool, dir string) ([]string, error) {
	useEmbedded, err := shouldUseEmbedded(dir, defaultSeedersDir)
	if err != nil {
		return nil, err
	}
	if err := postgres.EnsureSeedTable(ctx, pool); err != nil {
		return nil, err
	}
	if !useEmbedded {
		return postgres.Seed(ctx, pool, dir)
	}
	seedersFS, err := fs.Sub(dbembed.Seeders, "seeders")
	if err != nil {
		return nil, err
	}
	return postgres.SeedFS(ctx, pool, seedersFS)
}

func defaultDumpPath() string {
	return filepath.Join("tmp", "dump-"+time.Now().Format("20060102-150405")+".sql")
}

func shouldUseEmbedded(path, defaultPath string) (bool, error) {
	if path == "" {
		return true, nil
	}

	info, err := os.Stat(path)
	switch {
	case err == nil:
		if !info.IsDir() {
			return false, fmt.Errorf("path %q is not a directory", path)
		}
		return false, nil
	case errors.Is(err, os.ErrNotExist):
		if path == defaultPath {
			return true, nil
		}
		return false, fmt.Errorf("path %q not found", path)
	default:
		return false, fmt.Errorf("stat path %q: %w", path, err)
	}
}

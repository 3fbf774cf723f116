package postgres

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ledger is a bookkeeping table recording which .sql files have run.
type ledger struct {
	table string
	kind  string
}

var (
	migrations = ledger{table: "schema_migrations", kind: "migration"}
	seeders    = ledger{table: "schema_seeders", kind: "seed"}
)

func EnsureTable(ctx context.Context, pool *pgxpool.Pool) error {
	return migrations.ensure(ctx, pool)
}

func EnsureSeedTable(ctx context.Context, pool *pgxpool.Pool) error {
	return seeders.ensure(ctx, pool)
}

// Apply runs unapplied migrations from dir in lexical order. Each file holds a
// single statement and runs in its own transaction.
func Apply(ctx context.Context, pool *pgxpool.Pool, dir string) ([]string, error) {
	fsys, err := dirFS(dir, migrations)
	if err != nil {
		return nil, err
	}
	return migrations.run(ctx, pool, fsys)
}

func ApplyFS(ctx context.Context, pool *pgxpool.Pool, fsys fs.FS) ([]string, error) {
	return migrations.run(ctx, pool, fsys)
}

// Seed runs unapplied seeders from dir. Seeders are tracked in schema_seeders.
func Seed(ctx context.Context, pool *pgxpool.Pool, dir string) ([]string, error) {
	fsys, err := dirFS(dir, seeders)
	if err != nil {
		return nil, err
	}
	return seeders.run(ctx, pool, fsys)
}

func SeedFS(ctx context.Context, pool *pgxpool.Pool, fsys fs.FS) ([]string, error) {
	return seeders.run(ctx, pool, fsys)
}

// PendingFS lists the migrations in fsys that have not been applied yet.
func PendingFS(ctx context.Context, pool *pgxpool.Pool, fsys fs.FS) ([]string, error) {
	files, err := sqlFiles(fsys, migrations)
	if err != nil {
		return nil, err
	}
	var pending []string
	for _, name := range files {
		done, err := migrations.applied(ctx, pool, name)
		if err != nil {
			return nil, err
		}
		if !done {
			pending = append(pending, name)
		}
	}
	return pending, nil
}

func dirFS(dir string, l ledger) (fs.FS, error) {
	if _, err := os.Stat(dir); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s directory %q not found", l.kind, dir)
		}
		return nil, fmt.Errorf("stat %s dir: %w", l.kind, err)
	}
	return os.DirFS(dir), nil
}

func (l ledger) ensure(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		create table if not exists `+l.table+` (
			name text primary key,
			applied_at timestamptz not null default now()
		)
	`)
	if err != nil {
		return fmt.Errorf("create %s: %w", l.table, err)
	}
	return nil
}

func (l ledger) run(ctx context.Context, pool *pgxpool.Pool, fsys fs.FS) ([]string, error) {
	files, err := sqlFiles(fsys, l)
	if err != nil {
		return nil, err
	}

	var applied []string
	for _, name := range files {
		done, err := l.applied(ctx, pool, name)
		if err != nil {
			return applied, err
		}
		if done {
			continue
		}

		contents, err := fs.ReadFile(fsys, name)
		if err != nil {
			return applied, fmt.Errorf("read %s: %w", name, err)
		}
		if err := l.exec(ctx, pool, name, strings.TrimSpace(string(contents))); err != nil {
			return applied, err
		}
		applied = append(applied, name)
	}
	return applied, nil
}

// exec runs statement and records name in one transaction. Empty files are
// only recorded.
func (l ledger) exec(ctx context.Context, pool *pgxpool.Pool, name, statement string) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin %s %s: %w", l.kind, name, err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if statement != "" {
		if _, err := tx.Exec(ctx, statement); err != nil {
			return fmt.Errorf("exec %s %s: %w", l.kind, name, err)
		}
	}
	if _, err := tx.Exec(ctx, `insert into `+l.table+` (name) values ($1)`, name); err != nil {
		return fmt.Errorf("record %s %s: %w", l.kind, name, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit %s %s: %w", l.kind, name, err)
	}
	return nil
}

func (l ledger) applied(ctx context.Context, pool *pgxpool.Pool, name string) (bool, error) {
	var exists bool
	err := pool.QueryRow(ctx, `select exists (select 1 from `+l.table+` where name = $1)`, name).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check %s %s: %w", l.kind, name, err)
	}
	return exists, nil
}

func sqlFiles(fsys fs.FS, l ledger) ([]string, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("read %s files: %w", l.kind, err)
	}
	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

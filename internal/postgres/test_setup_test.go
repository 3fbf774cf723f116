package postgres

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"testing"

	dbembed "github.com/benpsk/account-starter/db"
	"github.com/benpsk/account-starter/internal/config"
	"github.com/benpsk/account-starter/internal/testenv"
	"github.com/jackc/pgx/v5/pgxpool"
)

var integrationPool *pgxpool.Pool

func TestMain(m *testing.M) {
	if err := testenv.Load(); err != nil {
		if errors.Is(err, testenv.ErrNoEnvFile) {
			fmt.Fprintln(os.Stderr, "postgres: .env.test not found, skipping integration tests")
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	pool, unlock, err := openIntegrationDB(context.Background())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	integrationPool = pool
	code := m.Run()
	unlock()
	pool.Close()
	os.Exit(code)
}

// openIntegrationDB connects, takes the shared advisory lock and brings the
// schema up to date with the embedded migrations.
func openIntegrationDB(ctx context.Context) (*pgxpool.Pool, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	pool, err := Connect(ctx, cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	unlock, err := testenv.LockIntegrationDB(ctx, pool, "account-starter")
	if err != nil {
		pool.Close()
		return nil, nil, err
	}

	migrations, err := fs.Sub(dbembed.Migrations, "migrations")
	if err == nil {
		err = EnsureTable(ctx, pool)
	}
	if err == nil {
		_, err = ApplyFS(ctx, pool, migrations)
	}
	if err != nil {
		unlock()
		pool.Close()
		return nil, nil, fmt.Errorf("migrate test database: %w", err)
	}
	return pool, unlock, nil
}

// withTx returns a context whose store calls run in a transaction that is
// rolled back by the returned cleanup.
func withTx(t *testing.T) (context.Context, func()) {
	t.Helper()

	ctx := context.Background()
	tx, err := integrationPool.Begin(ctx)
	if err != nil {
		t.Fatalf("begin tx: %v", err)
	}
	return WithDBTX(ctx, tx), func() {
		_ = tx.Rollback(ctx)
	}
}

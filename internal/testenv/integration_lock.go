package testenv

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// LockIntegrationDB holds a session advisory lock keyed by name until the
// returned func is called, so packages sharing one test database run one at
// a time.
func LockIntegrationDB(ctx context.Context, pool *pgxpool.Pool, name string) (func(), error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire advisory lock conn: %w", err)
	}
	if _, err := conn.Exec(ctx, `select pg_advisory_lock(hashtext($1))`, name); err != nil {
		conn.Release()
		return nil, fmt.Errorf("acquire advisory lock %q: %w", name, err)
	}
	return func() {
		_, _ = conn.Exec(context.Background(), `select pg_advisory_unlock(hashtext($1))`, name)
		conn.Release()
	}, nil
}

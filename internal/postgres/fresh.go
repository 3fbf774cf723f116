package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ResetSchema drops and recreates the public schema, removing the account
// tables and both bookkeeping ledgers.
func ResetSchema(ctx context.Context, pool *pgxpool.Pool) error {
	return inTx(ctx, pool, func(ctx context.Context) error {
		db := DBFromContext(ctx, pool)
		for _, stmt := range []string{
			`drop schema if exists public cascade`,
			`create schema public`,
			`grant all on schema public to public`,
			`grant all on schema public to current_user`,
		} {
			if _, err := db.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("reset schema: %q: %w", stmt, err)
			}
		}
		return nil
	})
}

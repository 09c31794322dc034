package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Transactor runs a single document write together with its change
// notification. pg_notify is delivered on commit only, so listeners never
// re-query before the write is visible.
type Transactor struct {
	pool    *pgxpool.Pool
	channel string
}

func NewTransactor(pool *pgxpool.Pool, channel string) *Transactor {
	return &Transactor{pool: pool, channel: channel}
}

func (t *Transactor) WithinTx(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	tx, err := t.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, tx); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// WriteAndNotify runs fn and queues a notification carrying the collection
// name in the same transaction.
func (t *Transactor) WriteAndNotify(ctx context.Context, collection string, fn func(ctx context.Context, tx pgx.Tx) error) error {
	return t.WithinTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if err := fn(ctx, tx); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, "SELECT pg_notify($1, $2)", t.channel, collection); err != nil {
			return fmt.Errorf("notify: %w", err)
		}
		return nil
	})
}

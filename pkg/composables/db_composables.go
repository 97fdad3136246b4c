package composables

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bizdash/orgsync/pkg/repo"
)

type txKey struct{}
type poolKey struct{}

var (
	ErrNoTx   = errors.New("no transaction found in context")
	ErrNoPool = errors.New("no database pool found in context")
)

func WithTx(ctx context.Context, tx pgx.Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// UseTx returns the transaction stored in ctx, falling back to the pool.
func UseTx(ctx context.Context) (repo.Tx, error) {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok && tx != nil {
		return tx, nil
	}
	return UsePool(ctx)
}

func HasTx(ctx context.Context) bool {
	tx, ok := ctx.Value(txKey{}).(pgx.Tx)
	return ok && tx != nil
}

func WithPool(ctx context.Context, pool *pgxpool.Pool) context.Context {
	return context.WithValue(ctx, poolKey{}, pool)
}

func UsePool(ctx context.Context) (*pgxpool.Pool, error) {
	pool, ok := ctx.Value(poolKey{}).(*pgxpool.Pool)
	if !ok || pool == nil {
		return nil, ErrNoPool
	}
	return pool, nil
}

// InTx runs the given function in a transaction. ALWAYS creates a new transaction.
func InTx(ctx context.Context, fn func(context.Context) error) error {
	return runTx(ctx, pgx.TxOptions{}, fn)
}

func runTx(ctx context.Context, opts pgx.TxOptions, fn func(context.Context) error) error {
	pool, err := UsePool(ctx)
	if err != nil {
		return err
	}

	tx, err := pool.BeginTx(ctx, opts)
	if err != nil {
		return err
	}

	txCtx := WithTx(ctx, tx)
	if err := ApplyTenantRLS(txCtx, tx); err != nil {
		if rErr := tx.Rollback(ctx); rErr != nil {
			return errors.Join(err, rErr)
		}
		return err
	}

	if err := fn(txCtx); err != nil {
		// ctx may already be cancelled; rollback must still reach the server.
		if rErr := tx.Rollback(context.WithoutCancel(ctx)); rErr != nil && !errors.Is(rErr, pgx.ErrTxClosed) {
			return errors.Join(err, rErr)
		}
		return err
	}
	return tx.Commit(ctx)
}

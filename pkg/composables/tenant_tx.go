package composables

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// InTenantTx runs fn in a read-write transaction scoped to tenantID.
// An existing transaction in ctx is reused.
func InTenantTx(ctx context.Context, tenantID uuid.UUID, fn func(context.Context) error) error {
	ctx = WithTenantID(ctx, tenantID)
	if existing, ok := ctx.Value(txKey{}).(pgx.Tx); ok && existing != nil {
		if err := ApplyTenantRLS(ctx, existing); err != nil {
			return err
		}
		return fn(ctx)
	}
	return runTx(ctx, pgx.TxOptions{}, fn)
}

// InTenantReadTx runs fn in a read-only REPEATABLE READ transaction so that
// every query inside fn observes the same snapshot.
func InTenantReadTx(ctx context.Context, tenantID uuid.UUID, fn func(context.Context) error) error {
	ctx = WithTenantID(ctx, tenantID)
	if existing, ok := ctx.Value(txKey{}).(pgx.Tx); ok && existing != nil {
		return fn(ctx)
	}
	return runTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}, fn)
}

func InTenantTxResult[T any](ctx context.Context, tenantID uuid.UUID, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := InTenantTx(ctx, tenantID, func(txCtx context.Context) error {
		var innerErr error
		out, innerErr = fn(txCtx)
		return innerErr
	})
	return out, err
}

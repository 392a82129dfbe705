package services

import (
	"context"

	"github.com/upb/workspace-authz/repositories"
)

// WithTransaction executes fn within a database transaction. The context passed to
// fn carries the transaction, so repositories called with it join the same commit.
func WithTransaction(ctx context.Context, txMgr repositories.TransactionManager, fn func(ctx context.Context) error) error {
	err := txMgr.InTransaction(ctx, func(txCtx context.Context, _ repositories.Transaction) error {
		return fn(txCtx)
	})
	if err != nil && GetErrorType(err) == "" {
		return FromAuthorizationError(err)
	}
	return err
}

// WithTransactionResult is WithTransaction for functions that produce a value.
// The zero value is returned on error.
func WithTransactionResult[T any](ctx context.Context, txMgr repositories.TransactionManager, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := WithTransaction(ctx, txMgr, func(txCtx context.Context) error {
		var err error
		result, err = fn(txCtx)
		return err
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}

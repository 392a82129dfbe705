package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/upb/workspace-authz/repositories"
)

type txMarkerKey struct{}

// MockTransactionManager runs fn in-process and records the outcome
type MockTransactionManager struct {
	mock.Mock
	committed  bool
	rolledback bool
}

func (m *MockTransactionManager) Begin(ctx context.Context) (repositories.Transaction, error) {
	args := m.Called(ctx)
	if tx := args.Get(0); tx != nil {
		return tx.(repositories.Transaction), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockTransactionManager) InTransaction(ctx context.Context, fn func(ctx context.Context, tx repositories.Transaction) error) error {
	args := m.Called(ctx)
	if err := args.Error(0); err != nil {
		return err
	}
	tx := &MockTransaction{}
	if err := fn(context.WithValue(ctx, txMarkerKey{}, tx), tx); err != nil {
		m.rolledback = true
		return err
	}
	m.committed = true
	return nil
}

// MockTransaction is a no-op Transaction
type MockTransaction struct{}

func (m *MockTransaction) Commit() error   { return nil }
func (m *MockTransaction) Rollback() error { return nil }
func (m *MockTransaction) Context() context.Context {
	return context.Background()
}

func TestWithTransaction_Success(t *testing.T) {
	ctx := context.Background()
	mockTxMgr := new(MockTransactionManager)
	mockTxMgr.On("InTransaction", ctx).Return(nil)

	var sawTx bool
	err := WithTransaction(ctx, mockTxMgr, func(txCtx context.Context) error {
		_, sawTx = txCtx.Value(txMarkerKey{}).(*MockTransaction)
		return nil
	})

	assert.NoError(t, err)
	assert.True(t, sawTx, "fn must receive the transaction context")
	assert.True(t, mockTxMgr.committed)
	assert.False(t, mockTxMgr.rolledback)
	mockTxMgr.AssertExpectations(t)
}

func TestWithTransaction_ErrorInFunction(t *testing.T) {
	ctx := context.Background()
	mockTxMgr := new(MockTransactionManager)
	mockTxMgr.On("InTransaction", ctx).Return(nil)

	err := WithTransaction(ctx, mockTxMgr, func(context.Context) error {
		return ErrInsufficientPermissions
	})

	assert.Same(t, ErrInsufficientPermissions, err)
	assert.False(t, mockTxMgr.committed)
	assert.True(t, mockTxMgr.rolledback)
}

func TestWithTransaction_PlainErrorIsMapped(t *testing.T) {
	ctx := context.Background()
	mockTxMgr := new(MockTransactionManager)
	mockTxMgr.On("InTransaction", ctx).Return(errors.New("failed to begin transaction"))

	err := WithTransaction(ctx, mockTxMgr, func(context.Context) error {
		t.Fatal("fn must not run when begin fails")
		return nil
	})

	assert.True(t, IsInternalError(err))
	assert.Contains(t, err.Error(), "failed to begin transaction")
}

func TestWithTransactionResult_Success(t *testing.T) {
	ctx := context.Background()
	mockTxMgr := new(MockTransactionManager)
	mockTxMgr.On("InTransaction", ctx).Return(nil)

	result, err := WithTransactionResult(ctx, mockTxMgr, func(context.Context) (string, error) {
		return "success", nil
	})

	assert.NoError(t, err)
	assert.Equal(t, "success", result)
	assert.True(t, mockTxMgr.committed)
}

func TestWithTransactionResult_ErrorReturnsZero(t *testing.T) {
	ctx := context.Background()
	mockTxMgr := new(MockTransactionManager)
	mockTxMgr.On("InTransaction", ctx).Return(nil)

	result, err := WithTransactionResult(ctx, mockTxMgr, func(context.Context) (int, error) {
		return 42, ErrRoleAssignmentNotFound
	})

	assert.True(t, IsNotFoundError(err))
	assert.Equal(t, 0, result)
	assert.True(t, mockTxMgr.rolledback)
}

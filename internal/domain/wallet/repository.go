package wallet

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Repository defines wallet persistence operations
type Repository interface {
	// EnsureAccount creates the wallet row if it does not exist yet
	EnsureAccount(ctx context.Context, tenantID uuid.UUID) error
	GetAccount(ctx context.Context, tenantID uuid.UUID) (*Account, error)

	// LockAccount acquires a row lock on the wallet for the enclosing transaction
	LockAccount(ctx context.Context, tenantID uuid.UUID) (*Account, error)

	// UpdateBalance writes the new balance, checking the previous version
	UpdateBalance(ctx context.Context, account *Account) error

	// InsertTransaction returns ErrDuplicateTransaction when the
	// (tenant, idempotency key) pair is already taken
	InsertTransaction(ctx context.Context, tx *Transaction) error
	GetTransactionByIdempotencyKey(ctx context.Context, tenantID uuid.UUID, key string) (*Transaction, error)
	ListTransactions(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]*Transaction, error)
	HasTransactionWithReason(ctx context.Context, tenantID uuid.UUID, reason string) (bool, error)

	// SumTransactions recomputes the balance from the transaction rows
	SumTransactions(ctx context.Context, tenantID uuid.UUID) (int64, error)
	ListTenantIDs(ctx context.Context, limit, offset int) ([]uuid.UUID, error)

	WithTx(tx pgx.Tx) Repository
}

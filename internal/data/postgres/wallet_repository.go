// Package postgres provides PostgreSQL implementations of the domain repositories.
// Every repository can be bound to a pgx.Tx through WithTx so services can
// compose several calls into one atomic unit.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/tenantops/safety-core/internal/domain/wallet"
	"github.com/tenantops/safety-core/internal/platform/persistence"
)

const idempotencyIndex = "idx_wallet_transactions_idempotency"

// WalletRepository implements the wallet.Repository interface for PostgreSQL
type WalletRepository struct {
	querier persistence.Querier // Can be *pgxpool.Pool or pgx.Tx
	logger  *slog.Logger
}

func NewWalletRepository(logger *slog.Logger, db *persistence.PostgresDB) wallet.Repository {
	return &WalletRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

func (r *WalletRepository) WithTx(tx pgx.Tx) wallet.Repository {
	return &WalletRepository{
		querier: tx,
		logger:  r.logger,
	}
}

// EnsureAccount creates the wallet with a zero balance if it does not exist.
// Concurrent first credits race on the primary key and both succeed.
func (r *WalletRepository) EnsureAccount(ctx context.Context, tenantID uuid.UUID) error {
	query := `
		INSERT INTO wallets (tenant_id, balance, version)
		VALUES ($1, 0, 1)
		ON CONFLICT (tenant_id) DO NOTHING
	`

	if _, err := r.querier.Exec(ctx, query, tenantID); err != nil {
		r.logger.Error("Failed to ensure wallet", "tenant_id", tenantID.String(), "error", err)
		return fmt.Errorf("failed to ensure wallet: %w", err)
	}
	return nil
}

func (r *WalletRepository) GetAccount(ctx context.Context, tenantID uuid.UUID) (*wallet.Account, error) {
	query := `
		SELECT tenant_id, balance, version, created_at, updated_at
		FROM wallets
		WHERE tenant_id = $1
	`
	return r.scanAccount(ctx, query, tenantID, "get wallet")
}

// LockAccount reads the wallet with a row lock held until the enclosing transaction ends
func (r *WalletRepository) LockAccount(ctx context.Context, tenantID uuid.UUID) (*wallet.Account, error) {
	query := `
		SELECT tenant_id, balance, version, created_at, updated_at
		FROM wallets
		WHERE tenant_id = $1
		FOR UPDATE
	`
	return r.scanAccount(ctx, query, tenantID, "lock wallet")
}

func (r *WalletRepository) scanAccount(ctx context.Context, query string, tenantID uuid.UUID, op string) (*wallet.Account, error) {
	var acc wallet.Account
	err := r.querier.QueryRow(ctx, query, tenantID).Scan(
		&acc.TenantID,
		&acc.Balance,
		&acc.Version,
		&acc.CreatedAt,
		&acc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &wallet.TenantNotFoundError{TenantID: tenantID}
		}
		r.logger.Error("Failed to "+op, "tenant_id", tenantID.String(), "error", err)
		return nil, fmt.Errorf("failed to %s: %w", op, err)
	}
	return &acc, nil
}

// UpdateBalance persists the balance, checking the version the account was read at
func (r *WalletRepository) UpdateBalance(ctx context.Context, acc *wallet.Account) error {
	query := `
		UPDATE wallets
		SET balance = $1, version = $2, updated_at = $3
		WHERE tenant_id = $4 AND version = $5
	`

	result, err := r.querier.Exec(ctx, query,
		acc.Balance,
		acc.Version,
		acc.UpdatedAt,
		acc.TenantID,
		acc.Version-1,
	)
	if err != nil {
		r.logger.Error("Failed to update wallet balance", "tenant_id", acc.TenantID.String(), "error", err)
		return fmt.Errorf("failed to update wallet balance: %w", err)
	}

	if result.RowsAffected() == 0 {
		return &wallet.ConcurrentModificationError{TenantID: acc.TenantID}
	}
	return nil
}

// InsertTransaction appends a transaction row. A reused idempotency key maps to
// wallet.ErrDuplicateTransaction.
func (r *WalletRepository) InsertTransaction(ctx context.Context, tx *wallet.Transaction) error {
	query := `
		INSERT INTO wallet_transactions (id, tenant_id, type, amount, reason, idempotency_key, status, override, actor_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.querier.Exec(ctx, query,
		tx.ID,
		tx.TenantID,
		tx.Type,
		tx.Amount,
		tx.Reason,
		tx.IdempotencyKey,
		tx.Status,
		tx.Override,
		tx.ActorID,
		tx.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, idempotencyIndex) {
			return wallet.ErrDuplicateTransaction
		}
		r.logger.Error("Failed to insert wallet transaction", "tenant_id", tx.TenantID.String(), "error", err)
		return fmt.Errorf("failed to insert wallet transaction: %w", err)
	}
	return nil
}

// GetTransactionByIdempotencyKey returns nil, nil when the key is unused
func (r *WalletRepository) GetTransactionByIdempotencyKey(ctx context.Context, tenantID uuid.UUID, key string) (*wallet.Transaction, error) {
	query := `
		SELECT id, tenant_id, type, amount, reason, idempotency_key, status, override, actor_id, created_at
		FROM wallet_transactions
		WHERE tenant_id = $1 AND idempotency_key = $2
	`

	var tx wallet.Transaction
	err := r.querier.QueryRow(ctx, query, tenantID, key).Scan(
		&tx.ID,
		&tx.TenantID,
		&tx.Type,
		&tx.Amount,
		&tx.Reason,
		&tx.IdempotencyKey,
		&tx.Status,
		&tx.Override,
		&tx.ActorID,
		&tx.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error("Failed to get transaction by idempotency key", "tenant_id", tenantID.String(), "error", err)
		return nil, fmt.Errorf("failed to get transaction by idempotency key: %w", err)
	}
	return &tx, nil
}

// ListTransactions returns a page of the tenant's transactions, newest first
func (r *WalletRepository) ListTransactions(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]*wallet.Transaction, error) {
	query := `
		SELECT id, tenant_id, type, amount, reason, idempotency_key, status, override, actor_id, created_at
		FROM wallet_transactions
		WHERE tenant_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3
	`

	rows, err := r.querier.Query(ctx, query, tenantID, limit, offset)
	if err != nil {
		r.logger.Error("Failed to list wallet transactions", "tenant_id", tenantID.String(), "error", err)
		return nil, fmt.Errorf("failed to list wallet transactions: %w", err)
	}
	defer rows.Close()

	var txs []*wallet.Transaction
	for rows.Next() {
		var tx wallet.Transaction
		if err := rows.Scan(
			&tx.ID,
			&tx.TenantID,
			&tx.Type,
			&tx.Amount,
			&tx.Reason,
			&tx.IdempotencyKey,
			&tx.Status,
			&tx.Override,
			&tx.ActorID,
			&tx.CreatedAt,
		); err != nil {
			r.logger.Error("Failed to scan wallet transaction", "tenant_id", tenantID.String(), "error", err)
			return nil, fmt.Errorf("failed to scan wallet transaction: %w", err)
		}
		txs = append(txs, &tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate wallet transactions: %w", err)
	}
	return txs, nil
}

func (r *WalletRepository) HasTransactionWithReason(ctx context.Context, tenantID uuid.UUID, reason string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM wallet_transactions WHERE tenant_id = $1 AND reason = $2
		)
	`

	var exists bool
	if err := r.querier.QueryRow(ctx, query, tenantID, reason).Scan(&exists); err != nil {
		r.logger.Error("Failed to check transaction reason", "tenant_id", tenantID.String(), "reason", reason, "error", err)
		return false, fmt.Errorf("failed to check transaction reason: %w", err)
	}
	return exists, nil
}

// SumTransactions recomputes the signed sum of every transaction of the tenant
func (r *WalletRepository) SumTransactions(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	query := `
		SELECT COALESCE(SUM(CASE WHEN type = 'credit' THEN amount ELSE -amount END), 0)::BIGINT
		FROM wallet_transactions
		WHERE tenant_id = $1
	`

	var sum int64
	if err := r.querier.QueryRow(ctx, query, tenantID).Scan(&sum); err != nil {
		r.logger.Error("Failed to sum wallet transactions", "tenant_id", tenantID.String(), "error", err)
		return 0, fmt.Errorf("failed to sum wallet transactions: %w", err)
	}
	return sum, nil
}

func (r *WalletRepository) ListTenantIDs(ctx context.Context, limit, offset int) ([]uuid.UUID, error) {
	query := `
		SELECT tenant_id
		FROM wallets
		ORDER BY tenant_id
		LIMIT $1 OFFSET $2
	`

	rows, err := r.querier.Query(ctx, query, limit, offset)
	if err != nil {
		r.logger.Error("Failed to list wallet tenants", "error", err)
		return nil, fmt.Errorf("failed to list wallet tenants: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan wallet tenant: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate wallet tenants: %w", err)
	}
	return ids, nil
}

// Package ledger moves credits in and out of tenant wallets. Every movement is
// one immutable transaction row, written together with the cached balance
// under a row lock on the wallet.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/tenantops/safety-core/internal/config"
	"github.com/tenantops/safety-core/internal/domain/audit"
	"github.com/tenantops/safety-core/internal/domain/wallet"
	"github.com/tenantops/safety-core/internal/metrics"
	"github.com/tenantops/safety-core/internal/platform/persistence"
)

const maxListLimit = 200

// Request describes one credit or debit. Retries must reuse IdempotencyKey.
type Request struct {
	TenantID       uuid.UUID
	Amount         int64
	Reason         string
	IdempotencyKey string
	Actor          audit.Actor
	Override       bool // debit only: allows the balance down to the overdraft floor
}

// Result of a ledger call. Replayed is set when the idempotency key was
// already used and nothing changed.
type Result struct {
	Transaction *wallet.Transaction
	Balance     int64
	Replayed    bool
}

type Service struct {
	txRunner persistence.TxRunner
	repo     wallet.Repository
	failures FailureReporter
	auditor  Auditor
	logger   *slog.Logger
	floor    int64
}

func NewService(cfg *config.LedgerConfig, txRunner persistence.TxRunner, repo wallet.Repository, failures FailureReporter, auditor Auditor, logger *slog.Logger) *Service {
	return &Service{
		txRunner: txRunner,
		repo:     repo,
		failures: failures,
		auditor:  auditor,
		logger:   logger.With("component", "ledger"),
		floor:    cfg.OverdraftFloor,
	}
}

// Credit adds req.Amount to the tenant wallet, creating the wallet on first use
func (s *Service) Credit(ctx context.Context, req Request) (*Result, error) {
	req.Override = false
	return s.apply(ctx, wallet.TransactionTypeCredit, req)
}

// Debit removes req.Amount from the tenant wallet. The balance may not go
// below zero, or below the overdraft floor for overrides.
func (s *Service) Debit(ctx context.Context, req Request) (*Result, error) {
	return s.apply(ctx, wallet.TransactionTypeDebit, req)
}

func validate(req Request) error {
	if req.TenantID == uuid.Nil {
		return wallet.ErrMissingTenant
	}
	if req.Amount <= 0 {
		return wallet.ErrInvalidAmount
	}
	if req.Reason == "" {
		return wallet.ErrMissingReason
	}
	if err := req.Actor.Validate(); err != nil {
		return err
	}
	if req.Override && req.Actor.Type == audit.ActorTypeUser {
		return wallet.ErrOverrideNotPermitted
	}
	return nil
}

func (s *Service) apply(ctx context.Context, txType wallet.TransactionType, req Request) (*Result, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	logger := s.logger.With("tenant_id", req.TenantID.String(), "type", string(txType), "actor_id", req.Actor.ID)
	if req.IdempotencyKey != "" {
		logger = logger.With("idempotency_key", req.IdempotencyKey)
	}

	var result *Result
	err := s.txRunner.ExecuteTx(ctx, func(tx pgx.Tx) error {
		repoTx := s.repo.WithTx(tx)

		if txType == wallet.TransactionTypeCredit {
			if err := repoTx.EnsureAccount(ctx, req.TenantID); err != nil {
				return err
			}
		}

		acc, err := repoTx.LockAccount(ctx, req.TenantID)
		if err != nil {
			return err
		}

		// looked up under the wallet lock so a concurrent call with the same
		// key sees the committed row
		if req.IdempotencyKey != "" {
			existing, err := repoTx.GetTransactionByIdempotencyKey(ctx, req.TenantID, req.IdempotencyKey)
			if err != nil {
				return err
			}
			if existing != nil {
				if !existing.Matches(txType, req.Amount) {
					return wallet.ErrIdempotencyConflict
				}
				result = &Result{Transaction: existing, Balance: acc.Balance, Replayed: true}
				return nil
			}
		}

		switch txType {
		case wallet.TransactionTypeCredit:
			err = acc.Credit(req.Amount)
		default:
			floor := int64(0)
			if req.Override {
				floor = s.floor
			}
			err = acc.Debit(req.Amount, floor)
		}
		if err != nil {
			return err
		}

		if err := repoTx.UpdateBalance(ctx, acc); err != nil {
			return err
		}
		txn := wallet.NewTransaction(req.TenantID, txType, req.Amount, req.Reason, req.IdempotencyKey, req.Actor.ID, req.Override)
		if err := repoTx.InsertTransaction(ctx, txn); err != nil {
			return err
		}
		result = &Result{Transaction: txn, Balance: acc.Balance}
		return nil
	})

	if wallet.IsDuplicate(err) {
		// the unique index caught a concurrent writer the lock did not
		logger.Warn("Idempotency key taken concurrently, replaying")
		result, err = s.replay(ctx, txType, req)
	}
	if err != nil {
		metrics.LedgerOperations.WithLabelValues(string(txType), outcomeFor(err)).Inc()
		var insufficient *wallet.InsufficientFundsError
		switch {
		case errors.As(err, &insufficient):
			logger.Warn("Debit rejected", "balance", insufficient.Balance, "amount", req.Amount, "floor", insufficient.Floor, "override", req.Override)
			return nil, err
		case errors.Is(err, &wallet.TenantNotFoundError{}), errors.Is(err, wallet.ErrIdempotencyConflict), errors.Is(err, wallet.ErrAmountOverflow):
			logger.Warn("Ledger call rejected", "error", err)
			return nil, err
		}
		logger.Error("Failed to apply ledger transaction", "amount", req.Amount, "error", err)
		return nil, fmt.Errorf("failed to apply %s: %w", txType, err)
	}

	if result.Replayed {
		metrics.LedgerOperations.WithLabelValues(string(txType), "replayed").Inc()
		logger.Info("Idempotent replay", "transaction_id", result.Transaction.ID.String())
		s.auditor.Record(ctx, audit.NewEvent(audit.TenantRef(req.TenantID), req.Actor, audit.EventWalletReplay, audit.EntityWalletTransaction, result.Transaction.ID.String(), map[string]any{
			"type":            string(txType),
			"amount":          req.Amount,
			"idempotency_key": req.IdempotencyKey,
		}))
		return result, nil
	}

	metrics.LedgerOperations.WithLabelValues(string(txType), "applied").Inc()
	logger.Info("Ledger transaction applied", "transaction_id", result.Transaction.ID.String(), "amount", req.Amount, "balance", result.Balance)

	eventType := audit.EventWalletCredited
	if txType == wallet.TransactionTypeDebit {
		eventType = audit.EventWalletDebited
	}
	md := map[string]any{
		"amount":        req.Amount,
		"reason":        req.Reason,
		"balance_after": result.Balance,
		"override":      req.Override,
	}
	if req.IdempotencyKey != "" {
		md["idempotency_key"] = req.IdempotencyKey
	}
	s.auditor.Record(ctx, audit.NewEvent(audit.TenantRef(req.TenantID), req.Actor, eventType, audit.EntityWalletTransaction, result.Transaction.ID.String(), md))
	return result, nil
}

func (s *Service) replay(ctx context.Context, txType wallet.TransactionType, req Request) (*Result, error) {
	existing, err := s.repo.GetTransactionByIdempotencyKey(ctx, req.TenantID, req.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, wallet.ErrDuplicateTransaction
	}
	if !existing.Matches(txType, req.Amount) {
		return nil, wallet.ErrIdempotencyConflict
	}
	acc, err := s.repo.GetAccount(ctx, req.TenantID)
	if err != nil {
		return nil, err
	}
	return &Result{Transaction: existing, Balance: acc.Balance, Replayed: true}, nil
}

func outcomeFor(err error) string {
	var insufficient *wallet.InsufficientFundsError
	var concurrent *wallet.ConcurrentModificationError
	switch {
	case errors.As(err, &insufficient):
		return "insufficient_funds"
	case errors.As(err, &concurrent), errors.Is(err, wallet.ErrIdempotencyConflict):
		return "conflict"
	case errors.Is(err, &wallet.TenantNotFoundError{}):
		return "tenant_not_found"
	case errors.Is(err, wallet.ErrAmountOverflow):
		return "overflow"
	}
	return "error"
}

// GetBalance returns the cached wallet balance
func (s *Service) GetBalance(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	acc, err := s.repo.GetAccount(ctx, tenantID)
	if err != nil {
		return 0, err
	}
	return acc.Balance, nil
}

// HasTransactionType reports whether the tenant ever received a movement with
// the given reason tag, making one-time grants idempotent per business reason
func (s *Service) HasTransactionType(ctx context.Context, tenantID uuid.UUID, reasonTag string) (bool, error) {
	if reasonTag == "" {
		return false, wallet.ErrMissingReason
	}
	found, err := s.repo.HasTransactionWithReason(ctx, tenantID, reasonTag)
	if err != nil {
		return false, fmt.Errorf("failed to look up transaction reason: %w", err)
	}
	return found, nil
}

// ListTransactions returns the tenant's transactions, newest first
func (s *Service) ListTransactions(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]*wallet.Transaction, error) {
	if limit <= 0 || limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListTransactions(ctx, tenantID, limit, offset)
}

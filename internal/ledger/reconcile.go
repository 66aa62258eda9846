package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/tenantops/safety-core/internal/domain/audit"
	"github.com/tenantops/safety-core/internal/domain/failure"
	"github.com/tenantops/safety-core/internal/failuretracker"
	"github.com/tenantops/safety-core/internal/metrics"
)

// DriftSource is the failure source raised for balance drift
const DriftSource = "ledger"

// Reconciliation compares the cached balance with the transaction sum
type Reconciliation struct {
	TenantID        uuid.UUID `json:"tenant_id"`
	CachedBalance   int64     `json:"cached_balance"`
	ComputedBalance int64     `json:"computed_balance"`
	Drift           int64     `json:"drift"`
}

func (r *Reconciliation) Consistent() bool {
	return r.Drift == 0
}

// ReconcileSummary aggregates a ReconcileAll run
type ReconcileSummary struct {
	Checked int         `json:"checked"`
	Drifted []uuid.UUID `json:"drifted"`
	Errors  int         `json:"errors"`
}

// Reconcile recomputes the tenant balance from its transactions. Drift raises
// a critical system failure for the tenant; a consistent wallet resolves it.
// The cached balance is never rewritten here.
func (s *Service) Reconcile(ctx context.Context, tenantID uuid.UUID, actor audit.Actor) (*Reconciliation, error) {
	if err := actor.Validate(); err != nil {
		return nil, err
	}

	rec := &Reconciliation{TenantID: tenantID}
	err := s.txRunner.ExecuteTx(ctx, func(tx pgx.Tx) error {
		repoTx := s.repo.WithTx(tx)

		// the lock keeps ledger writes out while summing
		acc, err := repoTx.LockAccount(ctx, tenantID)
		if err != nil {
			return err
		}
		sum, err := repoTx.SumTransactions(ctx, tenantID)
		if err != nil {
			return err
		}
		rec.CachedBalance = acc.Balance
		rec.ComputedBalance = sum
		rec.Drift = acc.Balance - sum
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to reconcile wallet", "tenant_id", tenantID.String(), "error", err)
		return nil, fmt.Errorf("failed to reconcile wallet: %w", err)
	}

	if rec.Consistent() {
		if _, err := s.failures.Resolve(ctx, tenantID, DriftSource, failure.CategorySystem, actor); err != nil {
			s.logger.Error("Failed to resolve drift failure", "tenant_id", tenantID.String(), "error", err)
			return rec, err
		}
		return rec, nil
	}

	metrics.LedgerReconcileDrift.Inc()
	s.logger.Error("Wallet balance drift detected", "tenant_id", tenantID.String(), "cached", rec.CachedBalance, "computed", rec.ComputedBalance, "drift", rec.Drift)

	s.auditor.Record(ctx, audit.NewEvent(audit.TenantRef(tenantID), actor, audit.EventWalletReconciled, audit.EntityWallet, tenantID.String(), map[string]any{
		"cached_balance":   rec.CachedBalance,
		"computed_balance": rec.ComputedBalance,
		"drift":            rec.Drift,
	}))

	_, err = s.failures.Raise(ctx, failuretracker.RaiseRequest{
		TenantID: tenantID,
		Category: failure.CategorySystem,
		Source:   DriftSource,
		Severity: failure.SeverityCritical,
		Message:  fmt.Sprintf("cached balance %d differs from transaction sum %d", rec.CachedBalance, rec.ComputedBalance),
		Metadata: map[string]any{"drift": rec.Drift},
		Actor:    actor,
	})
	if err != nil {
		s.logger.Error("Failed to raise drift failure", "tenant_id", tenantID.String(), "error", err)
		return rec, err
	}
	return rec, nil
}

// ReconcileAll walks every wallet in pages of batchSize. A tenant that fails
// to reconcile is counted and skipped.
func (s *Service) ReconcileAll(ctx context.Context, batchSize int, actor audit.Actor) (*ReconcileSummary, error) {
	if batchSize <= 0 {
		batchSize = 500
	}
	summary := &ReconcileSummary{}
	for offset := 0; ; offset += batchSize {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		ids, err := s.repo.ListTenantIDs(ctx, batchSize, offset)
		if err != nil {
			return summary, fmt.Errorf("failed to list wallets: %w", err)
		}
		for _, tenantID := range ids {
			rec, err := s.Reconcile(ctx, tenantID, actor)
			summary.Checked++
			if err != nil {
				summary.Errors++
				continue
			}
			if !rec.Consistent() {
				summary.Drifted = append(summary.Drifted, tenantID)
			}
		}
		if len(ids) < batchSize {
			break
		}
	}
	s.logger.Info("Reconciliation finished", "checked", summary.Checked, "drifted", len(summary.Drifted), "errors", summary.Errors)
	return summary, nil
}

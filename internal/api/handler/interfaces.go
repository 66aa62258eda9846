package handler

import (
	"context"

	"github.com/google/uuid"
	"github.com/tenantops/safety-core/internal/controlgate"
	"github.com/tenantops/safety-core/internal/domain/audit"
	"github.com/tenantops/safety-core/internal/domain/control"
	"github.com/tenantops/safety-core/internal/domain/failure"
	"github.com/tenantops/safety-core/internal/domain/wallet"
	"github.com/tenantops/safety-core/internal/failuretracker"
	"github.com/tenantops/safety-core/internal/ledger"
)

type LedgerService interface {
	Credit(ctx context.Context, req ledger.Request) (*ledger.Result, error)
	Debit(ctx context.Context, req ledger.Request) (*ledger.Result, error)
	GetBalance(ctx context.Context, tenantID uuid.UUID) (int64, error)
	HasTransactionType(ctx context.Context, tenantID uuid.UUID, reasonTag string) (bool, error)
	ListTransactions(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]*wallet.Transaction, error)
	Reconcile(ctx context.Context, tenantID uuid.UUID, actor audit.Actor) (*ledger.Reconciliation, error)
}

type ControlService interface {
	ToggleGlobal(ctx context.Context, key control.FlagKey, value bool, actor audit.Actor, reason string) (*control.Flag, error)
	ToggleTenant(ctx context.Context, tenantID uuid.UUID, key control.FlagKey, value bool, actor audit.Actor, reason string) (*control.Flag, error)
	CheckAction(ctx context.Context, tenantID uuid.UUID, action control.Action) error
	Snapshot() *controlgate.Snapshot
}

type FailureService interface {
	Raise(ctx context.Context, req failuretracker.RaiseRequest) (*failuretracker.RaiseResult, error)
	Resolve(ctx context.Context, tenantID uuid.UUID, source string, category failure.Category, actor audit.Actor) ([]uuid.UUID, error)
	ListActive(ctx context.Context, tenantID uuid.UUID) ([]*failure.Failure, error)
}

type AuditService interface {
	List(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]*audit.Event, error)
}

// Pinger is a dependency checked by /health
type Pinger interface {
	Ping(ctx context.Context) error
}

// AuditBacklog reports audit events waiting for a retry
type AuditBacklog interface {
	Pending() int
}

// PoolStats reports worker pool occupancy
type PoolStats interface {
	Running() int
	Capacity() int
}

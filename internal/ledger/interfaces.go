package ledger

import (
	"context"

	"github.com/google/uuid"
	"github.com/tenantops/safety-core/internal/domain/audit"
	"github.com/tenantops/safety-core/internal/domain/failure"
	"github.com/tenantops/safety-core/internal/failuretracker"
)

type Auditor interface {
	Record(ctx context.Context, ev audit.Event)
}

// FailureReporter receives reconciliation drift
type FailureReporter interface {
	Raise(ctx context.Context, req failuretracker.RaiseRequest) (*failuretracker.RaiseResult, error)
	Resolve(ctx context.Context, tenantID uuid.UUID, source string, category failure.Category, actor audit.Actor) ([]uuid.UUID, error)
}

package controlgate

import (
	"context"

	"github.com/google/uuid"
	"github.com/tenantops/safety-core/internal/domain/audit"
	"github.com/tenantops/safety-core/internal/domain/failure"
)

// BlockerChecker answers which critical failures are active for a tenant
type BlockerChecker interface {
	CheckBlockers(ctx context.Context, tenantID uuid.UUID, category *failure.Category) ([]*failure.Failure, error)
}

type Auditor interface {
	Record(ctx context.Context, ev audit.Event)
}

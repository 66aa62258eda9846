package failuretracker

import (
	"context"

	"github.com/tenantops/safety-core/internal/domain/audit"
)

// Auditor records audit events after the owning transaction committed
type Auditor interface {
	Record(ctx context.Context, ev audit.Event)
}

package payments

import (
	"context"

	"github.com/google/uuid"
	"github.com/tenantops/safety-core/internal/domain/audit"
	"github.com/tenantops/safety-core/internal/domain/control"
	"github.com/tenantops/safety-core/internal/domain/failure"
	"github.com/tenantops/safety-core/internal/domain/shared"
	"github.com/tenantops/safety-core/internal/failuretracker"
	"github.com/tenantops/safety-core/internal/ledger"
)

// Processor applies one decoded payment event
type Processor interface {
	Process(ctx context.Context, event *shared.PaymentEvent) error
}

type Ledger interface {
	Credit(ctx context.Context, req ledger.Request) (*ledger.Result, error)
	Debit(ctx context.Context, req ledger.Request) (*ledger.Result, error)
}

type Controls interface {
	ToggleTenant(ctx context.Context, tenantID uuid.UUID, key control.FlagKey, value bool, actor audit.Actor, reason string) (*control.Flag, error)
}

type Failures interface {
	Raise(ctx context.Context, req failuretracker.RaiseRequest) (*failuretracker.RaiseResult, error)
	Resolve(ctx context.Context, tenantID uuid.UUID, source string, category failure.Category, actor audit.Actor) ([]uuid.UUID, error)
}

// DeadLetterPublisher receives messages that can never be applied
type DeadLetterPublisher interface {
	PublishToDLQ(ctx context.Context, key string, originalMessageValue []byte, reason string) error
}

package audit

import (
	"context"

	"github.com/google/uuid"
)

// Repository is the append-only event store
type Repository interface {
	// Insert appends an event. Inserting an id that already exists is a no-op.
	Insert(ctx context.Context, event *Event) error
	// ListByTenant returns a tenant's events in insertion order
	ListByTenant(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]*Event, error)
}

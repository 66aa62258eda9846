package control

import (
	"context"

	"github.com/google/uuid"
)

// Repository manages persisted flags
type Repository interface {
	// ListAll returns every global and tenant-scoped flag row
	ListAll(ctx context.Context) ([]*Flag, error)
	// Get returns ErrFlagNotFound when the row does not exist
	Get(ctx context.Context, key FlagKey, tenantID *uuid.UUID) (*Flag, error)
	// Insert returns ErrConcurrentFlagUpdate if the row appeared concurrently
	Insert(ctx context.Context, flag *Flag) error
	// Update writes the flag if its stored version is flag.Version-1
	Update(ctx context.Context, flag *Flag) error
	// EnsureGlobalDefaults inserts missing global rows without touching existing ones
	EnsureGlobalDefaults(ctx context.Context, updatedBy string) error
}

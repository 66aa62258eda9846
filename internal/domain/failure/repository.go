package failure

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type Repository interface {
	// FindActiveForUpdate locks the active rows of key; must run inside WithTx
	FindActiveForUpdate(ctx context.Context, key Key) ([]*Failure, error)
	// Insert returns ErrActiveExists when the partial unique index rejects the row
	Insert(ctx context.Context, f *Failure) error
	Update(ctx context.Context, f *Failure) error
	ListActive(ctx context.Context, tenantID uuid.UUID, category *Category, criticalOnly bool) ([]*Failure, error)
	WithTx(tx pgx.Tx) Repository
}

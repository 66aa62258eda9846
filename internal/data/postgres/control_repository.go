package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/tenantops/safety-core/internal/domain/control"
	"github.com/tenantops/safety-core/internal/platform/persistence"
)

// ControlRepository implements control.Repository for PostgreSQL
type ControlRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

func NewControlRepository(logger *slog.Logger, db *persistence.PostgresDB) control.Repository {
	return &ControlRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

func (r *ControlRepository) ListAll(ctx context.Context) ([]*control.Flag, error) {
	query := `
		SELECT key, scope, tenant_id, value, version, updated_by, updated_at, COALESCE(reason, '')
		FROM control_flags
		ORDER BY scope, key
	`

	rows, err := r.querier.Query(ctx, query)
	if err != nil {
		r.logger.Error("Failed to list control flags", "error", err)
		return nil, fmt.Errorf("failed to list control flags: %w", err)
	}
	defer rows.Close()

	var flags []*control.Flag
	for rows.Next() {
		var f control.Flag
		if err := rows.Scan(&f.Key, &f.Scope, &f.TenantID, &f.Value, &f.Version, &f.UpdatedBy, &f.UpdatedAt, &f.Reason); err != nil {
			r.logger.Error("Failed to scan control flag", "error", err)
			return nil, fmt.Errorf("failed to scan control flag: %w", err)
		}
		flags = append(flags, &f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate control flags: %w", err)
	}
	return flags, nil
}

// Get returns the row for key in the given scope; a nil tenantID selects the global row
func (r *ControlRepository) Get(ctx context.Context, key control.FlagKey, tenantID *uuid.UUID) (*control.Flag, error) {
	query := `
		SELECT key, scope, tenant_id, value, version, updated_by, updated_at, COALESCE(reason, '')
		FROM control_flags
		WHERE key = $1 AND tenant_id IS NOT DISTINCT FROM $2
	`

	var f control.Flag
	err := r.querier.QueryRow(ctx, query, key, tenantID).Scan(
		&f.Key, &f.Scope, &f.TenantID, &f.Value, &f.Version, &f.UpdatedBy, &f.UpdatedAt, &f.Reason,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, control.ErrFlagNotFound
		}
		r.logger.Error("Failed to get control flag", "key", string(key), "error", err)
		return nil, fmt.Errorf("failed to get control flag: %w", err)
	}
	return &f, nil
}

func (r *ControlRepository) Insert(ctx context.Context, f *control.Flag) error {
	query := `
		INSERT INTO control_flags (key, scope, tenant_id, value, version, updated_by, updated_at, reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''))
	`

	_, err := r.querier.Exec(ctx, query, f.Key, f.Scope, f.TenantID, f.Value, f.Version, f.UpdatedBy, f.UpdatedAt, f.Reason)
	if err != nil {
		if isUniqueViolation(err, "") {
			return control.ErrConcurrentFlagUpdate
		}
		r.logger.Error("Failed to insert control flag", "key", string(f.Key), "error", err)
		return fmt.Errorf("failed to insert control flag: %w", err)
	}
	return nil
}

// Update writes the flag when the stored version is still f.Version-1
func (r *ControlRepository) Update(ctx context.Context, f *control.Flag) error {
	query := `
		UPDATE control_flags
		SET value = $1, version = $2, updated_by = $3, updated_at = $4, reason = NULLIF($5, '')
		WHERE key = $6 AND tenant_id IS NOT DISTINCT FROM $7 AND version = $8
	`

	result, err := r.querier.Exec(ctx, query,
		f.Value,
		f.Version,
		f.UpdatedBy,
		f.UpdatedAt,
		f.Reason,
		f.Key,
		f.TenantID,
		f.Version-1,
	)
	if err != nil {
		r.logger.Error("Failed to update control flag", "key", string(f.Key), "error", err)
		return fmt.Errorf("failed to update control flag: %w", err)
	}
	if result.RowsAffected() == 0 {
		return control.ErrConcurrentFlagUpdate
	}
	return nil
}

// EnsureGlobalDefaults inserts the provisioning value of every global flag that has no row yet
func (r *ControlRepository) EnsureGlobalDefaults(ctx context.Context, updatedBy string) error {
	query := `
		INSERT INTO control_flags (key, scope, tenant_id, value, version, updated_by, reason)
		VALUES ($1, 'global', NULL, $2, 1, $3, 'provisioned')
		ON CONFLICT DO NOTHING
	`

	for _, key := range control.AllFlagKeys {
		if _, err := r.querier.Exec(ctx, query, key, key.Default(), updatedBy); err != nil {
			r.logger.Error("Failed to provision control flag", "key", string(key), "error", err)
			return fmt.Errorf("failed to provision control flag %s: %w", key, err)
		}
	}
	return nil
}

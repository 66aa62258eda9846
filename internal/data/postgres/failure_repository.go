package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/tenantops/safety-core/internal/domain/failure"
	"github.com/tenantops/safety-core/internal/platform/persistence"
)

const activeFailureIndex = "idx_failures_active"

// FailureRepository implements failure.Repository for PostgreSQL.
// Only active rows are ever read back; resolved rows are history.
type FailureRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

func NewFailureRepository(logger *slog.Logger, db *persistence.PostgresDB) failure.Repository {
	return &FailureRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

func (r *FailureRepository) WithTx(tx pgx.Tx) failure.Repository {
	return &FailureRepository{
		querier: tx,
		logger:  r.logger,
	}
}

const activeFailureColumns = `id, tenant_id, category, source, severity, message, metadata, created_at, updated_at`

func (r *FailureRepository) FindActiveForUpdate(ctx context.Context, key failure.Key) ([]*failure.Failure, error) {
	query := `
		SELECT ` + activeFailureColumns + `
		FROM failures
		WHERE tenant_id = $1 AND source = $2 AND category = $3 AND is_active
		ORDER BY created_at DESC
		FOR UPDATE
	`

	rows, err := r.querier.Query(ctx, query, key.TenantID, key.Source, key.Category)
	if err != nil {
		r.logger.Error("Failed to lock active failures", "tenant_id", key.TenantID.String(), "source", key.Source, "error", err)
		return nil, fmt.Errorf("failed to lock active failures: %w", err)
	}
	return r.collect(rows)
}

func (r *FailureRepository) Insert(ctx context.Context, f *failure.Failure) error {
	active, ok := f.State.(failure.Active)
	if !ok {
		return failure.ErrNotActive
	}
	metadata, err := encodeMetadata(f.Metadata)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO failures (id, tenant_id, category, source, severity, message, metadata, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE, $8, $9)
	`

	_, err = r.querier.Exec(ctx, query,
		f.ID,
		f.TenantID,
		f.Category,
		f.Source,
		active.Severity,
		active.Message,
		metadata,
		active.Since,
		f.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, activeFailureIndex) {
			return failure.ErrActiveExists
		}
		r.logger.Error("Failed to insert failure", "tenant_id", f.TenantID.String(), "source", f.Source, "error", err)
		return fmt.Errorf("failed to insert failure: %w", err)
	}
	return nil
}

// Update persists the current state of f. Resolved failures keep their last
// severity and message.
func (r *FailureRepository) Update(ctx context.Context, f *failure.Failure) error {
	var (
		query string
		args  []any
	)
	switch state := f.State.(type) {
	case failure.Active:
		metadata, err := encodeMetadata(f.Metadata)
		if err != nil {
			return err
		}
		query = `
			UPDATE failures
			SET severity = $1, message = $2, metadata = $3, created_at = $4, updated_at = $5
			WHERE id = $6 AND is_active
		`
		args = []any{state.Severity, state.Message, metadata, state.Since, f.UpdatedAt, f.ID}
	case failure.Resolved:
		query = `
			UPDATE failures
			SET is_active = FALSE, resolved_at = $1, updated_at = $2
			WHERE id = $3 AND is_active
		`
		args = []any{state.At, f.UpdatedAt, f.ID}
	default:
		return fmt.Errorf("unknown failure state %T", f.State)
	}

	result, err := r.querier.Exec(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to update failure", "id", f.ID.String(), "error", err)
		return fmt.Errorf("failed to update failure: %w", err)
	}
	if result.RowsAffected() == 0 {
		return failure.ErrNotActive
	}
	return nil
}

// ListActive returns active failures of the tenant, optionally restricted to a
// category and to critical severity
func (r *FailureRepository) ListActive(ctx context.Context, tenantID uuid.UUID, category *failure.Category, criticalOnly bool) ([]*failure.Failure, error) {
	var b strings.Builder
	b.WriteString(`
		SELECT ` + activeFailureColumns + `
		FROM failures
		WHERE tenant_id = $1 AND is_active`)
	args := []any{tenantID}
	if category != nil {
		args = append(args, *category)
		fmt.Fprintf(&b, " AND category = $%d", len(args))
	}
	if criticalOnly {
		args = append(args, failure.SeverityCritical)
		fmt.Fprintf(&b, " AND severity = $%d", len(args))
	}
	b.WriteString(`
		ORDER BY created_at DESC
	`)

	rows, err := r.querier.Query(ctx, b.String(), args...)
	if err != nil {
		r.logger.Error("Failed to list active failures", "tenant_id", tenantID.String(), "error", err)
		return nil, fmt.Errorf("failed to list active failures: %w", err)
	}
	return r.collect(rows)
}

func (r *FailureRepository) collect(rows pgx.Rows) ([]*failure.Failure, error) {
	defer rows.Close()

	var failures []*failure.Failure
	for rows.Next() {
		var (
			f        failure.Failure
			severity failure.Severity
			message  string
			metadata []byte
			since    time.Time
		)
		if err := rows.Scan(&f.ID, &f.TenantID, &f.Category, &f.Source, &severity, &message, &metadata, &since, &f.UpdatedAt); err != nil {
			r.logger.Error("Failed to scan failure", "error", err)
			return nil, fmt.Errorf("failed to scan failure: %w", err)
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &f.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode failure metadata: %w", err)
			}
		}
		f.CreatedAt = since
		f.State = failure.Active{Severity: severity, Message: message, Since: since}
		failures = append(failures, &f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate failures: %w", err)
	}
	return failures, nil
}

func encodeMetadata(metadata map[string]any) ([]byte, error) {
	if metadata == nil {
		return nil, nil
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to encode failure metadata: %w", err)
	}
	return raw, nil
}

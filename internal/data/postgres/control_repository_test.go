package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tenantops/safety-core/internal/domain/control"
)

var flagColumns = []string{"key", "scope", "tenant_id", "value", "version", "updated_by", "updated_at", "reason"}

func TestControlRepository_ListAll(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &ControlRepository{querier: mock, logger: newTestLogger()}
	tenantID := uuid.New()
	now := time.Now()
	var global *uuid.UUID

	query := `
		SELECT key, scope, tenant_id, value, version, updated_by, updated_at, COALESCE\(reason, ''\)
		FROM control_flags
		ORDER BY scope, key
	`

	t.Run("success", func(t *testing.T) {
		rows := pgxmock.NewRows(flagColumns).
			AddRow(control.FlagAIGlobalEnabled, control.ScopeGlobal, global, true, 1, "migration", now, "provisioned").
			AddRow(control.FlagAIGlobalEnabled, control.ScopeTenant, &tenantID, false, 2, "admin-1", now, "abuse report")
		mock.ExpectQuery(query).WillReturnRows(rows)

		flags, err := repo.ListAll(ctx)
		require.NoError(t, err)
		require.Len(t, flags, 2)
		assert.Nil(t, flags[0].TenantID)
		require.NotNil(t, flags[1].TenantID)
		assert.Equal(t, tenantID, *flags[1].TenantID)
		assert.False(t, flags[1].Value)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("db error", func(t *testing.T) {
		mock.ExpectQuery(query).WillReturnError(errors.New("connection refused"))

		flags, err := repo.ListAll(ctx)
		assert.Nil(t, flags)
		assert.ErrorContains(t, err, "failed to list control flags")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestControlRepository_Get(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &ControlRepository{querier: mock, logger: newTestLogger()}
	tenantID := uuid.New()

	query := `
		SELECT key, scope, tenant_id, value, version, updated_by, updated_at, COALESCE\(reason, ''\)
		FROM control_flags
		WHERE key = \$1 AND tenant_id IS NOT DISTINCT FROM \$2
	`

	t.Run("not found", func(t *testing.T) {
		mock.ExpectQuery(query).WithArgs(control.FlagPaymentsGlobalEnabled, &tenantID).WillReturnError(pgx.ErrNoRows)

		f, err := repo.Get(ctx, control.FlagPaymentsGlobalEnabled, &tenantID)
		assert.Nil(t, f)
		assert.ErrorIs(t, err, control.ErrFlagNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestControlRepository_Insert(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &ControlRepository{querier: mock, logger: newTestLogger()}
	tenantID := uuid.New()
	f := &control.Flag{
		Key: control.FlagAIGlobalEnabled, Scope: control.ScopeTenant, TenantID: &tenantID,
		Value: false, Version: 1, UpdatedBy: "admin-1", UpdatedAt: time.Now(), Reason: "abuse report",
	}

	query := `
		INSERT INTO control_flags \(key, scope, tenant_id, value, version, updated_by, updated_at, reason\)
		VALUES \(\$1, \$2, \$3, \$4, \$5, \$6, \$7, NULLIF\(\$8, ''\)\)
	`

	t.Run("success", func(t *testing.T) {
		mock.ExpectExec(query).
			WithArgs(f.Key, f.Scope, f.TenantID, f.Value, f.Version, f.UpdatedBy, f.UpdatedAt, f.Reason).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		assert.NoError(t, repo.Insert(ctx, f))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("row created concurrently", func(t *testing.T) {
		mock.ExpectExec(query).
			WithArgs(f.Key, f.Scope, f.TenantID, f.Value, f.Version, f.UpdatedBy, f.UpdatedAt, f.Reason).
			WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "idx_control_flags_tenant"})

		assert.ErrorIs(t, repo.Insert(ctx, f), control.ErrConcurrentFlagUpdate)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestControlRepository_Update(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &ControlRepository{querier: mock, logger: newTestLogger()}
	f := &control.Flag{
		Key: control.FlagIncidentModeEnabled, Scope: control.ScopeGlobal,
		Value: true, Version: 5, UpdatedBy: "oncall", UpdatedAt: time.Now(), Reason: "provider outage",
	}

	query := `
		UPDATE control_flags
		SET value = \$1, version = \$2, updated_by = \$3, updated_at = \$4, reason = NULLIF\(\$5, ''\)
		WHERE key = \$6 AND tenant_id IS NOT DISTINCT FROM \$7 AND version = \$8
	`

	t.Run("success", func(t *testing.T) {
		mock.ExpectExec(query).
			WithArgs(f.Value, f.Version, f.UpdatedBy, f.UpdatedAt, f.Reason, f.Key, f.TenantID, 4).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		assert.NoError(t, repo.Update(ctx, f))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("version moved", func(t *testing.T) {
		mock.ExpectExec(query).
			WithArgs(f.Value, f.Version, f.UpdatedBy, f.UpdatedAt, f.Reason, f.Key, f.TenantID, 4).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		assert.ErrorIs(t, repo.Update(ctx, f), control.ErrConcurrentFlagUpdate)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestControlRepository_EnsureGlobalDefaults(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &ControlRepository{querier: mock, logger: newTestLogger()}

	query := `
		INSERT INTO control_flags \(key, scope, tenant_id, value, version, updated_by, reason\)
		VALUES \(\$1, 'global', NULL, \$2, 1, \$3, 'provisioned'\)
		ON CONFLICT DO NOTHING
	`

	for _, key := range control.AllFlagKeys {
		mock.ExpectExec(query).WithArgs(key, key.Default(), "safety-core").WillReturnResult(pgxmock.NewResult("INSERT", 0))
	}

	require.NoError(t, repo.EnsureGlobalDefaults(ctx, "safety-core"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

package memstore

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/tenantops/safety-core/internal/domain/failure"
)

type failureRepo struct {
	s *Store
}

func (r *failureRepo) WithTx(pgx.Tx) failure.Repository { return r }

func (r *failureRepo) FindActiveForUpdate(_ context.Context, key failure.Key) ([]*failure.Failure, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*failure.Failure
	for _, row := range r.s.data.failures {
		if row.isActive && row.f.Key() == key {
			f := row.f
			out = append(out, &f)
		}
	}
	return out, nil
}

func (r *failureRepo) Insert(_ context.Context, f *failure.Failure) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, row := range r.s.data.failures {
		if row.isActive && row.f.Key() == f.Key() {
			return failure.ErrActiveExists
		}
	}
	r.s.data.failures = append(r.s.data.failures, failureRow{f: *f, isActive: true})
	return nil
}

func (r *failureRepo) Update(_ context.Context, f *failure.Failure) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i, row := range r.s.data.failures {
		if row.f.ID == f.ID && row.isActive {
			r.s.data.failures[i] = failureRow{f: *f, isActive: f.IsActive()}
			return nil
		}
	}
	return failure.ErrNotActive
}

func (r *failureRepo) ListActive(_ context.Context, tenantID uuid.UUID, category *failure.Category, criticalOnly bool) ([]*failure.Failure, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if r.s.faults.FailureList != nil {
		return nil, r.s.faults.FailureList
	}
	var out []*failure.Failure
	for _, row := range r.s.data.failures {
		if !row.isActive || row.f.TenantID != tenantID {
			continue
		}
		if category != nil && row.f.Category != *category {
			continue
		}
		if criticalOnly && !row.f.IsCritical() {
			continue
		}
		f := row.f
		out = append(out, &f)
	}
	return out, nil
}

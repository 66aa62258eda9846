package memstore

import (
	"context"

	"github.com/google/uuid"
	"github.com/tenantops/safety-core/internal/domain/control"
)

type controlRepo struct {
	s *Store
}

func idFor(key control.FlagKey, tenantID *uuid.UUID) flagID {
	id := flagID{key: key}
	if tenantID != nil {
		id.tenant = *tenantID
	}
	return id
}

func (r *controlRepo) ListAll(context.Context) ([]*control.Flag, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if r.s.faults.FlagList != nil {
		return nil, r.s.faults.FlagList
	}
	out := make([]*control.Flag, 0, len(r.s.data.flags))
	for _, f := range r.s.data.flags {
		flag := f
		out = append(out, &flag)
	}
	return out, nil
}

func (r *controlRepo) Get(_ context.Context, key control.FlagKey, tenantID *uuid.UUID) (*control.Flag, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	f, ok := r.s.data.flags[idFor(key, tenantID)]
	if !ok {
		return nil, control.ErrFlagNotFound
	}
	return &f, nil
}

func (r *controlRepo) Insert(_ context.Context, f *control.Flag) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	id := idFor(f.Key, f.TenantID)
	if _, ok := r.s.data.flags[id]; ok {
		return control.ErrConcurrentFlagUpdate
	}
	r.s.data.flags[id] = *f
	return nil
}

func (r *controlRepo) Update(_ context.Context, f *control.Flag) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	id := idFor(f.Key, f.TenantID)
	stored, ok := r.s.data.flags[id]
	if !ok || stored.Version != f.Version-1 {
		return control.ErrConcurrentFlagUpdate
	}
	r.s.data.flags[id] = *f
	return nil
}

func (r *controlRepo) EnsureGlobalDefaults(_ context.Context, updatedBy string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, key := range control.AllFlagKeys {
		id := flagID{key: key}
		if _, ok := r.s.data.flags[id]; ok {
			continue
		}
		r.s.data.flags[id] = control.Flag{
			Key:       key,
			Scope:     control.ScopeGlobal,
			Value:     key.Default(),
			Version:   1,
			UpdatedBy: updatedBy,
			Reason:    "provisioned",
		}
	}
	return nil
}

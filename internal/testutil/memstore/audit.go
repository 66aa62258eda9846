package memstore

import (
	"context"

	"github.com/google/uuid"
	"github.com/tenantops/safety-core/internal/domain/audit"
)

type auditRepo struct {
	s *Store
}

func (r *auditRepo) Insert(_ context.Context, event *audit.Event) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.faults.AuditInsert != nil {
		return r.s.faults.AuditInsert
	}
	for _, existing := range r.s.events {
		if existing.ID == event.ID {
			return nil
		}
	}
	r.s.events = append(r.s.events, *event)
	return nil
}

func (r *auditRepo) ListByTenant(_ context.Context, tenantID uuid.UUID, limit, offset int) ([]*audit.Event, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*audit.Event
	for _, ev := range r.s.events {
		if ev.TenantID != nil && *ev.TenantID == tenantID {
			e := ev
			out = append(out, &e)
		}
	}
	return page(out, limit, offset), nil
}

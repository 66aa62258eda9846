package controlgate

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/tenantops/safety-core/internal/domain/control"
)

// Snapshot is an immutable view of every flag row, swapped atomically on reload
type Snapshot struct {
	Global   map[control.FlagKey]*control.Flag
	Tenant   map[uuid.UUID]map[control.FlagKey]*control.Flag
	LoadedAt time.Time
}

func newSnapshot(flags []*control.Flag, loadedAt time.Time) *Snapshot {
	s := &Snapshot{
		Global:   make(map[control.FlagKey]*control.Flag),
		Tenant:   make(map[uuid.UUID]map[control.FlagKey]*control.Flag),
		LoadedAt: loadedAt,
	}
	for _, f := range flags {
		if f.Scope == control.ScopeGlobal || f.TenantID == nil {
			s.Global[f.Key] = f
			continue
		}
		byKey, ok := s.Tenant[*f.TenantID]
		if !ok {
			byKey = make(map[control.FlagKey]*control.Flag)
			s.Tenant[*f.TenantID] = byKey
		}
		byKey[f.Key] = f
	}
	return s
}

// GlobalValue returns the global value of key, falling back to its default
func (s *Snapshot) GlobalValue(key control.FlagKey) bool {
	if f, ok := s.Global[key]; ok {
		return f.Value
	}
	return key.Default()
}

// TenantValue returns the tenant override of key. A tenant without an
// override is not paused.
func (s *Snapshot) TenantValue(tenantID uuid.UUID, key control.FlagKey) bool {
	if !key.TenantScoped() {
		return true
	}
	if f, ok := s.Tenant[tenantID][key]; ok {
		return f.Value
	}
	return true
}

// GlobalFlags lists the effective global flags in AllFlagKeys order
func (s *Snapshot) GlobalFlags() []control.Flag {
	out := make([]control.Flag, 0, len(control.AllFlagKeys))
	for _, key := range control.AllFlagKeys {
		if f, ok := s.Global[key]; ok {
			out = append(out, *f)
			continue
		}
		out = append(out, control.Flag{Key: key, Scope: control.ScopeGlobal, Value: key.Default()})
	}
	return out
}

// TenantFlags lists the overrides stored for one tenant
func (s *Snapshot) TenantFlags(tenantID uuid.UUID) []control.Flag {
	byKey := s.Tenant[tenantID]
	out := make([]control.Flag, 0, len(byKey))
	for _, f := range byKey {
		out = append(out, *f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Package controlgate evaluates kill switches and critical failures before
// risky actions run. Reads never touch the database: flags are served from an
// in-memory snapshot reloaded after every write and on a ticker.
package controlgate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/tenantops/safety-core/internal/config"
	"github.com/tenantops/safety-core/internal/domain/audit"
	"github.com/tenantops/safety-core/internal/domain/control"
	"github.com/tenantops/safety-core/internal/metrics"
)

const provisioningActor = "provisioning"

// a snapshot not reloaded for staleFactor refresh intervals counts as unavailable
const staleFactor = 3

type Gate struct {
	repo         control.Repository
	blockers     BlockerChecker
	auditor      Auditor
	logger       *slog.Logger
	interval     time.Duration
	writeRetries int
	snap         atomic.Pointer[Snapshot]
	now          func() time.Time
}

func NewGate(cfg *config.ControlConfig, repo control.Repository, blockers BlockerChecker, auditor Auditor, logger *slog.Logger) *Gate {
	return &Gate{
		repo:         repo,
		blockers:     blockers,
		auditor:      auditor,
		logger:       logger.With("component", "control_gate"),
		interval:     cfg.RefreshInterval,
		writeRetries: cfg.WriteRetries,
		now:          time.Now,
	}
}

// EnsureDefaults provisions the missing global rows and loads the snapshot
func (g *Gate) EnsureDefaults(ctx context.Context) error {
	if err := g.repo.EnsureGlobalDefaults(ctx, provisioningActor); err != nil {
		g.logger.Error("Failed to provision default flags", "error", err)
		return fmt.Errorf("failed to provision default flags: %w", err)
	}
	return g.Refresh(ctx)
}

// Refresh reloads every flag row. On failure the previous snapshot stays in place.
func (g *Gate) Refresh(ctx context.Context) error {
	flags, err := g.repo.ListAll(ctx)
	if err != nil {
		metrics.FlagSnapshotErrors.Inc()
		g.logger.Error("Failed to reload control flags", "error", err)
		return fmt.Errorf("failed to reload control flags: %w", err)
	}
	g.snap.Store(newSnapshot(flags, g.now()))
	return nil
}

// Run reloads the snapshot every refresh interval until ctx is done
func (g *Gate) Run(ctx context.Context) {
	g.logger.Info("Control flag refresher started", "interval", g.interval.String())
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			g.logger.Info("Control flag refresher stopped")
			return
		case <-ticker.C:
			_ = g.Refresh(ctx)
		}
	}
}

// Snapshot returns the current view, or nil when none is usable
func (g *Gate) Snapshot() *Snapshot {
	s := g.snap.Load()
	if s == nil {
		return nil
	}
	if g.interval > 0 && g.now().Sub(s.LoadedAt) > staleFactor*g.interval {
		return nil
	}
	return s
}

// ToggleGlobal sets a platform-wide flag
func (g *Gate) ToggleGlobal(ctx context.Context, key control.FlagKey, value bool, actor audit.Actor, reason string) (*control.Flag, error) {
	if _, err := control.ParseFlagKey(string(key)); err != nil {
		return nil, err
	}
	return g.toggle(ctx, nil, key, value, actor, reason)
}

// ToggleTenant sets a tenant override. A reason is mandatory.
func (g *Gate) ToggleTenant(ctx context.Context, tenantID uuid.UUID, key control.FlagKey, value bool, actor audit.Actor, reason string) (*control.Flag, error) {
	if _, err := control.ParseFlagKey(string(key)); err != nil {
		return nil, err
	}
	if !key.TenantScoped() {
		return nil, control.ErrGlobalOnlyFlag
	}
	if tenantID == uuid.Nil {
		return nil, control.ErrMissingTenant
	}
	if reason == "" {
		return nil, control.ErrReasonRequired
	}
	return g.toggle(ctx, &tenantID, key, value, actor, reason)
}

func (g *Gate) toggle(ctx context.Context, tenantID *uuid.UUID, key control.FlagKey, value bool, actor audit.Actor, reason string) (*control.Flag, error) {
	if err := actor.Validate(); err != nil {
		return nil, err
	}

	scope := control.ScopeGlobal
	if tenantID != nil {
		scope = control.ScopeTenant
	}
	logger := g.logger.With("flag", string(key), "scope", string(scope), "actor_id", actor.ID)
	if tenantID != nil {
		logger = logger.With("tenant_id", tenantID.String())
	}

	var (
		written  *control.Flag
		oldValue bool
		err      error
	)
	attempts := max(g.writeRetries, 1)
	for attempt := 0; attempt < attempts; attempt++ {
		written, oldValue, err = g.writeFlag(ctx, tenantID, scope, key, value, actor, reason)
		if !errors.Is(err, control.ErrConcurrentFlagUpdate) {
			break
		}
		logger.Warn("Concurrent flag update, retrying", "attempt", attempt+1)
	}
	if err != nil {
		logger.Error("Failed to write control flag", "error", err)
		return nil, fmt.Errorf("failed to write control flag %s: %w", key, err)
	}

	metrics.FlagChanges.WithLabelValues(string(key), string(scope)).Inc()
	logger.Info("Control flag written", "old_value", oldValue, "new_value", value, "version", written.Version)

	g.auditor.Record(ctx, audit.NewEvent(tenantID, actor, audit.EventFlagChanged, audit.EntityControlFlag, string(key), map[string]any{
		"flag":      string(key),
		"scope":     string(scope),
		"old_value": oldValue,
		"new_value": value,
		"changed":   oldValue != value,
		"reason":    reason,
		"version":   written.Version,
	}))

	// the write is committed; a failed reload only delays visibility until the next tick
	_ = g.Refresh(ctx)
	return written, nil
}

func (g *Gate) writeFlag(ctx context.Context, tenantID *uuid.UUID, scope control.Scope, key control.FlagKey, value bool, actor audit.Actor, reason string) (*control.Flag, bool, error) {
	current, err := g.repo.Get(ctx, key, tenantID)
	if err != nil && !errors.Is(err, control.ErrFlagNotFound) {
		return nil, false, err
	}

	now := g.now().UTC()
	if current == nil {
		oldValue := true
		if tenantID == nil {
			oldValue = key.Default()
		}
		flag := &control.Flag{
			Key:       key,
			Scope:     scope,
			TenantID:  tenantID,
			Value:     value,
			Version:   1,
			UpdatedBy: actor.ID,
			UpdatedAt: now,
			Reason:    reason,
		}
		if err := g.repo.Insert(ctx, flag); err != nil {
			return nil, false, err
		}
		return flag, oldValue, nil
	}

	oldValue := current.Value
	next := *current
	next.Value = value
	next.Version = current.Version + 1
	next.UpdatedBy = actor.ID
	next.UpdatedAt = now
	next.Reason = reason
	if err := g.repo.Update(ctx, &next); err != nil {
		return nil, false, err
	}
	return &next, oldValue, nil
}

// CheckAction returns nil when action may run for the tenant and an
// *control.ActionBlockedError otherwise. Any missing input blocks.
func (g *Gate) CheckAction(ctx context.Context, tenantID uuid.UUID, action control.Action) error {
	policy, err := control.PolicyFor(action)
	if err != nil {
		return err
	}

	reason, blocked := g.evaluate(ctx, tenantID, policy)
	if !blocked {
		metrics.GateDecisions.WithLabelValues(string(action), "allowed", "").Inc()
		return nil
	}

	metrics.GateDecisions.WithLabelValues(string(action), "blocked", string(reason.Kind)).Inc()
	g.logger.Info("Action blocked", "tenant_id", tenantID.String(), "action", string(action), "kind", string(reason.Kind), "flag", string(reason.Flag))
	return &control.ActionBlockedError{TenantID: tenantID, Action: action, Reason: reason}
}

func (g *Gate) evaluate(ctx context.Context, tenantID uuid.UUID, policy control.Policy) (control.BlockReason, bool) {
	snap := g.Snapshot()
	if snap == nil {
		return control.BlockReason{Kind: control.BlockUnavailable}, true
	}

	if snap.GlobalValue(control.FlagIncidentModeEnabled) {
		return control.BlockReason{Kind: control.BlockIncidentMode, Flag: control.FlagIncidentModeEnabled}, true
	}
	for _, key := range policy.GlobalFlags {
		if !snap.GlobalValue(key) {
			return control.BlockReason{Kind: control.BlockGlobalFlag, Flag: key}, true
		}
	}
	for _, key := range policy.TenantFlags {
		if !snap.TenantValue(tenantID, key) {
			return control.BlockReason{Kind: control.BlockTenantFlag, Flag: key}, true
		}
	}

	for _, category := range policy.FailureCategories {
		category := category
		blockers, err := g.blockers.CheckBlockers(ctx, tenantID, &category)
		if err != nil {
			g.logger.Error("Failure state unknown, blocking", "tenant_id", tenantID.String(), "category", string(category), "error", err)
			return control.BlockReason{Kind: control.BlockFailureUnknown, Category: category}, true
		}
		if len(blockers) > 0 {
			f := blockers[0]
			return control.BlockReason{Kind: control.BlockActiveFailure, FailureID: f.ID, Source: f.Source, Category: f.Category}, true
		}
	}
	return control.BlockReason{}, false
}

// Package failuretracker keeps at most one active failure per
// (tenant, source, category) and answers whether critical failures block a tenant.
package failuretracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/tenantops/safety-core/internal/domain/audit"
	"github.com/tenantops/safety-core/internal/domain/failure"
	"github.com/tenantops/safety-core/internal/metrics"
	"github.com/tenantops/safety-core/internal/platform/persistence"
)

// Outcome of a Raise call
type Outcome string

const (
	OutcomeCreated   Outcome = "created"
	OutcomeUpdated   Outcome = "updated"
	OutcomeUnchanged Outcome = "unchanged"
)

// RaiseRequest reports one detection of a problem
type RaiseRequest struct {
	TenantID uuid.UUID
	Category failure.Category
	Source   string
	Severity failure.Severity
	Message  string
	Metadata map[string]any
	Actor    audit.Actor
}

type RaiseResult struct {
	Failure *failure.Failure
	Outcome Outcome
}

type Tracker struct {
	txRunner persistence.TxRunner
	repo     failure.Repository
	auditor  Auditor
	logger   *slog.Logger
}

func NewTracker(txRunner persistence.TxRunner, repo failure.Repository, auditor Auditor, logger *slog.Logger) *Tracker {
	return &Tracker{
		txRunner: txRunner,
		repo:     repo,
		auditor:  auditor,
		logger:   logger.With("component", "failure_tracker"),
	}
}

// Raise creates the active failure for the request key or refreshes the
// existing one. Repeated raises with the same severity and message leave the
// row untouched.
func (t *Tracker) Raise(ctx context.Context, req RaiseRequest) (*RaiseResult, error) {
	key := failure.NewKey(req.TenantID, req.Source, req.Category)
	if err := key.Validate(); err != nil {
		return nil, err
	}
	if !req.Severity.Valid() {
		return nil, failure.ErrInvalidSeverity
	}
	if err := req.Actor.Validate(); err != nil {
		return nil, err
	}

	logger := t.logger.With("tenant_id", key.TenantID.String(), "source", key.Source, "category", string(key.Category))

	var (
		result *RaiseResult
		err    error
	)
	// the partial unique index rejects a concurrent insert; the second pass
	// finds and locks the winner's row
	for attempt := 0; attempt < 2; attempt++ {
		result, err = t.raiseOnce(ctx, key, req)
		if !errors.Is(err, failure.ErrActiveExists) {
			break
		}
		logger.Warn("Active failure inserted concurrently, retrying", "attempt", attempt+1)
	}
	if err != nil {
		logger.Error("Failed to raise failure", "error", err)
		return nil, fmt.Errorf("failed to raise failure: %w", err)
	}

	metrics.FailureTransitions.WithLabelValues(string(key.Category), string(result.Outcome)).Inc()
	logger.Info("Failure raised", "failure_id", result.Failure.ID.String(), "outcome", string(result.Outcome), "severity", string(req.Severity))

	switch result.Outcome {
	case OutcomeCreated:
		t.audit(ctx, req.Actor, audit.EventFailureDetected, result.Failure)
	case OutcomeUpdated:
		t.audit(ctx, req.Actor, audit.EventFailureUpdated, result.Failure)
	}
	return result, nil
}

func (t *Tracker) raiseOnce(ctx context.Context, key failure.Key, req RaiseRequest) (*RaiseResult, error) {
	var result *RaiseResult
	err := t.txRunner.ExecuteTx(ctx, func(tx pgx.Tx) error {
		repoTx := t.repo.WithTx(tx)

		active, err := repoTx.FindActiveForUpdate(ctx, key)
		if err != nil {
			return err
		}

		if len(active) == 0 {
			f := failure.New(key, req.Severity, req.Message, req.Metadata)
			if err := repoTx.Insert(ctx, f); err != nil {
				return err
			}
			result = &RaiseResult{Failure: f, Outcome: OutcomeCreated}
			return nil
		}

		f := active[0]
		changed, err := f.Refresh(req.Severity, req.Message, req.Metadata)
		if err != nil {
			return err
		}
		if !changed {
			result = &RaiseResult{Failure: f, Outcome: OutcomeUnchanged}
			return nil
		}
		if err := repoTx.Update(ctx, f); err != nil {
			return err
		}
		result = &RaiseResult{Failure: f, Outcome: OutcomeUpdated}
		return nil
	})
	return result, err
}

// Resolve closes every active failure of the key and returns their ids.
// Resolving a key with no active failure is a no-op.
func (t *Tracker) Resolve(ctx context.Context, tenantID uuid.UUID, source string, category failure.Category, actor audit.Actor) ([]uuid.UUID, error) {
	key := failure.NewKey(tenantID, source, category)
	if err := key.Validate(); err != nil {
		return nil, err
	}
	if err := actor.Validate(); err != nil {
		return nil, err
	}

	var resolved []*failure.Failure
	err := t.txRunner.ExecuteTx(ctx, func(tx pgx.Tx) error {
		repoTx := t.repo.WithTx(tx)

		active, err := repoTx.FindActiveForUpdate(ctx, key)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		for _, f := range active {
			if err := f.Resolve(now); err != nil {
				return err
			}
			if err := repoTx.Update(ctx, f); err != nil {
				return err
			}
		}
		resolved = active
		return nil
	})
	if err != nil {
		t.logger.Error("Failed to resolve failures", "tenant_id", tenantID.String(), "source", key.Source, "category", string(category), "error", err)
		return nil, fmt.Errorf("failed to resolve failures: %w", err)
	}

	ids := make([]uuid.UUID, 0, len(resolved))
	for _, f := range resolved {
		ids = append(ids, f.ID)
		metrics.FailureTransitions.WithLabelValues(string(category), "resolved").Inc()
		t.audit(ctx, actor, audit.EventFailureResolved, f)
	}
	if len(ids) > 0 {
		t.logger.Info("Failures resolved", "tenant_id", tenantID.String(), "source", key.Source, "category", string(category), "count", len(ids))
	}
	return ids, nil
}

// CheckBlockers returns the active critical failures of the tenant,
// optionally narrowed to one category
func (t *Tracker) CheckBlockers(ctx context.Context, tenantID uuid.UUID, category *failure.Category) ([]*failure.Failure, error) {
	blockers, err := t.repo.ListActive(ctx, tenantID, category, true)
	if err != nil {
		return nil, fmt.Errorf("failed to check blockers: %w", err)
	}
	return blockers, nil
}

// ListActive returns every active failure of the tenant
func (t *Tracker) ListActive(ctx context.Context, tenantID uuid.UUID) ([]*failure.Failure, error) {
	active, err := t.repo.ListActive(ctx, tenantID, nil, false)
	if err != nil {
		return nil, fmt.Errorf("failed to list active failures: %w", err)
	}
	return active, nil
}

func (t *Tracker) audit(ctx context.Context, actor audit.Actor, eventType string, f *failure.Failure) {
	md := map[string]any{
		"category": string(f.Category),
		"source":   f.Source,
	}
	switch s := f.State.(type) {
	case failure.Active:
		md["severity"] = string(s.Severity)
		md["summary"] = s.Message
		md["since"] = s.Since
	case failure.Resolved:
		md["resolved_at"] = s.At
	}
	t.auditor.Record(ctx, audit.NewEvent(audit.TenantRef(f.TenantID), actor, eventType, audit.EntityFailure, f.ID.String(), md))
}

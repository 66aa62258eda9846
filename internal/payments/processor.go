// Package payments turns verified payment gateway events into ledger
// movements and subscription kill-switch changes.
package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tenantops/safety-core/internal/domain/audit"
	"github.com/tenantops/safety-core/internal/domain/control"
	"github.com/tenantops/safety-core/internal/domain/failure"
	"github.com/tenantops/safety-core/internal/domain/shared"
	"github.com/tenantops/safety-core/internal/domain/wallet"
	"github.com/tenantops/safety-core/internal/failuretracker"
	"github.com/tenantops/safety-core/internal/ledger"
)

// FailureSource is raised when payment events cannot be applied
const FailureSource = "payment-events"

// ErrRejected marks events that will never succeed; they are dead-lettered
// instead of redelivered
var ErrRejected = errors.New("payment event rejected")

// subscriptionFlags are paused while a tenant's subscription is suspended
var subscriptionFlags = []control.FlagKey{
	control.FlagPaymentsGlobalEnabled,
	control.FlagAIGlobalEnabled,
}

var consumerActor = audit.SystemActor("payment-events")

type EventProcessor struct {
	ledger   Ledger
	controls Controls
	failures Failures
	logger   *slog.Logger

	// tenants known to have no open payment-events failure
	healthy sync.Map

	// OccurredAt of the latest subscription state change applied per tenant
	subMu   sync.Mutex
	subSeen map[uuid.UUID]time.Time
}

func NewEventProcessor(ledgerSvc Ledger, controls Controls, failures Failures, logger *slog.Logger) *EventProcessor {
	return &EventProcessor{
		ledger:   ledgerSvc,
		controls: controls,
		failures: failures,
		logger:   logger,
		subSeen:  make(map[uuid.UUID]time.Time),
	}
}

// Process applies event. Errors wrapping ErrRejected are permanent; any other
// error means the event must be redelivered with the same event id.
func (p *EventProcessor) Process(ctx context.Context, event *shared.PaymentEvent) error {
	if err := event.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrRejected, err)
	}

	logger := p.logger.With("tenant_id", event.TenantID.String(), "event_id", event.EventID, "type", string(event.Type))
	if event.CorrelationID != "" {
		logger = logger.With("correlation_id", event.CorrelationID)
	}

	err := p.apply(ctx, event, logger)
	switch {
	case err == nil:
		p.markHealthy(ctx, event.TenantID, logger)
		return nil
	case isPermanent(err):
		logger.Warn("Payment event rejected", "error", err)
		return fmt.Errorf("%w: %w", ErrRejected, err)
	}

	logger.Error("Failed to apply payment event", "error", err)
	p.markFailing(ctx, event, err, logger)
	return err
}

func (p *EventProcessor) apply(ctx context.Context, event *shared.PaymentEvent, logger *slog.Logger) error {
	req := ledger.Request{
		TenantID:       event.TenantID,
		Amount:         event.Amount,
		Reason:         string(event.Type),
		IdempotencyKey: event.EventID,
		Actor:          consumerActor,
	}

	switch event.Type {
	case shared.PaymentEventChargeSucceeded, shared.PaymentEventTopupSucceeded, shared.PaymentEventSubscriptionCharged:
		res, err := p.ledger.Credit(ctx, req)
		if err != nil {
			return err
		}
		logger.Info("Payment credited", "replayed", res.Replayed, "balance", res.Balance)
		return nil

	case shared.PaymentEventRefundSucceeded:
		// money already left through the gateway; the wallet must follow
		req.Override = true
		res, err := p.ledger.Debit(ctx, req)
		if err != nil {
			return err
		}
		logger.Info("Refund debited", "replayed", res.Replayed, "balance", res.Balance)
		return nil

	case shared.PaymentEventSubscriptionSuspended:
		return p.setSubscriptionFlags(ctx, event, false, logger)

	case shared.PaymentEventSubscriptionReactivated:
		return p.setSubscriptionFlags(ctx, event, true, logger)
	}
	return shared.ErrInvalidEventType
}

// setSubscriptionFlags applies a suspension or reactivation unless a newer
// subscription change for the tenant was already applied. Events without
// OccurredAt are always applied.
func (p *EventProcessor) setSubscriptionFlags(ctx context.Context, event *shared.PaymentEvent, value bool, logger *slog.Logger) error {
	p.subMu.Lock()
	defer p.subMu.Unlock()

	if last, ok := p.subSeen[event.TenantID]; ok && !event.OccurredAt.IsZero() && event.OccurredAt.Before(last) {
		logger.Warn("Skipping out-of-order subscription event",
			"occurred_at", event.OccurredAt,
			"last_applied_at", last)
		return nil
	}

	reason := fmt.Sprintf("%s (%s)", event.Type, event.EventID)
	for _, key := range subscriptionFlags {
		if _, err := p.controls.ToggleTenant(ctx, event.TenantID, key, value, consumerActor, reason); err != nil {
			return err
		}
	}
	if !event.OccurredAt.IsZero() {
		p.subSeen[event.TenantID] = event.OccurredAt
	}
	return nil
}

func isPermanent(err error) bool {
	var insufficient *wallet.InsufficientFundsError
	return errors.As(err, &insufficient) ||
		errors.Is(err, wallet.ErrIdempotencyConflict) ||
		errors.Is(err, wallet.ErrAmountOverflow) ||
		errors.Is(err, &wallet.TenantNotFoundError{}) ||
		errors.Is(err, shared.ErrInvalidEventType)
}

func (p *EventProcessor) markHealthy(ctx context.Context, tenantID uuid.UUID, logger *slog.Logger) {
	if _, ok := p.healthy.Load(tenantID); ok {
		return
	}
	if _, err := p.failures.Resolve(ctx, tenantID, FailureSource, failure.CategoryPayment, consumerActor); err != nil {
		logger.Error("Failed to resolve payment-events failure", "error", err)
		return
	}
	p.healthy.Store(tenantID, struct{}{})
}

func (p *EventProcessor) markFailing(ctx context.Context, event *shared.PaymentEvent, cause error, logger *slog.Logger) {
	p.healthy.Delete(event.TenantID)
	_, err := p.failures.Raise(ctx, failuretracker.RaiseRequest{
		TenantID: event.TenantID,
		Category: failure.CategoryPayment,
		Source:   FailureSource,
		Severity: failure.SeverityWarning,
		Message:  cause.Error(),
		Metadata: map[string]any{"event_id": event.EventID, "event_type": string(event.Type)},
		Actor:    consumerActor,
	})
	if err != nil {
		logger.Error("Failed to raise payment-events failure", "error", err)
	}
}

package shared

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrMissingEventID     = errors.New("event id is required")
	ErrMissingTenantID    = errors.New("tenant id is required")
	ErrInvalidEventType   = errors.New("invalid payment event type")
	ErrInvalidEventAmount = errors.New("amount must be positive")
)

// PaymentEventType enumerates gateway events the core acts on
type PaymentEventType string

const (
	PaymentEventChargeSucceeded         PaymentEventType = "charge.succeeded"
	PaymentEventTopupSucceeded          PaymentEventType = "topup.succeeded"
	PaymentEventSubscriptionCharged     PaymentEventType = "subscription.charged"
	PaymentEventRefundSucceeded         PaymentEventType = "refund.succeeded"
	PaymentEventSubscriptionSuspended   PaymentEventType = "subscription.suspended"
	PaymentEventSubscriptionReactivated PaymentEventType = "subscription.reactivated"
)

// MovesFunds reports whether the event changes the wallet balance
func (t PaymentEventType) MovesFunds() bool {
	switch t {
	case PaymentEventChargeSucceeded, PaymentEventTopupSucceeded,
		PaymentEventSubscriptionCharged, PaymentEventRefundSucceeded:
		return true
	}
	return false
}

func (t PaymentEventType) Valid() bool {
	switch t {
	case PaymentEventSubscriptionSuspended, PaymentEventSubscriptionReactivated:
		return true
	}
	return t.MovesFunds()
}

// PaymentEvent defines a Kafka message published by the verified webhook receiver
type PaymentEvent struct {
	EventID       string           `json:"event_id"` // gateway event id, used as the idempotency key
	TenantID      uuid.UUID        `json:"tenant_id"`
	Type          PaymentEventType `json:"type"`
	Amount        int64            `json:"amount,omitempty"` // credits, minor units
	Description   string           `json:"description,omitempty"`
	CorrelationID string           `json:"correlation_id"`
	OccurredAt    time.Time        `json:"occurred_at"`
}

func (e *PaymentEvent) Validate() error {
	if e.EventID == "" {
		return ErrMissingEventID
	}
	if e.TenantID == uuid.Nil {
		return ErrMissingTenantID
	}
	if !e.Type.Valid() {
		return ErrInvalidEventType
	}
	if e.Type.MovesFunds() && e.Amount <= 0 {
		return ErrInvalidEventAmount
	}
	return nil
}

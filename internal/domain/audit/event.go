package audit

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ActorType identifies who triggered a state change
type ActorType string

const (
	ActorTypeUser   ActorType = "user"
	ActorTypeAdmin  ActorType = "admin"
	ActorTypeSystem ActorType = "system"
)

// Valid reports whether the actor type is one of the known kinds
func (t ActorType) Valid() bool {
	switch t {
	case ActorTypeUser, ActorTypeAdmin, ActorTypeSystem:
		return true
	}
	return false
}

// Actor is the explicit identity threaded through every mutating call.
// There is no implicit default actor.
type Actor struct {
	Type ActorType `json:"type"`
	ID   string    `json:"id"`
}

// SystemActor builds an actor for background components (consumers, workers).
func SystemActor(component string) Actor {
	return Actor{Type: ActorTypeSystem, ID: component}
}

// Validate checks that the actor is fully specified
func (a Actor) Validate() error {
	if !a.Type.Valid() {
		return ErrInvalidActorType
	}
	if a.ID == "" {
		return ErrMissingActorID
	}
	return nil
}

var (
	ErrInvalidActorType = errors.New("actor type must be one of user, admin, system")
	ErrMissingActorID   = errors.New("actor id is required")
	ErrMissingEventType = errors.New("event type is required")
	ErrMissingEntity    = errors.New("entity type is required")
)

// Event types emitted by the core components
const (
	EventWalletCredited     = "wallet.credited"
	EventWalletDebited      = "wallet.debited"
	EventWalletReplay       = "wallet.replay"
	EventWalletReconciled   = "wallet.reconciled"
	EventFlagChanged        = "control.flag_changed"
	EventFailureDetected    = "failure.detected"
	EventFailureUpdated     = "failure.updated"
	EventFailureResolved    = "failure.resolved"
	EntityWallet            = "wallet"
	EntityWalletTransaction = "wallet_transaction"
	EntityControlFlag       = "control_flag"
	EntityFailure           = "failure"
)

// Event is an append-only audit record. Once stored it is never updated or deleted.
type Event struct {
	ID         uuid.UUID      `json:"id" bson:"_id"`
	TenantID   *uuid.UUID     `json:"tenant_id,omitempty" bson:"tenant_id,omitempty"` // nil for platform-wide actions
	ActorType  ActorType      `json:"actor_type" bson:"actor_type"`
	ActorID    string         `json:"actor_id" bson:"actor_id"`
	EventType  string         `json:"event_type" bson:"event_type"`
	EntityType string         `json:"entity_type" bson:"entity_type"`
	EntityID   string         `json:"entity_id,omitempty" bson:"entity_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty" bson:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at" bson:"created_at"`
}

// NewEvent builds an event for the given actor. Metadata is redacted later, on record.
func NewEvent(tenantID *uuid.UUID, actor Actor, eventType, entityType, entityID string, metadata map[string]any) Event {
	return Event{
		TenantID:   tenantID,
		ActorType:  actor.Type,
		ActorID:    actor.ID,
		EventType:  eventType,
		EntityType: entityType,
		EntityID:   entityID,
		Metadata:   metadata,
	}
}

// Validate checks the required fields of an event
func (e *Event) Validate() error {
	if err := (Actor{Type: e.ActorType, ID: e.ActorID}).Validate(); err != nil {
		return err
	}
	if e.EventType == "" {
		return ErrMissingEventType
	}
	if e.EntityType == "" {
		return ErrMissingEntity
	}
	return nil
}

// TenantRef returns a pointer to a copy of id, or nil for uuid.Nil.
func TenantRef(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}

package wallet

import (
	"time"

	"github.com/google/uuid"
)

// TransactionType is the direction of a wallet movement
type TransactionType string

const (
	TransactionTypeCredit TransactionType = "credit"
	TransactionTypeDebit  TransactionType = "debit"
)

// TransactionStatus is the state of a written transaction
type TransactionStatus string

const (
	TransactionStatusCompleted TransactionStatus = "completed"
)

// Transaction is an immutable wallet movement. The set of a tenant's
// transactions is the source of truth for its balance.
type Transaction struct {
	ID             uuid.UUID         `json:"id"`
	TenantID       uuid.UUID         `json:"tenant_id"`
	Type           TransactionType   `json:"type"`
	Amount         int64             `json:"amount"` // always positive
	Reason         string            `json:"reason"`
	IdempotencyKey *string           `json:"idempotency_key,omitempty"`
	Status         TransactionStatus `json:"status"`
	Override       bool              `json:"override"`
	ActorID        string            `json:"actor_id"`
	CreatedAt      time.Time         `json:"created_at"`
}

// NewTransaction builds a completed transaction. An empty idempotency key is stored as NULL.
func NewTransaction(tenantID uuid.UUID, txType TransactionType, amount int64, reason, idempotencyKey, actorID string, override bool) *Transaction {
	var key *string
	if idempotencyKey != "" {
		k := idempotencyKey
		key = &k
	}
	return &Transaction{
		ID:             uuid.New(),
		TenantID:       tenantID,
		Type:           txType,
		Amount:         amount,
		Reason:         reason,
		IdempotencyKey: key,
		Status:         TransactionStatusCompleted,
		Override:       override,
		ActorID:        actorID,
		CreatedAt:      time.Now().UTC(),
	}
}

// Signed returns the amount with the sign it contributes to the balance
func (t *Transaction) Signed() int64 {
	if t.Type == TransactionTypeDebit {
		return -t.Amount
	}
	return t.Amount
}

// Matches reports whether a replayed request has the same shape as the original
func (t *Transaction) Matches(txType TransactionType, amount int64) bool {
	return t.Type == txType && t.Amount == amount
}

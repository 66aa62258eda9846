package wallet

import (
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
)

// Common errors
var (
	ErrInvalidAmount          = errors.New("amount must be positive")
	ErrMissingReason          = errors.New("reason is required")
	ErrMissingTenant          = errors.New("tenant id is required")
	ErrInvalidFloor           = errors.New("overdraft floor must not be positive")
	ErrDuplicateTransaction   = errors.New("idempotency key already used for tenant")
	ErrIdempotencyConflict    = errors.New("idempotency key reused with different parameters")
	ErrInvalidTransactionType = errors.New("invalid transaction type")
	ErrAmountOverflow         = errors.New("amount would overflow the wallet balance")
	ErrOverrideNotPermitted   = errors.New("overdraft override requires an admin or system actor")
)

// Account is a tenant's prepaid wallet. Balance is a cache of the signed sum
// of the tenant's transactions and is only changed through the ledger.
type Account struct {
	TenantID  uuid.UUID `json:"tenant_id"`
	Balance   int64     `json:"balance"` // credits, in minor units
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Credit adds amount to the balance
func (a *Account) Credit(amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if a.Balance > 0 && amount > math.MaxInt64-a.Balance {
		return ErrAmountOverflow
	}
	a.Balance += amount
	a.UpdatedAt = time.Now()
	a.Version++
	return nil
}

// Debit subtracts amount from the balance. The result may not drop below floor
// (0 for regular debits, the configured overdraft floor for overrides).
func (a *Account) Debit(amount int64, floor int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if floor > 0 {
		return ErrInvalidFloor
	}
	if !a.CanDebit(amount, floor) {
		return &InsufficientFundsError{
			TenantID:  a.TenantID,
			Balance:   a.Balance,
			Requested: amount,
			Floor:     floor,
		}
	}
	a.Balance -= amount
	a.UpdatedAt = time.Now()
	a.Version++
	return nil
}

// CanDebit checks whether a debit keeps the balance at or above floor.
// floor <= 0 and amount > 0, so floor+amount cannot overflow.
func (a *Account) CanDebit(amount int64, floor int64) bool {
	return a.Balance >= floor+amount
}

// InsufficientFundsError indicates a debit would breach the balance floor
type InsufficientFundsError struct {
	TenantID  uuid.UUID
	Balance   int64
	Requested int64
	Floor     int64
}

func (e *InsufficientFundsError) Error() string {
	return "insufficient funds for tenant " + e.TenantID.String()
}

// TenantNotFoundError indicates the tenant has no wallet yet
type TenantNotFoundError struct {
	TenantID uuid.UUID
}

func (e *TenantNotFoundError) Error() string {
	return "wallet not found for tenant: " + e.TenantID.String()
}

// Is matches any TenantNotFoundError when the target carries uuid.Nil
func (e *TenantNotFoundError) Is(target error) bool {
	t, ok := target.(*TenantNotFoundError)
	if !ok {
		return false
	}
	return t.TenantID == uuid.Nil || t.TenantID == e.TenantID
}

// ConcurrentModificationError indicates an optimistic version check failed
type ConcurrentModificationError struct {
	TenantID uuid.UUID
}

func (e *ConcurrentModificationError) Error() string {
	return "concurrent modification detected for wallet: " + e.TenantID.String()
}

// IsDuplicate reports whether err signals an already-used idempotency key.
// Callers must treat it as success.
func IsDuplicate(err error) bool {
	return errors.Is(err, ErrDuplicateTransaction)
}

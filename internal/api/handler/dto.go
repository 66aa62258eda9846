package handler

import (
	"time"

	"github.com/tenantops/safety-core/internal/domain/control"
	"github.com/tenantops/safety-core/internal/domain/failure"
	"github.com/tenantops/safety-core/internal/domain/wallet"
)

// WalletMovementRequest is the body of credit and debit calls
type WalletMovementRequest struct {
	Amount         int64  `json:"amount" binding:"required,gt=0"`
	Reason         string `json:"reason" binding:"required"`
	IdempotencyKey string `json:"idempotency_key,omitempty" binding:"max=255"`
	Override       bool   `json:"override,omitempty"`
}

type WalletMovementResponse struct {
	Transaction TransactionResponse `json:"transaction"`
	Balance     int64               `json:"balance"`
	Replayed    bool                `json:"replayed"`
}

type BalanceResponse struct {
	TenantID string `json:"tenant_id"`
	Balance  int64  `json:"balance"`
}

type TransactionResponse struct {
	ID             string `json:"id"`
	Type           string `json:"type"`
	Amount         int64  `json:"amount"`
	Reason         string `json:"reason"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
	Status         string `json:"status"`
	Override       bool   `json:"override"`
	ActorID        string `json:"actor_id"`
	CreatedAt      string `json:"created_at"`
}

type ReasonExistsResponse struct {
	Reason string `json:"reason"`
	Exists bool   `json:"exists"`
}

// ToggleFlagRequest uses a pointer so an explicit false is not mistaken for a missing value
type ToggleFlagRequest struct {
	Value  *bool  `json:"value" binding:"required"`
	Reason string `json:"reason"`
}

type CheckActionResponse struct {
	Action  string               `json:"action"`
	Allowed bool                 `json:"allowed"`
	Reason  *control.BlockReason `json:"reason,omitempty"`
	Message string               `json:"message,omitempty"`
}

type RaiseFailureRequest struct {
	Category string         `json:"category" binding:"required"`
	Source   string         `json:"source" binding:"required"`
	Severity string         `json:"severity" binding:"required"`
	Message  string         `json:"message"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type RaiseFailureResponse struct {
	Failure FailureResponse `json:"failure"`
	Outcome string          `json:"outcome"`
}

type ResolveFailureRequest struct {
	Category string `json:"category" binding:"required"`
	Source   string `json:"source" binding:"required"`
}

type ResolveFailureResponse struct {
	Resolved []string `json:"resolved"`
}

type FailureResponse struct {
	ID         string         `json:"id"`
	Category   string         `json:"category"`
	Source     string         `json:"source"`
	Active     bool           `json:"active"`
	Severity   string         `json:"severity,omitempty"`
	Message    string         `json:"message,omitempty"`
	Since      string         `json:"since,omitempty"`
	ResolvedAt string         `json:"resolved_at,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// PaginationParams bounds list endpoints
type PaginationParams struct {
	Limit  int `form:"limit,default=50" binding:"min=1,max=200"`
	Offset int `form:"offset,default=0" binding:"min=0"`
}

func mapTransaction(tx *wallet.Transaction) TransactionResponse {
	resp := TransactionResponse{
		ID:        tx.ID.String(),
		Type:      string(tx.Type),
		Amount:    tx.Amount,
		Reason:    tx.Reason,
		Status:    string(tx.Status),
		Override:  tx.Override,
		ActorID:   tx.ActorID,
		CreatedAt: tx.CreatedAt.Format(time.RFC3339),
	}
	if tx.IdempotencyKey != nil {
		resp.IdempotencyKey = *tx.IdempotencyKey
	}
	return resp
}

func mapFailure(f *failure.Failure) FailureResponse {
	resp := FailureResponse{
		ID:       f.ID.String(),
		Category: string(f.Category),
		Source:   f.Source,
		Metadata: f.Metadata,
	}
	switch s := f.State.(type) {
	case failure.Active:
		resp.Active = true
		resp.Severity = string(s.Severity)
		resp.Message = s.Message
		resp.Since = s.Since.Format(time.RFC3339)
	case failure.Resolved:
		resp.ResolvedAt = s.At.Format(time.RFC3339)
	}
	return resp
}

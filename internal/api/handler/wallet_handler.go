package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tenantops/safety-core/internal/ledger"
)

// WalletHandler serves manual wallet adjustments and wallet reads
type WalletHandler struct {
	ledger LedgerService
	logger *slog.Logger
}

func NewWalletHandler(logger *slog.Logger, ledgerService LedgerService) *WalletHandler {
	return &WalletHandler{
		ledger: ledgerService,
		logger: logger,
	}
}

func (h *WalletHandler) GetBalance(c *gin.Context) {
	tenantID, ok := tenantParam(c)
	if !ok {
		return
	}
	balance, err := h.ledger.GetBalance(c.Request.Context(), tenantID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	RespondOK(c, BalanceResponse{TenantID: tenantID.String(), Balance: balance})
}

func (h *WalletHandler) Credit(c *gin.Context) {
	h.move(c, h.ledger.Credit)
}

func (h *WalletHandler) Debit(c *gin.Context) {
	h.move(c, h.ledger.Debit)
}

type movement func(ctx context.Context, req ledger.Request) (*ledger.Result, error)

func (h *WalletHandler) move(c *gin.Context, apply movement) {
	tenantID, ok := tenantParam(c)
	if !ok {
		return
	}
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	var req WalletMovementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	res, err := apply(c.Request.Context(), ledger.Request{
		TenantID:       tenantID,
		Amount:         req.Amount,
		Reason:         req.Reason,
		IdempotencyKey: req.IdempotencyKey,
		Actor:          actor,
		Override:       req.Override,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	RespondWithData(c, status, WalletMovementResponse{
		Transaction: mapTransaction(res.Transaction),
		Balance:     res.Balance,
		Replayed:    res.Replayed,
	})
}

func (h *WalletHandler) ListTransactions(c *gin.Context) {
	tenantID, ok := tenantParam(c)
	if !ok {
		return
	}
	var page PaginationParams
	if err := c.ShouldBindQuery(&page); err != nil {
		RespondBadRequest(c, "Invalid pagination parameters: "+err.Error())
		return
	}

	txs, err := h.ledger.ListTransactions(c.Request.Context(), tenantID, page.Limit, page.Offset)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	out := make([]TransactionResponse, 0, len(txs))
	for _, tx := range txs {
		out = append(out, mapTransaction(tx))
	}
	RespondWithList(c, out, page.Limit, page.Offset, len(out))
}

// HasReason answers whether a one-time grant was already given
func (h *WalletHandler) HasReason(c *gin.Context) {
	tenantID, ok := tenantParam(c)
	if !ok {
		return
	}
	reason := c.Param("reason")
	exists, err := h.ledger.HasTransactionType(c.Request.Context(), tenantID, reason)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	RespondOK(c, ReasonExistsResponse{Reason: reason, Exists: exists})
}

func (h *WalletHandler) Reconcile(c *gin.Context) {
	tenantID, ok := tenantParam(c)
	if !ok {
		return
	}
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	rec, err := h.ledger.Reconcile(c.Request.Context(), tenantID, actor)
	if err != nil && rec == nil {
		respondError(c, h.logger, err)
		return
	}
	if err != nil {
		// the comparison is valid even if recording its outcome failed
		h.logger.Error("Reconciliation follow-up failed", "tenant_id", tenantID.String(), "error", err)
	}
	RespondOK(c, rec)
}

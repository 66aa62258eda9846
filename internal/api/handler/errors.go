package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/tenantops/safety-core/internal/api/middleware"
	"github.com/tenantops/safety-core/internal/domain/audit"
	"github.com/tenantops/safety-core/internal/domain/control"
	"github.com/tenantops/safety-core/internal/domain/failure"
	"github.com/tenantops/safety-core/internal/domain/wallet"
)

// validationErrors are caller mistakes reported as 400
var validationErrors = []error{
	wallet.ErrInvalidAmount,
	wallet.ErrMissingReason,
	wallet.ErrMissingTenant,
	control.ErrReasonRequired,
	control.ErrGlobalOnlyFlag,
	control.ErrMissingTenant,
	control.ErrUnknownAction,
	failure.ErrInvalidCategory,
	failure.ErrInvalidSeverity,
	failure.ErrMissingSource,
	failure.ErrMissingTenant,
	audit.ErrInvalidActorType,
	audit.ErrMissingActorID,
}

// respondError maps domain errors to HTTP responses; anything unknown is a 500
func respondError(c *gin.Context, logger *slog.Logger, err error) {
	var (
		insufficient *wallet.InsufficientFundsError
		invalidKey   *control.InvalidFlagKeyError
		blocked      *control.ActionBlockedError
	)
	switch {
	case errors.As(err, &insufficient):
		RespondWithErrorDetails(c, http.StatusUnprocessableEntity, "INSUFFICIENT_FUNDS", "Debit would take the balance below its floor", gin.H{
			"balance":   insufficient.Balance,
			"requested": insufficient.Requested,
			"floor":     insufficient.Floor,
		})
	case errors.Is(err, &wallet.TenantNotFoundError{}):
		RespondNotFound(c, "Wallet not found")
	case errors.Is(err, wallet.ErrAmountOverflow):
		RespondWithError(c, http.StatusUnprocessableEntity, "AMOUNT_OVERFLOW", err.Error())
	case errors.Is(err, wallet.ErrOverrideNotPermitted):
		RespondWithError(c, http.StatusForbidden, "OVERRIDE_NOT_PERMITTED", err.Error())
	case errors.Is(err, wallet.ErrIdempotencyConflict):
		RespondConflict(c, "IDEMPOTENCY_CONFLICT", err.Error())
	case errors.Is(err, control.ErrConcurrentFlagUpdate):
		RespondConflict(c, "CONCURRENT_UPDATE", err.Error())
	case errors.As(err, &invalidKey):
		RespondWithError(c, http.StatusBadRequest, "INVALID_FLAG_KEY", err.Error())
	case errors.As(err, &blocked):
		RespondWithErrorDetails(c, http.StatusForbidden, "ACTION_BLOCKED", err.Error(), blocked.Reason)
	case isValidationError(err):
		RespondBadRequest(c, err.Error())
	default:
		logger.Error("Request failed", "path", c.FullPath(), "correlation_id", middleware.GetCorrelationID(c), "error", err)
		RespondInternalError(c)
	}
}

func isValidationError(err error) bool {
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func tenantParam(c *gin.Context) (uuid.UUID, bool) {
	tenantID, err := uuid.Parse(c.Param("tenant_id"))
	if err != nil || tenantID == uuid.Nil {
		RespondBadRequest(c, "Invalid tenant ID")
		return uuid.Nil, false
	}
	return tenantID, true
}

// actorFrom returns the request actor; routes are mounted behind RequireActor
func actorFrom(c *gin.Context) (audit.Actor, bool) {
	actor, ok := middleware.GetActor(c)
	if !ok {
		RespondWithError(c, http.StatusUnauthorized, "MISSING_ACTOR", "actor identity is required")
	}
	return actor, ok
}

package handler

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/tenantops/safety-core/internal/domain/failure"
	"github.com/tenantops/safety-core/internal/failuretracker"
)

type FailureHandler struct {
	tracker FailureService
	logger  *slog.Logger
}

func NewFailureHandler(logger *slog.Logger, tracker FailureService) *FailureHandler {
	return &FailureHandler{
		tracker: tracker,
		logger:  logger,
	}
}

func (h *FailureHandler) ListActive(c *gin.Context) {
	tenantID, ok := tenantParam(c)
	if !ok {
		return
	}
	failures, err := h.tracker.ListActive(c.Request.Context(), tenantID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	out := make([]FailureResponse, 0, len(failures))
	for _, f := range failures {
		out = append(out, mapFailure(f))
	}
	RespondOK(c, out)
}

func (h *FailureHandler) Raise(c *gin.Context) {
	tenantID, ok := tenantParam(c)
	if !ok {
		return
	}
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	var req RaiseFailureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	res, err := h.tracker.Raise(c.Request.Context(), failuretracker.RaiseRequest{
		TenantID: tenantID,
		Category: failure.Category(req.Category),
		Source:   req.Source,
		Severity: failure.Severity(req.Severity),
		Message:  req.Message,
		Metadata: req.Metadata,
		Actor:    actor,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	resp := RaiseFailureResponse{Failure: mapFailure(res.Failure), Outcome: string(res.Outcome)}
	if res.Outcome == failuretracker.OutcomeCreated {
		RespondCreated(c, resp)
		return
	}
	RespondOK(c, resp)
}

func (h *FailureHandler) Resolve(c *gin.Context) {
	tenantID, ok := tenantParam(c)
	if !ok {
		return
	}
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	var req ResolveFailureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	ids, err := h.tracker.Resolve(c.Request.Context(), tenantID, req.Source, failure.Category(req.Category), actor)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	RespondOK(c, ResolveFailureResponse{Resolved: idStrings(ids)})
}

func idStrings(ids []uuid.UUID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.String())
	}
	return out
}

package handler

import (
	"log/slog"

	"github.com/gin-gonic/gin"
)

type AuditHandler struct {
	audit  AuditService
	logger *slog.Logger
}

func NewAuditHandler(logger *slog.Logger, audit AuditService) *AuditHandler {
	return &AuditHandler{
		audit:  audit,
		logger: logger,
	}
}

// List returns the tenant's audit timeline, oldest first
func (h *AuditHandler) List(c *gin.Context) {
	tenantID, ok := tenantParam(c)
	if !ok {
		return
	}
	var page PaginationParams
	if err := c.ShouldBindQuery(&page); err != nil {
		RespondBadRequest(c, "Invalid pagination parameters: "+err.Error())
		return
	}

	events, err := h.audit.List(c.Request.Context(), tenantID, page.Limit, page.Offset)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	RespondWithList(c, events, page.Limit, page.Offset, len(events))
}

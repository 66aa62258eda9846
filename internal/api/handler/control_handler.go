package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tenantops/safety-core/internal/domain/control"
)

// ControlHandler exposes the kill switches and the action gate
type ControlHandler struct {
	gate   ControlService
	logger *slog.Logger
}

func NewControlHandler(logger *slog.Logger, gate ControlService) *ControlHandler {
	return &ControlHandler{
		gate:   gate,
		logger: logger,
	}
}

func (h *ControlHandler) ListGlobal(c *gin.Context) {
	snap := h.gate.Snapshot()
	if snap == nil {
		RespondWithError(c, http.StatusServiceUnavailable, "CONTROLS_UNAVAILABLE", control.ErrControlsUnavailable.Error())
		return
	}
	RespondOK(c, snap.GlobalFlags())
}

func (h *ControlHandler) ListTenant(c *gin.Context) {
	tenantID, ok := tenantParam(c)
	if !ok {
		return
	}
	snap := h.gate.Snapshot()
	if snap == nil {
		RespondWithError(c, http.StatusServiceUnavailable, "CONTROLS_UNAVAILABLE", control.ErrControlsUnavailable.Error())
		return
	}
	RespondOK(c, snap.TenantFlags(tenantID))
}

func (h *ControlHandler) ToggleGlobal(c *gin.Context) {
	key, req, ok := h.bindToggle(c)
	if !ok {
		return
	}
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	flag, err := h.gate.ToggleGlobal(c.Request.Context(), key, *req.Value, actor, req.Reason)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	RespondOK(c, flag)
}

func (h *ControlHandler) ToggleTenant(c *gin.Context) {
	tenantID, ok := tenantParam(c)
	if !ok {
		return
	}
	key, req, ok := h.bindToggle(c)
	if !ok {
		return
	}
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	flag, err := h.gate.ToggleTenant(c.Request.Context(), tenantID, key, *req.Value, actor, req.Reason)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	RespondOK(c, flag)
}

func (h *ControlHandler) bindToggle(c *gin.Context) (control.FlagKey, ToggleFlagRequest, bool) {
	var req ToggleFlagRequest
	key, err := control.ParseFlagKey(c.Param("key"))
	if err != nil {
		respondError(c, h.logger, err)
		return "", req, false
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return "", req, false
	}
	return key, req, true
}

// CheckAction reports the gate decision. A block is a normal answer, not an
// error, so it is returned with 200.
func (h *ControlHandler) CheckAction(c *gin.Context) {
	tenantID, ok := tenantParam(c)
	if !ok {
		return
	}
	action, err := control.ParseAction(c.Param("action"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	err = h.gate.CheckAction(c.Request.Context(), tenantID, action)
	if blocked, isBlocked := control.IsBlocked(err); isBlocked {
		RespondOK(c, CheckActionResponse{
			Action:  string(action),
			Allowed: false,
			Reason:  &blocked.Reason,
			Message: blocked.Error(),
		})
		return
	}
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	RespondOK(c, CheckActionResponse{Action: string(action), Allowed: true})
}

package handler

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
)

const pingTimeout = 2 * time.Second

// HealthHandler reports dependency reachability. Any failed ping turns the
// response into a 503 so load balancers stop routing to the instance.
type HealthHandler struct {
	deps   map[string]Pinger
	audit  AuditBacklog
	pool   PoolStats
	logger *slog.Logger
}

func NewHealthHandler(logger *slog.Logger, deps map[string]Pinger, audit AuditBacklog, pool PoolStats) *HealthHandler {
	return &HealthHandler{
		deps:   deps,
		audit:  audit,
		pool:   pool,
		logger: logger,
	}
}

type HealthResponse struct {
	Status       string            `json:"status"`
	Timestamp    time.Time         `json:"timestamp"`
	Dependencies map[string]string `json:"dependencies"`
	AuditPending int               `json:"audit_pending"`
	Workers      *WorkerStats      `json:"workers,omitempty"`
}

type WorkerStats struct {
	Running  int `json:"running"`
	Capacity int `json:"capacity"`
}

func (h *HealthHandler) Check(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), pingTimeout)
	defer cancel()

	names := make([]string, 0, len(h.deps))
	for name := range h.deps {
		names = append(names, name)
	}
	sort.Strings(names)

	resp := HealthResponse{
		Status:       "ok",
		Timestamp:    time.Now().UTC(),
		Dependencies: make(map[string]string, len(h.deps)),
	}
	for _, name := range names {
		if err := h.deps[name].Ping(ctx); err != nil {
			h.logger.Warn("Health check dependency down", "dependency", name, "error", err)
			resp.Dependencies[name] = "down"
			resp.Status = "degraded"
			continue
		}
		resp.Dependencies[name] = "up"
	}
	if h.audit != nil {
		resp.AuditPending = h.audit.Pending()
	}
	if h.pool != nil {
		resp.Workers = &WorkerStats{Running: h.pool.Running(), Capacity: h.pool.Capacity()}
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, resp)
}

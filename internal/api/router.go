package api

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/tenantops/safety-core/internal/api/handler"
	"github.com/tenantops/safety-core/internal/api/middleware"
	"github.com/tenantops/safety-core/internal/metrics"
)

type handlers struct {
	wallet   *handler.WalletHandler
	controls *handler.ControlHandler
	failures *handler.FailureHandler
	audit    *handler.AuditHandler
	health   *handler.HealthHandler
}

// setupRouter configures the ops API routes. Everything under /api/v1 needs
// an explicit actor; /health and /metrics do not.
func setupRouter(logger *slog.Logger, r *gin.Engine, h handlers) {
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.CorrelationID())
	r.Use(middleware.Logger(logger))

	v1 := r.Group("/api/v1", middleware.RequireActor())
	{
		flags := v1.Group("/flags")
		{
			flags.GET("", h.controls.ListGlobal)
			flags.PUT("/:key", h.controls.ToggleGlobal)
		}

		tenant := v1.Group("/tenants/:tenant_id")
		{
			wallet := tenant.Group("/wallet")
			{
				wallet.GET("", h.wallet.GetBalance)
				wallet.POST("/credit", h.wallet.Credit)
				wallet.POST("/debit", h.wallet.Debit)
				wallet.GET("/transactions", h.wallet.ListTransactions)
				wallet.GET("/reasons/:reason", h.wallet.HasReason)
				wallet.POST("/reconcile", h.wallet.Reconcile)
			}

			tenant.GET("/flags", h.controls.ListTenant)
			tenant.PUT("/flags/:key", h.controls.ToggleTenant)
			tenant.GET("/actions/:action", h.controls.CheckAction)

			tenant.GET("/failures", h.failures.ListActive)
			tenant.POST("/failures", h.failures.Raise)
			tenant.POST("/failures/resolve", h.failures.Resolve)

			tenant.GET("/audit", h.audit.List)
		}
	}

	r.GET("/health", h.health.Check)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
}

package main

import (
	"leadmarket-platform/internal/auth"
	"leadmarket-platform/internal/httpapi"
	"leadmarket-platform/internal/rbac"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, h httpapi.Handlers, authMW gin.HandlerFunc, gatherer prometheus.Gatherer) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.GET("/metrics", httpapi.MetricsHandler(gatherer))

	v1 := r.Group("/v1")

	// Public lead intake: no auth, this is the patient-facing form endpoint.
	v1.POST("/leads", h.SubmitLead)

	// Token issuance for the identity service.
	v1.POST("/auth/token", h.Token)

	// Provider surface.
	provider := v1.Group("/provider")
	provider.Use(authMW)
	provider.Use(rbac.RequireProvider())
	provider.Use(rbac.RequireAnyRole(rbac.RoleProvider))
	{
		provider.GET("/leads", h.ListOpenLeads)
		provider.GET("/leads/:lead_id", h.GetLead)
		provider.POST("/leads/:lead_id/claim", h.ClaimLead)
		provider.PATCH("/leads/:lead_id/outcome", h.UpdateOutcome)

		provider.GET("/me", func(c *gin.Context) {
			uid, _ := auth.UserID(c.Request.Context())
			pid, _ := auth.ProviderID(c.Request.Context())
			role, _ := auth.Role(c.Request.Context())
			c.JSON(200, gin.H{"user_id": uid, "provider_id": pid, "role": role})
		})
	}

	// Admin surface.
	admin := v1.Group("/admin")
	admin.Use(authMW)
	admin.Use(rbac.RequireAnyRole(rbac.RoleAdmin))
	{
		admin.GET("/stats/funnel", h.AdminFunnel)
		admin.GET("/stats/revenue", h.AdminRevenue)
		admin.GET("/providers/:provider_id/activity", h.AdminProviderActivity)
		admin.POST("/providers/:provider_id/credits", h.AdminGrantCredits)
		admin.POST("/leads/:lead_id/reopen", h.AdminReopenLead)
	}
}

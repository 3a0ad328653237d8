package main

import (
	"github.com/shubhamsingh32112/vibemeet-backend-sub000/internal/httpapi"
	"github.com/shubhamsingh32112/vibemeet-backend-sub000/internal/rbac"

	"github.com/gin-gonic/gin"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, h httpapi.Handlers, authMW gin.HandlerFunc) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// AUTH routes (token issuance).
	// NOTE: This is a placeholder login route; real credential validation is not implemented.
	r.POST("/v1/auth/login", h.Login)

	// protected API group
	v1 := r.Group("/v1")
	v1.Use(authMW)
	{
		// CALL routes: lifecycle is driven by the participants.
		callsGroup := v1.Group("/calls")
		callsGroup.Use(rbac.RequireAnyRole(rbac.RoleUser, rbac.RoleCreator))
		{
			callsGroup.POST("", h.InitiateCall)
			callsGroup.POST("/:call_id/accept", h.AcceptCall)
			callsGroup.POST("/:call_id/end", h.EndCall)
			callsGroup.GET("/:call_id", h.GetCall)
			callsGroup.GET("/:call_id/entries", h.CallEntries)
		}

		// BILLING signal fallbacks for a degraded socket transport.
		billingGroup := v1.Group("/billing")
		billingGroup.Use(rbac.RequireAnyRole(rbac.RoleUser, rbac.RoleCreator))
		{
			billingGroup.POST("/call-started", h.CallStarted)
			billingGroup.POST("/call-ended", h.CallEnded)
		}

		// WALLET routes
		wallet := v1.Group("/wallet")
		{
			wallet.GET("/balance", h.GetBalance)
			wallet.POST("/topup", h.TopUp)
		}

		// REPORTING routes
		reports := v1.Group("/reports")
		{
			reports.GET("/usage", h.UsageReport)
			reports.GET("/calls", h.CallHistory)
		}

		// INTERNAL routes: socket-server callbacks and admin operations.
		internalGroup := v1.Group("/internal")
		internalGroup.Use(rbac.RequireAdmin())
		{
			internalGroup.POST("/disconnected", h.Disconnected)
		}

		admin := v1.Group("/admin")
		admin.Use(rbac.RequireAdmin())
		{
			admin.GET("/ping", func(c *gin.Context) {
				c.JSON(200, gin.H{"status": "ok"})
			})
			admin.POST("/credits", h.AdminManualCredit)
		}
	}
}

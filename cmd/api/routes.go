package main

import (
	"callgate/internal/httpapi"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, h httpapi.Handlers, clientAuth, hookAuth gin.HandlerFunc) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Switch event hook. The switch authenticates with a shared secret
	// header, not client credentials.
	r.POST("/switch/events", hookAuth, h.SwitchEvent)

	// protected API group
	v1 := r.Group("/v1")
	v1.Use(clientAuth)
	{
		calls := v1.Group("/calls")
		{
			calls.POST("", h.CreateCall)
			calls.GET("/:call_id", h.GetCall)
			calls.DELETE("/:call_id", h.CancelCall)
		}
	}
}

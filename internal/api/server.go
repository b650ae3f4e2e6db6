// Package api exposes the HTTP control surface for the monitoring service.
package api

import (
	"github.com/gin-gonic/gin"
)

// NewServer creates the gin engine with all routes configured.
func NewServer(h *Handler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", h.Health)

	api := r.Group("/api")
	{
		api.POST("/monitoring/start", h.StartMonitoring)
		api.POST("/monitoring/stop", h.StopMonitoring)
		api.GET("/monitoring/status", h.GetStatus)

		api.GET("/posts", h.ListPosts)
		api.PATCH("/posts/:id", h.UpdatePost)
		api.POST("/posts/:id/publish", h.PublishPost)

		api.GET("/knowledge", h.ListSnippets)
		api.POST("/knowledge", h.CreateSnippet)
		api.PUT("/knowledge/:id", h.UpdateSnippet)
		api.DELETE("/knowledge/:id", h.DeleteSnippet)

		api.GET("/events", h.StreamEvents)
	}

	return r
}

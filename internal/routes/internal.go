package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/converse-app/converse-backend/internal/handlers"
)

// RegisterInternalRoutes mounts the shared-secret notification ingress.
// These routes carry no user auth; the secret header is the guard.
func RegisterInternalRoutes(r gin.IRouter, h *handlers.IngressHandler) {
	internal := r.Group("/internal")
	{
		internal.POST("/events", h.HandleEvent)
	}
}

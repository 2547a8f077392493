package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/converse-app/converse-backend/internal/handlers"
	"github.com/converse-app/converse-backend/internal/middleware"
)

func RegisterUserRoutes(r gin.IRouter) {
	users := r.Group("/users")
	users.Use(middleware.AuthMiddleware())
	{
		users.GET("", handlers.SearchUsers) // ?search=...
		users.GET("/:id", handlers.GetUser)
		users.PUT("/me", handlers.UpdateMe)
	}
}

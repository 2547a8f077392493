package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/converse-app/converse-backend/internal/handlers"
	"github.com/converse-app/converse-backend/internal/middleware"
)

func RegisterUploadRoutes(r gin.IRouter) {
	upload := r.Group("/upload")
	upload.Use(middleware.AuthMiddleware())
	{
		upload.POST("/avatar", handlers.UploadAvatar)
	}
}

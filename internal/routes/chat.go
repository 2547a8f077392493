package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/converse-app/converse-backend/internal/handlers"
	"github.com/converse-app/converse-backend/internal/middleware"
)

func RegisterChatRoutes(r gin.IRouter, h *handlers.ChatHandler) {
	chat := r.Group("/chat")
	chat.Use(middleware.AuthMiddleware())
	{
		chat.GET("/conversations", h.GetConversations)
		chat.GET("/messages", h.GetMessages) // ?userId=...
		chat.POST("/messages", middleware.ChatRateLimit(), h.SendMessage)
		chat.POST("/conversations/:id/read", h.MarkRead)
		// Deletes accept ?mode=me|everyone, defaulting to me
		chat.DELETE("/messages/:id", h.DeleteMessage)
		chat.DELETE("/conversations/:id", h.DeleteConversation)
	}
}

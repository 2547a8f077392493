package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/converse-app/converse-backend/internal/database"
	"github.com/converse-app/converse-backend/internal/realtime"
	"github.com/converse-app/converse-backend/internal/services"
)

// Per-user message send budget, enforced in Redis on top of the IP limiter.
const (
	sendLimit  = 30
	sendWindow = time.Minute
)

// ChatHandler serves conversation and message endpoints. Durable writes go
// through the services layer and are forwarded to the realtime router after
// they commit.
type ChatHandler struct {
	fw realtime.Forwarder
}

func NewChatHandler(fw realtime.Forwarder) *ChatHandler {
	return &ChatHandler{fw: fw}
}

// GetConversations returns the caller's conversation list, newest first.
func (h *ChatHandler) GetConversations(c *gin.Context) {
	userId := c.MustGet("userId").(string)

	summaries, err := services.ListConversations(userId, parseCursor(c), parseLimit(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"conversations": summaries})
}

// GetMessages returns the message history with another user (?userId=...).
// Fetching history lazily creates the conversation and unhides it for the
// caller.
func (h *ChatHandler) GetMessages(c *gin.Context) {
	userId := c.MustGet("userId").(string)
	otherUserID := c.Query("userId")

	if otherUserID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userId required"})
		return
	}

	msgs, conv, err := services.ListMessages(userId, otherUserID, parseCursor(c), parseLimit(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"conversationId": conv.ID,
		"messages":       msgs,
	})
}

// SendMessage handles sending a text message
func (h *ChatHandler) SendMessage(c *gin.Context) {
	userId := c.MustGet("userId").(string)

	var req struct {
		RecipientID string `json:"recipientId" binding:"required"`
		Content     string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	allowed, err := database.CheckRateLimit("send:"+userId, sendLimit, sendWindow)
	if err == nil && !allowed {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "Sending too fast, slow down"})
		return
	}

	msg, err := services.SendMessage(userId, req.RecipientID, req.Content, h.fw)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": msg})
}

// MarkRead marks every unread message addressed to the caller in the
// conversation as read.
func (h *ChatHandler) MarkRead(c *gin.Context) {
	userId := c.MustGet("userId").(string)
	conversationID := c.Param("id")

	updated, err := services.MarkRead(userId, conversationID, h.fw)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"markedRead": updated})
}

// DeleteMessage deletes a message for the caller or for everyone
// (?mode=me|everyone, default me).
func (h *ChatHandler) DeleteMessage(c *gin.Context) {
	userId := c.MustGet("userId").(string)
	messageID := c.Param("id")

	mode, ok := realtime.ParseDeleteMode(c.DefaultQuery("mode", string(realtime.DeleteModeMe)))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid delete mode"})
		return
	}

	if err := services.DeleteMessage(userId, messageID, mode, h.fw); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": true, "mode": mode})
}

// DeleteConversation hides the conversation for the caller or destroys it
// for both participants (?mode=me|everyone, default me).
func (h *ChatHandler) DeleteConversation(c *gin.Context) {
	userId := c.MustGet("userId").(string)
	conversationID := c.Param("id")

	mode, ok := realtime.ParseDeleteMode(c.DefaultQuery("mode", string(realtime.DeleteModeMe)))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid delete mode"})
		return
	}

	if err := services.DeleteConversation(userId, conversationID, mode); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": true, "mode": mode})
}

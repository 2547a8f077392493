package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/converse-app/converse-backend/internal/database"
	"github.com/converse-app/converse-backend/internal/models"
	"github.com/converse-app/converse-backend/pkg/utils"
)

const userCacheTTL = 5 * time.Minute

func userCacheKey(id string) string {
	return fmt.Sprintf("user_profile:%s", id)
}

// GetUser returns another user's public profile, cached in Redis.
func GetUser(c *gin.Context) {
	id := c.Param("id")

	var cached models.PublicUser
	if err := database.CacheGet(userCacheKey(id), &cached); err == nil {
		c.JSON(http.StatusOK, gin.H{"user": cached})
		return
	}

	var user models.User
	err := database.DB.First(&user, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}

	public := user.Public()
	// Cache failures are non-fatal
	_ = database.CacheSet(userCacheKey(id), public, userCacheTTL)

	c.JSON(http.StatusOK, gin.H{"user": public})
}

// UpdateMe updates the caller's profile fields.
func UpdateMe(c *gin.Context) {
	userId := c.MustGet("userId").(string)

	var req struct {
		Name   *string `json:"name"`
		Bio    *string `json:"bio"`
		Avatar *string `json:"avatar"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		name := utils.SanitizeProfileField(*req.Name, 80)
		if name == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Name cannot be empty"})
			return
		}
		updates["name"] = name
	}
	if req.Bio != nil {
		updates["bio"] = utils.SanitizeProfileField(*req.Bio, 500)
	}
	if req.Avatar != nil {
		updates["avatar"] = *req.Avatar
	}
	if len(updates) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Nothing to update"})
		return
	}

	if err := database.DB.Model(&models.User{}).Where("id = ?", userId).Updates(updates).Error; err != nil {
		respondError(c, err)
		return
	}

	database.CacheInvalidate(userCacheKey(userId))

	var user models.User
	if err := database.DB.First(&user, "id = ?", userId).Error; err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

// SearchUsers finds users by name or email prefix for starting a new
// conversation.
func SearchUsers(c *gin.Context) {
	userId := c.MustGet("userId").(string)

	search := c.Query("search")
	if search == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "search query required"})
		return
	}

	limit := parseLimit(c)
	if limit <= 0 || limit > 50 {
		limit = 20
	}

	pattern := utils.SanitizeSearchQuery(search)

	var users []models.User
	err := database.DB.
		Where("(name ILIKE ? OR email ILIKE ?) AND id <> ?", pattern, pattern, userId).
		Order("name asc").
		Limit(limit).
		Find(&users).Error
	if err != nil {
		respondError(c, err)
		return
	}

	results := make([]models.PublicUser, 0, len(users))
	for _, u := range users {
		results = append(results, u.Public())
	}
	c.JSON(http.StatusOK, gin.H{"users": results})
}

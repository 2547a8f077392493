package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	errs "github.com/converse-app/converse-backend/pkg/errors"
	"github.com/converse-app/converse-backend/pkg/logger"
)

// respondError maps service errors onto HTTP responses. AppErrors carry
// their own status; everything else is an internal error.
func respondError(c *gin.Context, err error) {
	var appErr *errs.AppError
	if errors.As(err, &appErr) {
		c.JSON(appErr.Code, gin.H{"error": appErr.Message})
		return
	}
	logger.Error().Err(err).Str("path", c.Request.URL.Path).Msg("Request failed")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
}

// parseLimit reads the "limit" query parameter, 0 meaning "use default".
func parseLimit(c *gin.Context) int {
	raw := c.Query("limit")
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// parseCursor reads the "cursor" query parameter as an RFC3339 timestamp.
func parseCursor(c *gin.Context) *time.Time {
	raw := c.Query("cursor")
	if raw == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return nil
	}
	return &t
}

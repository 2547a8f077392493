package services

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/converse-app/converse-backend/internal/database"
	"github.com/converse-app/converse-backend/internal/models"
	"github.com/converse-app/converse-backend/internal/realtime"
	errs "github.com/converse-app/converse-backend/pkg/errors"
	"github.com/converse-app/converse-backend/pkg/utils"
)

// Directory implements realtime.Directory on top of the persistence layer.
type Directory struct{}

var _ realtime.Directory = Directory{}

// SetOnline persists the user's online flag and last-seen timestamp and
// returns the presence event mirroring exactly what was written.
func (Directory) SetOnline(userID string, online bool, at time.Time) (realtime.PresenceUpdate, error) {
	err := database.DB.Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"is_online": online,
			"last_seen": at,
		}).Error
	if err != nil {
		return realtime.PresenceUpdate{}, err
	}
	return realtime.PresenceUpdate{UserID: userID, IsOnline: online, LastSeen: &at}, nil
}

// CanWatch decides whether watcherID may observe targetID's presence:
// yes for self, otherwise only when a conversation exists between exactly
// the two. Called on every subscribe, so it stays a single indexed lookup.
func (Directory) CanWatch(watcherID, targetID string) (bool, error) {
	if watcherID == targetID {
		return true, nil
	}
	if !utils.IsUUID(watcherID) || !utils.IsUUID(targetID) {
		return false, nil
	}

	key := models.MakeParticipantKey(watcherID, targetID)
	var conv models.Conversation
	err := database.DB.Select("id").Where("participant_key = ?", key).First(&conv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// IsParticipant reports whether userID belongs to the conversation.
func (Directory) IsParticipant(userID, conversationID string) (bool, error) {
	var conv models.Conversation
	err := database.DB.Select("participants").Where("id = ?", conversationID).First(&conv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return conv.HasParticipant(userID), nil
}

// Snapshot returns the target's current persisted presence.
func (Directory) Snapshot(userID string) (realtime.PresenceUpdate, error) {
	var user models.User
	err := database.DB.Select("id", "is_online", "last_seen").Where("id = ?", userID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return realtime.PresenceUpdate{}, errs.NotFound("User not found")
	}
	if err != nil {
		return realtime.PresenceUpdate{}, err
	}
	return realtime.PresenceUpdate{UserID: user.ID, IsOnline: user.IsOnline, LastSeen: user.LastSeen}, nil
}

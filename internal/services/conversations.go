package services

import (
	"errors"
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/converse-app/converse-backend/internal/database"
	"github.com/converse-app/converse-backend/internal/models"
	"github.com/converse-app/converse-backend/internal/realtime"
	errs "github.com/converse-app/converse-backend/pkg/errors"
)

const (
	DefaultConversationPageSize = 20
	MaxConversationPageSize     = 50
)

// ConversationSummary is one row of a user's conversation list.
type ConversationSummary struct {
	Conversation models.Conversation `json:"conversation"`
	Partner      models.PublicUser   `json:"partner"`
	UnreadCount  int64               `json:"unreadCount"`
}

// GetOrCreateConversation finds the unique conversation between two users,
// creating it when absent. The unique participant-key index is the sole
// concurrency guard: losing the create race is retried exactly once as a
// find. When the calling user had hidden the conversation, re-initiating
// contact clears their hidden flag (never the counterpart's).
func GetOrCreateConversation(callerID, otherID string) (*models.Conversation, error) {
	if callerID == otherID {
		return nil, errs.BadRequest("A conversation needs two distinct participants")
	}
	key := models.MakeParticipantKey(callerID, otherID)

	var conv models.Conversation
	err := database.DB.Where("participant_key = ?", key).First(&conv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		conv = models.Conversation{
			ParticipantKey: key,
			Participants:   pq.StringArray{callerID, otherID},
			HiddenFor:      pq.StringArray{},
			LastMessageAt:  time.Now(),
		}
		createErr := database.DB.Create(&conv).Error
		if createErr == nil {
			return &conv, nil
		}
		if !errors.Is(createErr, gorm.ErrDuplicatedKey) {
			return nil, createErr
		}
		// Lost the race: the counterpart created it first.
		if err := database.DB.Where("participant_key = ?", key).First(&conv).Error; err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}

	if conv.IsHiddenFor(callerID) {
		if err := unhideConversation(&conv, callerID); err != nil {
			return nil, err
		}
	}
	return &conv, nil
}

// unhideConversation removes userID from the conversation's hidden set.
func unhideConversation(conv *models.Conversation, userID string) error {
	err := database.DB.Model(&models.Conversation{}).
		Where("id = ?", conv.ID).
		Update("hidden_for", gorm.Expr("array_remove(coalesce(hidden_for, '{}'), ?)", userID)).Error
	if err != nil {
		return err
	}

	remaining := conv.HiddenFor[:0]
	for _, h := range conv.HiddenFor {
		if h != userID {
			remaining = append(remaining, h)
		}
	}
	conv.HiddenFor = remaining
	return nil
}

// ListConversations returns the caller's visible conversations, most recent
// first, cursor-paginated on lastMessageAt.
func ListConversations(userID string, before *time.Time, limit int) ([]ConversationSummary, error) {
	if limit <= 0 {
		limit = DefaultConversationPageSize
	}
	if limit > MaxConversationPageSize {
		limit = MaxConversationPageSize
	}

	q := database.DB.
		Where("? = ANY(participants)", userID).
		Where("NOT (? = ANY(coalesce(hidden_for, '{}')))", userID)
	if before != nil {
		q = q.Where("last_message_at < ?", *before)
	}

	var convs []models.Conversation
	if err := q.Order("last_message_at desc").Limit(limit).Find(&convs).Error; err != nil {
		return nil, err
	}

	summaries := make([]ConversationSummary, 0, len(convs))
	for _, conv := range convs {
		partnerID := conv.OtherParticipant(userID)

		var partner models.User
		if err := database.DB.Where("id = ?", partnerID).First(&partner).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				continue
			}
			return nil, err
		}

		var unread int64
		err := database.DB.Model(&models.Message{}).
			Where("conversation_id = ? AND recipient_id = ?", conv.ID, userID).
			Where("NOT (? = ANY(coalesce(read_by, '{}')))", userID).
			Where("NOT (? = ANY(coalesce(hidden_for, '{}')))", userID).
			Count(&unread).Error
		if err != nil {
			return nil, err
		}

		summaries = append(summaries, ConversationSummary{
			Conversation: conv,
			Partner:      partner.Public(),
			UnreadCount:  unread,
		})
	}
	return summaries, nil
}

// DeleteConversation removes a conversation from the caller's view (mode
// "me": hide the conversation and cascade the hidden flag to its messages)
// or destroys it for both participants (mode "everyone": hard-delete all
// messages, then the conversation itself).
func DeleteConversation(callerID, conversationID string, mode realtime.DeleteMode) error {
	var conv models.Conversation
	err := database.DB.Where("id = ?", conversationID).First(&conv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errs.NotFound("Conversation not found")
	}
	if err != nil {
		return err
	}
	if !conv.HasParticipant(callerID) {
		return errs.Forbidden("Not a participant of this conversation")
	}

	switch mode {
	case realtime.DeleteModeMe:
		err := database.DB.Model(&models.Conversation{}).
			Where("id = ? AND NOT (? = ANY(coalesce(hidden_for, '{}')))", conv.ID, callerID).
			Update("hidden_for", gorm.Expr("array_append(coalesce(hidden_for, '{}'), ?)", callerID)).Error
		if err != nil {
			return err
		}
		// Cascade so old messages stay hidden even after the conversation
		// resurfaces for the caller.
		return database.DB.Model(&models.Message{}).
			Where("conversation_id = ? AND NOT (? = ANY(coalesce(hidden_for, '{}')))", conv.ID, callerID).
			Update("hidden_for", gorm.Expr("array_append(coalesce(hidden_for, '{}'), ?)", callerID)).Error

	case realtime.DeleteModeEveryone:
		if err := database.DB.Where("conversation_id = ?", conv.ID).Delete(&models.Message{}).Error; err != nil {
			return err
		}
		return database.DB.Delete(&conv).Error

	default:
		return errs.BadRequest("Invalid delete mode")
	}
}

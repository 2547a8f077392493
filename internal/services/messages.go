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
	"github.com/converse-app/converse-backend/pkg/utils"
)

const (
	DefaultMessagePageSize = 30
	MaxMessagePageSize     = 100
)

// SendMessage validates and persists a message, updates the conversation
// preview, and only then forwards the message:new event. Any persistence
// failure aborts before emission; emission itself can never fail the send.
func SendMessage(senderID, recipientID, content string, fw realtime.Forwarder) (*models.Message, error) {
	if recipientID == "" {
		return nil, errs.BadRequest("recipientId is required")
	}
	if recipientID == senderID {
		return nil, errs.BadRequest("Cannot message yourself")
	}

	var recipient models.User
	err := database.DB.Select("id").Where("id = ?", recipientID).First(&recipient).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errs.NotFound("Recipient not found")
	}
	if err != nil {
		return nil, err
	}

	clean, err := utils.SanitizeMessageContent(content)
	if err != nil {
		return nil, errs.BadRequest(err.Error())
	}

	conv, err := GetOrCreateConversation(senderID, recipientID)
	if err != nil {
		return nil, err
	}

	// An incoming message resurfaces the conversation for a recipient who
	// had deleted it for themselves.
	if conv.IsHiddenFor(recipientID) {
		if err := unhideConversation(conv, recipientID); err != nil {
			return nil, err
		}
	}

	msg := models.Message{
		ConversationID: conv.ID,
		SenderID:       senderID,
		RecipientID:    recipientID,
		Content:        clean,
		ReadBy:         pq.StringArray{senderID},
		HiddenFor:      pq.StringArray{},
		CreatedAt:      time.Now(),
	}
	if err := database.DB.Create(&msg).Error; err != nil {
		return nil, err
	}

	err = database.DB.Model(&models.Conversation{}).
		Where("id = ?", conv.ID).
		Updates(map[string]interface{}{
			"last_message_text": clean,
			"last_message_at":   msg.CreatedAt,
		}).Error
	if err != nil {
		return nil, err
	}

	fw.Forward(realtime.MessageNew{Message: msg})
	return &msg, nil
}

// ListMessages returns the visible messages of the conversation between the
// caller and the other user, oldest first within the page. The conversation
// is lazily created on first history fetch, which also clears the caller's
// hidden flag.
func ListMessages(callerID, otherUserID string, before *time.Time, limit int) ([]models.Message, *models.Conversation, error) {
	if limit <= 0 {
		limit = DefaultMessagePageSize
	}
	if limit > MaxMessagePageSize {
		limit = MaxMessagePageSize
	}

	var other models.User
	err := database.DB.Select("id").Where("id = ?", otherUserID).First(&other).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, errs.NotFound("User not found")
	}
	if err != nil {
		return nil, nil, err
	}

	conv, err := GetOrCreateConversation(callerID, otherUserID)
	if err != nil {
		return nil, nil, err
	}

	q := database.DB.
		Where("conversation_id = ?", conv.ID).
		Where("NOT (? = ANY(coalesce(hidden_for, '{}')))", callerID)
	if before != nil {
		q = q.Where("created_at < ?", *before)
	}

	var page []models.Message
	if err := q.Order("created_at desc").Limit(limit).Find(&page).Error; err != nil {
		return nil, nil, err
	}

	// Reverse to chronological order and tombstone deleted messages.
	msgs := make([]models.Message, 0, len(page))
	for i := len(page) - 1; i >= 0; i-- {
		msgs = append(msgs, page[i].ForViewer())
	}
	return msgs, conv, nil
}

// MarkRead adds the caller to the readBy set of every unread message
// addressed to them in the conversation. When nothing is unread it
// short-circuits without emitting.
func MarkRead(readerID, conversationID string, fw realtime.Forwarder) (int64, error) {
	var conv models.Conversation
	err := database.DB.Where("id = ?", conversationID).First(&conv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, errs.NotFound("Conversation not found")
	}
	if err != nil {
		return 0, err
	}
	if !conv.HasParticipant(readerID) {
		return 0, errs.Forbidden("Not a participant of this conversation")
	}

	var ids []string
	err = database.DB.Model(&models.Message{}).
		Where("conversation_id = ? AND recipient_id = ?", conv.ID, readerID).
		Where("NOT (? = ANY(coalesce(read_by, '{}')))", readerID).
		Where("NOT (? = ANY(coalesce(hidden_for, '{}')))", readerID).
		Order("created_at asc").
		Pluck("id", &ids).Error
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	// The predicate is repeated so a concurrent mark-read cannot add the
	// reader twice.
	res := database.DB.Model(&models.Message{}).
		Where("id IN ? AND NOT (? = ANY(coalesce(read_by, '{}')))", ids, readerID).
		Update("read_by", gorm.Expr("array_append(coalesce(read_by, '{}'), ?)", readerID))
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, nil
	}

	fw.Forward(realtime.MessageRead{
		ConversationID: conv.ID,
		ReaderID:       readerID,
		MessageIDs:     ids,
	})
	return res.RowsAffected, nil
}

// DeleteMessage hides a message from the caller (mode "me") or tombstones
// it for both participants (mode "everyone", sender only, once only).
func DeleteMessage(actorID, messageID string, mode realtime.DeleteMode, fw realtime.Forwarder) error {
	var msg models.Message
	err := database.DB.Where("id = ?", messageID).First(&msg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errs.NotFound("Message not found")
	}
	if err != nil {
		return err
	}
	if actorID != msg.SenderID && actorID != msg.RecipientID {
		return errs.Forbidden("Not a participant of this conversation")
	}

	switch mode {
	case realtime.DeleteModeMe:
		err := database.DB.Model(&models.Message{}).
			Where("id = ? AND NOT (? = ANY(coalesce(hidden_for, '{}')))", msg.ID, actorID).
			Update("hidden_for", gorm.Expr("array_append(coalesce(hidden_for, '{}'), ?)", actorID)).Error
		if err != nil {
			return err
		}

	case realtime.DeleteModeEveryone:
		if actorID != msg.SenderID {
			return errs.Forbidden("Only the sender can delete a message for everyone")
		}
		if msg.DeletedForEveryone {
			return errs.BadRequest("Message is already deleted")
		}

		now := time.Now()
		err := database.DB.Model(&models.Message{}).
			Where("id = ?", msg.ID).
			Updates(map[string]interface{}{
				"content":                 "",
				"deleted_for_everyone":    true,
				"deleted_for_everyone_at": now,
			}).Error
		if err != nil {
			return err
		}
		if err := refreshConversationPreview(msg.ConversationID); err != nil {
			return err
		}

	default:
		return errs.BadRequest("Invalid delete mode")
	}

	fw.Forward(realtime.MessageDeleted{
		ConversationID: msg.ConversationID,
		MessageID:      msg.ID,
		Mode:           mode,
		ActorID:        actorID,
		SenderID:       msg.SenderID,
		RecipientID:    msg.RecipientID,
	})
	return nil
}

// refreshConversationPreview recomputes the preview from the latest message.
// When that message is itself deleted for everyone, the preview shows the
// tombstone text.
func refreshConversationPreview(conversationID string) error {
	var latest models.Message
	err := database.DB.
		Where("conversation_id = ?", conversationID).
		Order("created_at desc").
		First(&latest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return database.DB.Model(&models.Conversation{}).
			Where("id = ?", conversationID).
			Update("last_message_text", "").Error
	}
	if err != nil {
		return err
	}

	preview := latest.Content
	if latest.DeletedForEveryone {
		preview = models.TombstoneText
	}
	return database.DB.Model(&models.Conversation{}).
		Where("id = ?", conversationID).
		Updates(map[string]interface{}{
			"last_message_text": preview,
			"last_message_at":   latest.CreatedAt,
		}).Error
}

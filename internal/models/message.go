package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// TombstoneText replaces the content of a message deleted for everyone.
const TombstoneText = "This message was deleted"

// Message is a direct message inside a conversation. ReadBy and HiddenFor
// are per-user sets; the sender is a ReadBy member from creation.
type Message struct {
	ID        string    `gorm:"primaryKey;type:text" json:"id"`
	CreatedAt time.Time `gorm:"index" json:"createdAt"`

	ConversationID string `gorm:"index;type:text;not null" json:"conversationId"`
	SenderID       string `gorm:"index;type:text;not null" json:"senderId"`
	RecipientID    string `gorm:"index;type:text;not null" json:"recipientId"`

	Content string `gorm:"type:text" json:"content"`

	ReadBy    pq.StringArray `gorm:"type:text[]" json:"readBy"`
	HiddenFor pq.StringArray `gorm:"type:text[]" json:"-"`

	// Delete-for-everyone. Once set the content is cleared and the message
	// renders as a tombstone; the flag is never unset.
	DeletedForEveryone bool       `gorm:"default:false" json:"deletedForEveryone"`
	DeletedAt          *time.Time `gorm:"column:deleted_for_everyone_at" json:"deletedAt"`
}

func (m *Message) BeforeCreate(tx *gorm.DB) (err error) {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return
}

// IsReadBy reports whether userID has read this message.
func (m *Message) IsReadBy(userID string) bool {
	for _, r := range m.ReadBy {
		if r == userID {
			return true
		}
	}
	return false
}

// IsHiddenFor reports whether userID soft-deleted this message.
func (m *Message) IsHiddenFor(userID string) bool {
	for _, h := range m.HiddenFor {
		if h == userID {
			return true
		}
	}
	return false
}

// ForViewer returns the message as it should be rendered: a deleted-for-
// everyone message carries the tombstone text instead of its content.
func (m Message) ForViewer() Message {
	if m.DeletedForEveryone {
		m.Content = TombstoneText
	}
	return m
}

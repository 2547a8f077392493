package models

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// Conversation is the single thread between exactly two users. The
// participant key is the order-independent uniqueness constraint that makes
// find-or-create idempotent under concurrent first contact.
type Conversation struct {
	ID        string    `gorm:"primaryKey;type:text" json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	ParticipantKey string         `gorm:"uniqueIndex;not null" json:"-"`
	Participants   pq.StringArray `gorm:"type:text[];not null" json:"participants"`

	// Users who soft-deleted this conversation for themselves
	HiddenFor pq.StringArray `gorm:"type:text[]" json:"-"`

	LastMessageText string    `json:"lastMessageText"`
	LastMessageAt   time.Time `gorm:"index" json:"lastMessageAt"`
}

func (c *Conversation) BeforeCreate(tx *gorm.DB) (err error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	return
}

// MakeParticipantKey builds the sorted, joined key for a user pair.
// MakeParticipantKey(a, b) == MakeParticipantKey(b, a).
func MakeParticipantKey(userA, userB string) string {
	ids := []string{userA, userB}
	sort.Strings(ids)
	return strings.Join(ids, ":")
}

// HasParticipant reports whether userID is one of the two participants.
func (c *Conversation) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// OtherParticipant returns the counterpart of userID, or "" if userID is not
// a participant.
func (c *Conversation) OtherParticipant(userID string) string {
	for _, p := range c.Participants {
		if p != userID {
			return p
		}
	}
	return ""
}

// IsHiddenFor reports whether userID soft-deleted this conversation.
func (c *Conversation) IsHiddenFor(userID string) bool {
	for _, h := range c.HiddenFor {
		if h == userID {
			return true
		}
	}
	return false
}

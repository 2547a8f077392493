package realtime

import (
	"time"

	"github.com/converse-app/converse-backend/internal/models"
)

// Event is the tagged union of everything the router can fan out. Each
// variant knows its wire name; routing rules live in the router.
type Event interface {
	EventName() string
}

// DeleteMode distinguishes "delete for me" from "delete for everyone".
type DeleteMode string

const (
	DeleteModeMe       DeleteMode = "me"
	DeleteModeEveryone DeleteMode = "everyone"
)

// ParseDeleteMode validates a client-supplied mode string.
func ParseDeleteMode(s string) (DeleteMode, bool) {
	switch DeleteMode(s) {
	case DeleteModeMe, DeleteModeEveryone:
		return DeleteMode(s), true
	}
	return "", false
}

// MessageNew announces a freshly persisted message. Delivered to the
// conversation group and to the inbox groups of both sender and recipient,
// so tabs that never joined the room still hear about it.
type MessageNew struct {
	Message models.Message `json:"message"`
}

func (MessageNew) EventName() string { return "message:new" }

// MessageRead announces that the reader caught up on a batch of messages.
// Delivered to the conversation group only.
type MessageRead struct {
	ConversationID string   `json:"conversationId"`
	ReaderID       string   `json:"readerId"`
	MessageIDs     []string `json:"messageIds"`
}

func (MessageRead) EventName() string { return "message:read" }

// MessageDeleted announces a soft or hard message deletion. Mode "me" only
// reaches the acting user's other sessions; mode "everyone" reaches the
// conversation group plus both inbox groups.
type MessageDeleted struct {
	ConversationID string     `json:"conversationId"`
	MessageID      string     `json:"messageId"`
	Mode           DeleteMode `json:"mode"`
	ActorID        string     `json:"actorId"`
	SenderID       string     `json:"senderId"`
	RecipientID    string     `json:"recipientId"`
}

func (MessageDeleted) EventName() string { return "message:deleted" }

// TypingUpdate is delivered to the recipient's inbox group. It is never
// echoed back to the session that produced it and is never persisted.
type TypingUpdate struct {
	ConversationID string `json:"conversationId"`
	FromUserID     string `json:"fromUserId"`
	ToUserID       string `json:"toUserId"`
	IsTyping       bool   `json:"isTyping"`

	// FromSessionID excludes the producing session from delivery.
	FromSessionID string `json:"-"`
}

func (TypingUpdate) EventName() string { return "typing:update" }

// PresenceUpdate is delivered to the target's presence watchers and to the
// target's own inbox group, so their other sessions see the state echoed.
type PresenceUpdate struct {
	UserID   string     `json:"userId"`
	IsOnline bool       `json:"isOnline"`
	LastSeen *time.Time `json:"lastSeen"`
}

func (PresenceUpdate) EventName() string { return "presence:update" }

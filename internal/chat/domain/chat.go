package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ChatType definition chat conversation type
type ChatType string

const (
	// ChatTypeDirect 1 on 1 conversation, no name, exactly two members
	ChatTypeDirect ChatType = "direct"
	// ChatTypeGroup named conversation with an explicit member list
	ChatTypeGroup ChatType = "group"
	// ChatTypePublic open channel every family member may read
	ChatTypePublic ChatType = "public"
)

// MaxChatNameLength is the upper bound for group/public chat names.
const MaxChatNameLength = 100

// Chat definition a conversation container
type Chat struct {
	ID          string    `gorm:"primaryKey;type:uuid" json:"id"`
	ChatType    ChatType  `gorm:"not null;index" json:"chat_type"`
	Name        string    `json:"name,omitempty"`
	CreatedByID *string   `gorm:"type:uuid;index" json:"created_by_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	Memberships []ChatMembership `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	Messages    []Message        `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

// BeforeCreate assigns a UUID when none is set.
func (c *Chat) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	return nil
}

// IsDirect check chat is a 1 on 1 conversation
func (c *Chat) IsDirect() bool { return c.ChatType == ChatTypeDirect }

// IsGroup check chat is a group conversation
func (c *Chat) IsGroup() bool { return c.ChatType == ChatTypeGroup }

// IsPublic check chat is an open channel
func (c *Chat) IsPublic() bool { return c.ChatType == ChatTypePublic }

// DisplayName returns the chat name for group/public chats. Direct chats
// have no stored name; callers pass the other member's full name.
func (c *Chat) DisplayName(otherMemberName string) string {
	if c.IsDirect() {
		if otherMemberName != "" {
			return otherMemberName
		}
		return "Unknown User"
	}
	if c.Name != "" {
		return c.Name
	}
	return "Unnamed Chat"
}

// ChatMembership joins a user to a chat and carries the user's read cursor
// and notification preference for that chat. last_read_at is the sole input
// to the unread badge; it only ever moves forward.
type ChatMembership struct {
	ID                   string     `gorm:"primaryKey;type:uuid" json:"id"`
	ChatID               string     `gorm:"type:uuid;not null;uniqueIndex:idx_chat_memberships_chat_user" json:"chat_id"`
	UserID               string     `gorm:"type:uuid;not null;uniqueIndex:idx_chat_memberships_chat_user" json:"user_id"`
	LastReadAt           *time.Time `json:"last_read_at,omitempty"`
	NotificationsEnabled bool       `gorm:"not null;default:true" json:"notifications_enabled"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// BeforeCreate assigns a UUID when none is set.
func (m *ChatMembership) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return nil
}

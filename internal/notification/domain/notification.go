package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// NotificationType definition what triggered the notification
type NotificationType string

const (
	// NotificationMention the actor mentioned the recipient in a message
	NotificationMention NotificationType = "mention"
	// NotificationThreadReply the actor replied to the recipient's message
	NotificationThreadReply NotificationType = "thread_reply"
)

// NotifiableType tags the entity a notification points at. Only messages
// today; the tag keeps the reference extensible without a polymorphic
// table.
type NotifiableType string

// NotifiableMessage the notifiable is a chat message
const NotifiableMessage NotifiableType = "message"

// Notification is one dispatched user notification. The five-column unique
// index is the dedup tuple: re-dispatching the same trigger is a no-op.
type Notification struct {
	ID               string           `gorm:"primaryKey;type:uuid" json:"id"`
	UserID           string           `gorm:"type:uuid;not null;index;uniqueIndex:idx_notifications_dedup" json:"user_id"`
	ActorID          string           `gorm:"type:uuid;not null;uniqueIndex:idx_notifications_dedup" json:"actor_id"`
	NotifiableType   NotifiableType   `gorm:"not null;uniqueIndex:idx_notifications_dedup" json:"notifiable_type"`
	NotifiableID     string           `gorm:"type:uuid;not null;uniqueIndex:idx_notifications_dedup" json:"notifiable_id"`
	NotificationType NotificationType `gorm:"not null;uniqueIndex:idx_notifications_dedup" json:"notification_type"`
	ReadAt           *time.Time       `json:"read_at,omitempty"`
	CreatedAt        time.Time        `gorm:"index" json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// BeforeCreate assigns a UUID when none is set.
func (n *Notification) BeforeCreate(tx *gorm.DB) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	return nil
}

// IsRead check notification has been read
func (n *Notification) IsRead() bool { return n.ReadAt != nil }

// Description build the display line for the recipient.
func (n *Notification) Description(actorFirstName string) string {
	if actorFirstName == "" {
		actorFirstName = "Someone"
	}
	switch n.NotificationType {
	case NotificationThreadReply:
		return fmt.Sprintf("%s replied to your message", actorFirstName)
	case NotificationMention:
		return fmt.Sprintf("%s mentioned you", actorFirstName)
	default:
		return fmt.Sprintf("%s sent you a notification", actorFirstName)
	}
}

// TimeAgo bucket the notification age for display.
func (n *Notification) TimeAgo(now time.Time) string {
	d := now.Sub(n.CreatedAt)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

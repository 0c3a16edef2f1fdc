package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"family_messaging_service/pkg"
)

// Attachment limits mirror what the upload collaborator enforces; the core
// re-validates the declared content type and size on the opaque reference.
const (
	// MaxAttachmentSize is the per-attachment byte limit.
	MaxAttachmentSize = 100 << 20
	// MaxContentLength is the per-message rune limit on plaintext content.
	MaxContentLength = 10_000
)

// Allowed attachment content types.
var (
	AllowedImageTypes    = []string{"image/jpeg", "image/png", "image/gif", "image/webp", "image/heic", "image/heif"}
	AllowedVideoTypes    = []string{"video/mp4", "video/quicktime", "video/webm", "video/x-msvideo"}
	AllowedDocumentTypes = []string{"application/pdf", "application/msword", "application/vnd.openxmlformats-officedocument.wordprocessingml.document", "text/plain"}
)

// QuickEmojis are the quick-access reactions shown first in clients.
var QuickEmojis = []string{"👍", "❤️", "😂", "😮", "😢", "🎉"}

// TombstonePlaceholder replaces content of soft-deleted messages at render
// time. The stored ciphertext is never removed.
const TombstonePlaceholder = "[Message deleted]"

// Message definition one message in a chat. Content is stored sealed; the
// plaintext only exists between the encrypt boundary and the renderer.
type Message struct {
	ID              string     `gorm:"primaryKey;type:uuid" json:"id"`
	ChatID          string     `gorm:"type:uuid;not null;index:idx_messages_chat_created" json:"chat_id"`
	UserID          string     `gorm:"type:uuid;not null;index" json:"user_id"`
	ParentMessageID *string    `gorm:"type:uuid;index" json:"parent_message_id,omitempty"`
	SealedContent   string     `gorm:"type:text" json:"-"`
	Edited          bool       `gorm:"not null;default:false" json:"edited"`
	DeletedAt       *time.Time `gorm:"index" json:"deleted_at,omitempty"`
	// MentionedUserIDs is derived from content on every write, never
	// mutated independently.
	MentionedUserIDs []string  `gorm:"serializer:json" json:"mentioned_user_ids,omitempty"`
	CreatedAt        time.Time `gorm:"index:idx_messages_chat_created" json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`

	Attachments []Attachment         `gorm:"constraint:OnDelete:CASCADE" json:"attachments,omitempty"`
	Reactions   []MessageReaction    `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	Receipts    []MessageReadReceipt `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

// BeforeCreate assigns a UUID when none is set.
func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return nil
}

// IsReply check message replies to another message
func (m *Message) IsReply() bool { return m.ParentMessageID != nil }

// IsDeleted check message is soft-deleted
func (m *Message) IsDeleted() bool { return m.DeletedAt != nil }

// Mentions check user id is in the derived mention set
func (m *Message) Mentions(userID string) bool {
	return pkg.Contains(m.MentionedUserIDs, userID)
}

// Attachment references a stored blob. The bytes live with the storage
// collaborator; the core keeps the reference plus what it validates.
type Attachment struct {
	ID          string    `gorm:"primaryKey;type:uuid" json:"id"`
	MessageID   string    `gorm:"type:uuid;not null;index" json:"message_id"`
	BlobRef     string    `gorm:"not null" json:"blob_ref"`
	FileName    string    `json:"file_name"`
	ContentType string    `gorm:"not null" json:"content_type"`
	ByteSize    int64     `gorm:"not null" json:"byte_size"`
	CreatedAt   time.Time `json:"created_at"`
}

// BeforeCreate assigns a UUID when none is set.
func (a *Attachment) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	return nil
}

// IsImage check attachment declares an allowed image type
func (a *Attachment) IsImage() bool { return pkg.Contains(AllowedImageTypes, a.ContentType) }

// IsVideo check attachment declares an allowed video type
func (a *Attachment) IsVideo() bool { return pkg.Contains(AllowedVideoTypes, a.ContentType) }

// IsDocument check attachment declares an allowed document type
func (a *Attachment) IsDocument() bool { return pkg.Contains(AllowedDocumentTypes, a.ContentType) }

// AllowedContentType check the declared type is in any allow list.
func AllowedContentType(contentType string) bool {
	return pkg.Contains(AllowedImageTypes, contentType) ||
		pkg.Contains(AllowedVideoTypes, contentType) ||
		pkg.Contains(AllowedDocumentTypes, contentType)
}

// MessageReaction definition one emoji reaction on a message. A user may
// hold several distinct emojis on one message, never the same one twice.
type MessageReaction struct {
	ID        string    `gorm:"primaryKey;type:uuid" json:"id"`
	MessageID string    `gorm:"type:uuid;not null;uniqueIndex:idx_reactions_message_user_emoji" json:"message_id"`
	UserID    string    `gorm:"type:uuid;not null;uniqueIndex:idx_reactions_message_user_emoji" json:"user_id"`
	Emoji     string    `gorm:"not null;uniqueIndex:idx_reactions_message_user_emoji" json:"emoji"`
	CreatedAt time.Time `json:"created_at"`
}

// BeforeCreate assigns a UUID when none is set.
func (r *MessageReaction) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	return nil
}

// MessageReadReceipt marks a message as seen by a user. Created once,
// never updated or removed; feeds the "seen by" display only, not the
// unread badge.
type MessageReadReceipt struct {
	ID        string    `gorm:"primaryKey;type:uuid" json:"id"`
	MessageID string    `gorm:"type:uuid;not null;uniqueIndex:idx_receipts_message_user" json:"message_id"`
	UserID    string    `gorm:"type:uuid;not null;uniqueIndex:idx_receipts_message_user" json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// BeforeCreate assigns a UUID when none is set.
func (r *MessageReadReceipt) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	return nil
}

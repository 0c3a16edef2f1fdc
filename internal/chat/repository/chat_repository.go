package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"family_messaging_service/internal/chat/domain"
	errprocess "family_messaging_service/pkg/err"
)

// ChatRepository definition chat and membership persistence
type ChatRepository interface {
	Create(ctx context.Context, chat *domain.Chat, memberIDs []string) error
	FindByID(ctx context.Context, chatID string) (*domain.Chat, error)
	FindOrCreateDirect(ctx context.Context, userA, userB string) (*domain.Chat, bool, error)
	ListForUser(ctx context.Context, userID string) ([]domain.Chat, error)
	UpdateName(ctx context.Context, chatID, name string) error
	Delete(ctx context.Context, chatID string) error
	AddMember(ctx context.Context, chatID, userID string) error
	RemoveMember(ctx context.Context, chatID, userID string) error
	FindMembership(ctx context.Context, chatID, userID string) (*domain.ChatMembership, error)
	MemberIDs(ctx context.Context, chatID string) ([]string, error)
	MarkRead(ctx context.Context, chatID, userID string, at time.Time) error
	UnreadCount(ctx context.Context, chatID, userID string) (int64, error)
	SetNotificationsEnabled(ctx context.Context, chatID, userID string, enabled bool) error
}

type chatRepository struct {
	db *gorm.DB
}

// NewChatRepository create gorm backed chat repository
func NewChatRepository(db *gorm.DB) ChatRepository {
	return &chatRepository{db: db}
}

// Create store chat with its initial memberships in one transaction
func (r *chatRepository) Create(ctx context.Context, chat *domain.Chat, memberIDs []string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(chat).Error; err != nil {
			return err
		}
		for _, id := range memberIDs {
			m := domain.ChatMembership{ChatID: chat.ID, UserID: id, NotificationsEnabled: true}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&m).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// FindByID find chat by id
func (r *chatRepository) FindByID(ctx context.Context, chatID string) (*domain.Chat, error) {
	var chat domain.Chat
	err := r.db.WithContext(ctx).First(&chat, "id = ?", chatID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errprocess.NotFound("chat")
	}
	if err != nil {
		return nil, err
	}
	return &chat, nil
}

// FindOrCreateDirect returns the existing direct chat between two users or
// creates it. Direct chats always have exactly two memberships, so joining
// on both users is sufficient. The created flag reports which path ran.
func (r *chatRepository) FindOrCreateDirect(ctx context.Context, userA, userB string) (*domain.Chat, bool, error) {
	var chat domain.Chat
	find := func(tx *gorm.DB) error {
		return tx.
			Joins("JOIN chat_memberships ma ON ma.chat_id = chats.id AND ma.user_id = ?", userA).
			Joins("JOIN chat_memberships mb ON mb.chat_id = chats.id AND mb.user_id = ?", userB).
			Where("chats.chat_type = ?", domain.ChatTypeDirect).
			First(&chat).Error
	}

	err := find(r.db.WithContext(ctx))
	if err == nil {
		return &chat, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	created := false
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// re-check inside the transaction, a concurrent caller may have won
		if err := find(tx); err == nil {
			return nil
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		chat = domain.Chat{ChatType: domain.ChatTypeDirect, CreatedByID: &userA}
		if err := tx.Create(&chat).Error; err != nil {
			return err
		}
		for _, id := range []string{userA, userB} {
			m := domain.ChatMembership{ChatID: chat.ID, UserID: id, NotificationsEnabled: true}
			if err := tx.Create(&m).Error; err != nil {
				return err
			}
		}
		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return &chat, created, nil
}

// ListForUser list chats the user belongs to, most recently updated first
func (r *chatRepository) ListForUser(ctx context.Context, userID string) ([]domain.Chat, error) {
	var chats []domain.Chat
	err := r.db.WithContext(ctx).
		Joins("JOIN chat_memberships m ON m.chat_id = chats.id AND m.user_id = ?", userID).
		Order("chats.updated_at DESC").
		Find(&chats).Error
	return chats, err
}

// UpdateName rename group/public chat
func (r *chatRepository) UpdateName(ctx context.Context, chatID, name string) error {
	return r.db.WithContext(ctx).Model(&domain.Chat{}).
		Where("id = ?", chatID).
		Update("name", name).Error
}

// Delete remove a chat and everything hanging off it in one transaction:
// reactions, receipts and attachments of its messages, then the messages,
// memberships and the chat row itself.
func (r *chatRepository) Delete(ctx context.Context, chatID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		messageIDs := tx.Session(&gorm.Session{NewDB: true}).
			Model(&domain.Message{}).
			Select("id").
			Where("chat_id = ?", chatID)

		if err := tx.Where("message_id IN (?)", messageIDs).Delete(&domain.MessageReaction{}).Error; err != nil {
			return err
		}
		if err := tx.Where("message_id IN (?)", messageIDs).Delete(&domain.MessageReadReceipt{}).Error; err != nil {
			return err
		}
		if err := tx.Where("message_id IN (?)", messageIDs).Delete(&domain.Attachment{}).Error; err != nil {
			return err
		}
		if err := tx.Where("chat_id = ?", chatID).Delete(&domain.Message{}).Error; err != nil {
			return err
		}
		if err := tx.Where("chat_id = ?", chatID).Delete(&domain.ChatMembership{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", chatID).Delete(&domain.Chat{}).Error
	})
}

// AddMember add membership, a second add of the same user is a no-op
func (r *chatRepository) AddMember(ctx context.Context, chatID, userID string) error {
	m := domain.ChatMembership{ChatID: chatID, UserID: userID, NotificationsEnabled: true}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&m).Error
}

// RemoveMember remove membership
func (r *chatRepository) RemoveMember(ctx context.Context, chatID, userID string) error {
	return r.db.WithContext(ctx).
		Where("chat_id = ? AND user_id = ?", chatID, userID).
		Delete(&domain.ChatMembership{}).Error
}

// FindMembership find membership for user in chat
func (r *chatRepository) FindMembership(ctx context.Context, chatID, userID string) (*domain.ChatMembership, error) {
	var m domain.ChatMembership
	err := r.db.WithContext(ctx).
		First(&m, "chat_id = ? AND user_id = ?", chatID, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errprocess.NotFound("membership")
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// MemberIDs list user ids of all chat members
func (r *chatRepository) MemberIDs(ctx context.Context, chatID string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&domain.ChatMembership{}).
		Where("chat_id = ?", chatID).
		Pluck("user_id", &ids).Error
	return ids, err
}

// MarkRead advance the read cursor. The cursor only moves forward; a stale
// timestamp leaves the row untouched.
func (r *chatRepository) MarkRead(ctx context.Context, chatID, userID string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&domain.ChatMembership{}).
		Where("chat_id = ? AND user_id = ? AND (last_read_at IS NULL OR last_read_at < ?)", chatID, userID, at).
		Update("last_read_at", at).Error
}

// UnreadCount count messages from others after the read cursor. A missing
// cursor counts every message not authored by the viewer.
func (r *chatRepository) UnreadCount(ctx context.Context, chatID, userID string) (int64, error) {
	m, err := r.FindMembership(ctx, chatID, userID)
	if err != nil {
		return 0, err
	}
	q := r.db.WithContext(ctx).Model(&domain.Message{}).
		Where("chat_id = ? AND user_id <> ?", chatID, userID)
	if m.LastReadAt != nil {
		q = q.Where("created_at > ?", *m.LastReadAt)
	}
	var count int64
	err = q.Count(&count).Error
	return count, err
}

// SetNotificationsEnabled toggle per-chat notification preference
func (r *chatRepository) SetNotificationsEnabled(ctx context.Context, chatID, userID string, enabled bool) error {
	return r.db.WithContext(ctx).Model(&domain.ChatMembership{}).
		Where("chat_id = ? AND user_id = ?", chatID, userID).
		Update("notifications_enabled", enabled).Error
}

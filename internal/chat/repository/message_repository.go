package repository

import (
	"context"
	"errors"
	"sort"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"family_messaging_service/internal/chat/domain"
	errprocess "family_messaging_service/pkg/err"
)

// MessageRepository definition message, reaction and receipt persistence
type MessageRepository interface {
	Create(ctx context.Context, msg *domain.Message) error
	FindByID(ctx context.Context, id string) (*domain.Message, error)
	UpdateContent(ctx context.Context, id, sealedContent string, mentionedUserIDs []string) error
	SoftDelete(ctx context.Context, id string, at time.Time) error
	ListByChat(ctx context.Context, chatID string, before time.Time, limit int) ([]domain.Message, error)
	ListThread(ctx context.Context, parentID string) ([]domain.Message, error)
	ToggleReaction(ctx context.Context, messageID, userID, emoji string) (bool, error)
	ReactionCounts(ctx context.Context, messageID string) ([]domain.ReactionCount, error)
	CreateReadReceipt(ctx context.Context, messageID, userID string) error
	ListReadReceipts(ctx context.Context, messageID string) ([]domain.MessageReadReceipt, error)
}

type messageRepository struct {
	db *gorm.DB
}

// NewMessageRepository create gorm backed message repository
func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

// Create store message, bumping the chat so list ordering follows activity
func (r *messageRepository) Create(ctx context.Context, msg *domain.Message) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(msg).Error; err != nil {
			return err
		}
		return tx.Model(&domain.Chat{}).
			Where("id = ?", msg.ChatID).
			Update("updated_at", msg.CreatedAt).Error
	})
}

// FindByID find message with attachments by id
func (r *messageRepository) FindByID(ctx context.Context, id string) (*domain.Message, error) {
	var msg domain.Message
	err := r.db.WithContext(ctx).
		Preload("Attachments").
		First(&msg, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errprocess.NotFound("message")
	}
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// UpdateContent replace sealed content, re-derived mentions and set edited
func (r *messageRepository) UpdateContent(ctx context.Context, id, sealedContent string, mentionedUserIDs []string) error {
	return r.db.WithContext(ctx).Model(&domain.Message{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"sealed_content":     sealedContent,
			"mentioned_user_ids": mentionedUserIDs,
			"edited":             true,
		}).Error
}

// SoftDelete stamp deleted_at, the row and its ciphertext stay
func (r *messageRepository) SoftDelete(ctx context.Context, id string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&domain.Message{}).
		Where("id = ? AND deleted_at IS NULL", id).
		Update("deleted_at", at).Error
}

// ListByChat page messages older than before, returned oldest first
func (r *messageRepository) ListByChat(ctx context.Context, chatID string, before time.Time, limit int) ([]domain.Message, error) {
	var msgs []domain.Message
	err := r.db.WithContext(ctx).
		Preload("Attachments").
		Where("chat_id = ? AND created_at < ?", chatID, before).
		Order("created_at DESC").
		Limit(limit).
		Find(&msgs).Error
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// ListThread list replies to a message, oldest first
func (r *messageRepository) ListThread(ctx context.Context, parentID string) ([]domain.Message, error) {
	var msgs []domain.Message
	err := r.db.WithContext(ctx).
		Preload("Attachments").
		Where("parent_message_id = ?", parentID).
		Order("created_at ASC").
		Find(&msgs).Error
	return msgs, err
}

// ToggleReaction remove the user's reaction if present, otherwise add it.
// Returns true when the reaction was added. The unique index makes the
// loser of a concurrent add a no-op.
func (r *messageRepository) ToggleReaction(ctx context.Context, messageID, userID, emoji string) (bool, error) {
	added := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("message_id = ? AND user_id = ? AND emoji = ?", messageID, userID, emoji).
			Delete(&domain.MessageReaction{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			return nil
		}
		reaction := domain.MessageReaction{MessageID: messageID, UserID: userID, Emoji: emoji}
		res = tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&reaction)
		if res.Error != nil {
			return res.Error
		}
		added = res.RowsAffected > 0
		return nil
	})
	return added, err
}

// ReactionCounts aggregate reactions per emoji with the reacting user ids
func (r *messageRepository) ReactionCounts(ctx context.Context, messageID string) ([]domain.ReactionCount, error) {
	var reactions []domain.MessageReaction
	err := r.db.WithContext(ctx).
		Where("message_id = ?", messageID).
		Order("created_at ASC").
		Find(&reactions).Error
	if err != nil {
		return nil, err
	}

	byEmoji := map[string]*domain.ReactionCount{}
	order := []string{}
	for _, reaction := range reactions {
		rc, ok := byEmoji[reaction.Emoji]
		if !ok {
			rc = &domain.ReactionCount{Emoji: reaction.Emoji}
			byEmoji[reaction.Emoji] = rc
			order = append(order, reaction.Emoji)
		}
		rc.Count++
		rc.UserIDs = append(rc.UserIDs, reaction.UserID)
	}

	counts := make([]domain.ReactionCount, 0, len(order))
	for _, emoji := range order {
		counts = append(counts, *byEmoji[emoji])
	}
	sort.SliceStable(counts, func(i, j int) bool { return counts[i].Count > counts[j].Count })
	return counts, nil
}

// CreateReadReceipt store receipt once, repeats are no-ops
func (r *messageRepository) CreateReadReceipt(ctx context.Context, messageID, userID string) error {
	receipt := domain.MessageReadReceipt{MessageID: messageID, UserID: userID}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&receipt).Error
}

// ListReadReceipts list receipts for a message, oldest first
func (r *messageRepository) ListReadReceipts(ctx context.Context, messageID string) ([]domain.MessageReadReceipt, error) {
	var receipts []domain.MessageReadReceipt
	err := r.db.WithContext(ctx).
		Where("message_id = ?", messageID).
		Order("created_at ASC").
		Find(&receipts).Error
	return receipts, err
}

package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"family_messaging_service/internal/notification/domain"
	errprocess "family_messaging_service/pkg/err"
)

// NotificationRepository definition notification persistence
type NotificationRepository interface {
	Create(ctx context.Context, n *domain.Notification) (bool, error)
	FindByID(ctx context.Context, id string) (*domain.Notification, error)
	FindRecentByUser(ctx context.Context, userID string, limit int) ([]domain.Notification, error)
	CountUnread(ctx context.Context, userID string) (int64, error)
	MarkRead(ctx context.Context, id, userID string, at time.Time) (bool, error)
	MarkAllRead(ctx context.Context, userID string, at time.Time) ([]string, error)
}

type notificationRepository struct {
	db *gorm.DB
}

// NewNotificationRepository create gorm backed notification repository
func NewNotificationRepository(db *gorm.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

// Create store notification once per dedup tuple. Returns false when an
// identical notification already exists.
func (r *notificationRepository) Create(ctx context.Context, n *domain.Notification) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(n)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// FindByID find notification by id
func (r *notificationRepository) FindByID(ctx context.Context, id string) (*domain.Notification, error) {
	var n domain.Notification
	err := r.db.WithContext(ctx).First(&n, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errprocess.NotFound("notification")
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// FindRecentByUser list the user's notifications, newest first
func (r *notificationRepository) FindRecentByUser(ctx context.Context, userID string, limit int) ([]domain.Notification, error) {
	var notifications []domain.Notification
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&notifications).Error
	return notifications, err
}

// CountUnread count the user's unread notifications
func (r *notificationRepository) CountUnread(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.Notification{}).
		Where("user_id = ? AND read_at IS NULL", userID).
		Count(&count).Error
	return count, err
}

// MarkRead stamp one notification read. Returns false when it was already
// read or belongs to someone else.
func (r *notificationRepository) MarkRead(ctx context.Context, id, userID string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&domain.Notification{}).
		Where("id = ? AND user_id = ? AND read_at IS NULL", id, userID).
		Update("read_at", at)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// MarkAllRead stamp every unread notification of the user, returning the
// ids that changed.
func (r *notificationRepository) MarkAllRead(ctx context.Context, userID string, at time.Time) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&domain.Notification{}).
			Where("user_id = ? AND read_at IS NULL", userID).
			Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		return tx.Model(&domain.Notification{}).
			Where("id IN ?", ids).
			Update("read_at", at).Error
	})
	return ids, err
}

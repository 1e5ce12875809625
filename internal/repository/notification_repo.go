package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/CyberTechArmor/NEON-sub002/internal/entity"
)

// NotificationRepo stores delivered notifications
type NotificationRepo struct {
	db *gorm.DB
}

// NewNotificationRepo creates a new NotificationRepo
func NewNotificationRepo(db *gorm.DB) *NotificationRepo {
	return &NotificationRepo{db: db}
}

// Create stores a notification
func (r *NotificationRepo) Create(ctx context.Context, n *entity.Notification) error {
	return r.db.WithContext(ctx).Create(n).Error
}

// ListByUser returns the latest notifications of a user
func (r *NotificationRepo) ListByUser(ctx context.Context, userId string, limit int) ([]*entity.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	var ns []*entity.Notification
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userId).
		Order("created_at DESC").
		Limit(limit).
		Find(&ns).Error
	return ns, err
}

// MarkRead flags notifications of a user as read
func (r *NotificationRepo) MarkRead(ctx context.Context, userId string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&entity.Notification{}).
		Where("user_id = ? AND id IN ?", userId, ids).
		Update("is_read", true).Error
}

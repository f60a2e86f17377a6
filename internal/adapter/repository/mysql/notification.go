package mysql

import (
	"context"
	"time"

	notificationDomain "loanledger/internal/domain/notification"

	"gorm.io/gorm"
)

type NotificationRepository struct{ db *gorm.DB }

func NewNotificationRepository(db *gorm.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

func (r *NotificationRepository) Create(ctx context.Context, n *notificationDomain.Notification) error {
	return r.db.WithContext(ctx).Create(n).Error
}

func (r *NotificationRepository) ListByAccountID(ctx context.Context, accountID string, limit, offset int) ([]*notificationDomain.Notification, error) {
	var out []*notificationDomain.Notification
	q := r.db.WithContext(ctx).Where("account_id = ?", accountID).Order("created_at desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}
	res := q.Find(&out)
	return out, res.Error
}

func (r *NotificationRepository) CountUnread(ctx context.Context, accountID string) (int64, error) {
	var count int64
	res := r.db.WithContext(ctx).Model(&notificationDomain.Notification{}).
		Where("account_id = ? AND read_at IS NULL", accountID).
		Count(&count)
	return count, res.Error
}

func (r *NotificationRepository) MarkRead(ctx context.Context, id uint64, accountID string) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).Model(&notificationDomain.Notification{}).
		Where("id = ? AND account_id = ? AND read_at IS NULL", id, accountID).
		Update("read_at", now).Error
}

func (r *NotificationRepository) MarkAllRead(ctx context.Context, accountID string) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).Model(&notificationDomain.Notification{}).
		Where("account_id = ? AND read_at IS NULL", accountID).
		Update("read_at", now).Error
}

func (r *NotificationRepository) MarkSent(ctx context.Context, id uint64) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).Model(&notificationDomain.Notification{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": notificationDomain.StatusSent, "sent_at": now}).Error
}

func (r *NotificationRepository) GetByID(ctx context.Context, id uint64) (*notificationDomain.Notification, error) {
	var out notificationDomain.Notification
	res := r.db.WithContext(ctx).First(&out, id)
	if res.Error != nil {
		return nil, res.Error
	}
	return &out, nil
}

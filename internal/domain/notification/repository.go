package notification

import "context"

type Repository interface {
	Create(ctx context.Context, n *Notification) error
	ListByAccountID(ctx context.Context, accountID string, limit, offset int) ([]*Notification, error)
	CountUnread(ctx context.Context, accountID string) (int64, error)
	MarkRead(ctx context.Context, id uint64, accountID string) error
	MarkAllRead(ctx context.Context, accountID string) error
	MarkSent(ctx context.Context, id uint64) error
	GetByID(ctx context.Context, id uint64) (*Notification, error)
}

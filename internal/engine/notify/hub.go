// Package notify implements the NotificationHub: persist-then-push
// delivery, presence tracking, and operator fan-out. Presence state lives
// in Redis, and the live transport stays behind a narrow Pusher interface
// so this package never imports gorilla/websocket directly.
package notify

import (
	"context"
	"encoding/json"

	"loanledger/internal/domain/account"
	"loanledger/internal/domain/notification"
)

// Pusher delivers a notification to a subscriber already holding a live
// connection. Push returning an error (or the subscriber not being online)
// never fails the caller; persistence already happened.
type Pusher interface {
	Push(ctx context.Context, accountID string, n *notification.Notification) error
}

// Presence tracks which accounts currently hold a live connection.
type Presence interface {
	MarkOnline(ctx context.Context, accountID string) error
	MarkOffline(ctx context.Context, accountID string) error
	IsOnline(ctx context.Context, accountID string) (bool, error)
}

type Hub struct {
	notifications notification.Repository
	accounts      account.Repository
	pusher        Pusher
	presence      Presence
}

func New(notifications notification.Repository, accounts account.Repository, pusher Pusher, presence Presence) *Hub {
	return &Hub{notifications: notifications, accounts: accounts, pusher: pusher, presence: presence}
}

// Notify persists a notification for accountID, then attempts a live push if
// the account currently holds a connection. Persist happens before push, so a
// subscriber connecting later still sees the full history.
func (h *Hub) Notify(ctx context.Context, accountID string, typ notification.Type, title, body string, data any) error {
	var encoded string
	if data != nil {
		b, err := json.Marshal(data)
		if err == nil {
			encoded = string(b)
		}
	}
	n := &notification.Notification{
		AccountID: accountID, Type: typ, Title: title, Body: body, Data: encoded,
		Status: notification.StatusPending,
	}
	if err := h.notifications.Create(ctx, n); err != nil {
		return err
	}
	h.tryPush(ctx, accountID, n)
	return nil
}

// NotifyOperators fans a notification out to every active operator account
// . Individual delivery failures never abort the
// fan-out.
func (h *Hub) NotifyOperators(ctx context.Context, typ notification.Type, title, body string, data any) error {
	operators, err := h.accounts.ListByRole(ctx, account.RoleOperator)
	if err != nil {
		return err
	}
	for _, op := range operators {
		if !op.Active {
			continue
		}
		_ = h.Notify(ctx, op.AccountID, typ, title, body, data)
	}
	return nil
}

func (h *Hub) tryPush(ctx context.Context, accountID string, n *notification.Notification) {
	online, err := h.presence.IsOnline(ctx, accountID)
	if err != nil || !online {
		return
	}
	if err := h.pusher.Push(ctx, accountID, n); err != nil {
		return
	}
	_ = h.notifications.MarkSent(ctx, n.ID)
}

// IsOnline reports whether accountID currently holds a live connection.
func (h *Hub) IsOnline(ctx context.Context, accountID string) (bool, error) {
	return h.presence.IsOnline(ctx, accountID)
}

// Subscribe marks accountID online for the lifetime of the returned
// unsubscribe func. Notifications persisted before the subscription are not
// pushed; they are available through ListFeed.
func (h *Hub) Subscribe(ctx context.Context, accountID string) (func(), error) {
	if err := h.presence.MarkOnline(ctx, accountID); err != nil {
		return nil, err
	}
	return func() {
		_ = h.presence.MarkOffline(context.Background(), accountID)
	}, nil
}

// ListFeed returns accountID's notification history, newest first.
func (h *Hub) ListFeed(ctx context.Context, accountID string, limit, offset int) ([]*notification.Notification, error) {
	return h.notifications.ListByAccountID(ctx, accountID, limit, offset)
}

// CountUnread reports how many unread notifications accountID has.
func (h *Hub) CountUnread(ctx context.Context, accountID string) (int64, error) {
	return h.notifications.CountUnread(ctx, accountID)
}

// MarkRead marks a single notification read, scoped to its owner.
func (h *Hub) MarkRead(ctx context.Context, id uint64, accountID string) error {
	return h.notifications.MarkRead(ctx, id, accountID)
}

// MarkAllRead marks every notification of accountID read.
func (h *Hub) MarkAllRead(ctx context.Context, accountID string) error {
	return h.notifications.MarkAllRead(ctx, accountID)
}

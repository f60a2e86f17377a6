package mysql

import (
	"context"
	"testing"

	notificationDomain "loanledger/internal/domain/notification"
)

func newTestNotification(accountID string, typ notificationDomain.Type) *notificationDomain.Notification {
	return &notificationDomain.Notification{
		AccountID: accountID,
		Type:      typ,
		Title:     "test",
		Body:      "body",
		Status:    notificationDomain.StatusPending,
	}
}

func TestNotificationRepository_CreateAndList(t *testing.T) {
	db := openTestDB(t)
	repo := NewNotificationRepository(db)
	ctx := context.Background()

	n1 := newTestNotification("acc-1", notificationDomain.TypeLoanDisbursed)
	n2 := newTestNotification("acc-1", notificationDomain.TypePaymentReceived)
	for _, n := range []*notificationDomain.Notification{n1, n2} {
		if err := repo.Create(ctx, n); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	got, err := repo.ListByAccountID(ctx, "acc-1", 0, 0)
	if err != nil {
		t.Fatalf("list by account id: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len(notifications) = %d, want 2", len(got))
	}
}

func TestNotificationRepository_UnreadCountAndMarkRead(t *testing.T) {
	db := openTestDB(t)
	repo := NewNotificationRepository(db)
	ctx := context.Background()

	n1 := newTestNotification("acc-2", notificationDomain.TypeLoanDisbursed)
	n2 := newTestNotification("acc-2", notificationDomain.TypePaymentReceived)
	for _, n := range []*notificationDomain.Notification{n1, n2} {
		if err := repo.Create(ctx, n); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	count, err := repo.CountUnread(ctx, "acc-2")
	if err != nil {
		t.Fatalf("count unread: %v", err)
	}
	if count != 2 {
		t.Fatalf("unread count = %d, want 2", count)
	}

	if err := repo.MarkRead(ctx, n1.ID, "acc-2"); err != nil {
		t.Fatalf("mark read: %v", err)
	}

	count, err = repo.CountUnread(ctx, "acc-2")
	if err != nil {
		t.Fatalf("count unread: %v", err)
	}
	if count != 1 {
		t.Fatalf("unread count after mark read = %d, want 1", count)
	}

	if err := repo.MarkAllRead(ctx, "acc-2"); err != nil {
		t.Fatalf("mark all read: %v", err)
	}
	count, err = repo.CountUnread(ctx, "acc-2")
	if err != nil {
		t.Fatalf("count unread: %v", err)
	}
	if count != 0 {
		t.Fatalf("unread count after mark all read = %d, want 0", count)
	}
}

func TestNotificationRepository_MarkSent(t *testing.T) {
	db := openTestDB(t)
	repo := NewNotificationRepository(db)
	ctx := context.Background()

	n := newTestNotification("acc-3", notificationDomain.TypeRefundIssued)
	if err := repo.Create(ctx, n); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := repo.MarkSent(ctx, n.ID); err != nil {
		t.Fatalf("mark sent: %v", err)
	}

	got, err := repo.GetByID(ctx, n.ID)
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if got.Status != notificationDomain.StatusSent {
		t.Fatalf("status = %q, want sent", got.Status)
	}
	if got.SentAt == nil {
		t.Fatal("expected sent_at to be set")
	}
}

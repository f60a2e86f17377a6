package mysql

import (
	"context"
	"testing"
	"time"

	idempotencyDomain "loanledger/internal/domain/idempotency"
)

func TestIdempotencyRepository_CreateAndGet(t *testing.T) {
	db := openTestDB(t)
	repo := NewIdempotencyRepository(db)
	ctx := context.Background()

	rec := &idempotencyDomain.Record{
		Key:        "key-1",
		Endpoint:   "/loans/1/repay",
		Method:     "POST",
		StatusCode: 200,
		ExpiresAt:  time.Now().UTC().Add(idempotencyDomain.DefaultTTL),
	}
	if err := repo.Create(ctx, rec); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := repo.Get(ctx, "key-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Endpoint != "/loans/1/repay" || got.StatusCode != 200 {
		t.Fatalf("unexpected record: %+v", got)
	}
}

func TestIdempotencyRepository_Get_Expired(t *testing.T) {
	db := openTestDB(t)
	repo := NewIdempotencyRepository(db)
	ctx := context.Background()

	rec := &idempotencyDomain.Record{
		Key:        "key-expired",
		Endpoint:   "/loans/1/repay",
		Method:     "POST",
		StatusCode: 200,
		ExpiresAt:  time.Now().UTC().Add(-time.Hour),
	}
	if err := repo.Create(ctx, rec); err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := repo.Get(ctx, "key-expired"); err == nil {
		t.Fatal("expected error for expired record")
	}
}

package mysql

import (
	"context"
	"errors"
	"testing"

	accountDomain "loanledger/internal/domain/account"
	"loanledger/internal/domain/uow"
)

func newTestAccount(accountID, email string) *accountDomain.Account {
	return &accountDomain.Account{
		AccountID: accountID,
		Email:     email,
		Role:      accountDomain.RoleBorrower,
		Active:    true,
	}
}

func TestGormUoW_WithinTx_Commit(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	guow := NewGormUoW(db)
	loanRepo := NewLoanRepository(db)
	accountRepo := NewAccountRepository(db)

	err := guow.WithinTx(ctx, func(r uow.Repos) error {
		if err := r.Accounts.Create(ctx, newTestAccount("acc-1", "acc-1@example.com")); err != nil {
			return err
		}
		return r.Loans.Create(ctx, newTestLoan("acc-1", "APP-UOW-1"))
	})
	if err != nil {
		t.Fatalf("WithinTx commit err: %v", err)
	}

	if _, err := loanRepo.GetByApplicationNumber(ctx, "APP-UOW-1"); err != nil {
		t.Fatalf("loan not visible after commit: %v", err)
	}
	if _, err := accountRepo.GetByAccountID(ctx, "acc-1"); err != nil {
		t.Fatalf("account not visible after commit: %v", err)
	}
}

func TestGormUoW_WithinTx_Rollback(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	guow := NewGormUoW(db)
	loanRepo := NewLoanRepository(db)

	sentinel := errors.New("boom")

	err := guow.WithinTx(ctx, func(r uow.Repos) error {
		if err := r.Loans.Create(ctx, newTestLoan("acc-2", "APP-UOW-2")); err != nil {
			return err
		}
		return sentinel
	})
	if err != sentinel {
		t.Fatalf("err = %v, want sentinel", err)
	}

	if _, err := loanRepo.GetByApplicationNumber(ctx, "APP-UOW-2"); err == nil {
		t.Fatal("expected loan to be absent after rollback")
	}
}

func TestGormUoW_WithinTx_TouchesEveryRepo(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	guow := NewGormUoW(db)

	err := guow.WithinTx(ctx, func(r uow.Repos) error {
		if r.Accounts == nil || r.Loans == nil || r.Installments == nil ||
			r.Payments == nil || r.Audit == nil || r.Notifications == nil {
			t.Fatal("WithinTx must populate every repo in the bundle")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithinTx err: %v", err)
	}
}

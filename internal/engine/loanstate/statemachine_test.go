package loanstate

import (
	"context"
	"testing"

	"loanledger/internal/domain/apperr"
	"loanledger/internal/domain/loan"
	"loanledger/internal/domain/uow"
	"loanledger/internal/testutil/memstore"
)

func newEngine(t *testing.T) (*Engine, *memstore.UnitOfWork) {
	t.Helper()
	u := memstore.NewUnitOfWork(memstore.New())
	return New(u), u
}

func TestDerive(t *testing.T) {
	cases := []struct {
		name      string
		principal float64
		rate      float64
		tenor     int
		interest  float64
		repayable float64
		monthly   float64
	}{
		{"whole figures", 100000, 0.15, 10, 12500, 112500, 11250},
		{"reduced principal", 60000, 0.15, 10, 7500, 67500, 6750},
		{"zero rate", 5000, 0, 1, 0, 5000, 5000},
		{"rounding", 1000, 0.1, 3, 25, 1025, 341.67},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := Derive(tc.principal, tc.rate, tc.tenor)
			if d.TotalInterest != tc.interest {
				t.Errorf("TotalInterest = %v, want %v", d.TotalInterest, tc.interest)
			}
			if d.TotalRepayable != tc.repayable {
				t.Errorf("TotalRepayable = %v, want %v", d.TotalRepayable, tc.repayable)
			}
			if d.MonthlyPayment != tc.monthly {
				t.Errorf("MonthlyPayment = %v, want %v", d.MonthlyPayment, tc.monthly)
			}
			if d.OutstandingBalance != tc.repayable {
				t.Errorf("OutstandingBalance = %v, want %v", d.OutstandingBalance, tc.repayable)
			}
		})
	}
}

func TestCanTransition(t *testing.T) {
	all := []loan.Status{
		loan.StatusPending, loan.StatusUnderReview, loan.StatusApproved, loan.StatusRejected,
		loan.StatusDisbursed, loan.StatusActive, loan.StatusCompleted, loan.StatusDefaulted,
	}
	legal := map[loan.Status][]loan.Status{
		loan.StatusPending:     {loan.StatusUnderReview},
		loan.StatusUnderReview: {loan.StatusApproved, loan.StatusRejected},
		loan.StatusApproved:    {loan.StatusDisbursed},
		loan.StatusDisbursed:   {loan.StatusActive},
		loan.StatusActive:      {loan.StatusCompleted, loan.StatusDefaulted},
	}
	for _, from := range all {
		for _, to := range all {
			want := false
			for _, s := range legal[from] {
				if s == to {
					want = true
				}
			}
			if got := loan.CanTransition(from, to); got != want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestCreate_Validation(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()

	cases := []struct {
		name string
		in   CreateInput
	}{
		{"zero amount", CreateInput{BorrowerID: "b", RequestedAmount: 0, TenorMonths: 12}},
		{"negative amount", CreateInput{BorrowerID: "b", RequestedAmount: -1, TenorMonths: 12}},
		{"tenor too low", CreateInput{BorrowerID: "b", RequestedAmount: 1000, TenorMonths: 0}},
		{"tenor too high", CreateInput{BorrowerID: "b", RequestedAmount: 1000, TenorMonths: 61}},
		{"negative rate", CreateInput{BorrowerID: "b", RequestedAmount: 1000, TenorMonths: 12, AnnualInterestRate: -0.1}},
		{"missing borrower", CreateInput{RequestedAmount: 1000, TenorMonths: 12}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := e.Create(ctx, tc.in); !apperr.Is(err, apperr.KindValidation) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
}

func TestCreate_SingleActiveLoan(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()

	in := CreateInput{BorrowerID: "b-1", Purpose: "stock", RequestedAmount: 10000, TenorMonths: 12, AnnualInterestRate: 0.1}
	if _, err := e.Create(ctx, in); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if _, err := e.Create(ctx, in); !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict on second open loan, got %v", err)
	}

	// A different borrower is unaffected.
	in.BorrowerID = "b-2"
	if _, err := e.Create(ctx, in); err != nil {
		t.Fatalf("create for second borrower: %v", err)
	}
}

func TestCreate_AllowedAfterTerminalState(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()

	in := CreateInput{BorrowerID: "b-1", RequestedAmount: 10000, TenorMonths: 12, AnnualInterestRate: 0.1}
	l, err := e.Create(ctx, in)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := e.Review(ctx, l.ID, "op-1"); err != nil {
		t.Fatalf("review: %v", err)
	}
	if _, err := e.Reject(ctx, l.ID, "op-1", "insufficient documents"); err != nil {
		t.Fatalf("reject: %v", err)
	}

	// The rejected loan no longer blocks a fresh application.
	if _, err := e.Create(ctx, in); err != nil {
		t.Fatalf("create after rejection: %v", err)
	}
}

func TestApprove_ReducedAmountRederives(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()

	l, err := e.Create(ctx, CreateInput{BorrowerID: "b-1", RequestedAmount: 100000, TenorMonths: 10, AnnualInterestRate: 0.15})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := e.Review(ctx, l.ID, "op-1"); err != nil {
		t.Fatalf("review: %v", err)
	}
	approved, err := e.Approve(ctx, ApproveInput{LoanID: l.ID, OperatorID: "op-1", Amount: 60000})
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if approved.Principal != 60000 || approved.TotalInterest != 7500 || approved.TotalRepayable != 67500 {
		t.Fatalf("reduced approval not re-derived: %+v", approved)
	}
	if approved.OutstandingBalance != 67500 || approved.MonthlyPayment != 6750 {
		t.Fatalf("reduced approval balances wrong: %+v", approved)
	}
}

func TestApprove_ExceedingRequestedFails(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()

	l, _ := e.Create(ctx, CreateInput{BorrowerID: "b-1", RequestedAmount: 10000, TenorMonths: 12, AnnualInterestRate: 0.1})
	e.Review(ctx, l.ID, "op-1")
	if _, err := e.Approve(ctx, ApproveInput{LoanID: l.ID, OperatorID: "op-1", Amount: 10001}); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error for amount above requested, got %v", err)
	}
}

func TestIllegalTransitions(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()

	l, _ := e.Create(ctx, CreateInput{BorrowerID: "b-1", RequestedAmount: 10000, TenorMonths: 12, AnnualInterestRate: 0.1})

	// approve straight from pending
	if _, err := e.Approve(ctx, ApproveInput{LoanID: l.ID, OperatorID: "op-1"}); !apperr.Is(err, apperr.KindInvalidTransition) {
		t.Fatalf("expected invalid transition for pending->approved, got %v", err)
	}
	// default straight from pending
	if _, err := e.MarkDefaulted(ctx, l.ID, "op-1", "missed payments"); !apperr.Is(err, apperr.KindInvalidTransition) {
		t.Fatalf("expected invalid transition for pending->defaulted, got %v", err)
	}
	// double review
	if _, err := e.Review(ctx, l.ID, "op-1"); err != nil {
		t.Fatalf("review: %v", err)
	}
	if _, err := e.Review(ctx, l.ID, "op-1"); !apperr.Is(err, apperr.KindInvalidTransition) {
		t.Fatalf("expected invalid transition for double review, got %v", err)
	}
}

func TestTransitionsAppendHistory(t *testing.T) {
	e, u := newEngine(t)
	ctx := context.Background()

	l, _ := e.Create(ctx, CreateInput{BorrowerID: "b-1", RequestedAmount: 10000, TenorMonths: 12, AnnualInterestRate: 0.1})
	e.Review(ctx, l.ID, "op-1")
	e.Approve(ctx, ApproveInput{LoanID: l.ID, OperatorID: "op-1"})

	var history []*loan.StatusHistoryEntry
	if err := u.WithinTx(ctx, func(r uow.Repos) error {
		var e error
		history, e = r.Loans.ListHistory(ctx, l.ID)
		return e
	}); err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(history))
	}
	for _, h := range history {
		if !loan.CanTransition(h.From, h.To) {
			t.Errorf("history records illegal edge %s -> %s", h.From, h.To)
		}
	}
}

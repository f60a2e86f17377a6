// Package loanstate implements the loan state machine: legal transitions,
// monetary derivation, and the append-only status history. Each transition
// runs inside a unit of work as load, guard, CAS, history, audit.
package loanstate

import (
	"context"
	"fmt"
	"time"

	"loanledger/internal/domain/apperr"
	"loanledger/internal/domain/audit"
	"loanledger/internal/domain/loan"
	"loanledger/internal/domain/uow"
	"loanledger/pkg/id"
	"loanledger/pkg/money"
)

// Engine implements loan creation and the review/approve/reject transitions.
type Engine struct {
	uow uow.UnitOfWork
}

func New(u uow.UnitOfWork) *Engine { return &Engine{uow: u} }

// Derived holds the four monetary figures the state machine recomputes on
// creation and on reduced-amount approval.
type Derived struct {
	TotalInterest      float64
	TotalRepayable     float64
	MonthlyPayment     float64
	OutstandingBalance float64
}

// Derive computes the loan's monetary figures from principal, the annual
// rate, and the tenor in months.
func Derive(principal, annualRate float64, tenorMonths int) Derived {
	totalInterest := money.Round2(principal * annualRate * float64(tenorMonths) / 12)
	totalRepayable := money.Round2(principal + totalInterest)
	monthly := money.Round2(totalRepayable / float64(tenorMonths))
	return Derived{
		TotalInterest:      totalInterest,
		TotalRepayable:     totalRepayable,
		MonthlyPayment:     monthly,
		OutstandingBalance: totalRepayable,
	}
}

type CreateInput struct {
	BorrowerID         string
	Purpose            string
	AnnualInterestRate float64
	RequestedAmount    float64
	TenorMonths        int
}

func (in CreateInput) validate() error {
	var fields []apperr.FieldError
	if in.BorrowerID == "" {
		fields = append(fields, apperr.FieldError{Field: "borrower_id", Message: "is required"})
	}
	if in.RequestedAmount <= 0 {
		fields = append(fields, apperr.FieldError{Field: "requested_amount", Message: "must be greater than zero"})
	}
	if in.TenorMonths < 1 || in.TenorMonths > 60 {
		fields = append(fields, apperr.FieldError{Field: "tenor_months", Message: "must be between 1 and 60"})
	}
	if in.AnnualInterestRate < 0 {
		fields = append(fields, apperr.FieldError{Field: "annual_interest_rate", Message: "must not be negative"})
	}
	if len(fields) > 0 {
		return apperr.Validation("invalid loan application", fields...)
	}
	return nil
}

// Create submits a new loan application, enforcing the single-active-loan
// rule.
func (e *Engine) Create(ctx context.Context, in CreateInput) (*loan.Loan, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	var created *loan.Loan
	err := e.uow.WithinTx(ctx, func(r uow.Repos) error {
		if _, err := r.Loans.GetActiveLoanByBorrowerID(ctx, in.BorrowerID); err == nil {
			return apperr.Wrap(apperr.KindConflict, "borrower already has an active loan", loan.ErrActiveLoanExists)
		}

		derived := Derive(in.RequestedAmount, in.AnnualInterestRate, in.TenorMonths)
		now := time.Now().UTC()
		l := &loan.Loan{
			ApplicationNumber:  id.NewApplicationNumber(),
			BorrowerID:         in.BorrowerID,
			Purpose:            in.Purpose,
			AnnualInterestRate: in.AnnualInterestRate,
			RequestedAmount:    in.RequestedAmount,
			TenorMonths:        in.TenorMonths,
			Status:             loan.StatusPending,
			Principal:          in.RequestedAmount,
			TotalInterest:      derived.TotalInterest,
			TotalRepayable:     derived.TotalRepayable,
			MonthlyPayment:     derived.MonthlyPayment,
			TotalRepaid:        0,
			OutstandingBalance: derived.OutstandingBalance,
			Version:            0,
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		if err := r.Loans.Create(ctx, l); err != nil {
			return apperr.Wrap(apperr.KindInternal, "create loan", err)
		}
		if err := r.Audit.Create(ctx, &audit.Entry{
			EntityType: "loan", EntityID: l.ApplicationNumber, Action: "LOAN_SUBMITTED",
			Actor: in.BorrowerID, NewSnapshot: snapshot(l),
		}); err != nil {
			return apperr.Wrap(apperr.KindInternal, "audit loan submission", err)
		}
		created = l
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Review transitions pending -> under_review.
func (e *Engine) Review(ctx context.Context, loanID uint64, operatorID string) (*loan.Loan, error) {
	return e.transition(ctx, loanID, loan.StatusUnderReview, operatorID, "", nil)
}

type ApproveInput struct {
	LoanID     uint64
	OperatorID string
	Amount     float64 // approved amount, <= requested; 0 means "same as requested"
	Conditions string
}

// Approve transitions under_review -> approved, re-deriving monetary figures
// when the approved amount differs from the requested amount.
func (e *Engine) Approve(ctx context.Context, in ApproveInput) (*loan.Loan, error) {
	var result *loan.Loan
	err := e.uow.WithinTx(ctx, func(r uow.Repos) error {
		l, err := r.Loans.GetByIDForUpdate(ctx, in.LoanID)
		if err != nil {
			return apperr.Wrap(apperr.KindNotFound, "loan not found", loan.ErrNotFound)
		}
		if l.Status != loan.StatusUnderReview {
			if l.Status == loan.StatusApproved {
				return apperr.Wrap(apperr.KindConflict, "loan already approved", loan.ErrAlreadyApproved)
			}
			return apperr.Wrap(apperr.KindInvalidTransition, "loan not under review", loan.ErrInvalidTransition)
		}

		amount := in.Amount
		if amount <= 0 {
			amount = l.RequestedAmount
		}
		if amount > l.RequestedAmount {
			return apperr.Validation("approved amount may not exceed requested amount",
				apperr.FieldError{Field: "amount", Message: "exceeds requested_amount"})
		}

		derived := Derive(amount, l.AnnualInterestRate, l.TenorMonths)
		now := time.Now().UTC()
		before := l.Status
		fields := map[string]any{
			"status":              loan.StatusApproved,
			"principal":           amount,
			"total_interest":      derived.TotalInterest,
			"total_repayable":     derived.TotalRepayable,
			"monthly_payment":     derived.MonthlyPayment,
			"outstanding_balance": derived.OutstandingBalance,
			"approval_operator":   in.OperatorID,
			"approval_amount":     amount,
			"approval_conditions": in.Conditions,
			"approval_at":         now,
			"updated_at":          now,
		}
		if err := r.Loans.CompareAndSwap(ctx, l.ID, l.Version, fields); err != nil {
			return apperr.Wrap(apperr.KindConcurrency, "loan changed concurrently", err)
		}
		l.Version++
		l.Status = loan.StatusApproved
		l.Principal = amount
		l.TotalInterest = derived.TotalInterest
		l.TotalRepayable = derived.TotalRepayable
		l.MonthlyPayment = derived.MonthlyPayment
		l.OutstandingBalance = derived.OutstandingBalance

		if err := appendHistoryAndAudit(ctx, r, l, before, loan.StatusApproved, in.OperatorID, ""); err != nil {
			return err
		}
		result = l
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Reject transitions under_review -> rejected.
func (e *Engine) Reject(ctx context.Context, loanID uint64, operatorID, reason string) (*loan.Loan, error) {
	var result *loan.Loan
	err := e.uow.WithinTx(ctx, func(r uow.Repos) error {
		l, err := r.Loans.GetByIDForUpdate(ctx, loanID)
		if err != nil {
			return apperr.Wrap(apperr.KindNotFound, "loan not found", loan.ErrNotFound)
		}
		if l.Status != loan.StatusUnderReview {
			return apperr.Wrap(apperr.KindInvalidTransition, "loan not under review", loan.ErrInvalidTransition)
		}
		now := time.Now().UTC()
		before := l.Status
		fields := map[string]any{
			"status":             loan.StatusRejected,
			"rejection_operator": operatorID,
			"rejection_reason":   reason,
			"rejection_at":       now,
			"updated_at":         now,
		}
		if err := r.Loans.CompareAndSwap(ctx, l.ID, l.Version, fields); err != nil {
			return apperr.Wrap(apperr.KindConcurrency, "loan changed concurrently", err)
		}
		l.Version++
		l.Status = loan.StatusRejected
		if err := appendHistoryAndAudit(ctx, r, l, before, loan.StatusRejected, operatorID, reason); err != nil {
			return err
		}
		result = l
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// MarkDefaulted is the operator-invoked active -> defaulted transition
// .
func (e *Engine) MarkDefaulted(ctx context.Context, loanID uint64, operatorID, reason string) (*loan.Loan, error) {
	return e.transition(ctx, loanID, loan.StatusDefaulted, operatorID, reason, func(l *loan.Loan) bool {
		return l.Status == loan.StatusActive
	})
}

func (e *Engine) transition(ctx context.Context, loanID uint64, to loan.Status, operatorID, reason string, guard func(*loan.Loan) bool) (*loan.Loan, error) {
	var result *loan.Loan
	err := e.uow.WithinTx(ctx, func(r uow.Repos) error {
		l, err := r.Loans.GetByIDForUpdate(ctx, loanID)
		if err != nil {
			return apperr.Wrap(apperr.KindNotFound, "loan not found", loan.ErrNotFound)
		}
		if guard != nil && !guard(l) {
			return apperr.Wrap(apperr.KindInvalidTransition, "illegal transition", loan.ErrInvalidTransition)
		}
		if guard == nil && !loan.CanTransition(l.Status, to) {
			return apperr.Wrap(apperr.KindInvalidTransition, "illegal transition", loan.ErrInvalidTransition)
		}
		before := l.Status
		now := time.Now().UTC()
		if err := r.Loans.CompareAndSwap(ctx, l.ID, l.Version, map[string]any{
			"status": to, "updated_at": now,
		}); err != nil {
			return apperr.Wrap(apperr.KindConcurrency, "loan changed concurrently", err)
		}
		l.Version++
		l.Status = to
		if err := appendHistoryAndAudit(ctx, r, l, before, to, operatorID, reason); err != nil {
			return err
		}
		result = l
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func appendHistoryAndAudit(ctx context.Context, r uow.Repos, l *loan.Loan, from, to loan.Status, performedBy, reason string) error {
	if err := r.Loans.AppendHistory(ctx, &loan.StatusHistoryEntry{
		LoanID: l.ID, From: from, To: to, Reason: reason, PerformedBy: performedBy, CreatedAt: time.Now().UTC(),
	}); err != nil {
		return apperr.Wrap(apperr.KindInternal, "append status history", err)
	}
	return r.Audit.Create(ctx, &audit.Entry{
		EntityType: "loan", EntityID: l.ApplicationNumber, Action: "LOAN_STATUS_CHANGED",
		Actor: performedBy, NewSnapshot: snapshot(l),
	})
}

func snapshot(l *loan.Loan) string {
	return fmt.Sprintf("status=%s outstanding=%.2f repaid=%.2f version=%d", l.Status, l.OutstandingBalance, l.TotalRepaid, l.Version)
}

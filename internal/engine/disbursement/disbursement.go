// Package disbursement implements the two-phase reserve + provider transfer
// + compensation protocol: a unit-of-work-mediated state guard around the
// provider boundary, with a compensating transaction on provider failure.
package disbursement

import (
	"context"
	"fmt"
	"time"

	"loanledger/internal/domain/apperr"
	"loanledger/internal/domain/audit"
	"loanledger/internal/domain/installment"
	"loanledger/internal/domain/loan"
	"loanledger/internal/domain/notification"
	"loanledger/internal/domain/provider"
	"loanledger/internal/domain/uow"
	"loanledger/pkg/id"
	"loanledger/pkg/money"
)

const providerTimeout = 20 * time.Second

// Hub is the narrow surface the protocol needs from NotificationHub — kept
// as an interface here so this package does not import the notify engine
// directly.
type Hub interface {
	Notify(ctx context.Context, accountID string, typ notification.Type, title, body string, data any) error
}

type Engine struct {
	uow      uow.UnitOfWork
	provider provider.PaymentProvider
	hub      Hub
}

func New(u uow.UnitOfWork, p provider.PaymentProvider, hub Hub) *Engine {
	return &Engine{uow: u, provider: p, hub: hub}
}

type Input struct {
	LoanID      uint64
	OperatorID  string
	BankAccount string
	BankCode    string
}

// Disburse runs the full reserve/transfer/commit-or-compensate protocol.
func (e *Engine) Disburse(ctx context.Context, in Input) (*loan.Loan, error) {
	if in.BankAccount == "" || in.BankCode == "" {
		return nil, apperr.Validation("bank destination is required",
			apperr.FieldError{Field: "bank_account", Message: "is required"})
	}

	reserved, reference, err := e.reserve(ctx, in)
	if err != nil {
		return nil, err
	}

	tctx, cancel := context.WithTimeout(ctx, providerTimeout)
	defer cancel()
	result, provErr := e.provider.Transfer(tctx, reference, reserved.Principal, in.BankAccount, in.BankCode,
		fmt.Sprintf("disbursement %s", reserved.ApplicationNumber))

	if provErr != nil || !result.Success {
		msg := result.FailureMessage
		if provErr != nil {
			msg = provErr.Error()
		}
		return e.compensate(ctx, reserved, msg)
	}
	return e.commit(ctx, reserved, result)
}

// reserve is step 1: conditional update to disbursed, populating the
// disbursement reference.
func (e *Engine) reserve(ctx context.Context, in Input) (*loan.Loan, string, error) {
	var result *loan.Loan
	reference := id.NewReference("DBS")

	err := e.uow.WithinTx(ctx, func(r uow.Repos) error {
		l, err := r.Loans.GetByIDForUpdate(ctx, in.LoanID)
		if err != nil {
			return apperr.Wrap(apperr.KindNotFound, "loan not found", loan.ErrNotFound)
		}
		if l.DisbursementReference != nil {
			return apperr.Wrap(apperr.KindConflict, "loan already disbursed", loan.ErrAlreadyDisbursed)
		}
		if l.Status != loan.StatusApproved {
			return apperr.Wrap(apperr.KindInvalidTransition, "loan not approved", loan.ErrInvalidTransition)
		}

		before := l.Status
		now := time.Now().UTC()
		fields := map[string]any{
			"status":                    loan.StatusDisbursed,
			"disbursement_reference":    reference,
			"disbursement_bank_account": in.BankAccount,
			"disbursement_bank_code":    in.BankCode,
			"disbursement_operator":     in.OperatorID,
			"disbursement_at":           now,
			"updated_at":                now,
		}
		if err := r.Loans.CompareAndSwap(ctx, l.ID, l.Version, fields); err != nil {
			return apperr.Wrap(apperr.KindConcurrency, "loan changed concurrently", err)
		}
		l.Version++
		l.Status = loan.StatusDisbursed
		ref := reference
		l.DisbursementReference = &ref

		if err := r.Loans.AppendHistory(ctx, &loan.StatusHistoryEntry{
			LoanID: l.ID, From: before, To: loan.StatusDisbursed, PerformedBy: in.OperatorID, CreatedAt: now,
		}); err != nil {
			return apperr.Wrap(apperr.KindInternal, "append history", err)
		}
		if err := r.Audit.Create(ctx, &audit.Entry{
			EntityType: "loan", EntityID: l.ApplicationNumber, Action: "DISBURSEMENT_RESERVED", Actor: in.OperatorID,
		}); err != nil {
			return apperr.Wrap(apperr.KindInternal, "audit reservation", err)
		}
		result = l
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	return result, reference, nil
}

// commit is step 3: provider success moves the loan to active and generates
// the repayment schedule.
func (e *Engine) commit(ctx context.Context, l *loan.Loan, result provider.Result) (*loan.Loan, error) {
	var out *loan.Loan
	err := e.uow.WithinTx(ctx, func(r uow.Repos) error {
		now := time.Now().UTC()
		fields := map[string]any{
			"status":                          loan.StatusActive,
			"disbursement_provider_reference": result.ProviderReference,
			"updated_at":                      now,
		}
		if err := r.Loans.CompareAndSwap(ctx, l.ID, l.Version, fields); err != nil {
			return apperr.Wrap(apperr.KindConcurrency, "loan changed concurrently", err)
		}
		l.Version++
		l.Status = loan.StatusActive
		ref := result.ProviderReference
		l.DisbursementProviderReference = &ref

		if err := r.Loans.AppendHistory(ctx, &loan.StatusHistoryEntry{
			LoanID: l.ID, From: loan.StatusDisbursed, To: loan.StatusActive, PerformedBy: safeOperator(l), CreatedAt: now,
		}); err != nil {
			return apperr.Wrap(apperr.KindInternal, "append history", err)
		}

		schedule := GenerateSchedule(l, now)
		if err := r.Installments.CreateSchedule(ctx, schedule); err != nil {
			return apperr.Wrap(apperr.KindInternal, "create repayment schedule", err)
		}

		if err := r.Audit.Create(ctx, &audit.Entry{
			EntityType: "loan", EntityID: l.ApplicationNumber, Action: "LOAN_DISBURSED", Actor: safeOperator(l),
		}); err != nil {
			return apperr.Wrap(apperr.KindInternal, "audit disbursement", err)
		}
		out = l
		return nil
	})
	if err != nil {
		return nil, err
	}
	if e.hub != nil {
		_ = e.hub.Notify(ctx, out.BorrowerID, notification.TypeLoanDisbursed,
			"Loan disbursed", fmt.Sprintf("Your loan %s has been disbursed.", out.ApplicationNumber), nil)
	}
	return out, nil
}

// compensate is step 4: provider failure reverts the loan to approved and
// clears the disbursement reference so a fresh attempt can be retried.
func (e *Engine) compensate(ctx context.Context, l *loan.Loan, providerMessage string) (*loan.Loan, error) {
	err := e.uow.WithinTx(ctx, func(r uow.Repos) error {
		now := time.Now().UTC()
		fields := map[string]any{
			"status":                    loan.StatusApproved,
			"disbursement_reference":    nil,
			"disbursement_bank_account": nil,
			"disbursement_bank_code":    nil,
			"disbursement_operator":     nil,
			"disbursement_at":           nil,
			"updated_at":                now,
		}
		if err := r.Loans.CompareAndSwap(ctx, l.ID, l.Version, fields); err != nil {
			return apperr.Wrap(apperr.KindConcurrency, "loan changed concurrently", err)
		}
		l.Version++
		l.Status = loan.StatusApproved
		l.DisbursementReference = nil

		if err := r.Loans.AppendHistory(ctx, &loan.StatusHistoryEntry{
			LoanID: l.ID, From: loan.StatusDisbursed, To: loan.StatusApproved,
			Reason: "provider: " + providerMessage, PerformedBy: safeOperator(l), CreatedAt: now,
		}); err != nil {
			return apperr.Wrap(apperr.KindInternal, "append history", err)
		}
		return r.Audit.Create(ctx, &audit.Entry{
			EntityType: "loan", EntityID: l.ApplicationNumber, Action: "DISBURSEMENT_COMPENSATED",
			Actor: safeOperator(l), Note: providerMessage,
		})
	})
	if err != nil {
		return nil, err
	}
	return nil, apperr.Wrap(apperr.KindProviderFailure, "disbursement transfer failed: "+providerMessage, nil)
}

func safeOperator(l *loan.Loan) string {
	if l.DisbursementOperator != nil {
		return *l.DisbursementOperator
	}
	return "system"
}

// GenerateSchedule derives the installment schedule for a freshly-disbursed
// loan: the last installment absorbs rounding residues.
func GenerateSchedule(l *loan.Loan, disbursedAt time.Time) []*installment.Installment {
	n := l.TenorMonths
	out := make([]*installment.Installment, 0, n)

	var principalSum, interestSum float64
	for i := 1; i <= n; i++ {
		var pShare, iShare float64
		if i < n {
			pShare = money.Round2(l.Principal / float64(n))
			iShare = money.Round2(l.TotalInterest / float64(n))
			principalSum += pShare
			interestSum += iShare
		} else {
			pShare = money.Round2(l.Principal - principalSum)
			iShare = money.Round2(l.TotalInterest - interestSum)
		}
		out = append(out, &installment.Installment{
			LoanID:            l.ID,
			InstallmentNumber: i,
			DueDate:           disbursedAt.AddDate(0, i, 0),
			PrincipalShare:    pShare,
			InterestShare:     iShare,
			TotalDue:          money.Round2(pShare + iShare),
			PaidAmount:        0,
			Status:            installment.StatusPending,
			Version:           0,
		})
	}
	return out
}

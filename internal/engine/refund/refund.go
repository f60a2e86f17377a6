// Package refund implements the RefundProtocol: full-payment
// reversal and overpayment-only refund, both gated on an idempotency key
// and backed by the payment provider's Reverse call. A refund validates its
// source payment in one unit of work, calls the provider outside any
// transaction, and records the result in a second unit of work; a provider
// failure returns before anything is written, so there is no reservation
// to compensate.
package refund

import (
	"context"
	"fmt"
	"time"

	"loanledger/internal/domain/apperr"
	"loanledger/internal/domain/audit"
	"loanledger/internal/domain/loan"
	"loanledger/internal/domain/notification"
	"loanledger/internal/domain/payment"
	"loanledger/internal/domain/provider"
	"loanledger/internal/domain/uow"
	"loanledger/pkg/id"
	"loanledger/pkg/money"
)

const providerTimeout = 20 * time.Second

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

type FullRefundInput struct {
	PaymentID      uint64
	OperatorID     string
	Reason         string
	IdempotencyKey string
}

// RefundFull reverses an entire successful repayment. It restores
// the loan's totalRepaid and outstandingBalance but does NOT reallocate the
// installments the original payment marked paid/partial — those stay as
// they were, a deliberate simplification.
func (e *Engine) RefundFull(ctx context.Context, in FullRefundInput) (*payment.Payment, error) {
	if in.IdempotencyKey == "" {
		return nil, apperr.Validation("idempotency key is required",
			apperr.FieldError{Field: "idempotency_key", Message: "is required"})
	}
	if existing, err := e.replay(ctx, in.IdempotencyKey); err != nil || existing != nil {
		return existing, err
	}

	var source *payment.Payment
	var l *loan.Loan
	err := e.uow.WithinTx(ctx, func(r uow.Repos) error {
		var err error
		source, err = r.Payments.GetByID(ctx, in.PaymentID)
		if err != nil {
			return apperr.Wrap(apperr.KindNotFound, "payment not found", payment.ErrNotFound)
		}
		if source.Type != payment.TypeRepayment || source.Status != payment.StatusSuccess {
			return apperr.Wrap(apperr.KindInvalidTransition, "payment is not a refundable repayment", nil)
		}
		l, err = r.Loans.GetByID(ctx, source.LoanID)
		if err != nil {
			return apperr.Wrap(apperr.KindNotFound, "loan not found", loan.ErrNotFound)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	reference := id.NewReference("RFD")
	tctx, cancel := context.WithTimeout(ctx, providerTimeout)
	defer cancel()
	result, provErr := e.provider.Reverse(tctx, reference, source.Reference, source.Amount,
		fmt.Sprintf("refund %s", source.Reference))
	if provErr != nil || !result.Success {
		msg := result.FailureMessage
		if provErr != nil {
			msg = provErr.Error()
		}
		return nil, apperr.Wrap(apperr.KindProviderFailure, "refund reversal failed: "+msg, nil)
	}

	var out *payment.Payment
	err = e.uow.WithinTx(ctx, func(r uow.Repos) error {
		now := time.Now().UTC()
		refunded := appliedAmount(source)

		newTotalRepaid := money.Round2(l.TotalRepaid - refunded)
		if newTotalRepaid < 0 {
			newTotalRepaid = 0
		}
		newOutstanding := money.Round2(l.TotalRepayable - newTotalRepaid)
		loanFields := map[string]any{
			"total_repaid": newTotalRepaid, "outstanding_balance": newOutstanding, "updated_at": now,
		}
		if l.Status == loan.StatusCompleted && newOutstanding > 0 {
			loanFields["status"] = loan.StatusActive
		}
		if err := r.Loans.CompareAndSwap(ctx, l.ID, l.Version, loanFields); err != nil {
			return apperr.Wrap(apperr.KindConcurrency, "loan changed concurrently", err)
		}
		before := l.Status
		l.Version++
		l.TotalRepaid = newTotalRepaid
		l.OutstandingBalance = newOutstanding
		if reopened := loanFields["status"]; reopened != nil {
			l.Status = loan.StatusActive
			if err := r.Loans.AppendHistory(ctx, &loan.StatusHistoryEntry{
				LoanID: l.ID, From: before, To: loan.StatusActive, Reason: "refund reopened loan", PerformedBy: in.OperatorID, CreatedAt: now,
			}); err != nil {
				return apperr.Wrap(apperr.KindInternal, "append reopen history", err)
			}
		}

		refundPayment := &payment.Payment{
			LoanID: l.ID, AccountID: source.AccountID, IdempotencyKey: in.IdempotencyKey,
			Reference: reference, Type: payment.TypeRefund, Amount: refunded,
			Status: payment.StatusSuccess, ProviderReference: &result.ProviderReference,
			Reconciled: true, ReconciledAt: &now, SourcePaymentID: &source.ID,
			VerifiedBy: &in.OperatorID, VerifiedAt: &now,
		}
		if err := r.Payments.Create(ctx, refundPayment); err != nil {
			return apperr.Wrap(apperr.KindInternal, "create refund payment", err)
		}
		if err := r.Audit.Create(ctx, &audit.Entry{
			EntityType: "payment", EntityID: refundPayment.Reference, Action: "REFUND_ISSUED",
			Actor: in.OperatorID, Note: in.Reason,
		}); err != nil {
			return apperr.Wrap(apperr.KindInternal, "audit refund", err)
		}
		out = refundPayment
		return nil
	})
	if err != nil {
		return nil, err
	}
	if e.hub != nil {
		_ = e.hub.Notify(ctx, out.AccountID, notification.TypeRefundIssued,
			"Refund issued", fmt.Sprintf("A refund of %.2f has been issued to your account.", out.Amount), nil)
	}
	return out, nil
}

type OverpaymentRefundInput struct {
	PaymentID      uint64
	OperatorID     string
	Amount         float64 // 0 means "refund the full recorded overpayment"
	IdempotencyKey string
}

// RefundOverpayment refunds only the surplus a repayment left unapplied
// . It never touches the loan balance or installments: the surplus
// was never applied to either.
func (e *Engine) RefundOverpayment(ctx context.Context, in OverpaymentRefundInput) (*payment.Payment, error) {
	if in.IdempotencyKey == "" {
		return nil, apperr.Validation("idempotency key is required",
			apperr.FieldError{Field: "idempotency_key", Message: "is required"})
	}
	if existing, err := e.replay(ctx, in.IdempotencyKey); err != nil || existing != nil {
		return existing, err
	}

	var source *payment.Payment
	err := e.uow.WithinTx(ctx, func(r uow.Repos) error {
		var err error
		source, err = r.Payments.GetByID(ctx, in.PaymentID)
		if err != nil {
			return apperr.Wrap(apperr.KindNotFound, "payment not found", payment.ErrNotFound)
		}
		if source.Type != payment.TypeRepayment || source.Status != payment.StatusSuccess {
			return apperr.Wrap(apperr.KindInvalidTransition, "payment is not a refundable repayment", nil)
		}
		if source.OverpaymentRefunded {
			return apperr.Wrap(apperr.KindAlreadyRefunded, "overpayment already refunded", payment.ErrAlreadyRefunded)
		}
		overpayment := 0.0
		if source.AllocationOverpayment != nil {
			overpayment = *source.AllocationOverpayment
		}
		if overpayment <= 0 {
			return apperr.Wrap(apperr.KindValidation, "payment has no recorded overpayment", nil)
		}
		amount := in.Amount
		if amount <= 0 {
			amount = overpayment
		}
		if amount > overpayment {
			return apperr.Validation("refund amount exceeds recorded overpayment",
				apperr.FieldError{Field: "amount", Message: "exceeds overpayment"})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	overpayment := *source.AllocationOverpayment
	amount := in.Amount
	if amount <= 0 {
		amount = overpayment
	}

	reference := id.NewReference("RFD")
	tctx, cancel := context.WithTimeout(ctx, providerTimeout)
	defer cancel()
	result, provErr := e.provider.Reverse(tctx, reference, source.Reference, amount,
		fmt.Sprintf("overpayment refund %s", source.Reference))
	if provErr != nil || !result.Success {
		msg := result.FailureMessage
		if provErr != nil {
			msg = provErr.Error()
		}
		return nil, apperr.Wrap(apperr.KindProviderFailure, "overpayment refund failed: "+msg, nil)
	}

	var out *payment.Payment
	err = e.uow.WithinTx(ctx, func(r uow.Repos) error {
		now := time.Now().UTC()
		if err := r.Payments.CompareAndSwap(ctx, source.ID, source.Version, map[string]any{
			"overpayment_refunded": true, "updated_at": now,
		}); err != nil {
			return apperr.Wrap(apperr.KindConcurrency, "payment changed concurrently", err)
		}

		refundPayment := &payment.Payment{
			LoanID: source.LoanID, AccountID: source.AccountID, IdempotencyKey: in.IdempotencyKey,
			Reference: reference, Type: payment.TypeRefund, Amount: amount,
			Status: payment.StatusSuccess, ProviderReference: &result.ProviderReference,
			Reconciled: true, ReconciledAt: &now, SourcePaymentID: &source.ID,
			VerifiedBy: &in.OperatorID, VerifiedAt: &now,
		}
		if err := r.Payments.Create(ctx, refundPayment); err != nil {
			return apperr.Wrap(apperr.KindInternal, "create overpayment refund", err)
		}
		if err := r.Audit.Create(ctx, &audit.Entry{
			EntityType: "payment", EntityID: refundPayment.Reference, Action: "OVERPAYMENT_REFUNDED", Actor: in.OperatorID,
		}); err != nil {
			return apperr.Wrap(apperr.KindInternal, "audit overpayment refund", err)
		}
		out = refundPayment
		return nil
	})
	if err != nil {
		return nil, err
	}
	if e.hub != nil {
		_ = e.hub.Notify(ctx, out.AccountID, notification.TypeRefundIssued,
			"Overpayment refunded", fmt.Sprintf("Your overpayment of %.2f has been refunded.", out.Amount), nil)
	}
	return out, nil
}

// replay returns a prior refund Payment recorded under key, or nil if none
// exists yet.
func (e *Engine) replay(ctx context.Context, key string) (*payment.Payment, error) {
	var existing *payment.Payment
	err := e.uow.WithinTx(ctx, func(r uow.Repos) error {
		p, err := r.Payments.GetByIdempotencyKey(ctx, key)
		if err != nil {
			return nil
		}
		existing = p
		return nil
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "idempotency lookup", err)
	}
	return existing, nil
}

func appliedAmount(p *payment.Payment) float64 {
	if p.AllocationPrincipal == nil {
		return p.Amount
	}
	applied := *p.AllocationPrincipal
	if p.AllocationInterest != nil {
		applied = money.Round2(applied + *p.AllocationInterest)
	}
	return applied
}

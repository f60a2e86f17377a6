// Package repayment implements the RepaymentEngine: FIFO allocation
// across installments under concurrency, idempotency-key dispatch, and the
// manual-proof submission/verification path. Every mutation runs inside a
// unit of work, with the provider boundary crossed between transactions,
// balance CAS with bounded retry, and completion detection.
package repayment

import (
	"context"
	"fmt"
	"time"

	"loanledger/internal/domain/apperr"
	"loanledger/internal/domain/audit"
	"loanledger/internal/domain/installment"
	"loanledger/internal/domain/loan"
	"loanledger/internal/domain/notification"
	"loanledger/internal/domain/payment"
	"loanledger/internal/domain/provider"
	"loanledger/internal/domain/uow"
	"loanledger/pkg/id"
	"loanledger/pkg/money"
)

// maxConcurrencyRetries bounds the balance-CAS retry loop; past it the
// payment is marked failed and the conflict surfaces to the caller, who
// needs a new idempotency key for a new attempt.
const maxConcurrencyRetries = 3

// providerTimeout bounds the debit call to the payment rail.
const providerTimeout = 20 * time.Second

type Hub interface {
	Notify(ctx context.Context, accountID string, typ notification.Type, title, body string, data any) error
	NotifyOperators(ctx context.Context, typ notification.Type, title, body string, data any) error
}

// Result is what the engine returns for a completed or replayed repayment.
type Result struct {
	Payment     *payment.Payment
	Loan        *loan.Loan
	Allocations []*payment.InstallmentApplication
	Replayed    bool
}

type Engine struct {
	uow      uow.UnitOfWork
	provider provider.PaymentProvider
	hub      Hub
}

func New(u uow.UnitOfWork, p provider.PaymentProvider, hub Hub) *Engine {
	return &Engine{uow: u, provider: p, hub: hub}
}

type RepayInput struct {
	LoanID         uint64
	AccountID      string
	Amount         float64
	IdempotencyKey string
}

// ProcessRepayment is the direct (provider-backed) repayment path.
func (e *Engine) ProcessRepayment(ctx context.Context, in RepayInput) (*Result, error) {
	if in.Amount <= 0 {
		return nil, apperr.Validation("amount must be greater than zero",
			apperr.FieldError{Field: "amount", Message: "must be greater than zero"})
	}
	if in.IdempotencyKey == "" {
		return nil, apperr.Validation("idempotency key is required",
			apperr.FieldError{Field: "idempotency_key", Message: "is required"})
	}

	// Step 1: idempotency short-circuit.
	if res, done, err := e.checkIdempotency(ctx, in.IdempotencyKey); done {
		return res, err
	}

	// Step 2-3: validate loan and insert the processing intent.
	p, l, err := e.createIntent(ctx, in)
	if err != nil {
		return nil, err
	}

	// Step 4: pull funds from the borrower's linked account before touching
	// any balance. A provider failure fails the payment with no loan or
	// installment side effects.
	tctx, cancel := context.WithTimeout(ctx, providerTimeout)
	defer cancel()
	result, provErr := e.provider.Debit(tctx, p.Reference, in.Amount, in.AccountID,
		fmt.Sprintf("repayment %s", p.Reference))
	if provErr != nil || !result.Success {
		msg := result.FailureMessage
		if provErr != nil {
			msg = provErr.Error()
		}
		failErr := apperr.Wrap(apperr.KindProviderFailure, "repayment debit failed: "+msg, nil)
		e.markFailed(ctx, p, failErr)
		return nil, failErr
	}

	return e.allocateAndFinalize(ctx, p, l)
}

type ManualSubmitInput struct {
	LoanID            uint64
	AccountID         string
	Amount            float64
	IdempotencyKey    string
	SenderBank        string
	SenderName        string
	TransferDate      time.Time
	ExternalReference string
	EvidenceURL       string
}

// SubmitManualRepayment records a pending Payment carrying the proof bundle.
// No installments are touched until an operator verifies it.
func (e *Engine) SubmitManualRepayment(ctx context.Context, in ManualSubmitInput) (*payment.Payment, error) {
	if in.Amount <= 0 {
		return nil, apperr.Validation("amount must be greater than zero",
			apperr.FieldError{Field: "amount", Message: "must be greater than zero"})
	}
	if res, done, err := e.checkIdempotency(ctx, in.IdempotencyKey); done {
		if err != nil {
			return nil, err
		}
		return res.Payment, nil
	}

	var out *payment.Payment
	err := e.uow.WithinTx(ctx, func(r uow.Repos) error {
		l, err := r.Loans.GetByID(ctx, in.LoanID)
		if err != nil {
			return apperr.Wrap(apperr.KindNotFound, "loan not found", loan.ErrNotFound)
		}
		if l.BorrowerID != in.AccountID {
			return apperr.Wrap(apperr.KindAuthorization, "loan not owned by account", loan.ErrNotOwned)
		}
		if l.Status != loan.StatusActive {
			return apperr.Wrap(apperr.KindInvalidTransition, "loan not active", loan.ErrInvalidTransition)
		}

		p := &payment.Payment{
			LoanID: l.ID, AccountID: in.AccountID, IdempotencyKey: in.IdempotencyKey,
			Reference: id.NewReference("PMT"), Type: payment.TypeRepayment, Amount: in.Amount,
			Status:                 payment.StatusPending,
			ProofSenderBank:        &in.SenderBank,
			ProofSenderName:        &in.SenderName,
			ProofTransferDate:      &in.TransferDate,
			ProofExternalReference: &in.ExternalReference,
			ProofEvidenceURL:       &in.EvidenceURL,
		}
		if err := r.Payments.Create(ctx, p); err != nil {
			return apperr.Wrap(apperr.KindConflict, "create manual payment", err)
		}
		if err := r.Audit.Create(ctx, &audit.Entry{
			EntityType: "payment", EntityID: p.Reference, Action: "MANUAL_PROOF_SUBMITTED", Actor: in.AccountID,
		}); err != nil {
			return apperr.Wrap(apperr.KindInternal, "audit manual submission", err)
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	if e.hub != nil {
		_ = e.hub.NotifyOperators(ctx, notification.TypeLoanStateChanged, "Manual proof submitted",
			fmt.Sprintf("Payment %s awaits verification.", out.Reference), nil)
	}
	return out, nil
}

type VerifyInput struct {
	PaymentID  uint64
	OperatorID string
	Approve    bool
	Reason     string
}

// VerifyRepayment resolves a pending manual-proof Payment: on approval it
// re-runs the FIFO allocation and finalize steps against the existing
// Payment; on rejection it marks the Payment failed with no loan side
// effects.
func (e *Engine) VerifyRepayment(ctx context.Context, in VerifyInput) (*Result, error) {
	var p *payment.Payment
	var l *loan.Loan
	err := e.uow.WithinTx(ctx, func(r uow.Repos) error {
		var err error
		p, err = r.Payments.GetByID(ctx, in.PaymentID)
		if err != nil {
			return apperr.Wrap(apperr.KindNotFound, "payment not found", payment.ErrNotFound)
		}
		if p.Status != payment.StatusPending {
			return apperr.Wrap(apperr.KindInvalidTransition, "payment not pending verification", nil)
		}
		l, err = r.Loans.GetByID(ctx, p.LoanID)
		if err != nil {
			return apperr.Wrap(apperr.KindNotFound, "loan not found", loan.ErrNotFound)
		}
		if l.Status != loan.StatusActive {
			return apperr.Wrap(apperr.KindInvalidTransition, "loan not active", loan.ErrInvalidTransition)
		}

		if !in.Approve {
			now := time.Now().UTC()
			reason := in.Reason
			if err := r.Payments.CompareAndSwap(ctx, p.ID, p.Version, map[string]any{
				"status": payment.StatusFailed, "failure_reason": reason,
				"verified_by": in.OperatorID, "verified_at": now, "updated_at": now,
			}); err != nil {
				return apperr.Wrap(apperr.KindConcurrency, "payment changed concurrently", err)
			}
			p.Version++
			p.Status = payment.StatusFailed
			return r.Audit.Create(ctx, &audit.Entry{
				EntityType: "payment", EntityID: p.Reference, Action: "MANUAL_PROOF_REJECTED",
				Actor: in.OperatorID, Note: reason,
			})
		}

		now := time.Now().UTC()
		if err := r.Payments.CompareAndSwap(ctx, p.ID, p.Version, map[string]any{
			"status": payment.StatusProcessing, "verified_by": in.OperatorID, "verified_at": now, "updated_at": now,
		}); err != nil {
			return apperr.Wrap(apperr.KindConcurrency, "payment changed concurrently", err)
		}
		p.Version++
		p.Status = payment.StatusProcessing
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !in.Approve {
		return &Result{Payment: p, Loan: l}, nil
	}
	return e.allocateAndFinalize(ctx, p, l)
}

// checkIdempotency replays a prior success, or
// reject a concurrent in-flight attempt with the same key.
func (e *Engine) checkIdempotency(ctx context.Context, key string) (*Result, bool, error) {
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
		return nil, true, apperr.Wrap(apperr.KindInternal, "idempotency lookup", err)
	}
	if existing == nil {
		return nil, false, nil
	}
	switch existing.Status {
	case payment.StatusSuccess:
		return &Result{Payment: existing, Replayed: true}, true, nil
	case payment.StatusPending, payment.StatusProcessing:
		return nil, true, apperr.New(apperr.KindIdempotencyInFlight, "a repayment with this idempotency key is already in flight")
	default:
		// Failed: the same key may be retried with a fresh attempt is NOT
		// allowed — Payment.idempotencyKey is unique, so the caller must
		// supply a new key for a new attempt.
		return &Result{Payment: existing, Replayed: true}, true, nil
	}
}

func (e *Engine) createIntent(ctx context.Context, in RepayInput) (*payment.Payment, *loan.Loan, error) {
	var p *payment.Payment
	var l *loan.Loan
	err := e.uow.WithinTx(ctx, func(r uow.Repos) error {
		var err error
		l, err = r.Loans.GetByID(ctx, in.LoanID)
		if err != nil {
			return apperr.Wrap(apperr.KindNotFound, "loan not found", loan.ErrNotFound)
		}
		if l.BorrowerID != in.AccountID {
			return apperr.Wrap(apperr.KindAuthorization, "loan not owned by account", loan.ErrNotOwned)
		}
		if l.Status != loan.StatusActive {
			return apperr.Wrap(apperr.KindInvalidTransition, "loan not active", loan.ErrInvalidTransition)
		}

		p = &payment.Payment{
			LoanID: l.ID, AccountID: in.AccountID, IdempotencyKey: in.IdempotencyKey,
			Reference: id.NewReference("PMT"), Type: payment.TypeRepayment, Amount: in.Amount,
			Status: payment.StatusProcessing,
		}
		if err := r.Payments.Create(ctx, p); err != nil {
			return apperr.Wrap(apperr.KindConflict, "create payment intent", err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return p, l, nil
}

// allocateAndFinalize runs allocation through finalize against an existing processing
// Payment, with a bounded retry of the balance CAS.
func (e *Engine) allocateAndFinalize(ctx context.Context, p *payment.Payment, l *loan.Loan) (*Result, error) {
	var result *Result
	var lastErr error

	for attempt := 0; attempt < maxConcurrencyRetries; attempt++ {
		res, err := e.tryAllocate(ctx, p, l)
		if err == nil {
			result = res
			lastErr = nil
			break
		}
		lastErr = err
		if !apperr.Is(err, apperr.KindConcurrency) {
			break
		}
		// Re-read the loan for a fresh version and retry.
		fresh, rerr := e.reloadLoan(ctx, l.ID)
		if rerr != nil {
			lastErr = rerr
			break
		}
		l = fresh
	}

	if lastErr != nil {
		e.markFailed(ctx, p, lastErr)
		return nil, lastErr
	}

	if e.hub != nil {
		_ = e.hub.Notify(ctx, result.Payment.AccountID, notification.TypePaymentReceived,
			"Payment received", fmt.Sprintf("Payment %s of %.2f received.", result.Payment.Reference, result.Payment.Amount), nil)
		_ = e.hub.NotifyOperators(ctx, notification.TypePaymentReceived, "Payment received",
			fmt.Sprintf("Payment %s of %.2f received for loan.", result.Payment.Reference, result.Payment.Amount), nil)
		if result.Loan.Status == loan.StatusCompleted {
			_ = e.hub.Notify(ctx, result.Loan.BorrowerID, notification.TypeLoanCompleted,
				"Loan completed", fmt.Sprintf("Loan %s is fully repaid.", result.Loan.ApplicationNumber), nil)
		}
	}
	return result, nil
}

func (e *Engine) reloadLoan(ctx context.Context, loanID uint64) (*loan.Loan, error) {
	var l *loan.Loan
	err := e.uow.WithinTx(ctx, func(r uow.Repos) error {
		var err error
		l, err = r.Loans.GetByID(ctx, loanID)
		return err
	})
	return l, err
}

func (e *Engine) markFailed(ctx context.Context, p *payment.Payment, cause error) {
	reason := cause.Error()
	_ = e.uow.WithinTx(ctx, func(r uow.Repos) error {
		_ = r.Payments.CompareAndSwap(ctx, p.ID, p.Version, map[string]any{
			"status": payment.StatusFailed, "failure_reason": reason, "updated_at": time.Now().UTC(),
		})
		return r.Audit.Create(ctx, &audit.Entry{
			EntityType: "payment", EntityID: p.Reference, Action: "REPAYMENT_FAILED", Note: reason,
		})
	})
}

// tryAllocate is one attempt at the allocate-through-finalize sequence: FIFO allocation, overpayment
// detection, balance CAS, completion detection, and finalize.
func (e *Engine) tryAllocate(ctx context.Context, p *payment.Payment, l *loan.Loan) (*Result, error) {
	var result *Result
	err := e.uow.WithinTx(ctx, func(r uow.Repos) error {
		outstanding, err := r.Installments.ListOutstandingForUpdate(ctx, l.ID)
		if err != nil {
			return apperr.Wrap(apperr.KindInternal, "list installments", err)
		}

		remaining := p.Amount
		var applied []*payment.InstallmentApplication
		now := time.Now().UTC()
		for _, inst := range outstanding {
			if remaining <= 0 {
				break
			}
			due := inst.Remaining()
			applyAmt := remaining
			if applyAmt > due {
				applyAmt = due
			}
			newPaid := money.Round2(inst.PaidAmount + applyAmt)
			fields := map[string]any{"paid_amount": newPaid, "updated_at": now}
			if newPaid >= inst.TotalDue {
				fields["status"] = installment.StatusPaid
				fields["paid_at"] = now
			} else {
				fields["status"] = installment.StatusPartial
			}
			if err := r.Installments.CompareAndSwap(ctx, inst.ID, inst.Version, fields); err != nil {
				return apperr.Wrap(apperr.KindConcurrency, "installment changed concurrently", err)
			}
			applied = append(applied, &payment.InstallmentApplication{
				InstallmentNumber: inst.InstallmentNumber, AmountApplied: applyAmt,
			})
			remaining = money.Round2(remaining - applyAmt)
		}

		overpayment := remaining
		appliedTotal := money.Round2(p.Amount - overpayment)

		newTotalRepaid := money.Round2(l.TotalRepaid + appliedTotal)
		newOutstanding := money.Round2(l.TotalRepayable - newTotalRepaid)

		loanFields := map[string]any{
			"total_repaid": newTotalRepaid, "outstanding_balance": newOutstanding, "updated_at": now,
		}
		willComplete := newOutstanding <= 0 && l.Status == loan.StatusActive
		if willComplete {
			loanFields["status"] = loan.StatusCompleted
		}
		if err := r.Loans.CompareAndSwap(ctx, l.ID, l.Version, loanFields); err != nil {
			return apperr.Wrap(apperr.KindConcurrency, "loan balance changed concurrently", err)
		}
		l.Version++
		l.TotalRepaid = newTotalRepaid
		l.OutstandingBalance = newOutstanding
		if willComplete {
			if err := r.Loans.AppendHistory(ctx, &loan.StatusHistoryEntry{
				LoanID: l.ID, From: loan.StatusActive, To: loan.StatusCompleted, PerformedBy: "system", CreatedAt: now,
			}); err != nil {
				return apperr.Wrap(apperr.KindInternal, "append completion history", err)
			}
			l.Status = loan.StatusCompleted
			if err := r.Audit.Create(ctx, &audit.Entry{
				EntityType: "loan", EntityID: l.ApplicationNumber, Action: "LOAN_COMPLETED", Actor: "system",
			}); err != nil {
				return apperr.Wrap(apperr.KindInternal, "audit completion", err)
			}
		}

		if len(applied) > 0 {
			if err := r.Payments.CreateAllocations(ctx, withPaymentID(applied, p.ID)); err != nil {
				return apperr.Wrap(apperr.KindInternal, "persist allocations", err)
			}
		}

		principalApplied := appliedTotal
		paymentFields := map[string]any{
			"status": payment.StatusSuccess, "reconciled": true, "reconciled_at": now, "updated_at": now,
			"allocation_principal": principalApplied, "allocation_interest": float64(0), "allocation_overpayment": overpayment,
		}
		if err := r.Payments.CompareAndSwap(ctx, p.ID, p.Version, paymentFields); err != nil {
			return apperr.Wrap(apperr.KindConcurrency, "payment changed concurrently", err)
		}
		p.Version++
		p.Status = payment.StatusSuccess
		p.Reconciled = true
		principal := principalApplied
		interest := 0.0
		over := overpayment
		p.AllocationPrincipal = &principal
		p.AllocationInterest = &interest
		p.AllocationOverpayment = &over

		if err := r.Audit.Create(ctx, &audit.Entry{
			EntityType: "payment", EntityID: p.Reference, Action: "REPAYMENT_PROCESSED", Actor: p.AccountID,
		}); err != nil {
			return apperr.Wrap(apperr.KindInternal, "audit repayment", err)
		}

		result = &Result{Payment: p, Loan: l, Allocations: applied}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func withPaymentID(apps []*payment.InstallmentApplication, paymentID uint64) []*payment.InstallmentApplication {
	for _, a := range apps {
		a.PaymentID = paymentID
	}
	return apps
}

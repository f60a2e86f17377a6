// Package memstore is an in-process Store test double: plain maps guarded
// by a mutex, enforcing the same version-CAS and uniqueness discipline
// a real GORM-backed store would, so engine-level tests exercise
// real concurrency semantics without a MySQL instance.
package memstore

import (
	"context"
	"sync"
	"time"

	"loanledger/internal/domain/account"
	"loanledger/internal/domain/audit"
	"loanledger/internal/domain/idempotency"
	"loanledger/internal/domain/installment"
	"loanledger/internal/domain/loan"
	"loanledger/internal/domain/notification"
	"loanledger/internal/domain/payment"
	"loanledger/internal/domain/uow"
)

// Store backs every domain repository interface with in-memory maps.
type Store struct {
	mu sync.Mutex

	nextLoanID       uint64
	nextHistoryID    uint64
	nextInstID       uint64
	nextPaymentID    uint64
	nextAllocationID uint64
	nextAuditID      uint64
	nextNotifID      uint64
	nextAccountID    uint64
	nextIdempID      uint64

	loans        map[uint64]*loan.Loan
	history      map[uint64][]*loan.StatusHistoryEntry
	installments map[uint64]*installment.Installment
	payments     map[uint64]*payment.Payment
	allocations  map[uint64][]*payment.InstallmentApplication
	audits       []*audit.Entry
	notifs       map[uint64]*notification.Notification
	accounts     map[uint64]*account.Account
	idempRecords map[string]*idempotency.Record
}

func New() *Store {
	return &Store{
		loans:        map[uint64]*loan.Loan{},
		history:      map[uint64][]*loan.StatusHistoryEntry{},
		installments: map[uint64]*installment.Installment{},
		payments:     map[uint64]*payment.Payment{},
		allocations:  map[uint64][]*payment.InstallmentApplication{},
		notifs:       map[uint64]*notification.Notification{},
		accounts:     map[uint64]*account.Account{},
		idempRecords: map[string]*idempotency.Record{},
	}
}

// uow — a single mutex stands in for the store's transaction boundary; the
// engine never holds this lock across a provider call because Disbursement/
// Repayment/Refund only call WithinTx around store-only work.
type UnitOfWork struct{ s *Store }

func NewUnitOfWork(s *Store) *UnitOfWork { return &UnitOfWork{s: s} }

func (u *UnitOfWork) WithinTx(ctx context.Context, fn func(r uow.Repos) error) error {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	return fn(uow.Repos{
		Accounts:      &accountRepo{s: u.s},
		Loans:         &loanRepo{s: u.s},
		Installments:  &installmentRepo{s: u.s},
		Payments:      &paymentRepo{s: u.s},
		Audit:         &auditRepo{s: u.s},
		Notifications: &notificationRepo{s: u.s},
	})
}

// --- loan ---

type loanRepo struct{ s *Store }

func cloneLoan(l *loan.Loan) *loan.Loan {
	cp := *l
	return &cp
}

func (r *loanRepo) Create(ctx context.Context, l *loan.Loan) error {
	for _, existing := range r.s.loans {
		if existing.ApplicationNumber == l.ApplicationNumber {
			return loan.ErrConcurrency
		}
	}
	r.s.nextLoanID++
	l.ID = r.s.nextLoanID
	r.s.loans[l.ID] = cloneLoan(l)
	return nil
}

func (r *loanRepo) GetByID(ctx context.Context, id uint64) (*loan.Loan, error) {
	l, ok := r.s.loans[id]
	if !ok {
		return nil, loan.ErrNotFound
	}
	return cloneLoan(l), nil
}

func (r *loanRepo) GetByIDForUpdate(ctx context.Context, id uint64) (*loan.Loan, error) {
	return r.GetByID(ctx, id)
}

func (r *loanRepo) GetByApplicationNumber(ctx context.Context, appNumber string) (*loan.Loan, error) {
	for _, l := range r.s.loans {
		if l.ApplicationNumber == appNumber {
			return cloneLoan(l), nil
		}
	}
	return nil, loan.ErrNotFound
}

func (r *loanRepo) GetActiveLoanByBorrowerID(ctx context.Context, borrowerID string) (*loan.Loan, error) {
	for _, l := range r.s.loans {
		if l.BorrowerID == borrowerID && l.Status.ActiveForSingleLoanRule() {
			return cloneLoan(l), nil
		}
	}
	return nil, loan.ErrNotFound
}

func (r *loanRepo) ListByBorrowerID(ctx context.Context, borrowerID string) ([]*loan.Loan, error) {
	var out []*loan.Loan
	for _, l := range r.s.loans {
		if l.BorrowerID == borrowerID {
			out = append(out, cloneLoan(l))
		}
	}
	return out, nil
}

func (r *loanRepo) CompareAndSwap(ctx context.Context, id uint64, expectedVersion int64, fields map[string]any) error {
	l, ok := r.s.loans[id]
	if !ok {
		return loan.ErrNotFound
	}
	if l.Version != expectedVersion {
		return loan.ErrConcurrency
	}
	if ref, ok := fields["disbursement_reference"]; ok && ref != nil {
		refStr := ref.(string)
		for otherID, other := range r.s.loans {
			if otherID != id && other.DisbursementReference != nil && *other.DisbursementReference == refStr {
				return loan.ErrConcurrency
			}
		}
	}
	applyLoanFields(l, fields)
	l.Version++
	return nil
}

func applyLoanFields(l *loan.Loan, fields map[string]any) {
	for k, v := range fields {
		switch k {
		case "status":
			l.Status = v.(loan.Status)
		case "principal":
			l.Principal = v.(float64)
		case "total_interest":
			l.TotalInterest = v.(float64)
		case "total_repayable":
			l.TotalRepayable = v.(float64)
		case "monthly_payment":
			l.MonthlyPayment = v.(float64)
		case "total_repaid":
			l.TotalRepaid = v.(float64)
		case "outstanding_balance":
			l.OutstandingBalance = v.(float64)
		case "approval_operator":
			s := v.(string)
			l.ApprovalOperator = &s
		case "approval_amount":
			f := v.(float64)
			l.ApprovalAmount = &f
		case "approval_conditions":
			s := v.(string)
			l.ApprovalConditions = &s
		case "approval_at":
			setTimePtr(&l.ApprovalAt, v)
		case "rejection_operator":
			s := v.(string)
			l.RejectionOperator = &s
		case "rejection_reason":
			s := v.(string)
			l.RejectionReason = &s
		case "rejection_at":
			setTimePtr(&l.RejectionAt, v)
		case "disbursement_reference":
			setStringPtr(&l.DisbursementReference, v)
		case "disbursement_bank_account":
			setStringPtr(&l.DisbursementBankAccount, v)
		case "disbursement_bank_code":
			setStringPtr(&l.DisbursementBankCode, v)
		case "disbursement_operator":
			setStringPtr(&l.DisbursementOperator, v)
		case "disbursement_at":
			setTimePtr(&l.DisbursementAt, v)
		case "disbursement_provider_reference":
			setStringPtr(&l.DisbursementProviderReference, v)
		case "updated_at":
			l.UpdatedAt = v.(time.Time)
		}
	}
}

// setStringPtr assigns a *string field from a map value that is either a
// string (set) or nil (unset) — CompareAndSwap callers pass nil to clear an
// optional field (e.g. disbursement compensation clearing the reference).
func setStringPtr(dst **string, v any) {
	if v == nil {
		*dst = nil
		return
	}
	s := v.(string)
	*dst = &s
}

func setTimePtr(dst **time.Time, v any) {
	if v == nil {
		*dst = nil
		return
	}
	t := v.(time.Time)
	*dst = &t
}

func (r *loanRepo) AppendHistory(ctx context.Context, entry *loan.StatusHistoryEntry) error {
	r.s.nextHistoryID++
	entry.ID = r.s.nextHistoryID
	r.s.history[entry.LoanID] = append(r.s.history[entry.LoanID], entry)
	return nil
}

func (r *loanRepo) ListHistory(ctx context.Context, loanID uint64) ([]*loan.StatusHistoryEntry, error) {
	return r.s.history[loanID], nil
}

// --- installment ---

type installmentRepo struct{ s *Store }

func cloneInstallment(i *installment.Installment) *installment.Installment {
	cp := *i
	return &cp
}

func (r *installmentRepo) CreateSchedule(ctx context.Context, installments []*installment.Installment) error {
	for _, i := range installments {
		r.s.nextInstID++
		i.ID = r.s.nextInstID
		r.s.installments[i.ID] = cloneInstallment(i)
	}
	return nil
}

func (r *installmentRepo) ListByLoanID(ctx context.Context, loanID uint64) ([]*installment.Installment, error) {
	var out []*installment.Installment
	for _, i := range r.s.installments {
		if i.LoanID == loanID {
			out = append(out, cloneInstallment(i))
		}
	}
	sortInstallments(out)
	return out, nil
}

func (r *installmentRepo) ListOutstandingForUpdate(ctx context.Context, loanID uint64) ([]*installment.Installment, error) {
	var out []*installment.Installment
	for _, i := range r.s.installments {
		if i.LoanID != loanID {
			continue
		}
		switch i.Status {
		case installment.StatusPending, installment.StatusPartial, installment.StatusOverdue:
			out = append(out, cloneInstallment(i))
		}
	}
	sortInstallments(out)
	return out, nil
}

func sortInstallments(in []*installment.Installment) {
	for i := 1; i < len(in); i++ {
		for j := i; j > 0 && in[j].InstallmentNumber < in[j-1].InstallmentNumber; j-- {
			in[j], in[j-1] = in[j-1], in[j]
		}
	}
}

func (r *installmentRepo) CompareAndSwap(ctx context.Context, id uint64, expectedVersion int64, fields map[string]any) error {
	i, ok := r.s.installments[id]
	if !ok {
		return installment.ErrConcurrency
	}
	if i.Version != expectedVersion {
		return installment.ErrConcurrency
	}
	for k, v := range fields {
		switch k {
		case "paid_amount":
			i.PaidAmount = v.(float64)
		case "status":
			i.Status = v.(installment.Status)
		case "paid_at":
			setTimePtr(&i.PaidAt, v)
		case "updated_at":
			// Installment has no UpdatedAt field; ignored.
		}
	}
	i.Version++
	return nil
}

// --- payment ---

type paymentRepo struct{ s *Store }

func clonePayment(p *payment.Payment) *payment.Payment {
	cp := *p
	return &cp
}

func (r *paymentRepo) Create(ctx context.Context, p *payment.Payment) error {
	for _, existing := range r.s.payments {
		if p.IdempotencyKey != "" && existing.IdempotencyKey == p.IdempotencyKey {
			return payment.ErrConcurrency
		}
		if existing.Reference == p.Reference {
			return payment.ErrConcurrency
		}
	}
	r.s.nextPaymentID++
	p.ID = r.s.nextPaymentID
	r.s.payments[p.ID] = clonePayment(p)
	return nil
}

func (r *paymentRepo) GetByID(ctx context.Context, id uint64) (*payment.Payment, error) {
	p, ok := r.s.payments[id]
	if !ok {
		return nil, payment.ErrNotFound
	}
	return clonePayment(p), nil
}

func (r *paymentRepo) GetByIdempotencyKey(ctx context.Context, key string) (*payment.Payment, error) {
	for _, p := range r.s.payments {
		if p.IdempotencyKey == key {
			return clonePayment(p), nil
		}
	}
	return nil, payment.ErrNotFound
}

func (r *paymentRepo) GetByReference(ctx context.Context, reference string) (*payment.Payment, error) {
	for _, p := range r.s.payments {
		if p.Reference == reference {
			return clonePayment(p), nil
		}
	}
	return nil, payment.ErrNotFound
}

func (r *paymentRepo) ListByLoanID(ctx context.Context, loanID uint64) ([]*payment.Payment, error) {
	var out []*payment.Payment
	for _, p := range r.s.payments {
		if p.LoanID == loanID {
			out = append(out, clonePayment(p))
		}
	}
	return out, nil
}

func (r *paymentRepo) ListByAccountID(ctx context.Context, accountID string) ([]*payment.Payment, error) {
	var out []*payment.Payment
	for _, p := range r.s.payments {
		if p.AccountID == accountID {
			out = append(out, clonePayment(p))
		}
	}
	return out, nil
}

func (r *paymentRepo) CompareAndSwap(ctx context.Context, id uint64, expectedVersion int64, fields map[string]any) error {
	p, ok := r.s.payments[id]
	if !ok {
		return payment.ErrConcurrency
	}
	if p.Version != expectedVersion {
		return payment.ErrConcurrency
	}
	for k, v := range fields {
		switch k {
		case "status":
			p.Status = v.(payment.Status)
		case "failure_reason":
			s := v.(string)
			p.FailureReason = &s
		case "reconciled":
			p.Reconciled = v.(bool)
		case "reconciled_at":
			setTimePtr(&p.ReconciledAt, v)
		case "verified_by":
			s := v.(string)
			p.VerifiedBy = &s
		case "verified_at":
			setTimePtr(&p.VerifiedAt, v)
		case "overpayment_refunded":
			p.OverpaymentRefunded = v.(bool)
		case "allocation_principal":
			f := v.(float64)
			p.AllocationPrincipal = &f
		case "allocation_interest":
			f := v.(float64)
			p.AllocationInterest = &f
		case "allocation_overpayment":
			f := v.(float64)
			p.AllocationOverpayment = &f
		case "updated_at":
			p.UpdatedAt = v.(time.Time)
		}
	}
	p.Version++
	return nil
}

func (r *paymentRepo) CreateAllocations(ctx context.Context, apps []*payment.InstallmentApplication) error {
	for _, a := range apps {
		r.s.nextAllocationID++
		a.ID = r.s.nextAllocationID
		r.s.allocations[a.PaymentID] = append(r.s.allocations[a.PaymentID], a)
	}
	return nil
}

func (r *paymentRepo) ListAllocations(ctx context.Context, paymentID uint64) ([]*payment.InstallmentApplication, error) {
	return r.s.allocations[paymentID], nil
}

// --- audit ---

type auditRepo struct{ s *Store }

func (r *auditRepo) Create(ctx context.Context, e *audit.Entry) error {
	r.s.nextAuditID++
	e.ID = r.s.nextAuditID
	cp := *e
	r.s.audits = append(r.s.audits, &cp)
	return nil
}

func (r *auditRepo) ListByEntity(ctx context.Context, entityType, entityID string) ([]*audit.Entry, error) {
	var out []*audit.Entry
	for _, e := range r.s.audits {
		if e.EntityType == entityType && e.EntityID == entityID {
			out = append(out, e)
		}
	}
	return out, nil
}

// --- notification ---

type notificationRepo struct{ s *Store }

func (r *notificationRepo) Create(ctx context.Context, n *notification.Notification) error {
	r.s.nextNotifID++
	n.ID = r.s.nextNotifID
	cp := *n
	r.s.notifs[n.ID] = &cp
	return nil
}

func (r *notificationRepo) ListByAccountID(ctx context.Context, accountID string, limit, offset int) ([]*notification.Notification, error) {
	var out []*notification.Notification
	for _, n := range r.s.notifs {
		if n.AccountID == accountID {
			cp := *n
			out = append(out, &cp)
		}
	}
	if offset < len(out) {
		out = out[offset:]
	} else {
		out = nil
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *notificationRepo) CountUnread(ctx context.Context, accountID string) (int64, error) {
	var n int64
	for _, x := range r.s.notifs {
		if x.AccountID == accountID && x.ReadAt == nil {
			n++
		}
	}
	return n, nil
}

func (r *notificationRepo) MarkRead(ctx context.Context, id uint64, accountID string) error {
	n, ok := r.s.notifs[id]
	if !ok || n.AccountID != accountID {
		return nil
	}
	now := time.Now().UTC()
	n.ReadAt = &now
	return nil
}

func (r *notificationRepo) MarkAllRead(ctx context.Context, accountID string) error {
	now := time.Now().UTC()
	for _, n := range r.s.notifs {
		if n.AccountID == accountID && n.ReadAt == nil {
			n.ReadAt = &now
		}
	}
	return nil
}

func (r *notificationRepo) MarkSent(ctx context.Context, id uint64) error {
	n, ok := r.s.notifs[id]
	if !ok {
		return nil
	}
	now := time.Now().UTC()
	n.Status = notification.StatusSent
	n.SentAt = &now
	return nil
}

func (r *notificationRepo) GetByID(ctx context.Context, id uint64) (*notification.Notification, error) {
	n, ok := r.s.notifs[id]
	if !ok {
		return nil, nil
	}
	cp := *n
	return &cp, nil
}

// --- account ---

type accountRepo struct{ s *Store }

func (r *accountRepo) Create(ctx context.Context, a *account.Account) error {
	r.s.nextAccountID++
	a.ID = r.s.nextAccountID
	cp := *a
	r.s.accounts[a.ID] = &cp
	return nil
}

func (r *accountRepo) GetByAccountID(ctx context.Context, accountID string) (*account.Account, error) {
	for _, a := range r.s.accounts {
		if a.AccountID == accountID {
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *accountRepo) GetByEmail(ctx context.Context, email string) (*account.Account, error) {
	for _, a := range r.s.accounts {
		if a.Email == email {
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *accountRepo) ListByRole(ctx context.Context, role account.Role) ([]*account.Account, error) {
	var out []*account.Account
	for _, a := range r.s.accounts {
		if a.Role == role {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *accountRepo) Save(ctx context.Context, a *account.Account) error {
	if a.ID == 0 {
		return r.Create(ctx, a)
	}
	cp := *a
	r.s.accounts[a.ID] = &cp
	return nil
}

// --- idempotency (transport-level cache; outside the domain UnitOfWork) ---

type IdempotencyRepo struct{ s *Store }

func NewIdempotencyRepo(s *Store) *IdempotencyRepo { return &IdempotencyRepo{s: s} }

func (r *IdempotencyRepo) Get(ctx context.Context, key string) (*idempotency.Record, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rec, ok := r.s.idempRecords[key]
	if !ok {
		return nil, nil
	}
	if time.Now().UTC().After(rec.ExpiresAt) {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (r *IdempotencyRepo) Create(ctx context.Context, rec *idempotency.Record) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, exists := r.s.idempRecords[rec.Key]; exists {
		return idempotency.ErrConflict
	}
	r.s.nextIdempID++
	rec.ID = r.s.nextIdempID
	cp := *rec
	r.s.idempRecords[rec.Key] = &cp
	return nil
}

// lockedNotificationRepo/lockedAccountRepo wrap the WithinTx-scoped repos
// with s.mu for callers (notify.Hub) that hold a repository instance across
// calls instead of getting one fresh per WithinTx. Safe because no engine
// touches r.Notifications/r.Accounts from inside a WithinTx closure — there
// is no nested-lock path.
type lockedNotificationRepo struct{ inner notificationRepo }

func (r *lockedNotificationRepo) Create(ctx context.Context, n *notification.Notification) error {
	r.inner.s.mu.Lock()
	defer r.inner.s.mu.Unlock()
	return r.inner.Create(ctx, n)
}
func (r *lockedNotificationRepo) ListByAccountID(ctx context.Context, accountID string, limit, offset int) ([]*notification.Notification, error) {
	r.inner.s.mu.Lock()
	defer r.inner.s.mu.Unlock()
	return r.inner.ListByAccountID(ctx, accountID, limit, offset)
}
func (r *lockedNotificationRepo) CountUnread(ctx context.Context, accountID string) (int64, error) {
	r.inner.s.mu.Lock()
	defer r.inner.s.mu.Unlock()
	return r.inner.CountUnread(ctx, accountID)
}
func (r *lockedNotificationRepo) MarkRead(ctx context.Context, id uint64, accountID string) error {
	r.inner.s.mu.Lock()
	defer r.inner.s.mu.Unlock()
	return r.inner.MarkRead(ctx, id, accountID)
}
func (r *lockedNotificationRepo) MarkAllRead(ctx context.Context, accountID string) error {
	r.inner.s.mu.Lock()
	defer r.inner.s.mu.Unlock()
	return r.inner.MarkAllRead(ctx, accountID)
}
func (r *lockedNotificationRepo) MarkSent(ctx context.Context, id uint64) error {
	r.inner.s.mu.Lock()
	defer r.inner.s.mu.Unlock()
	return r.inner.MarkSent(ctx, id)
}
func (r *lockedNotificationRepo) GetByID(ctx context.Context, id uint64) (*notification.Notification, error) {
	r.inner.s.mu.Lock()
	defer r.inner.s.mu.Unlock()
	return r.inner.GetByID(ctx, id)
}

// NewNotificationRepo exposes a standalone notification.Repository bound to
// s, for callers (e.g. notify.Hub) that need a repository instance held
// across calls rather than one scoped to a single WithinTx.
func NewNotificationRepo(s *Store) notification.Repository {
	return &lockedNotificationRepo{inner: notificationRepo{s: s}}
}

type lockedAccountRepo struct{ inner accountRepo }

func (r *lockedAccountRepo) Create(ctx context.Context, a *account.Account) error {
	r.inner.s.mu.Lock()
	defer r.inner.s.mu.Unlock()
	return r.inner.Create(ctx, a)
}
func (r *lockedAccountRepo) GetByAccountID(ctx context.Context, accountID string) (*account.Account, error) {
	r.inner.s.mu.Lock()
	defer r.inner.s.mu.Unlock()
	return r.inner.GetByAccountID(ctx, accountID)
}
func (r *lockedAccountRepo) GetByEmail(ctx context.Context, email string) (*account.Account, error) {
	r.inner.s.mu.Lock()
	defer r.inner.s.mu.Unlock()
	return r.inner.GetByEmail(ctx, email)
}
func (r *lockedAccountRepo) ListByRole(ctx context.Context, role account.Role) ([]*account.Account, error) {
	r.inner.s.mu.Lock()
	defer r.inner.s.mu.Unlock()
	return r.inner.ListByRole(ctx, role)
}
func (r *lockedAccountRepo) Save(ctx context.Context, a *account.Account) error {
	r.inner.s.mu.Lock()
	defer r.inner.s.mu.Unlock()
	return r.inner.Save(ctx, a)
}

// NewAccountRepo exposes a standalone account.Repository bound to s, for
// the same reason as NewNotificationRepo.
func NewAccountRepo(s *Store) account.Repository {
	return &lockedAccountRepo{inner: accountRepo{s: s}}
}

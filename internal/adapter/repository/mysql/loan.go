package mysql

import (
	"context"

	loanDomain "loanledger/internal/domain/loan"

	"gorm.io/gorm"
)

type LoanRepository struct{ db *gorm.DB }

func NewLoanRepository(db *gorm.DB) *LoanRepository { return &LoanRepository{db: db} }

func (r *LoanRepository) Create(ctx context.Context, l *loanDomain.Loan) error {
	return r.db.WithContext(ctx).Create(l).Error
}

func (r *LoanRepository) GetByID(ctx context.Context, id uint64) (*loanDomain.Loan, error) {
	var out loanDomain.Loan
	res := r.db.WithContext(ctx).First(&out, id)
	if res.Error != nil {
		return nil, res.Error
	}
	return &out, nil
}

// GetByIDForUpdate locks the row so a concurrent transaction cannot read a
// stale version while this one is deciding its CAS fields (two concurrent
// repayments for the same loan are serialized by the version CAS).
func (r *LoanRepository) GetByIDForUpdate(ctx context.Context, id uint64) (*loanDomain.Loan, error) {
	var out loanDomain.Loan
	res := withUpdateLock(r.db.WithContext(ctx)).First(&out, id)
	if res.Error != nil {
		return nil, res.Error
	}
	return &out, nil
}

func (r *LoanRepository) GetByApplicationNumber(ctx context.Context, appNumber string) (*loanDomain.Loan, error) {
	var out loanDomain.Loan
	res := r.db.WithContext(ctx).Where("application_number = ?", appNumber).First(&out)
	if res.Error != nil {
		return nil, res.Error
	}
	return &out, nil
}

// GetActiveLoanByBorrowerID enforces the single-active-loan rule.
func (r *LoanRepository) GetActiveLoanByBorrowerID(ctx context.Context, borrowerID string) (*loanDomain.Loan, error) {
	var out loanDomain.Loan
	res := r.db.WithContext(ctx).
		Where("borrower_id = ? AND status IN ?", borrowerID, []loanDomain.Status{
			loanDomain.StatusPending, loanDomain.StatusUnderReview, loanDomain.StatusApproved, loanDomain.StatusActive,
		}).
		First(&out)
	if res.Error != nil {
		return nil, res.Error
	}
	return &out, nil
}

func (r *LoanRepository) ListByBorrowerID(ctx context.Context, borrowerID string) ([]*loanDomain.Loan, error) {
	var out []*loanDomain.Loan
	res := r.db.WithContext(ctx).Where("borrower_id = ?", borrowerID).Order("created_at desc").Find(&out)
	return out, res.Error
}

// CompareAndSwap is the version-CAS conditional update every balance-
// affecting mutation must use: the update only applies, and the
// version only advances, if the persisted version still matches.
func (r *LoanRepository) CompareAndSwap(ctx context.Context, id uint64, expectedVersion int64, fields map[string]any) error {
	fields["version"] = gorm.Expr("version + 1")
	res := r.db.WithContext(ctx).Model(&loanDomain.Loan{}).
		Where("id = ? AND version = ?", id, expectedVersion).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return loanDomain.ErrConcurrency
	}
	return nil
}

func (r *LoanRepository) AppendHistory(ctx context.Context, entry *loanDomain.StatusHistoryEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *LoanRepository) ListHistory(ctx context.Context, loanID uint64) ([]*loanDomain.StatusHistoryEntry, error) {
	var out []*loanDomain.StatusHistoryEntry
	res := r.db.WithContext(ctx).Where("loan_id = ?", loanID).Order("created_at asc, id asc").Find(&out)
	return out, res.Error
}

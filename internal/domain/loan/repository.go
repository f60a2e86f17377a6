package loan

import "context"

// Repository is the Store's loan-typed read/insert surface plus the
// version-CAS conditional update every balance-affecting mutation must use
// .
type Repository interface {
	Create(ctx context.Context, l *Loan) error
	GetByID(ctx context.Context, id uint64) (*Loan, error)
	GetByIDForUpdate(ctx context.Context, id uint64) (*Loan, error)
	GetByApplicationNumber(ctx context.Context, appNumber string) (*Loan, error)
	GetActiveLoanByBorrowerID(ctx context.Context, borrowerID string) (*Loan, error)
	ListByBorrowerID(ctx context.Context, borrowerID string) ([]*Loan, error)

	// CompareAndSwap persists fields on the loan identified by id, only if
	// the stored version still equals expectedVersion. On success the
	// persisted version is expectedVersion+1. Returns ErrConcurrency on a
	// version mismatch.
	CompareAndSwap(ctx context.Context, id uint64, expectedVersion int64, fields map[string]any) error

	AppendHistory(ctx context.Context, entry *StatusHistoryEntry) error
	ListHistory(ctx context.Context, loanID uint64) ([]*StatusHistoryEntry, error)
}

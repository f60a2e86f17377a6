package installment

import "context"

type Repository interface {
	CreateSchedule(ctx context.Context, installments []*Installment) error
	ListByLoanID(ctx context.Context, loanID uint64) ([]*Installment, error)
	// ListOutstandingForUpdate returns pending/partial/overdue installments
	// for loanID ordered by installment number ascending, suitable for FIFO
	// allocation.
	ListOutstandingForUpdate(ctx context.Context, loanID uint64) ([]*Installment, error)

	// CompareAndSwap persists fields on the installment identified by id,
	// only if the stored version still equals expectedVersion.
	CompareAndSwap(ctx context.Context, id uint64, expectedVersion int64, fields map[string]any) error
}

package payment

import "context"

type Repository interface {
	Create(ctx context.Context, p *Payment) error
	GetByID(ctx context.Context, id uint64) (*Payment, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*Payment, error)
	GetByReference(ctx context.Context, reference string) (*Payment, error)
	ListByLoanID(ctx context.Context, loanID uint64) ([]*Payment, error)
	ListByAccountID(ctx context.Context, accountID string) ([]*Payment, error)

	// CompareAndSwap persists fields on the payment identified by id, only
	// if the stored version still equals expectedVersion.
	CompareAndSwap(ctx context.Context, id uint64, expectedVersion int64, fields map[string]any) error

	CreateAllocations(ctx context.Context, apps []*InstallmentApplication) error
	ListAllocations(ctx context.Context, paymentID uint64) ([]*InstallmentApplication, error)
}

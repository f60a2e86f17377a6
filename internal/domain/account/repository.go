package account

import "context"

type Repository interface {
	Create(ctx context.Context, a *Account) error
	GetByAccountID(ctx context.Context, accountID string) (*Account, error)
	GetByEmail(ctx context.Context, email string) (*Account, error)
	ListByRole(ctx context.Context, role Role) ([]*Account, error)
	Save(ctx context.Context, a *Account) error
}

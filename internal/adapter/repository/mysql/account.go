package mysql

import (
	"context"

	accountDomain "loanledger/internal/domain/account"

	"gorm.io/gorm"
)

type AccountRepository struct{ db *gorm.DB }

func NewAccountRepository(db *gorm.DB) *AccountRepository { return &AccountRepository{db: db} }

func (r *AccountRepository) Create(ctx context.Context, a *accountDomain.Account) error {
	return r.db.WithContext(ctx).Create(a).Error
}

func (r *AccountRepository) GetByAccountID(ctx context.Context, accountID string) (*accountDomain.Account, error) {
	var out accountDomain.Account
	res := r.db.WithContext(ctx).Where("account_id = ?", accountID).First(&out)
	if res.Error != nil {
		return nil, res.Error
	}
	return &out, nil
}

func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*accountDomain.Account, error) {
	var out accountDomain.Account
	res := r.db.WithContext(ctx).Where("email = ?", email).First(&out)
	if res.Error != nil {
		return nil, res.Error
	}
	return &out, nil
}

func (r *AccountRepository) ListByRole(ctx context.Context, role accountDomain.Role) ([]*accountDomain.Account, error) {
	var out []*accountDomain.Account
	res := r.db.WithContext(ctx).Where("role = ?", role).Find(&out)
	return out, res.Error
}

func (r *AccountRepository) Save(ctx context.Context, a *accountDomain.Account) error {
	return r.db.WithContext(ctx).Save(a).Error
}

package mysql

import (
	"context"

	"loanledger/internal/domain/uow"

	"gorm.io/gorm"
)

// GormUoW binds one GORM transaction to every repository a protocol needs.
type GormUoW struct{ db *gorm.DB }

func NewGormUoW(db *gorm.DB) *GormUoW { return &GormUoW{db: db} }

func (u *GormUoW) WithinTx(ctx context.Context, fn func(r uow.Repos) error) error {
	return u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		r := uow.Repos{
			Accounts:      NewAccountRepository(tx),
			Loans:         NewLoanRepository(tx),
			Installments:  NewInstallmentRepository(tx),
			Payments:      NewPaymentRepository(tx),
			Audit:         NewAuditRepository(tx),
			Notifications: NewNotificationRepository(tx),
		}
		return fn(r)
	})
}

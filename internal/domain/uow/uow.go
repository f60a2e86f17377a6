package uow

import (
	"context"

	"loanledger/internal/domain/account"
	"loanledger/internal/domain/audit"
	"loanledger/internal/domain/installment"
	"loanledger/internal/domain/loan"
	"loanledger/internal/domain/notification"
	"loanledger/internal/domain/payment"
)

// Repos bundles every repository a protocol needs inside a single
// transaction.
type Repos struct {
	Accounts      account.Repository
	Loans         loan.Repository
	Installments  installment.Repository
	Payments      payment.Repository
	Audit         audit.Repository
	Notifications notification.Repository
}

// UnitOfWork runs fn inside a single store transaction.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(r Repos) error) error
}

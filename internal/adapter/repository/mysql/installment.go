package mysql

import (
	"context"

	installmentDomain "loanledger/internal/domain/installment"

	"gorm.io/gorm"
)

type InstallmentRepository struct{ db *gorm.DB }

func NewInstallmentRepository(db *gorm.DB) *InstallmentRepository {
	return &InstallmentRepository{db: db}
}

func (r *InstallmentRepository) CreateSchedule(ctx context.Context, installments []*installmentDomain.Installment) error {
	if len(installments) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&installments).Error
}

func (r *InstallmentRepository) ListByLoanID(ctx context.Context, loanID uint64) ([]*installmentDomain.Installment, error) {
	var out []*installmentDomain.Installment
	res := r.db.WithContext(ctx).Where("loan_id = ?", loanID).Order("installment_number asc").Find(&out)
	return out, res.Error
}

// ListOutstandingForUpdate returns pending/partial/overdue installments for
// loanID ordered ascending, locked for update so the FIFO allocation never
// double-applies a concurrent payment's view of paidAmount.
func (r *InstallmentRepository) ListOutstandingForUpdate(ctx context.Context, loanID uint64) ([]*installmentDomain.Installment, error) {
	var out []*installmentDomain.Installment
	res := withUpdateLock(r.db.WithContext(ctx)).
		Where("loan_id = ? AND status IN ?", loanID, []installmentDomain.Status{
			installmentDomain.StatusPending, installmentDomain.StatusPartial, installmentDomain.StatusOverdue,
		}).
		Order("installment_number asc").
		Find(&out)
	return out, res.Error
}

func (r *InstallmentRepository) CompareAndSwap(ctx context.Context, id uint64, expectedVersion int64, fields map[string]any) error {
	fields["version"] = gorm.Expr("version + 1")
	res := r.db.WithContext(ctx).Model(&installmentDomain.Installment{}).
		Where("id = ? AND version = ?", id, expectedVersion).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return installmentDomain.ErrConcurrency
	}
	return nil
}

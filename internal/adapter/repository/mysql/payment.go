package mysql

import (
	"context"

	paymentDomain "loanledger/internal/domain/payment"

	"gorm.io/gorm"
)

type PaymentRepository struct{ db *gorm.DB }

func NewPaymentRepository(db *gorm.DB) *PaymentRepository { return &PaymentRepository{db: db} }

func (r *PaymentRepository) Create(ctx context.Context, p *paymentDomain.Payment) error {
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *PaymentRepository) GetByID(ctx context.Context, id uint64) (*paymentDomain.Payment, error) {
	var out paymentDomain.Payment
	res := r.db.WithContext(ctx).First(&out, id)
	if res.Error != nil {
		return nil, res.Error
	}
	return &out, nil
}

func (r *PaymentRepository) GetByIdempotencyKey(ctx context.Context, key string) (*paymentDomain.Payment, error) {
	var out paymentDomain.Payment
	res := r.db.WithContext(ctx).Where("idempotency_key = ?", key).First(&out)
	if res.Error != nil {
		return nil, res.Error
	}
	return &out, nil
}

func (r *PaymentRepository) GetByReference(ctx context.Context, reference string) (*paymentDomain.Payment, error) {
	var out paymentDomain.Payment
	res := r.db.WithContext(ctx).Where("reference = ?", reference).First(&out)
	if res.Error != nil {
		return nil, res.Error
	}
	return &out, nil
}

func (r *PaymentRepository) ListByLoanID(ctx context.Context, loanID uint64) ([]*paymentDomain.Payment, error) {
	var out []*paymentDomain.Payment
	res := r.db.WithContext(ctx).Where("loan_id = ?", loanID).Order("created_at asc").Find(&out)
	return out, res.Error
}

func (r *PaymentRepository) ListByAccountID(ctx context.Context, accountID string) ([]*paymentDomain.Payment, error) {
	var out []*paymentDomain.Payment
	res := r.db.WithContext(ctx).Where("account_id = ?", accountID).Order("created_at desc").Find(&out)
	return out, res.Error
}

func (r *PaymentRepository) CompareAndSwap(ctx context.Context, id uint64, expectedVersion int64, fields map[string]any) error {
	fields["version"] = gorm.Expr("version + 1")
	res := r.db.WithContext(ctx).Model(&paymentDomain.Payment{}).
		Where("id = ? AND version = ?", id, expectedVersion).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return paymentDomain.ErrConcurrency
	}
	return nil
}

func (r *PaymentRepository) CreateAllocations(ctx context.Context, apps []*paymentDomain.InstallmentApplication) error {
	if len(apps) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&apps).Error
}

func (r *PaymentRepository) ListAllocations(ctx context.Context, paymentID uint64) ([]*paymentDomain.InstallmentApplication, error) {
	var out []*paymentDomain.InstallmentApplication
	res := r.db.WithContext(ctx).Where("payment_id = ?", paymentID).Order("installment_number asc").Find(&out)
	return out, res.Error
}

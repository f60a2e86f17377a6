package mysql

import (
	"context"
	"time"

	idempotencyDomain "loanledger/internal/domain/idempotency"

	"gorm.io/gorm"
)

// IdempotencyRepository is the record of truth behind the coordinator's
// transport-level replay cache; rows outlive restarts and expire by
// expires_at rather than deletion.
type IdempotencyRepository struct{ db *gorm.DB }

func NewIdempotencyRepository(db *gorm.DB) *IdempotencyRepository {
	return &IdempotencyRepository{db: db}
}

func (r *IdempotencyRepository) Get(ctx context.Context, key string) (*idempotencyDomain.Record, error) {
	var out idempotencyDomain.Record
	res := r.db.WithContext(ctx).
		Where("key = ? AND expires_at > ?", key, time.Now().UTC()).
		First(&out)
	if res.Error != nil {
		return nil, res.Error
	}
	return &out, nil
}

func (r *IdempotencyRepository) Create(ctx context.Context, rec *idempotencyDomain.Record) error {
	return r.db.WithContext(ctx).Create(rec).Error
}

package mysql

import (
	"context"

	auditDomain "loanledger/internal/domain/audit"

	"gorm.io/gorm"
)

// AuditRepository is append-only: no Update or Delete method is exposed,
// exposing Create and reads only; audit entries are never edited.
type AuditRepository struct{ db *gorm.DB }

func NewAuditRepository(db *gorm.DB) *AuditRepository { return &AuditRepository{db: db} }

func (r *AuditRepository) Create(ctx context.Context, e *auditDomain.Entry) error {
	return r.db.WithContext(ctx).Create(e).Error
}

func (r *AuditRepository) ListByEntity(ctx context.Context, entityType, entityID string) ([]*auditDomain.Entry, error) {
	var out []*auditDomain.Entry
	res := r.db.WithContext(ctx).
		Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Order("created_at asc, id asc").
		Find(&out)
	return out, res.Error
}

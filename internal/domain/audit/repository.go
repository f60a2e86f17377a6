package audit

import "context"

// Repository is append-only: no Update or Delete method is exposed, matching
// a Create-only shape; audit entries are never edited after insert.
type Repository interface {
	Create(ctx context.Context, e *Entry) error
	ListByEntity(ctx context.Context, entityType, entityID string) ([]*Entry, error)
}

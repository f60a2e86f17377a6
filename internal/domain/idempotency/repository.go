package idempotency

import "context"

type Repository interface {
	// Get returns the record for key, or nil if absent/expired.
	Get(ctx context.Context, key string) (*Record, error)
	// Create inserts a new record, failing if the key already exists.
	Create(ctx context.Context, r *Record) error
}

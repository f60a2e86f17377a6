package idempotency

import (
	"errors"
	"time"
)

// ErrConflict is returned by the in-memory test store's Repository.Create
// when the key already exists; the GORM repository returns the database's
// unique-constraint error instead.
var ErrConflict = errors.New("idempotency: key already exists")

// Record is the transport-level idempotency cache entry: one per
// client-supplied Idempotency-Key, replayed verbatim until it expires.
type Record struct {
	ID           uint64    `gorm:"primaryKey;column:id" json:"-"`
	Key          string    `gorm:"size:128;uniqueIndex" json:"key"`
	Endpoint     string    `gorm:"size:120" json:"endpoint"`
	Method       string    `gorm:"size:10" json:"method"`
	StatusCode   int       `json:"status_code"`
	ResponseBody []byte    `gorm:"type:blob" json:"-"`
	AccountID    *string   `gorm:"size:32" json:"account_id,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (Record) TableName() string { return "idempotency_records" }

// DefaultTTL is the default lifetime of an idempotency record.
const DefaultTTL = 24 * time.Hour

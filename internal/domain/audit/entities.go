package audit

import "time"

// Entry is a single append-only audit record. Never edited after insert.
type Entry struct {
	ID               uint64    `gorm:"primaryKey;column:id" json:"-"`
	EntityType       string    `gorm:"size:40;index" json:"entity_type"`
	EntityID         string    `gorm:"size:40;index" json:"entity_id"`
	Action           string    `gorm:"size:60" json:"action"`
	Actor            string    `gorm:"size:32" json:"actor"`
	PreviousSnapshot string    `gorm:"type:text" json:"previous_snapshot,omitempty"`
	NewSnapshot      string    `gorm:"type:text" json:"new_snapshot,omitempty"`
	Note             string    `gorm:"type:text" json:"note,omitempty"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (Entry) TableName() string { return "audit_entries" }

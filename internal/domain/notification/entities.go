package notification

import "time"

type Status string

const (
	StatusPending Status = "pending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
)

type Type string

const (
	TypeLoanDisbursed    Type = "LOAN_DISBURSED"
	TypeLoanCompleted    Type = "LOAN_COMPLETED"
	TypePaymentReceived  Type = "PAYMENT_RECEIVED"
	TypeLoanStateChanged Type = "LOAN_STATE_CHANGED"
	TypeRefundIssued     Type = "REFUND_ISSUED"
)

// Notification is persisted before it is ever pushed to a live subscriber,
// so a subscriber arriving later can still retrieve the full history.
type Notification struct {
	ID        uint64     `gorm:"primaryKey;column:id" json:"id"`
	AccountID string     `gorm:"size:32;index:idx_notif_account_created" json:"account_id"`
	Type      Type       `gorm:"size:40" json:"type"`
	Title     string     `gorm:"size:160" json:"title"`
	Body      string     `gorm:"type:text" json:"body"`
	Data      string     `gorm:"type:text" json:"data,omitempty"`
	Status    Status     `gorm:"type:enum('pending','sent','failed');default:'pending'" json:"status"`
	SentAt    *time.Time `json:"sent_at,omitempty"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
	CreatedAt time.Time  `gorm:"autoCreateTime;index:idx_notif_account_created" json:"created_at"`
}

func (Notification) TableName() string { return "notifications" }

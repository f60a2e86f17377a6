package installment

import (
	"errors"
	"time"
)

// ErrConcurrency is returned by Repository.CompareAndSwap on a version
// mismatch.
var ErrConcurrency = errors.New("installment: version conflict")

type Status string

const (
	StatusPending Status = "pending"
	StatusPartial Status = "partial"
	StatusPaid    Status = "paid"
	StatusOverdue Status = "overdue"
)

// Installment is one scheduled repayment slice of a loan.
type Installment struct {
	ID                uint64     `gorm:"primaryKey;column:id" json:"-"`
	LoanID            uint64     `gorm:"uniqueIndex:ux_installment_loan_number" json:"-"`
	InstallmentNumber int        `gorm:"uniqueIndex:ux_installment_loan_number" json:"installment_number"`
	DueDate           time.Time  `json:"due_date"`
	PrincipalShare    float64    `gorm:"type:decimal(18,2)" json:"principal_share"`
	InterestShare     float64    `gorm:"type:decimal(18,2)" json:"interest_share"`
	TotalDue          float64    `gorm:"type:decimal(18,2)" json:"total_due"`
	PaidAmount        float64    `gorm:"type:decimal(18,2)" json:"paid_amount"`
	Status            Status     `gorm:"type:enum('pending','partial','paid','overdue');default:'pending'" json:"status"`
	PaidAt            *time.Time `json:"paid_at,omitempty"`
	Version           int64      `json:"-"`
}

func (Installment) TableName() string { return "installments" }

// DeriveStatus recomputes Status from PaidAmount/DueDate the way the lazy,
// operator-invoked (non-scheduler) defaulting model requires: an
// installment is overdue only once it is observed past due and still
// unpaid, never pre-emptively.
func (i *Installment) DeriveStatus(now time.Time) Status {
	switch {
	case i.PaidAmount >= i.TotalDue:
		return StatusPaid
	case i.PaidAmount > 0:
		if now.After(i.DueDate) {
			return StatusOverdue
		}
		return StatusPartial
	case now.After(i.DueDate):
		return StatusOverdue
	default:
		return StatusPending
	}
}

// Remaining is the unpaid portion of TotalDue.
func (i *Installment) Remaining() float64 { return i.TotalDue - i.PaidAmount }

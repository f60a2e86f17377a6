package loan

import (
	"errors"
	"time"
)

var (
	ErrNotFound          = errors.New("loan: not found")
	ErrNotOwned          = errors.New("loan: not owned by account")
	ErrInvalidTransition = errors.New("loan: invalid state transition")
	ErrActiveLoanExists  = errors.New("loan: account already has an active loan")
	ErrAlreadyApproved   = errors.New("loan: already approved")
	ErrAlreadyDisbursed  = errors.New("loan: already disbursed")
	ErrConcurrency       = errors.New("loan: version conflict")
)

type Status string

const (
	StatusPending     Status = "pending"
	StatusUnderReview Status = "under_review"
	StatusApproved    Status = "approved"
	StatusRejected    Status = "rejected"
	StatusDisbursed   Status = "disbursed"
	StatusActive      Status = "active"
	StatusCompleted   Status = "completed"
	StatusDefaulted   Status = "defaulted"
)

// Terminal reports whether no further transition is legal from this status.
func (s Status) Terminal() bool {
	switch s {
	case StatusRejected, StatusCompleted, StatusDefaulted:
		return true
	default:
		return false
	}
}

// ActiveForSingleLoanRule reports whether a loan in this status counts
// against the "one active loan per account" rule.
func (s Status) ActiveForSingleLoanRule() bool {
	switch s {
	case StatusPending, StatusUnderReview, StatusApproved, StatusActive:
		return true
	default:
		return false
	}
}

// legalTransitions enumerates every edge the state machine accepts.
var legalTransitions = map[Status][]Status{
	StatusPending:     {StatusUnderReview},
	StatusUnderReview: {StatusApproved, StatusRejected},
	StatusApproved:    {StatusDisbursed},
	StatusDisbursed:   {StatusActive},
	StatusActive:      {StatusCompleted, StatusDefaulted},
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to Status) bool {
	for _, s := range legalTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type Approval struct {
	Operator   string
	Amount     float64
	Conditions string
	At         time.Time
}

type Rejection struct {
	Operator string
	Reason   string
	At       time.Time
}

type Disbursement struct {
	Reference         string
	ProviderReference string
	BankAccount       string
	BankCode          string
	Operator          string
	At                time.Time
}

// Loan is immutable after creation except for the mutable lifecycle fields
// (status, balances, version, and the approval/rejection/disbursement
// sub-records).
type Loan struct {
	ID                 uint64  `gorm:"primaryKey;column:id" json:"-"`
	ApplicationNumber  string  `gorm:"size:40;uniqueIndex" json:"application_number"`
	BorrowerID         string  `gorm:"size:32;index" json:"borrower_id"`
	Purpose            string  `gorm:"size:255" json:"purpose"`
	AnnualInterestRate float64 `gorm:"type:decimal(6,4)" json:"annual_interest_rate"`
	RequestedAmount    float64 `gorm:"type:decimal(18,2)" json:"requested_amount"`
	TenorMonths        int     `json:"tenor_months"`

	Status Status `gorm:"type:enum('pending','under_review','approved','rejected','disbursed','active','completed','defaulted');default:'pending'" json:"status"`

	Principal          float64 `gorm:"type:decimal(18,2)" json:"principal"`
	TotalInterest      float64 `gorm:"type:decimal(18,2)" json:"total_interest"`
	TotalRepayable     float64 `gorm:"type:decimal(18,2)" json:"total_repayable"`
	MonthlyPayment     float64 `gorm:"type:decimal(18,2)" json:"monthly_payment"`
	TotalRepaid        float64 `gorm:"type:decimal(18,2)" json:"total_repaid"`
	OutstandingBalance float64 `gorm:"type:decimal(18,2)" json:"outstanding_balance"`

	Version int64 `json:"-"`

	ApprovalOperator   *string    `gorm:"size:32" json:"-"`
	ApprovalAmount     *float64   `gorm:"type:decimal(18,2)" json:"-"`
	ApprovalConditions *string    `gorm:"size:255" json:"-"`
	ApprovalAt         *time.Time `json:"-"`

	RejectionOperator *string    `gorm:"size:32" json:"-"`
	RejectionReason   *string    `gorm:"size:255" json:"-"`
	RejectionAt       *time.Time `json:"-"`

	DisbursementReference         *string    `gorm:"size:40;uniqueIndex" json:"-"`
	DisbursementProviderReference *string    `gorm:"size:64" json:"-"`
	DisbursementBankAccount       *string    `gorm:"size:40" json:"-"`
	DisbursementBankCode          *string    `gorm:"size:20" json:"-"`
	DisbursementOperator          *string    `gorm:"size:32" json:"-"`
	DisbursementAt                *time.Time `json:"-"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Loan) TableName() string { return "loans" }

// ApprovalView renders the optional approval sub-record, or nil.
func (l *Loan) ApprovalView() *Approval {
	if l.ApprovalOperator == nil {
		return nil
	}
	a := &Approval{Operator: *l.ApprovalOperator}
	if l.ApprovalAmount != nil {
		a.Amount = *l.ApprovalAmount
	}
	if l.ApprovalConditions != nil {
		a.Conditions = *l.ApprovalConditions
	}
	if l.ApprovalAt != nil {
		a.At = *l.ApprovalAt
	}
	return a
}

// RejectionView renders the optional rejection sub-record, or nil.
func (l *Loan) RejectionView() *Rejection {
	if l.RejectionOperator == nil {
		return nil
	}
	r := &Rejection{Operator: *l.RejectionOperator}
	if l.RejectionReason != nil {
		r.Reason = *l.RejectionReason
	}
	if l.RejectionAt != nil {
		r.At = *l.RejectionAt
	}
	return r
}

// DisbursementView renders the optional disbursement sub-record, or nil.
func (l *Loan) DisbursementView() *Disbursement {
	if l.DisbursementReference == nil {
		return nil
	}
	d := &Disbursement{Reference: *l.DisbursementReference}
	if l.DisbursementProviderReference != nil {
		d.ProviderReference = *l.DisbursementProviderReference
	}
	if l.DisbursementBankAccount != nil {
		d.BankAccount = *l.DisbursementBankAccount
	}
	if l.DisbursementBankCode != nil {
		d.BankCode = *l.DisbursementBankCode
	}
	if l.DisbursementOperator != nil {
		d.Operator = *l.DisbursementOperator
	}
	if l.DisbursementAt != nil {
		d.At = *l.DisbursementAt
	}
	return d
}

// StatusHistoryEntry is one append-only row of a loan's transition log.
type StatusHistoryEntry struct {
	ID          uint64    `gorm:"primaryKey;column:id" json:"-"`
	LoanID      uint64    `gorm:"index" json:"-"`
	From        Status    `json:"from"`
	To          Status    `json:"to"`
	Reason      string    `json:"reason,omitempty"`
	PerformedBy string    `json:"performed_by"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (StatusHistoryEntry) TableName() string { return "loan_status_history" }

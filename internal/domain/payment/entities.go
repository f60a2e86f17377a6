package payment

import (
	"errors"
	"time"
)

var (
	ErrNotFound        = errors.New("payment: not found")
	ErrAlreadyRefunded = errors.New("payment: overpayment already refunded")
	ErrConcurrency     = errors.New("payment: version conflict")
)

type Type string

const (
	TypeRepayment Type = "repayment"
	TypeRefund    Type = "refund"
	TypeReversal  Type = "reversal"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSuccess    Status = "success"
	StatusFailed     Status = "failed"
)

// Allocation records how a repayment's amount split across the ledger.
// Principal/interest is informational; the installments are the ledger of
// record.
type Allocation struct {
	Principal   float64 `json:"principal"`
	Interest    float64 `json:"interest"`
	Overpayment float64 `json:"overpayment"`
}

// InstallmentApplication is one FIFO allocation line against an installment.
type InstallmentApplication struct {
	ID                uint64  `gorm:"primaryKey;column:id" json:"-"`
	PaymentID         uint64  `gorm:"index" json:"-"`
	InstallmentNumber int     `json:"installment_number"`
	AmountApplied     float64 `gorm:"type:decimal(18,2)" json:"amount_applied"`
}

func (InstallmentApplication) TableName() string { return "payment_allocations" }

// ManualProof is the out-of-band bank-transfer evidence a borrower submits.
type ManualProof struct {
	SenderBank        string
	SenderName        string
	TransferDate      time.Time
	ExternalReference string
	EvidenceURL       string
}

// Payment is a single repayment, refund, or reversal attempt.
type Payment struct {
	ID             uint64  `gorm:"primaryKey;column:id" json:"-"`
	LoanID         uint64  `gorm:"index" json:"-"`
	AccountID      string  `gorm:"size:32;index" json:"account_id"`
	IdempotencyKey string  `gorm:"size:128;uniqueIndex" json:"-"`
	Reference      string  `gorm:"size:40;uniqueIndex" json:"reference"`
	Type           Type    `gorm:"type:enum('repayment','refund','reversal');default:'repayment'" json:"type"`
	Amount         float64 `gorm:"type:decimal(18,2)" json:"amount"`
	Status         Status  `gorm:"type:enum('pending','processing','success','failed');default:'pending'" json:"status"`
	FailureReason  *string `gorm:"size:255" json:"failure_reason,omitempty"`

	ProviderReference *string    `gorm:"size:64" json:"provider_reference,omitempty"`
	Reconciled        bool       `json:"reconciled"`
	ReconciledAt      *time.Time `json:"reconciled_at,omitempty"`

	AllocationPrincipal   *float64 `gorm:"type:decimal(18,2)" json:"-"`
	AllocationInterest    *float64 `gorm:"type:decimal(18,2)" json:"-"`
	AllocationOverpayment *float64 `gorm:"type:decimal(18,2)" json:"-"`

	// Manual-proof bundle, set only on submitManualRepayment.
	ProofSenderBank        *string    `gorm:"size:120" json:"-"`
	ProofSenderName        *string    `gorm:"size:120" json:"-"`
	ProofTransferDate      *time.Time `json:"-"`
	ProofExternalReference *string    `gorm:"size:120" json:"-"`
	ProofEvidenceURL       *string    `gorm:"size:255" json:"-"`

	VerifiedBy *string    `gorm:"size:32" json:"verified_by,omitempty"`
	VerifiedAt *time.Time `json:"verified_at,omitempty"`

	// SourcePaymentID links a refund back to the repayment it refunds.
	SourcePaymentID *uint64 `gorm:"index" json:"-"`

	OverpaymentRefunded bool `json:"overpayment_refunded"`

	Version int64 `json:"-"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Payment) TableName() string { return "payments" }

// AllocationView renders the optional allocation, or nil.
func (p *Payment) AllocationView() *Allocation {
	if p.AllocationPrincipal == nil && p.AllocationInterest == nil && p.AllocationOverpayment == nil {
		return nil
	}
	a := &Allocation{}
	if p.AllocationPrincipal != nil {
		a.Principal = *p.AllocationPrincipal
	}
	if p.AllocationInterest != nil {
		a.Interest = *p.AllocationInterest
	}
	if p.AllocationOverpayment != nil {
		a.Overpayment = *p.AllocationOverpayment
	}
	return a
}

// ManualProofView renders the optional proof bundle, or nil.
func (p *Payment) ManualProofView() *ManualProof {
	if p.ProofExternalReference == nil {
		return nil
	}
	m := &ManualProof{ExternalReference: *p.ProofExternalReference}
	if p.ProofSenderBank != nil {
		m.SenderBank = *p.ProofSenderBank
	}
	if p.ProofSenderName != nil {
		m.SenderName = *p.ProofSenderName
	}
	if p.ProofTransferDate != nil {
		m.TransferDate = *p.ProofTransferDate
	}
	if p.ProofEvidenceURL != nil {
		m.EvidenceURL = *p.ProofEvidenceURL
	}
	return m
}

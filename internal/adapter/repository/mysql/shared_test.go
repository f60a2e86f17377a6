package mysql

import (
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// SQLite has no ENUM type, so every enum-bearing column is mirrored here as
// TEXT for the test schema — migrate the sqlite-safe shape, not the MySQL-tagged
// domain struct, and let the real repo (which only ever issues generic
// SQL through GORM) operate against it unmodified.

type loanSQLite struct {
	ID                            uint64 `gorm:"primaryKey;column:id"`
	ApplicationNumber             string `gorm:"column:application_number"`
	BorrowerID                    string `gorm:"column:borrower_id"`
	Purpose                       string `gorm:"column:purpose"`
	AnnualInterestRate            float64
	RequestedAmount               float64
	TenorMonths                   int
	Status                        string `gorm:"column:status"`
	Principal                     float64
	TotalInterest                 float64
	TotalRepayable                float64
	MonthlyPayment                float64
	TotalRepaid                   float64
	OutstandingBalance            float64
	Version                       int64
	ApprovalOperator              *string
	ApprovalAmount                *float64
	ApprovalConditions            *string
	ApprovalAt                    *time.Time
	RejectionOperator             *string
	RejectionReason               *string
	RejectionAt                   *time.Time
	DisbursementReference         *string
	DisbursementProviderReference *string
	DisbursementBankAccount       *string
	DisbursementBankCode          *string
	DisbursementOperator          *string
	DisbursementAt                *time.Time
	CreatedAt                     time.Time
	UpdatedAt                     time.Time
}

func (loanSQLite) TableName() string { return "loans" }

type statusHistorySQLite struct {
	ID          uint64 `gorm:"primaryKey;column:id"`
	LoanID      uint64
	From        string
	To          string
	Reason      string
	PerformedBy string
	CreatedAt   time.Time
}

func (statusHistorySQLite) TableName() string { return "loan_status_history" }

type installmentSQLite struct {
	ID                uint64 `gorm:"primaryKey;column:id"`
	LoanID            uint64
	InstallmentNumber int
	DueDate           time.Time
	PrincipalShare    float64
	InterestShare     float64
	TotalDue          float64
	PaidAmount        float64
	Status            string
	PaidAt            *time.Time
	Version           int64
}

func (installmentSQLite) TableName() string { return "installments" }

type paymentSQLite struct {
	ID                     uint64 `gorm:"primaryKey;column:id"`
	LoanID                 uint64
	AccountID              string
	IdempotencyKey         string
	Reference              string
	Type                   string
	Amount                 float64
	Status                 string
	FailureReason          *string
	ProviderReference      *string
	Reconciled             bool
	ReconciledAt           *time.Time
	AllocationPrincipal    *float64
	AllocationInterest     *float64
	AllocationOverpayment  *float64
	ProofSenderBank        *string
	ProofSenderName        *string
	ProofTransferDate      *time.Time
	ProofExternalReference *string
	ProofEvidenceURL       *string
	VerifiedBy             *string
	VerifiedAt             *time.Time
	SourcePaymentID        *uint64
	OverpaymentRefunded    bool
	Version                int64
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

func (paymentSQLite) TableName() string { return "payments" }

type paymentAllocationSQLite struct {
	ID                uint64 `gorm:"primaryKey;column:id"`
	PaymentID         uint64
	InstallmentNumber int
	AmountApplied     float64
}

func (paymentAllocationSQLite) TableName() string { return "payment_allocations" }

type accountSQLite struct {
	ID                  uint64 `gorm:"primaryKey;column:id"`
	AccountID           string
	Email               string
	PasswordHash        string
	Role                string
	Active              bool
	NationalIDEncrypted []byte
	CreditScore         *int
	CreatedAt           time.Time
	UpdatedAt           time.Time
	DeletedAt           *time.Time
}

func (accountSQLite) TableName() string { return "accounts" }

type auditSQLite struct {
	ID               uint64 `gorm:"primaryKey;column:id"`
	EntityType       string
	EntityID         string
	Action           string
	Actor            string
	PreviousSnapshot string
	NewSnapshot      string
	Note             string
	CreatedAt        time.Time
}

func (auditSQLite) TableName() string { return "audit_entries" }

type notificationSQLite struct {
	ID        uint64 `gorm:"primaryKey;column:id"`
	AccountID string
	Type      string
	Title     string
	Body      string
	Data      string
	Status    string
	SentAt    *time.Time
	ReadAt    *time.Time
	CreatedAt time.Time
}

func (notificationSQLite) TableName() string { return "notifications" }

type idempotencyRecordSQLite struct {
	ID           uint64 `gorm:"primaryKey;column:id"`
	Key          string `gorm:"column:key"`
	Endpoint     string
	Method       string
	StatusCode   int
	ResponseBody []byte
	AccountID    *string
	ExpiresAt    time.Time
	CreatedAt    time.Time
}

func (idempotencyRecordSQLite) TableName() string { return "idempotency_records" }

// openTestDB opens an in-memory sqlite database migrated with the sqlite-safe
// shadow schema for every table the mysql package's repositories touch.
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&loanSQLite{}, &statusHistorySQLite{}, &installmentSQLite{},
		&paymentSQLite{}, &paymentAllocationSQLite{}, &accountSQLite{},
		&auditSQLite{}, &notificationSQLite{}, &idempotencyRecordSQLite{},
	); err != nil {
		t.Fatalf("auto-migrate: %v", err)
	}
	return db
}

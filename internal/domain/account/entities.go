package account

import (
	"time"

	"gorm.io/gorm"
)

type Role string

const (
	RoleBorrower Role = "borrower"
	RoleOperator Role = "operator"
)

// Account is a borrower or an operator. Credential verification and
// registration are out of scope here (external collaborator); this entity
// only models the shape the rest of the engine reads.
type Account struct {
	ID                  uint64         `gorm:"primaryKey;column:id" json:"-"`
	AccountID           string         `gorm:"size:32;uniqueIndex" json:"account_id"`
	Email               string         `gorm:"size:190;uniqueIndex" json:"email"`
	PasswordHash        string         `gorm:"size:190" json:"-"`
	Role                Role           `gorm:"type:enum('borrower','operator');default:'borrower'" json:"role"`
	Active              bool           `gorm:"default:true" json:"active"`
	NationalIDEncrypted []byte         `gorm:"type:blob" json:"-"`
	CreditScore         *int           `gorm:"column:credit_score" json:"credit_score,omitempty"`
	CreatedAt           time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt           gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Account) TableName() string { return "accounts" }

// Retire clears the active flag; accounts are soft-retired, never deleted.
func (a *Account) Retire() { a.Active = false }

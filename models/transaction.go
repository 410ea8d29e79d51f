package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Transaction types. The ledger is append-only: corrections are new
// adjust entries, never edits or deletions.
const (
	TxEarnPurchase    = "earn_purchase"
	TxEarnSignupBonus = "earn_signup_bonus"
	TxEarnReferral    = "earn_referral"
	TxEarnQuest       = "earn_quest"
	TxRedeem          = "redeem"
	TxExpire          = "expire"
	TxAdjust          = "adjust"
)

type Transaction struct {
	ID             uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	AccountID      uuid.UUID `gorm:"type:uuid;not null;index" json:"account_id"`
	Account        Account   `gorm:"foreignKey:AccountID" json:"-"`
	Type           string    `gorm:"not null" json:"type"`
	MilesAmount    int       `gorm:"not null" json:"miles_amount"` // positive for earn, negative for redeem/expire
	Description    string    `json:"description"`
	IdempotencyKey string    `gorm:"uniqueIndex;not null" json:"idempotency_key"`
	Metadata       string    `json:"metadata,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

func (t *Transaction) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

// IsEarn reports whether the transaction credits miles toward the
// lifetime total.
func (t *Transaction) IsEarn() bool {
	switch t.Type {
	case TxEarnPurchase, TxEarnSignupBonus, TxEarnReferral, TxEarnQuest:
		return true
	}
	return false
}

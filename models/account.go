package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Account struct {
	ID                  uuid.UUID  `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	ShopifyCustomerID   string     `gorm:"uniqueIndex;not null" json:"shopify_customer_id"`
	Email               string     `gorm:"index" json:"email"`
	FirstName           string     `json:"first_name"`
	LastName            string     `json:"last_name"`
	ReferralCode        string     `gorm:"uniqueIndex;not null" json:"referral_code"`
	ReferredByAccountID *uuid.UUID `gorm:"type:uuid;index" json:"referred_by_account_id,omitempty"`
	AvailableMiles      int        `gorm:"not null;default:0" json:"available_miles"`
	LifetimeMiles       int        `gorm:"not null;default:0" json:"lifetime_miles"`
	StampCount          int        `gorm:"not null;default:0" json:"stamp_count"`
	CurrentTierID       string     `gorm:"default:initiate" json:"current_tier_id"`
	LastActivityAt      time.Time  `json:"last_activity_at"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

func (a *Account) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

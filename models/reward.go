package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Reward types issued through the commerce platform as discount codes.
const (
	RewardAtlasCredit    = "atlas_credit"
	RewardFreeShipping   = "free_shipping"
	RewardEarlyAccess    = "early_access"
	RewardMonogramCredit = "monogram_credit"
)

type Reward struct {
	ID          uuid.UUID      `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	Name        string         `gorm:"not null" json:"name"`
	Description string         `json:"description"`
	MilesCost   int            `gorm:"not null" json:"miles_cost"`
	MinTierID   string         `gorm:"default:initiate" json:"min_tier_id"`
	RewardType  string         `gorm:"not null" json:"reward_type"`
	Icon        string         `json:"icon"`
	IsActive    bool           `gorm:"default:true" json:"is_active"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

func (r *Reward) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// Redemption statuses. A redemption stays pending until its discount
// code is confirmed used; issuance failures leave it pending with an
// empty code for the retry sweep to pick up.
const (
	RedemptionPending = "pending"
	RedemptionUsed    = "used"
	RedemptionExpired = "expired"
)

type Redemption struct {
	ID                  uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	AccountID           uuid.UUID `gorm:"type:uuid;not null;index" json:"account_id"`
	RewardID            uuid.UUID `gorm:"type:uuid;not null;index" json:"reward_id"`
	Reward              Reward    `gorm:"foreignKey:RewardID" json:"reward,omitempty"`
	MilesSpent          int       `gorm:"not null" json:"miles_spent"`
	ShopifyDiscountCode string    `json:"shopify_discount_code,omitempty"`
	ValidUntil          time.Time `json:"valid_until"`
	Status              string    `gorm:"default:pending" json:"status"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

func (r *Redemption) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

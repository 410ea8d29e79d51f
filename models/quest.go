package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Quest requirement types. The tracker recomputes progress from ledger
// facts on every qualifying event, so replayed webhooks cannot inflate
// a counter.
const (
	QuestDistinctDestinations = "distinct_destinations"
	QuestPurchaseCount        = "purchase_count"
)

type Quest struct {
	ID               uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	Slug             string    `gorm:"uniqueIndex;not null" json:"slug"`
	Name             string    `gorm:"not null" json:"name"`
	Description      string    `json:"description"`
	RequirementType  string    `gorm:"not null" json:"requirement_type"`
	RequirementCount int       `gorm:"not null" json:"requirement_count"`
	MilesReward      int       `gorm:"not null" json:"miles_reward"`
	IsActive         bool      `gorm:"default:true" json:"is_active"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func (q *Quest) BeforeCreate(tx *gorm.DB) error {
	if q.ID == uuid.Nil {
		q.ID = uuid.New()
	}
	return nil
}

type QuestProgress struct {
	ID           uuid.UUID  `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	AccountID    uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_quest_progress_account_quest" json:"account_id"`
	QuestID      uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_quest_progress_account_quest" json:"quest_id"`
	Quest        Quest      `gorm:"foreignKey:QuestID" json:"quest,omitempty"`
	CurrentCount int        `gorm:"not null;default:0" json:"current_count"`
	Completed    bool       `gorm:"default:false" json:"completed"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func (p *QuestProgress) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

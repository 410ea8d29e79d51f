package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Stamp is awarded once per (account, destination) pair. The composite
// unique index is what makes concurrent fulfilment events race-safe: a
// second insert for the same pair conflicts and is treated as a no-op.
type Stamp struct {
	ID            uuid.UUID   `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	AccountID     uuid.UUID   `gorm:"type:uuid;not null;uniqueIndex:idx_stamp_account_destination" json:"account_id"`
	DestinationID uuid.UUID   `gorm:"type:uuid;not null;uniqueIndex:idx_stamp_account_destination" json:"destination_id"`
	Destination   Destination `gorm:"foreignKey:DestinationID" json:"destination,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
}

func (s *Stamp) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

package loyalty

import (
	"fmt"
	"time"

	"atlas-backend/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// InactivityWindow is how long an account can sit idle before its
// spendable balance expires. Lifetime miles and tier are untouched.
const InactivityWindow = 365 * 24 * time.Hour

// ExpireMiles zeroes the available balance of accounts inactive beyond
// the inactivity window, recording a negative expire entry per account.
// Each entry is keyed per sweep-day, so re-invoking the cron on the
// same day is a no-op. Returns the number of accounts expired this run.
func (s *Service) ExpireMiles() (int, error) {
	cutoff := time.Now().Add(-InactivityWindow)
	var stale []models.Account
	err := s.DB.Where("last_activity_at < ? AND available_miles > 0", cutoff).Find(&stale).Error
	if err != nil {
		return 0, err
	}

	expired := 0
	today := time.Now()
	for _, account := range stale {
		applied := false
		err := s.DB.Transaction(func(tx *gorm.DB) error {
			// Re-read inside the transaction; the balance may have
			// changed since the scan.
			var current models.Account
			if err := tx.Where("id = ?", account.ID).First(&current).Error; err != nil {
				return err
			}
			if current.AvailableMiles <= 0 {
				return nil
			}

			entry := models.Transaction{
				AccountID:      current.ID,
				Type:           models.TxExpire,
				MilesAmount:    -current.AvailableMiles,
				Description:    "Miles expired after 12 months of inactivity",
				IdempotencyKey: ExpireKey(current.ID, today),
			}
			res := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "idempotency_key"}},
				DoNothing: true,
			}).Create(&entry)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				// Already swept today.
				return nil
			}

			upd := tx.Model(&models.Account{}).
				Where("id = ? AND available_miles = ?", current.ID, current.AvailableMiles).
				Update("available_miles", 0)
			if upd.Error != nil {
				return upd.Error
			}
			if upd.RowsAffected == 0 {
				return fmt.Errorf("concurrent balance change while expiring account %s", current.ID)
			}
			applied = true
			return nil
		})
		if err != nil {
			return expired, err
		}
		if applied {
			expired++
		}
	}
	return expired, nil
}

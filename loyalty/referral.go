package loyalty

import (
	"errors"
	"fmt"
	"log"
	"time"

	"atlas-backend/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ReferralBuffer is the cooling-off window after the referred account's
// first paid order before the referrer is paid, deterring
// cancel-and-refund abuse.
const ReferralBuffer = 14 * 24 * time.Hour

// ClaimReferral links a newly enrolled account to the owner of the
// referral code. The link is set-once: a second claim is rejected with
// ErrAlreadyReferred, which callers on the webhook path treat as an
// ignorable outcome rather than a failure. Payout is deferred to
// ProcessReferrals.
func (s *Service) ClaimReferral(accountID uuid.UUID, referralCode string) error {
	var referrer models.Account
	if err := s.DB.Where("referral_code = ?", referralCode).First(&referrer).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrInvalidReferralCode
		}
		return err
	}
	if referrer.ID == accountID {
		return ErrInvalidReferralCode
	}

	var account models.Account
	if err := s.DB.Where("id = ?", accountID).First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrAccountNotFound
		}
		return err
	}

	// Conditional on the column still being NULL so a concurrent claim
	// cannot overwrite an existing link.
	res := s.DB.Model(&models.Account{}).
		Where("id = ? AND referred_by_account_id IS NULL", accountID).
		Update("referred_by_account_id", referrer.ID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrAlreadyReferred
	}
	return nil
}

// ProcessReferrals pays referrers whose referred accounts have a paid
// order older than the fraud buffer. Scanned by the daily cron; each
// payout is keyed on (referrer, referred), so re-running the sweep or
// overlapping invocations pay at most once per referral. Returns the
// number of payouts applied by this run.
func (s *Service) ProcessReferrals() (int, error) {
	var referred []models.Account
	if err := s.DB.Where("referred_by_account_id IS NOT NULL").Find(&referred).Error; err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-ReferralBuffer)
	paid := 0
	for _, account := range referred {
		var firstOrder models.Transaction
		err := s.DB.Where("account_id = ? AND type = ?", account.ID, models.TxEarnPurchase).
			Order("created_at ASC").First(&firstOrder).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// No qualifying order yet.
			continue
		}
		if err != nil {
			return paid, err
		}
		if firstOrder.CreatedAt.After(cutoff) {
			// Buffer window still running.
			continue
		}

		referrerID := *account.ReferredByAccountID
		_, applied, err := s.EarnMiles(referrerID, models.TxEarnReferral, ReferralBonusMiles,
			fmt.Sprintf("Referral bonus: %s joined the Travel Club", account.Email),
			EarnOptions{IdempotencyKey: ReferralKey(referrerID, account.ID)})
		if errors.Is(err, ErrAccountNotFound) {
			log.Printf("referrer %s no longer exists; skipping payout for %s", referrerID, account.ID)
			continue
		}
		if err != nil {
			return paid, err
		}
		if applied {
			paid++
		}
	}
	return paid, nil
}

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

// RedemptionValidity is how long an issued discount code stays usable.
const RedemptionValidity = 90 * 24 * time.Hour

// Redeem exchanges miles for a catalog reward. The balance check and
// debit are one conditional UPDATE, so two concurrent redemptions
// against the same balance cannot both succeed. Code issuance through
// the commerce platform is a best-effort side effect after the debit
// commits: if it fails the redemption stays pending without a code and
// the cron sweep retries it. The debit is deliberately not rolled back
// on issuance failure, to avoid reintroducing double-spend races.
func (s *Service) Redeem(accountID, rewardID uuid.UUID) (*models.Redemption, error) {
	var account models.Account
	if err := s.DB.Where("id = ?", accountID).First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}

	var reward models.Reward
	if err := s.DB.Where("id = ?", rewardID).First(&reward).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRewardNotFound
		}
		return nil, err
	}
	if !reward.IsActive {
		return nil, ErrRewardInactive
	}

	accountRank, err := s.tierRank(account.CurrentTierID)
	if err != nil {
		return nil, err
	}
	requiredRank, err := s.tierRank(reward.MinTierID)
	if err != nil {
		return nil, err
	}
	if accountRank < requiredRank {
		return nil, ErrTierTooLow
	}

	redemption := models.Redemption{
		ID:         uuid.New(),
		AccountID:  accountID,
		RewardID:   rewardID,
		MilesSpent: reward.MilesCost,
		ValidUntil: time.Now().Add(RedemptionValidity),
		Status:     models.RedemptionPending,
	}

	err = s.DB.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Account{}).
			Where("id = ? AND available_miles >= ?", accountID, reward.MilesCost).
			Update("available_miles", gorm.Expr("available_miles - ?", reward.MilesCost))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrInsufficientMiles
		}

		entry := models.Transaction{
			AccountID:      accountID,
			Type:           models.TxRedeem,
			MilesAmount:    -reward.MilesCost,
			Description:    fmt.Sprintf("Redeemed: %s", reward.Name),
			IdempotencyKey: "redeem-" + redemption.ID.String(),
			Metadata:       fmt.Sprintf(`{"reward_id":%q,"redemption_id":%q}`, rewardID, redemption.ID),
		}
		if err := tx.Create(&entry).Error; err != nil {
			return err
		}
		return tx.Create(&redemption).Error
	})
	if err != nil {
		return nil, err
	}

	s.issueDiscountCode(&redemption, &reward)

	s.DB.Preload("Reward").First(&redemption, redemption.ID)
	return &redemption, nil
}

// issueDiscountCode asks the commerce platform for a discount code and
// records it on the redemption. Failures are logged, not returned: the
// redemption is already debited and will be retried by the sweep.
func (s *Service) issueDiscountCode(redemption *models.Redemption, reward *models.Reward) {
	if s.Issuer == nil {
		return
	}
	code, err := s.Issuer.CreateDiscountCode(reward.RewardType, reward.Name, redemption.ID.String(), redemption.ValidUntil)
	if err != nil {
		log.Printf("discount code issuance failed for redemption %s: %v", redemption.ID, err)
		return
	}
	if err := s.DB.Model(&models.Redemption{}).Where("id = ?", redemption.ID).
		Update("shopify_discount_code", code).Error; err != nil {
		log.Printf("failed to record discount code for redemption %s: %v", redemption.ID, err)
		return
	}
	redemption.ShopifyDiscountCode = code
}

// RetryPendingIssuance re-attempts code issuance for debited
// redemptions that never got a code. Run by the cron sweep.
func (s *Service) RetryPendingIssuance() (int, error) {
	var pending []models.Redemption
	err := s.DB.Preload("Reward").
		Where("status = ? AND shopify_discount_code = ? AND valid_until > ?",
			models.RedemptionPending, "", time.Now()).
		Find(&pending).Error
	if err != nil {
		return 0, err
	}

	issued := 0
	for i := range pending {
		s.issueDiscountCode(&pending[i], &pending[i].Reward)
		if pending[i].ShopifyDiscountCode != "" {
			issued++
		}
	}
	return issued, nil
}

// ExpireRedemptions marks pending redemptions past their validity
// window as expired. Safe to re-run: the status filter makes repeated
// sweeps no-ops.
func (s *Service) ExpireRedemptions() (int, error) {
	res := s.DB.Model(&models.Redemption{}).
		Where("status = ? AND valid_until < ?", models.RedemptionPending, time.Now()).
		Update("status", models.RedemptionExpired)
	return int(res.RowsAffected), res.Error
}

package loyalty

import (
	"errors"
	"time"

	"atlas-backend/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Enroll creates (or returns) the loyalty account for a commerce
// platform customer. Idempotent on shopifyCustomerID: re-enrolling an
// existing customer returns the existing account with enrolled=false.
// A newly created account is credited the flat signup bonus exactly
// once, keyed on the account id.
func (s *Service) Enroll(shopifyCustomerID, email, firstName, lastName string) (*models.Account, bool, error) {
	var existing models.Account
	err := s.DB.Where("shopify_customer_id = ?", shopifyCustomerID).First(&existing).Error
	if err == nil {
		if err := s.ensureSignupBonus(&existing); err != nil {
			return nil, false, err
		}
		return &existing, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	code, err := generateReferralCode()
	if err != nil {
		return nil, false, err
	}
	account := models.Account{
		ShopifyCustomerID: shopifyCustomerID,
		Email:             email,
		FirstName:         firstName,
		LastName:          lastName,
		ReferralCode:      code,
		CurrentTierID:     "initiate",
		LastActivityAt:    time.Now(),
	}

	res := s.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "shopify_customer_id"}},
		DoNothing: true,
	}).Create(&account)
	if res.Error != nil {
		return nil, false, res.Error
	}
	if res.RowsAffected == 0 {
		// Lost the enrollment race; return the winner's row.
		if err := s.DB.Where("shopify_customer_id = ?", shopifyCustomerID).First(&existing).Error; err != nil {
			return nil, false, err
		}
		if err := s.ensureSignupBonus(&existing); err != nil {
			return nil, false, err
		}
		return &existing, false, nil
	}

	if err := s.ensureSignupBonus(&account); err != nil {
		return nil, false, err
	}
	return &account, true, nil
}

// ensureSignupBonus settles the welcome credit for an account. The
// keyed earn is a no-op when the bonus was already paid, so a retry
// after a failure between the account commit and the bonus commit
// backfills it instead of skipping it.
func (s *Service) ensureSignupBonus(account *models.Account) error {
	_, applied, err := s.EarnMiles(account.ID, models.TxEarnSignupBonus, SignupBonusMiles,
		"Welcome aboard: signup bonus",
		EarnOptions{IdempotencyKey: SignupBonusKey(account.ID)})
	if err != nil {
		return err
	}
	if applied {
		return s.DB.Where("id = ?", account.ID).First(account).Error
	}
	return nil
}

// AccountByCustomerID resolves the authenticated customer identity to
// its loyalty account.
func (s *Service) AccountByCustomerID(shopifyCustomerID string) (*models.Account, error) {
	var account models.Account
	if err := s.DB.Where("shopify_customer_id = ?", shopifyCustomerID).First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

// RewardStatus annotates a catalog reward with whether the member can
// redeem it right now.
type RewardStatus struct {
	models.Reward
	Affordable bool `json:"affordable"`
	TierLocked bool `json:"tier_locked"`
}

// MemberStatus is the aggregate the storefront reads: account, derived
// tier state, stamps with destination metadata, recent ledger entries,
// quest progress, the annotated reward catalog, and open redemptions.
type MemberStatus struct {
	Account            models.Account        `json:"account"`
	Tier               models.Tier           `json:"tier"`
	NextTier           *models.Tier          `json:"next_tier,omitempty"`
	MilesToNextTier    int                   `json:"miles_to_next_tier"`
	Perks              []string              `json:"perks"`
	Stamps             []models.Stamp        `json:"stamps"`
	RecentTransactions []models.Transaction  `json:"recent_transactions"`
	Quests             []models.QuestProgress `json:"quests"`
	Rewards            []RewardStatus        `json:"rewards"`
	OpenRedemptions    []models.Redemption   `json:"open_redemptions"`
}

// GetMemberStatus assembles the aggregate. Reads are taken as-of the
// latest committed writes without locking; a stale-by-one-write view is
// acceptable for the loyalty UI.
func (s *Service) GetMemberStatus(shopifyCustomerID string) (*MemberStatus, error) {
	account, err := s.AccountByCustomerID(shopifyCustomerID)
	if err != nil {
		return nil, err
	}

	tiers, err := s.orderedTiers()
	if err != nil {
		return nil, err
	}
	tier, next := ComputeTier(account, tiers)

	status := &MemberStatus{
		Account:         *account,
		Tier:            tier,
		NextTier:        next,
		MilesToNextTier: MilesToNextTier(account, next),
		Perks:           tier.PerkList(),
	}

	if err := s.DB.Preload("Destination").Where("account_id = ?", account.ID).
		Order("created_at ASC").Find(&status.Stamps).Error; err != nil {
		return nil, err
	}
	if err := s.DB.Where("account_id = ?", account.ID).
		Order("created_at DESC").Limit(20).Find(&status.RecentTransactions).Error; err != nil {
		return nil, err
	}
	if err := s.DB.Preload("Quest").
		Joins("JOIN quests ON quests.id = quest_progresses.quest_id AND quests.is_active = ?", true).
		Where("quest_progresses.account_id = ?", account.ID).
		Find(&status.Quests).Error; err != nil {
		return nil, err
	}

	var rewards []models.Reward
	if err := s.DB.Where("is_active = ?", true).Order("miles_cost ASC").Find(&rewards).Error; err != nil {
		return nil, err
	}
	for _, reward := range rewards {
		requiredRank, err := s.tierRank(reward.MinTierID)
		if err != nil {
			return nil, err
		}
		status.Rewards = append(status.Rewards, RewardStatus{
			Reward:     reward,
			Affordable: account.AvailableMiles >= reward.MilesCost,
			TierLocked: tier.Rank < requiredRank,
		})
	}

	if err := s.DB.Preload("Reward").
		Where("account_id = ? AND status = ?", account.ID, models.RedemptionPending).
		Order("created_at DESC").Find(&status.OpenRedemptions).Error; err != nil {
		return nil, err
	}
	return status, nil
}

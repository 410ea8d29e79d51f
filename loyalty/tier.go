package loyalty

import (
	"errors"
	"fmt"

	"atlas-backend/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ComputeTier returns the highest tier the account qualifies for, by
// lifetime miles or by stamp count where the tier defines a stamps
// threshold, plus the next tier up (nil at the top). Pure over the
// account counters and the ordered tier table; an empty tier table
// yields the zero tier.
func ComputeTier(account *models.Account, tiers []models.Tier) (current models.Tier, next *models.Tier) {
	if len(tiers) == 0 {
		return current, nil
	}
	currentIdx := 0
	for i := range tiers {
		t := tiers[i]
		qualifies := account.LifetimeMiles >= t.MilesThreshold
		if !qualifies && t.StampsThreshold != nil {
			qualifies = account.StampCount >= *t.StampsThreshold
		}
		if qualifies {
			currentIdx = i
		}
	}
	current = tiers[currentIdx]
	if currentIdx+1 < len(tiers) {
		next = &tiers[currentIdx+1]
	}
	return current, next
}

// RefreshTier recomputes the account's tier and updates the cached
// current_tier_id when it changed. The increased flag lets callers
// surface a celebratory event; tier changes themselves never produce
// ledger entries.
func (s *Service) RefreshTier(accountID uuid.UUID) (current models.Tier, next *models.Tier, increased bool, err error) {
	var account models.Account
	if err = s.DB.Where("id = ?", accountID).First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			err = ErrAccountNotFound
		}
		return
	}

	tiers, err := s.orderedTiers()
	if err != nil {
		return
	}

	current, next = ComputeTier(&account, tiers)
	if current.ID == account.CurrentTierID {
		return
	}

	var previous models.Tier
	for _, t := range tiers {
		if t.ID == account.CurrentTierID {
			previous = t
		}
	}
	increased = current.Rank > previous.Rank

	err = s.DB.Model(&models.Account{}).Where("id = ?", accountID).
		Update("current_tier_id", current.ID).Error
	return
}

// MilesToNextTier reports how many lifetime miles remain until the next
// tier's miles threshold, or 0 at the top tier.
func MilesToNextTier(account *models.Account, next *models.Tier) int {
	if next == nil {
		return 0
	}
	remaining := next.MilesThreshold - account.LifetimeMiles
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (s *Service) orderedTiers() ([]models.Tier, error) {
	var tiers []models.Tier
	if err := s.DB.Order("rank ASC").Find(&tiers).Error; err != nil {
		return nil, err
	}
	if len(tiers) == 0 {
		return nil, errors.New("tier table is empty; program data not seeded")
	}
	return tiers, nil
}

func (s *Service) tierByID(id string) (models.Tier, error) {
	var tier models.Tier
	if err := s.DB.Where("id = ?", id).First(&tier).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tier, fmt.Errorf("unknown tier %q", id)
		}
		return tier, err
	}
	return tier, nil
}

// tierRank resolves a tier id to its rank for gating comparisons.
func (s *Service) tierRank(id string) (int, error) {
	tier, err := s.tierByID(id)
	if err != nil {
		return 0, err
	}
	return tier.Rank, nil
}

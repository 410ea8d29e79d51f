package loyalty

import (
	"errors"
	"fmt"
	"time"

	"atlas-backend/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RecordPurchase awards the destination stamp for a qualifying purchase
// and re-evaluates the account's quests. Awarding is race-safe: the
// unique (account, destination) index absorbs concurrent fulfilment
// events for the same destination and the conflict is treated as a
// no-op, not an error. Returns whether a new stamp was created.
func (s *Service) RecordPurchase(accountID, destinationID uuid.UUID, orderID string) (bool, error) {
	var account models.Account
	if err := s.DB.Where("id = ?", accountID).First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, ErrAccountNotFound
		}
		return false, err
	}

	var destination models.Destination
	if err := s.DB.Where("id = ?", destinationID).First(&destination).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, ErrDestinationNotFound
		}
		return false, err
	}

	stamped := false
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		stamp := models.Stamp{AccountID: accountID, DestinationID: destinationID}
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "account_id"}, {Name: "destination_id"}},
			DoNothing: true,
		}).Create(&stamp)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Already stamped for this destination.
			return nil
		}
		stamped = true
		return tx.Model(&models.Account{}).Where("id = ?", accountID).
			Update("stamp_count", gorm.Expr("stamp_count + ?", 1)).Error
	})
	if err != nil {
		return false, err
	}

	if stamped {
		if _, _, _, err := s.RefreshTier(accountID); err != nil {
			return stamped, err
		}
	}
	if err := s.EvaluateQuests(accountID); err != nil {
		return stamped, err
	}
	return stamped, nil
}

// EvaluateQuests recounts every active quest for the account from
// ledger facts (stamps, purchase entries) rather than incrementing, so
// replayed or out-of-order webhooks cannot inflate progress. The first
// crossing of a quest's requirement marks it completed and pays the
// reward exactly once, keyed on (account, quest).
func (s *Service) EvaluateQuests(accountID uuid.UUID) error {
	var quests []models.Quest
	if err := s.DB.Where("is_active = ?", true).Find(&quests).Error; err != nil {
		return err
	}

	for _, quest := range quests {
		count, err := s.questFactCount(accountID, quest.RequirementType)
		if err != nil {
			return err
		}
		if count > quest.RequirementCount {
			count = quest.RequirementCount
		}

		progress := models.QuestProgress{AccountID: accountID, QuestID: quest.ID}
		res := s.DB.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "account_id"}, {Name: "quest_id"}},
			DoNothing: true,
		}).Create(&progress)
		if res.Error != nil {
			return res.Error
		}
		// Create fills the primary key even when the insert conflicted;
		// the re-read must go through a clean struct or the lookup pins
		// the stale id.
		progress = models.QuestProgress{}
		if err := s.DB.Where("account_id = ? AND quest_id = ?", accountID, quest.ID).
			First(&progress).Error; err != nil {
			return err
		}

		if !progress.Completed {
			if count != progress.CurrentCount {
				if err := s.DB.Model(&models.QuestProgress{}).
					Where("id = ? AND completed = ?", progress.ID, false).
					Update("current_count", count).Error; err != nil {
					return err
				}
			}

			if count < quest.RequirementCount {
				continue
			}

			now := time.Now()
			flip := s.DB.Model(&models.QuestProgress{}).
				Where("id = ? AND completed = ?", progress.ID, false).
				Updates(map[string]interface{}{"completed": true, "completed_at": now})
			if flip.Error != nil {
				return flip.Error
			}
		}

		// Settle the reward whenever the quest stands completed. The
		// keyed earn dedupes, so a redelivery after a failure between
		// the flip and the payout pays it here instead of losing it,
		// and concurrent evaluations cannot pay twice.
		_, _, err = s.EarnMiles(accountID, models.TxEarnQuest, quest.MilesReward,
			fmt.Sprintf("Quest completed: %s", quest.Name),
			EarnOptions{IdempotencyKey: QuestRewardKey(accountID, quest.ID)})
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) questFactCount(accountID uuid.UUID, requirementType string) (int, error) {
	var count int64
	switch requirementType {
	case models.QuestDistinctDestinations:
		err := s.DB.Model(&models.Stamp{}).Where("account_id = ?", accountID).Count(&count).Error
		return int(count), err
	case models.QuestPurchaseCount:
		err := s.DB.Model(&models.Transaction{}).
			Where("account_id = ? AND type = ?", accountID, models.TxEarnPurchase).
			Count(&count).Error
		return int(count), err
	default:
		return 0, fmt.Errorf("unknown quest requirement type %q", requirementType)
	}
}

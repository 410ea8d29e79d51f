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

// Idempotency key builders. Webhook delivery is at-least-once, so every
// logical event maps to exactly one key and the ledger's unique index
// on idempotency_key makes retries no-ops.
func OrderPaidKey(orderID string) string { return "order-paid-" + orderID }

func RefundKey(orderID string) string { return "refund-" + orderID }

func SignupBonusKey(accountID uuid.UUID) string {
	return "signup-bonus-" + accountID.String()
}
func QuestRewardKey(accountID, questID uuid.UUID) string {
	return fmt.Sprintf("quest-%s-%s", accountID, questID)
}
func ReferralKey(referrerID, referredID uuid.UUID) string {
	return fmt.Sprintf("referral-%s-%s", referrerID, referredID)
}
func ExpireKey(accountID uuid.UUID, day time.Time) string {
	return fmt.Sprintf("expire-%s-%s", accountID, day.UTC().Format("20060102"))
}

// EarnOptions carries the caller-supplied idempotency key and optional
// opaque metadata recorded on the ledger entry.
type EarnOptions struct {
	IdempotencyKey string
	Metadata       string
}

// EarnMiles credits miles to an account. Purchase earns are multiplied
// by the account's current tier multiplier (rounded down); flat bonuses
// (signup, referral, quest) are credited as-is. Returns the ledger
// entry and whether this call applied it — a repeated idempotency key
// returns the existing entry with applied=false and changes nothing.
func (s *Service) EarnMiles(accountID uuid.UUID, txType string, baseAmount int, description string, opts EarnOptions) (*models.Transaction, bool, error) {
	if opts.IdempotencyKey == "" {
		return nil, false, errors.New("idempotency key is required")
	}
	if baseAmount < 0 {
		return nil, false, fmt.Errorf("earn amount must not be negative, got %d", baseAmount)
	}

	var account models.Account
	if err := s.DB.Where("id = ?", accountID).First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, ErrAccountNotFound
		}
		return nil, false, err
	}

	credited := baseAmount
	if txType == models.TxEarnPurchase {
		tier, err := s.tierByID(account.CurrentTierID)
		if err != nil {
			return nil, false, err
		}
		credited = int(float64(baseAmount) * tier.MilesMultiplier)
	}

	entry := models.Transaction{
		AccountID:      accountID,
		Type:           txType,
		MilesAmount:    credited,
		Description:    description,
		IdempotencyKey: opts.IdempotencyKey,
		Metadata:       opts.Metadata,
	}

	applied := false
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "idempotency_key"}},
			DoNothing: true,
		}).Create(&entry)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Duplicate delivery: leave balances untouched.
			return nil
		}
		applied = true
		return tx.Model(&models.Account{}).Where("id = ?", accountID).Updates(map[string]interface{}{
			"available_miles":  gorm.Expr("available_miles + ?", credited),
			"lifetime_miles":   gorm.Expr("lifetime_miles + ?", credited),
			"last_activity_at": time.Now(),
		}).Error
	})
	if err != nil {
		return nil, false, err
	}

	if !applied {
		var existing models.Transaction
		if err := s.DB.Where("idempotency_key = ?", opts.IdempotencyKey).First(&existing).Error; err != nil {
			return nil, false, err
		}
		return &existing, false, nil
	}

	if _, _, _, err := s.RefreshTier(accountID); err != nil {
		return nil, false, err
	}
	if txType == models.TxEarnPurchase {
		if err := s.EvaluateQuests(accountID); err != nil {
			return nil, false, err
		}
	}
	return &entry, true, nil
}

// ReverseOrderMiles reverses the miles credited for an order after a
// refund. The reversal is a new adjust entry referencing the original
// order's key; the original earn entry is never touched. The debit is
// capped at the account's available balance so it can never go
// negative, and lifetime miles are left alone. Returns the miles
// actually reversed.
func (s *Service) ReverseOrderMiles(orderID string) (int, error) {
	var original models.Transaction
	err := s.DB.Where("idempotency_key = ?", OrderPaidKey(orderID)).First(&original).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// Nothing was credited for this order; ignore the refund.
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	reversed := 0
	err = s.DB.Transaction(func(tx *gorm.DB) error {
		var account models.Account
		if err := tx.Where("id = ?", original.AccountID).First(&account).Error; err != nil {
			return err
		}

		debit := original.MilesAmount
		if debit > account.AvailableMiles {
			debit = account.AvailableMiles
		}

		entry := models.Transaction{
			AccountID:      original.AccountID,
			Type:           models.TxAdjust,
			MilesAmount:    -debit,
			Description:    fmt.Sprintf("Refund reversal for order %s", orderID),
			IdempotencyKey: RefundKey(orderID),
			Metadata:       fmt.Sprintf(`{"order_id":%q,"original_transaction_id":%q}`, orderID, original.ID),
		}
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "idempotency_key"}},
			DoNothing: true,
		}).Create(&entry)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Refund already processed.
			return nil
		}

		upd := tx.Model(&models.Account{}).
			Where("id = ? AND available_miles >= ?", original.AccountID, debit).
			Update("available_miles", gorm.Expr("available_miles - ?", debit))
		if upd.Error != nil {
			return upd.Error
		}
		if upd.RowsAffected == 0 {
			return fmt.Errorf("concurrent balance change while reversing order %s", orderID)
		}
		reversed = debit
		return nil
	})
	return reversed, err
}

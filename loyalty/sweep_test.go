package loyalty

import (
	"testing"
	"time"

	"atlas-backend/models"
)

func TestRunDailySweepCoversAllSteps(t *testing.T) {
	db := freshDB()
	service, issuer := newTestService(db)

	// Referral ready for payout.
	referrer := seedAccount(db, "SW1", 0, 0, "initiate")
	referred := seedAccount(db, "SW2", 0, 0, "initiate")
	service.ClaimReferral(referred.ID, referrer.ReferralCode)
	service.EarnMiles(referred.ID, models.TxEarnPurchase, 50, "Order 9901",
		EarnOptions{IdempotencyKey: OrderPaidKey("9901")})
	db.Model(&models.Transaction{}).
		Where("idempotency_key = ?", OrderPaidKey("9901")).
		Update("created_at", time.Now().Add(-ReferralBuffer-time.Hour))

	// Stale account with a balance to expire.
	stale := seedAccount(db, "SW3", 400, 400, "initiate")
	db.Model(&models.Account{}).Where("id = ?", stale.ID).
		Update("last_activity_at", time.Now().Add(-InactivityWindow-24*time.Hour))

	// Debited redemption waiting on a code, and one past its window.
	spender := seedAccount(db, "SW4", 2000, 2000, "initiate")
	reward := seedReward(db, "$10 Off", 800, "initiate")
	issuer.fail = true
	service.Redeem(spender.ID, reward.ID)
	issuer.fail = false

	lapsed := models.Redemption{
		AccountID:  spender.ID,
		RewardID:   reward.ID,
		MilesSpent: 800,
		Status:     models.RedemptionPending,
		ValidUntil: time.Now().Add(-time.Hour),
	}
	db.Create(&lapsed)

	summary := service.RunDailySweep()
	if len(summary.Errors) != 0 {
		t.Fatalf("sweep reported errors: %v", summary.Errors)
	}
	if summary.ReferralsPaid != 1 {
		t.Errorf("expected 1 referral paid, got %d", summary.ReferralsPaid)
	}
	if summary.AccountsExpired != 1 {
		t.Errorf("expected 1 account expired, got %d", summary.AccountsExpired)
	}
	if summary.CodesIssued != 1 {
		t.Errorf("expected 1 code issued, got %d", summary.CodesIssued)
	}
	if summary.RedemptionsExpired != 1 {
		t.Errorf("expected 1 redemption expired, got %d", summary.RedemptionsExpired)
	}
}

func TestRunDailySweepIdempotent(t *testing.T) {
	db := freshDB()
	service, _ := newTestService(db)

	referrer := seedAccount(db, "SW5", 0, 0, "initiate")
	referred := seedAccount(db, "SW6", 0, 0, "initiate")
	service.ClaimReferral(referred.ID, referrer.ReferralCode)
	service.EarnMiles(referred.ID, models.TxEarnPurchase, 50, "Order 9902",
		EarnOptions{IdempotencyKey: OrderPaidKey("9902")})
	db.Model(&models.Transaction{}).
		Where("idempotency_key = ?", OrderPaidKey("9902")).
		Update("created_at", time.Now().Add(-ReferralBuffer-time.Hour))

	first := service.RunDailySweep()
	second := service.RunDailySweep()

	if first.ReferralsPaid != 1 || second.ReferralsPaid != 0 {
		t.Errorf("referral payout not idempotent: %d then %d",
			first.ReferralsPaid, second.ReferralsPaid)
	}
	if reloadAccount(t, db, referrer.ID).AvailableMiles != ReferralBonusMiles {
		t.Error("referrer balance drifted across sweeps")
	}
}

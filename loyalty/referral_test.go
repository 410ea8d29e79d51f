package loyalty

import (
	"errors"
	"testing"
	"time"

	"atlas-backend/models"

	"github.com/google/uuid"
)

func TestClaimReferralLinksAccounts(t *testing.T) {
	db := freshDB()
	service, _ := newTestService(db)
	referrer := seedAccount(db, "REF1", 0, 0, "initiate")
	referred := seedAccount(db, "REF2", 0, 0, "initiate")

	if err := service.ClaimReferral(referred.ID, referrer.ReferralCode); err != nil {
		t.Fatalf("claim failed: %v", err)
	}

	reloaded := reloadAccount(t, db, referred.ID)
	if reloaded.ReferredByAccountID == nil || *reloaded.ReferredByAccountID != referrer.ID {
		t.Error("referral link not recorded")
	}

	// No miles move at claim time.
	if reloadAccount(t, db, referrer.ID).AvailableMiles != 0 {
		t.Error("referrer must not be paid at claim time")
	}
}

func TestClaimReferralInvalidCode(t *testing.T) {
	db := freshDB()
	service, _ := newTestService(db)
	referred := seedAccount(db, "REF3", 0, 0, "initiate")

	err := service.ClaimReferral(referred.ID, "NOSUCHCODE")
	if !errors.Is(err, ErrInvalidReferralCode) {
		t.Errorf("expected ErrInvalidReferralCode, got %v", err)
	}
}

func TestClaimReferralSelfReferral(t *testing.T) {
	db := freshDB()
	service, _ := newTestService(db)
	account := seedAccount(db, "REF4", 0, 0, "initiate")

	err := service.ClaimReferral(account.ID, account.ReferralCode)
	if !errors.Is(err, ErrInvalidReferralCode) {
		t.Errorf("expected self-referral rejection, got %v", err)
	}
}

func TestClaimReferralSetOnce(t *testing.T) {
	db := freshDB()
	service, _ := newTestService(db)
	first := seedAccount(db, "REF5", 0, 0, "initiate")
	second := seedAccount(db, "REF6", 0, 0, "initiate")
	referred := seedAccount(db, "REF7", 0, 0, "initiate")

	if err := service.ClaimReferral(referred.ID, first.ReferralCode); err != nil {
		t.Fatalf("first claim failed: %v", err)
	}
	err := service.ClaimReferral(referred.ID, second.ReferralCode)
	if !errors.Is(err, ErrAlreadyReferred) {
		t.Fatalf("expected ErrAlreadyReferred, got %v", err)
	}

	reloaded := reloadAccount(t, db, referred.ID)
	if *reloaded.ReferredByAccountID != first.ID {
		t.Error("second claim overwrote the original referrer")
	}
}

func TestProcessReferralsRespectsBuffer(t *testing.T) {
	db := freshDB()
	service, _ := newTestService(db)
	referrer := seedAccount(db, "REF8", 0, 0, "initiate")
	referred := seedAccount(db, "REF9", 0, 0, "initiate")
	if err := service.ClaimReferral(referred.ID, referrer.ReferralCode); err != nil {
		t.Fatalf("claim failed: %v", err)
	}

	if _, _, err := service.EarnMiles(referred.ID, models.TxEarnPurchase, 50, "Order 8001",
		EarnOptions{IdempotencyKey: OrderPaidKey("8001")}); err != nil {
		t.Fatalf("earn failed: %v", err)
	}

	// The first order is fresh: still inside the buffer.
	paid, err := service.ProcessReferrals()
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if paid != 0 {
		t.Fatalf("paid inside the buffer window: %d", paid)
	}

	// Backdate the order past the buffer and sweep again.
	backdated := time.Now().Add(-ReferralBuffer - time.Hour)
	db.Model(&models.Transaction{}).
		Where("idempotency_key = ?", OrderPaidKey("8001")).
		Update("created_at", backdated)

	paid, err = service.ProcessReferrals()
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if paid != 1 {
		t.Fatalf("expected 1 payout after the buffer, got %d", paid)
	}

	reloaded := reloadAccount(t, db, referrer.ID)
	if reloaded.AvailableMiles != ReferralBonusMiles {
		t.Errorf("expected referrer balance %d, got %d", ReferralBonusMiles, reloaded.AvailableMiles)
	}

	var entry models.Transaction
	if err := db.Where("account_id = ? AND type = ?", referrer.ID, models.TxEarnReferral).First(&entry).Error; err != nil {
		t.Fatalf("expected a referral ledger entry: %v", err)
	}
	if entry.MilesAmount != ReferralBonusMiles {
		t.Errorf("expected flat %d-mile bonus, got %d", ReferralBonusMiles, entry.MilesAmount)
	}
}

func TestProcessReferralsPaysOnce(t *testing.T) {
	db := freshDB()
	service, _ := newTestService(db)
	referrer := seedAccount(db, "REF10", 0, 0, "initiate")
	referred := seedAccount(db, "REF11", 0, 0, "initiate")
	service.ClaimReferral(referred.ID, referrer.ReferralCode)
	service.EarnMiles(referred.ID, models.TxEarnPurchase, 50, "Order 8002",
		EarnOptions{IdempotencyKey: OrderPaidKey("8002")})
	db.Model(&models.Transaction{}).
		Where("idempotency_key = ?", OrderPaidKey("8002")).
		Update("created_at", time.Now().Add(-ReferralBuffer-time.Hour))

	for i := 0; i < 3; i++ {
		if _, err := service.ProcessReferrals(); err != nil {
			t.Fatalf("sweep %d failed: %v", i, err)
		}
	}

	var count int64
	db.Model(&models.Transaction{}).
		Where("account_id = ? AND type = ?", referrer.ID, models.TxEarnReferral).Count(&count)
	if count != 1 {
		t.Fatalf("expected a single payout across re-runs, got %d", count)
	}
	if reloadAccount(t, db, referrer.ID).AvailableMiles != ReferralBonusMiles {
		t.Errorf("balance drifted: %d", reloadAccount(t, db, referrer.ID).AvailableMiles)
	}
}

func TestProcessReferralsNoQualifyingOrder(t *testing.T) {
	db := freshDB()
	service, _ := newTestService(db)
	referrer := seedAccount(db, "REF12", 0, 0, "initiate")
	referred := seedAccount(db, "REF13", 0, 0, "initiate")
	service.ClaimReferral(referred.ID, referrer.ReferralCode)

	// A signup bonus is not a paid order; it must not start the clock.
	service.EarnMiles(referred.ID, models.TxEarnSignupBonus, SignupBonusMiles, "Welcome",
		EarnOptions{IdempotencyKey: SignupBonusKey(referred.ID)})
	db.Model(&models.Transaction{}).
		Where("account_id = ?", referred.ID).
		Update("created_at", time.Now().Add(-ReferralBuffer-time.Hour))

	paid, err := service.ProcessReferrals()
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if paid != 0 {
		t.Errorf("paid without a qualifying purchase: %d", paid)
	}
}

func TestReferralKeyDeterministic(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	if ReferralKey(a, b) != ReferralKey(a, b) {
		t.Error("key must be stable for the same pair")
	}
	if ReferralKey(a, b) == ReferralKey(b, a) {
		t.Error("key must distinguish direction")
	}
}

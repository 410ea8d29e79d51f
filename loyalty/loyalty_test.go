package loyalty

import (
	"fmt"
	"os"
	"testing"
	"time"

	"atlas-backend/models"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var testDB *gorm.DB

func TestMain(m *testing.M) {
	var err error
	testDB, err = gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	if err != nil {
		panic("failed to connect to test database: " + err.Error())
	}
	// Limit to 1 open connection to prevent SQLite concurrent access issues
	// with in-memory databases. This ensures all goroutines see the same
	// tables and serialize on the single connection.
	sqlDB, _ := testDB.DB()
	sqlDB.SetMaxOpenConns(1)

	// Create tables using raw SQLite-compatible SQL instead of AutoMigrate,
	// because the GORM model tags use PostgreSQL-specific defaults like gen_random_uuid().
	if err := createSQLiteTables(testDB); err != nil {
		panic("failed to migrate test database: " + err.Error())
	}

	code := m.Run()
	os.Exit(code)
}

// createSQLiteTables creates all tables with SQLite-compatible DDL.
func createSQLiteTables(db *gorm.DB) error {
	tables := []string{
		`CREATE TABLE IF NOT EXISTS "tiers" (
			"id" TEXT PRIMARY KEY,
			"name" TEXT NOT NULL,
			"rank" INTEGER NOT NULL UNIQUE,
			"miles_threshold" INTEGER NOT NULL,
			"stamps_threshold" INTEGER,
			"miles_multiplier" REAL NOT NULL DEFAULT 1,
			"perks" TEXT
		)`,

		`CREATE TABLE IF NOT EXISTS "accounts" (
			"id" TEXT PRIMARY KEY,
			"shopify_customer_id" TEXT NOT NULL UNIQUE,
			"email" TEXT,
			"first_name" TEXT,
			"last_name" TEXT,
			"referral_code" TEXT NOT NULL UNIQUE,
			"referred_by_account_id" TEXT,
			"available_miles" INTEGER NOT NULL DEFAULT 0,
			"lifetime_miles" INTEGER NOT NULL DEFAULT 0,
			"stamp_count" INTEGER NOT NULL DEFAULT 0,
			"current_tier_id" TEXT DEFAULT 'initiate',
			"last_activity_at" DATETIME,
			"created_at" DATETIME,
			"updated_at" DATETIME
		)`,
		`CREATE INDEX IF NOT EXISTS idx_accounts_email ON "accounts"("email")`,
		`CREATE INDEX IF NOT EXISTS idx_accounts_referred_by ON "accounts"("referred_by_account_id")`,

		`CREATE TABLE IF NOT EXISTS "transactions" (
			"id" TEXT PRIMARY KEY,
			"account_id" TEXT NOT NULL,
			"type" TEXT NOT NULL,
			"miles_amount" INTEGER NOT NULL,
			"description" TEXT,
			"idempotency_key" TEXT NOT NULL UNIQUE,
			"metadata" TEXT,
			"created_at" DATETIME,
			CONSTRAINT fk_transactions_account FOREIGN KEY ("account_id") REFERENCES "accounts"("id")
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_account_id ON "transactions"("account_id")`,

		`CREATE TABLE IF NOT EXISTS "destinations" (
			"id" TEXT PRIMARY KEY,
			"handle" TEXT NOT NULL UNIQUE,
			"name" TEXT NOT NULL,
			"region" TEXT,
			"stamp_icon" TEXT,
			"is_active" INTEGER DEFAULT 1,
			"created_at" DATETIME,
			"updated_at" DATETIME,
			"deleted_at" DATETIME
		)`,
		`CREATE INDEX IF NOT EXISTS idx_destinations_deleted_at ON "destinations"("deleted_at")`,

		`CREATE TABLE IF NOT EXISTS "stamps" (
			"id" TEXT PRIMARY KEY,
			"account_id" TEXT NOT NULL,
			"destination_id" TEXT NOT NULL,
			"created_at" DATETIME,
			CONSTRAINT fk_stamps_account FOREIGN KEY ("account_id") REFERENCES "accounts"("id"),
			CONSTRAINT fk_stamps_destination FOREIGN KEY ("destination_id") REFERENCES "destinations"("id")
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_stamp_account_destination ON "stamps"("account_id","destination_id")`,

		`CREATE TABLE IF NOT EXISTS "quests" (
			"id" TEXT PRIMARY KEY,
			"slug" TEXT NOT NULL UNIQUE,
			"name" TEXT NOT NULL,
			"description" TEXT,
			"requirement_type" TEXT NOT NULL,
			"requirement_count" INTEGER NOT NULL,
			"miles_reward" INTEGER NOT NULL,
			"is_active" INTEGER DEFAULT 1,
			"created_at" DATETIME,
			"updated_at" DATETIME
		)`,

		`CREATE TABLE IF NOT EXISTS "quest_progresses" (
			"id" TEXT PRIMARY KEY,
			"account_id" TEXT NOT NULL,
			"quest_id" TEXT NOT NULL,
			"current_count" INTEGER NOT NULL DEFAULT 0,
			"completed" INTEGER DEFAULT 0,
			"completed_at" DATETIME,
			"created_at" DATETIME,
			"updated_at" DATETIME,
			CONSTRAINT fk_quest_progresses_account FOREIGN KEY ("account_id") REFERENCES "accounts"("id"),
			CONSTRAINT fk_quest_progresses_quest FOREIGN KEY ("quest_id") REFERENCES "quests"("id")
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_quest_progress_account_quest ON "quest_progresses"("account_id","quest_id")`,

		`CREATE TABLE IF NOT EXISTS "rewards" (
			"id" TEXT PRIMARY KEY,
			"name" TEXT NOT NULL,
			"description" TEXT,
			"miles_cost" INTEGER NOT NULL,
			"min_tier_id" TEXT DEFAULT 'initiate',
			"reward_type" TEXT NOT NULL,
			"icon" TEXT,
			"is_active" INTEGER DEFAULT 1,
			"created_at" DATETIME,
			"updated_at" DATETIME,
			"deleted_at" DATETIME
		)`,
		`CREATE INDEX IF NOT EXISTS idx_rewards_deleted_at ON "rewards"("deleted_at")`,

		`CREATE TABLE IF NOT EXISTS "redemptions" (
			"id" TEXT PRIMARY KEY,
			"account_id" TEXT NOT NULL,
			"reward_id" TEXT NOT NULL,
			"miles_spent" INTEGER NOT NULL,
			"shopify_discount_code" TEXT DEFAULT '',
			"valid_until" DATETIME,
			"status" TEXT DEFAULT 'pending',
			"created_at" DATETIME,
			"updated_at" DATETIME,
			CONSTRAINT fk_redemptions_account FOREIGN KEY ("account_id") REFERENCES "accounts"("id"),
			CONSTRAINT fk_redemptions_reward FOREIGN KEY ("reward_id") REFERENCES "rewards"("id")
		)`,
		`CREATE INDEX IF NOT EXISTS idx_redemptions_account_id ON "redemptions"("account_id")`,
	}

	for _, sql := range tables {
		if err := db.Exec(sql).Error; err != nil {
			return err
		}
	}
	return nil
}

// freshDB returns a clean database for each test by deleting all rows.
func freshDB() *gorm.DB {
	// Delete in correct order to respect foreign keys
	testDB.Exec("DELETE FROM redemptions")
	testDB.Exec("DELETE FROM quest_progresses")
	testDB.Exec("DELETE FROM stamps")
	testDB.Exec("DELETE FROM transactions")
	testDB.Exec("DELETE FROM accounts")
	testDB.Exec("DELETE FROM rewards")
	testDB.Exec("DELETE FROM quests")
	testDB.Exec("DELETE FROM destinations")
	testDB.Exec("DELETE FROM tiers")
	return testDB
}

// mockIssuer is a DiscountIssuer test double.
type mockIssuer struct {
	fail  bool
	calls int
}

func (m *mockIssuer) CreateDiscountCode(rewardType, rewardName, redemptionID string, validUntil time.Time) (string, error) {
	m.calls++
	if m.fail {
		return "", fmt.Errorf("issuance unavailable")
	}
	return "ATLAS-TEST1234", nil
}

// newTestService seeds the tier table (every engine path needs it) and
// returns a service wired to the shared test database.
func newTestService(db *gorm.DB) (*Service, *mockIssuer) {
	seedTiers(db)
	issuer := &mockIssuer{}
	return NewService(db, issuer), issuer
}

func intPtr(n int) *int { return &n }

func seedTiers(db *gorm.DB) {
	tiers := []models.Tier{
		{ID: "initiate", Name: "Initiate", Rank: 0, MilesThreshold: 0, MilesMultiplier: 1.0, Perks: "member_pricing"},
		{ID: "voyager", Name: "Voyager", Rank: 1, MilesThreshold: 1000, StampsThreshold: intPtr(5), MilesMultiplier: 1.25, Perks: "member_pricing,free_shipping"},
		{ID: "collector", Name: "Collector", Rank: 2, MilesThreshold: 5000, StampsThreshold: intPtr(15), MilesMultiplier: 1.5, Perks: "member_pricing,free_shipping,early_access"},
		{ID: "laureate", Name: "Laureate", Rank: 3, MilesThreshold: 15000, StampsThreshold: intPtr(30), MilesMultiplier: 2.0, Perks: "member_pricing,free_shipping,early_access,concierge"},
	}
	for _, tier := range tiers {
		db.Create(&tier)
	}
}

// seedAccount creates an enrolled account without going through Enroll,
// so tests control the counters exactly.
func seedAccount(db *gorm.DB, customerID string, available, lifetime int, tierID string) models.Account {
	account := models.Account{
		ID:                uuid.New(),
		ShopifyCustomerID: customerID,
		Email:             customerID + "@test.com",
		ReferralCode:      "REF" + uuid.New().String()[:8],
		AvailableMiles:    available,
		LifetimeMiles:     lifetime,
		CurrentTierID:     tierID,
		LastActivityAt:    time.Now(),
	}
	db.Create(&account)
	return account
}

func seedDestination(db *gorm.DB, handle string) models.Destination {
	destination := models.Destination{
		ID:       uuid.New(),
		Handle:   handle,
		Name:     handle,
		IsActive: true,
	}
	db.Create(&destination)
	return destination
}

func seedQuest(db *gorm.DB, slug, requirementType string, count, reward int) models.Quest {
	quest := models.Quest{
		ID:               uuid.New(),
		Slug:             slug,
		Name:             slug,
		RequirementType:  requirementType,
		RequirementCount: count,
		MilesReward:      reward,
		IsActive:         true,
	}
	db.Create(&quest)
	return quest
}

func seedReward(db *gorm.DB, name string, cost int, minTier string) models.Reward {
	reward := models.Reward{
		ID:         uuid.New(),
		Name:       name,
		MilesCost:  cost,
		MinTierID:  minTier,
		RewardType: models.RewardAtlasCredit,
		IsActive:   true,
	}
	db.Create(&reward)
	return reward
}

// ledgerSum folds the account's ledger; it must always reconcile with
// the available balance.
func ledgerSum(t *testing.T, db *gorm.DB, accountID uuid.UUID) int {
	t.Helper()
	var entries []models.Transaction
	if err := db.Where("account_id = ?", accountID).Find(&entries).Error; err != nil {
		t.Fatalf("failed to load ledger: %v", err)
	}
	sum := 0
	for _, entry := range entries {
		sum += entry.MilesAmount
	}
	return sum
}

func reloadAccount(t *testing.T, db *gorm.DB, id uuid.UUID) models.Account {
	t.Helper()
	var account models.Account
	if err := db.Where("id = ?", id).First(&account).Error; err != nil {
		t.Fatalf("failed to reload account: %v", err)
	}
	return account
}

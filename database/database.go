package database

import (
	"fmt"
	"log"
	"os"

	"atlas-backend/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func Connect() (*gorm.DB, error) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		dsn = "host=localhost user=postgres password=postgres dbname=atlas_club port=5432 sslmode=disable"
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	return db, nil
}

func Migrate(db *gorm.DB) error {
	// Ensure PostgreSQL has gen_random_uuid() available (pgcrypto extension).
	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS pgcrypto;`).Error; err != nil {
		return fmt.Errorf("failed to enable pgcrypto extension: %w", err)
	}

	return db.AutoMigrate(
		&models.Tier{},
		&models.Account{},
		&models.Transaction{},
		&models.Destination{},
		&models.Stamp{},
		&models.Quest{},
		&models.QuestProgress{},
		&models.Reward{},
		&models.Redemption{},
	)
}

func intPtr(n int) *int { return &n }

// SeedProgramData inserts the static program configuration (tiers,
// quests, rewards, destinations) if it is not present. Safe to run on
// every startup; existing rows are left alone so operators can tune
// them without redeploys.
func SeedProgramData(db *gorm.DB) error {
	tiers := []models.Tier{
		{ID: "initiate", Name: "Initiate", Rank: 0, MilesThreshold: 0, MilesMultiplier: 1.0, Perks: "member_pricing"},
		{ID: "voyager", Name: "Voyager", Rank: 1, MilesThreshold: 1000, StampsThreshold: intPtr(5), MilesMultiplier: 1.25, Perks: "member_pricing,free_shipping"},
		{ID: "collector", Name: "Collector", Rank: 2, MilesThreshold: 5000, StampsThreshold: intPtr(15), MilesMultiplier: 1.5, Perks: "member_pricing,free_shipping,early_access"},
		{ID: "laureate", Name: "Laureate", Rank: 3, MilesThreshold: 15000, StampsThreshold: intPtr(30), MilesMultiplier: 2.0, Perks: "member_pricing,free_shipping,early_access,concierge"},
	}
	for _, tier := range tiers {
		row := tier
		if err := db.Where("id = ?", tier.ID).FirstOrCreate(&row).Error; err != nil {
			return fmt.Errorf("failed to seed tier %s: %w", tier.ID, err)
		}
	}

	quests := []models.Quest{
		{
			Slug:             "first-departure",
			Name:             "First Departure",
			Description:      "Place your first order from any destination.",
			RequirementType:  models.QuestPurchaseCount,
			RequirementCount: 1,
			MilesReward:      150,
			IsActive:         true,
		},
		{
			Slug:             "globetrotter",
			Name:             "Globetrotter",
			Description:      "Collect passport stamps from 5 different destinations.",
			RequirementType:  models.QuestDistinctDestinations,
			RequirementCount: 5,
			MilesReward:      500,
			IsActive:         true,
		},
		{
			Slug:             "frequent-flyer",
			Name:             "Frequent Flyer",
			Description:      "Place 10 orders with the Travel Club.",
			RequirementType:  models.QuestPurchaseCount,
			RequirementCount: 10,
			MilesReward:      1000,
			IsActive:         true,
		},
	}
	for _, quest := range quests {
		row := quest
		if err := db.Where("slug = ?", quest.Slug).FirstOrCreate(&row).Error; err != nil {
			return fmt.Errorf("failed to seed quest %s: %w", quest.Slug, err)
		}
	}

	rewards := []models.Reward{
		{Name: "$10 Atlas Credit", Description: "A $10 credit toward any order.", MilesCost: 1000, MinTierID: "initiate", RewardType: models.RewardAtlasCredit, Icon: "credit", IsActive: true},
		{Name: "Free Shipping Pass", Description: "Free shipping on your next order.", MilesCost: 500, MinTierID: "initiate", RewardType: models.RewardFreeShipping, Icon: "plane", IsActive: true},
		{Name: "Early Access Window", Description: "Shop new destination drops 48 hours early.", MilesCost: 750, MinTierID: "voyager", RewardType: models.RewardEarlyAccess, Icon: "clock", IsActive: true},
		{Name: "Monogram Credit", Description: "Complimentary monogramming on luggage pieces.", MilesCost: 1500, MinTierID: "collector", RewardType: models.RewardMonogramCredit, Icon: "stamp", IsActive: true},
	}
	for _, reward := range rewards {
		row := reward
		if err := db.Where("name = ?", reward.Name).FirstOrCreate(&row).Error; err != nil {
			return fmt.Errorf("failed to seed reward %s: %w", reward.Name, err)
		}
	}

	destinations := []models.Destination{
		{Handle: "kyoto", Name: "Kyoto", Region: "Japan", StampIcon: "torii", IsActive: true},
		{Handle: "marrakech", Name: "Marrakech", Region: "Morocco", StampIcon: "lantern", IsActive: true},
		{Handle: "patagonia", Name: "Patagonia", Region: "Argentina & Chile", StampIcon: "peaks", IsActive: true},
		{Handle: "amalfi", Name: "Amalfi Coast", Region: "Italy", StampIcon: "lemon", IsActive: true},
		{Handle: "reykjavik", Name: "Reykjavik", Region: "Iceland", StampIcon: "aurora", IsActive: true},
		{Handle: "oaxaca", Name: "Oaxaca", Region: "Mexico", StampIcon: "agave", IsActive: true},
	}
	for _, destination := range destinations {
		row := destination
		if err := db.Where("handle = ?", destination.Handle).FirstOrCreate(&row).Error; err != nil {
			return fmt.Errorf("failed to seed destination %s: %w", destination.Handle, err)
		}
	}

	log.Println("Program data seeded")
	return nil
}

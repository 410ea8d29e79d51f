package models

import "strings"

// Tier is static program configuration, seeded at startup and ordered by
// Rank. An account qualifies for a tier by lifetime miles OR, where set,
// by stamp count, whichever path it satisfies.
type Tier struct {
	ID              string  `gorm:"primary_key" json:"id"` // initiate, voyager, collector, laureate
	Name            string  `gorm:"not null" json:"name"`
	Rank            int     `gorm:"not null;uniqueIndex" json:"rank"`
	MilesThreshold  int     `gorm:"not null" json:"miles_threshold"`
	StampsThreshold *int    `json:"stamps_threshold,omitempty"`
	MilesMultiplier float64 `gorm:"not null;default:1" json:"miles_multiplier"`
	Perks           string  `json:"perks"` // comma-separated perk codes
}

// PerkList splits the stored perk codes.
func (t *Tier) PerkList() []string {
	if t.Perks == "" {
		return nil
	}
	parts := strings.Split(t.Perks, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

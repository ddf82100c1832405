// Package domain contains per-account dunning settings and the pure
// escalation decision.
package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Settings hold the per-account toggles. The tier ladder itself
// (ages and spacing) comes from configuration, not from here.
type Settings struct {
	AccountID snowflake.ID `gorm:"primaryKey" json:"account_id"`

	// No default tags on the booleans: gorm's Create drops zero
	// values that carry a default, which would turn a stored false
	// back into true. The SQL migration keeps its own defaults.
	Enabled bool `gorm:"not null" json:"enabled"`

	Tier1Enabled bool `gorm:"not null" json:"tier1_enabled"`
	Tier2Enabled bool `gorm:"not null" json:"tier2_enabled"`
	Tier3Enabled bool `gorm:"not null" json:"tier3_enabled"`
	Tier4Enabled bool `gorm:"not null" json:"tier4_enabled"`

	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Settings) TableName() string { return "dunning_settings" }

// DefaultSettings enables every tier.
func DefaultSettings(accountID snowflake.ID, now time.Time) Settings {
	return Settings{
		AccountID:    accountID,
		Enabled:      true,
		Tier1Enabled: true,
		Tier2Enabled: true,
		Tier3Enabled: true,
		Tier4Enabled: true,
		UpdatedAt:    now,
	}
}

// TierEnabled reports the per-tier toggle.
func (s Settings) TierEnabled(tier int) bool {
	switch tier {
	case 1:
		return s.Tier1Enabled
	case 2:
		return s.Tier2Enabled
	case 3:
		return s.Tier3Enabled
	case 4:
		return s.Tier4Enabled
	}
	return false
}

type Repository interface {
	// Get returns the stored settings or nil when the account has
	// never customized them.
	Get(ctx context.Context, db *gorm.DB, accountID snowflake.ID) (*Settings, error)
	Upsert(ctx context.Context, db *gorm.DB, settings *Settings) error
}

type UpdateSettingsRequest struct {
	Enabled      *bool `json:"enabled"`
	Tier1Enabled *bool `json:"tier1_enabled"`
	Tier2Enabled *bool `json:"tier2_enabled"`
	Tier3Enabled *bool `json:"tier3_enabled"`
	Tier4Enabled *bool `json:"tier4_enabled"`
}

type SettingsService interface {
	Get(ctx context.Context) (Settings, error)
	Update(ctx context.Context, req UpdateSettingsRequest) (Settings, error)
}

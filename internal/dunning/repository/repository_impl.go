package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/facturo/internal/dunning/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Get(ctx context.Context, db *gorm.DB, accountID snowflake.ID) (*domain.Settings, error) {
	var settings domain.Settings
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM dunning_settings WHERE account_id = ?`,
		accountID,
	).Scan(&settings).Error
	if err != nil {
		return nil, err
	}
	if settings.AccountID == 0 {
		return nil, nil
	}
	return &settings, nil
}

func (r *repo) Upsert(ctx context.Context, db *gorm.DB, settings *domain.Settings) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO dunning_settings (account_id, enabled,
		   tier1_enabled, tier2_enabled, tier3_enabled, tier4_enabled, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (account_id)
		 DO UPDATE SET enabled = ?, tier1_enabled = ?, tier2_enabled = ?,
		   tier3_enabled = ?, tier4_enabled = ?, updated_at = ?`,
		settings.AccountID,
		settings.Enabled,
		settings.Tier1Enabled,
		settings.Tier2Enabled,
		settings.Tier3Enabled,
		settings.Tier4Enabled,
		settings.UpdatedAt,
		settings.Enabled,
		settings.Tier1Enabled,
		settings.Tier2Enabled,
		settings.Tier3Enabled,
		settings.Tier4Enabled,
		settings.UpdatedAt,
	).Error
}

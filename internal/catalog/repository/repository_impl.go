package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/facturo/internal/catalog/domain"
	"github.com/smallbiznis/facturo/pkg/db/option"
	"github.com/smallbiznis/facturo/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, prestation *domain.Prestation) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO prestations (id, account_id, label, description, pricing_mode,
		   default_rate, default_tax_rate, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		prestation.ID,
		prestation.AccountID,
		prestation.Label,
		prestation.Description,
		prestation.PricingMode,
		prestation.DefaultRate,
		prestation.DefaultTaxRate,
		prestation.CreatedAt,
		prestation.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, accountID, id snowflake.ID) (*domain.Prestation, error) {
	var prestation domain.Prestation
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM prestations WHERE account_id = ? AND id = ?`,
		accountID,
		id,
	).Scan(&prestation).Error
	if err != nil {
		return nil, err
	}
	if prestation.ID == 0 {
		return nil, nil
	}
	return &prestation, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, accountID snowflake.ID, page pagination.Pagination) ([]*domain.Prestation, error) {
	var prestations []*domain.Prestation
	stmt := db.WithContext(ctx).
		Model(&domain.Prestation{}).
		Where("account_id = ?", accountID)
	stmt = option.ApplyPagination(page).Apply(stmt)
	err := stmt.
		Order("created_at desc, id desc").
		Find(&prestations).Error
	if err != nil {
		return nil, err
	}
	return prestations, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, prestation *domain.Prestation) error {
	return db.WithContext(ctx).Exec(
		`UPDATE prestations SET label = ?, description = ?, pricing_mode = ?,
		   default_rate = ?, default_tax_rate = ?, updated_at = ?
		 WHERE account_id = ? AND id = ?`,
		prestation.Label,
		prestation.Description,
		prestation.PricingMode,
		prestation.DefaultRate,
		prestation.DefaultTaxRate,
		prestation.UpdatedAt,
		prestation.AccountID,
		prestation.ID,
	).Error
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, accountID, id snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`DELETE FROM prestations WHERE account_id = ? AND id = ?`,
		accountID,
		id,
	).Error
}

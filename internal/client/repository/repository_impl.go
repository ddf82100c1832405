package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/facturo/internal/client/domain"
	"github.com/smallbiznis/facturo/pkg/db/option"
	"github.com/smallbiznis/facturo/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, client *domain.Client) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO clients (id, account_id, kind, name, email,
		   address_line1, address_line2, postal_code, city, country,
		   vat_number, siret, payment_term_days, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		client.ID,
		client.AccountID,
		client.Kind,
		client.Name,
		client.Email,
		client.AddressLine1,
		client.AddressLine2,
		client.PostalCode,
		client.City,
		client.Country,
		client.VATNumber,
		client.SIRET,
		client.PaymentTermDays,
		client.CreatedAt,
		client.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, accountID, id snowflake.ID) (*domain.Client, error) {
	var client domain.Client
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM clients WHERE account_id = ? AND id = ?`,
		accountID,
		id,
	).Scan(&client).Error
	if err != nil {
		return nil, err
	}
	if client.ID == 0 {
		return nil, nil
	}
	return &client, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, accountID snowflake.ID, filter domain.ListClientFilter, page pagination.Pagination) ([]*domain.Client, error) {
	var clients []*domain.Client
	stmt := db.WithContext(ctx).
		Model(&domain.Client{}).
		Where("account_id = ?", accountID)
	if filter.Name != "" {
		stmt = stmt.Where("name = ?", filter.Name)
	}
	if filter.Email != "" {
		stmt = stmt.Where("email = ?", filter.Email)
	}
	if filter.Kind != "" {
		stmt = stmt.Where("kind = ?", filter.Kind)
	}
	if filter.CreatedFrom != nil {
		stmt = stmt.Where("created_at >= ?", *filter.CreatedFrom)
	}
	if filter.CreatedTo != nil {
		stmt = stmt.Where("created_at <= ?", *filter.CreatedTo)
	}
	stmt = option.ApplyPagination(page).Apply(stmt)
	err := stmt.
		Order("created_at desc, id desc").
		Find(&clients).Error
	if err != nil {
		return nil, err
	}
	return clients, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, client *domain.Client) error {
	return db.WithContext(ctx).Exec(
		`UPDATE clients SET name = ?, email = ?,
		   address_line1 = ?, address_line2 = ?, postal_code = ?, city = ?, country = ?,
		   vat_number = ?, siret = ?, payment_term_days = ?, updated_at = ?
		 WHERE account_id = ? AND id = ?`,
		client.Name,
		client.Email,
		client.AddressLine1,
		client.AddressLine2,
		client.PostalCode,
		client.City,
		client.Country,
		client.VATNumber,
		client.SIRET,
		client.PaymentTermDays,
		client.UpdatedAt,
		client.AccountID,
		client.ID,
	).Error
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, accountID, id snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`DELETE FROM clients WHERE account_id = ? AND id = ?`,
		accountID,
		id,
	).Error
}

func (r *repo) CountActiveReferences(ctx context.Context, db *gorm.DB, accountID, id snowflake.ID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT
		   (SELECT COUNT(*) FROM quotes
		      WHERE account_id = ? AND client_id = ?
		        AND status NOT IN ('REFUSED', 'EXPIRED', 'CONVERTED'))
		 + (SELECT COUNT(*) FROM invoices
		      WHERE account_id = ? AND client_id = ?
		        AND status NOT IN ('PAID', 'CANCELLED', 'CREDITED'))`,
		accountID, id,
		accountID, id,
	).Scan(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

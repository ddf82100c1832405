package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/facturo/internal/quote/domain"
	"github.com/smallbiznis/facturo/pkg/db/option"
	"github.com/smallbiznis/facturo/pkg/db/pagination"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, quote *domain.Quote) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO quotes (id, account_id, client_id, number, status, issue_date, validity_date,
		   total_ht, total_tax, total_ttc, deposit_percent, deposit_amount, invoice_id,
		   metadata, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		quote.ID,
		quote.AccountID,
		quote.ClientID,
		quote.Number,
		quote.Status,
		quote.IssueDate,
		quote.ValidityDate,
		quote.TotalHT,
		quote.TotalTax,
		quote.TotalTTC,
		quote.DepositPercent,
		quote.DepositAmount,
		quote.InvoiceID,
		quote.Metadata,
		quote.CreatedAt,
		quote.UpdatedAt,
	).Error
}

func (r *repo) InsertLines(ctx context.Context, db *gorm.DB, lines []domain.QuoteLine) error {
	if len(lines) == 0 {
		return nil
	}
	return db.WithContext(ctx).Create(&lines).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, accountID, id snowflake.ID) (*domain.Quote, error) {
	var quote domain.Quote
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM quotes WHERE account_id = ? AND id = ?`,
		accountID,
		id,
	).Scan(&quote).Error
	if err != nil {
		return nil, err
	}
	if quote.ID == 0 {
		return nil, nil
	}
	return &quote, nil
}

func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, accountID, id snowflake.ID) (*domain.Quote, error) {
	var quote domain.Quote
	err := db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("account_id = ? AND id = ?", accountID, id).
		Limit(1).
		Find(&quote).Error
	if err != nil {
		return nil, err
	}
	if quote.ID == 0 {
		return nil, nil
	}
	return &quote, nil
}

func (r *repo) FindLines(ctx context.Context, db *gorm.DB, quoteID snowflake.ID) ([]domain.QuoteLine, error) {
	var lines []domain.QuoteLine
	err := db.WithContext(ctx).
		Where("quote_id = ?", quoteID).
		Order("position asc").
		Find(&lines).Error
	if err != nil {
		return nil, err
	}
	return lines, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, accountID snowflake.ID, filter domain.ListQuoteFilter, page pagination.Pagination) ([]*domain.Quote, error) {
	var quotes []*domain.Quote
	stmt := db.WithContext(ctx).
		Model(&domain.Quote{}).
		Where("account_id = ?", accountID)
	if filter.ClientID != 0 {
		stmt = stmt.Where("client_id = ?", filter.ClientID)
	}
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	stmt = option.ApplyPagination(page).Apply(stmt)
	err := stmt.
		Order("created_at desc, id desc").
		Find(&quotes).Error
	if err != nil {
		return nil, err
	}
	return quotes, nil
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, quote *domain.Quote) error {
	return db.WithContext(ctx).Exec(
		`UPDATE quotes SET status = ?, updated_at = ? WHERE account_id = ? AND id = ?`,
		quote.Status,
		quote.UpdatedAt,
		quote.AccountID,
		quote.ID,
	).Error
}

func (r *repo) MarkConverted(ctx context.Context, db *gorm.DB, quote *domain.Quote, invoiceID snowflake.ID, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE quotes SET status = ?, invoice_id = ?, updated_at = ? WHERE account_id = ? AND id = ?`,
		domain.StatusConverted,
		invoiceID,
		now,
		quote.AccountID,
		quote.ID,
	).Error
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, accountID, id snowflake.ID) error {
	err := db.WithContext(ctx).Exec(
		`DELETE FROM quote_lines WHERE quote_id = ?`, id,
	).Error
	if err != nil {
		return err
	}
	return db.WithContext(ctx).Exec(
		`DELETE FROM quotes WHERE account_id = ? AND id = ?`,
		accountID,
		id,
	).Error
}

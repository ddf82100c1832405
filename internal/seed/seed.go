// Package seed bootstraps a development database with a default
// account so the API is usable right after startup.
package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	accountdomain "github.com/smallbiznis/facturo/internal/account/domain"
	catalogdomain "github.com/smallbiznis/facturo/internal/catalog/domain"
	dunningdomain "github.com/smallbiznis/facturo/internal/dunning/domain"
	"github.com/smallbiznis/facturo/internal/plan"
	"gorm.io/gorm"
)

const (
	defaultAccountName  = "Atelier Dev"
	defaultAccountEmail = "dev@facturo.local"
)

// EnsureDefaultAccount seeds the default account for development mode.
// It is idempotent and safe to run on every startup.
func EnsureDefaultAccount(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		account, err := ensureAccountTx(ctx, tx, node)
		if err != nil {
			return err
		}
		if err := ensureDunningSettingsTx(ctx, tx, account.ID); err != nil {
			return err
		}
		return ensurePrestationsTx(ctx, tx, node, account.ID)
	})
}

func ensureAccountTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node) (accountdomain.Account, error) {
	var account accountdomain.Account
	err := tx.WithContext(ctx).Where("email = ?", defaultAccountEmail).First(&account).Error
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return account, err
	}
	now := time.Now().UTC()
	account = accountdomain.Account{
		ID:              node.Generate(),
		Name:            defaultAccountName,
		Email:           defaultAccountEmail,
		PlanCode:        plan.CodePro,
		PaymentTermDays: accountdomain.DefaultPaymentTermDays,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := tx.WithContext(ctx).Create(&account).Error; err != nil {
		return account, err
	}
	return account, nil
}

func ensureDunningSettingsTx(ctx context.Context, tx *gorm.DB, accountID snowflake.ID) error {
	var settings dunningdomain.Settings
	err := tx.WithContext(ctx).Where("account_id = ?", accountID).First(&settings).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	settings = dunningdomain.DefaultSettings(accountID, time.Now().UTC())
	return tx.WithContext(ctx).Create(&settings).Error
}

func ensurePrestationsTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node, accountID snowflake.ID) error {
	var count int64
	if err := tx.WithContext(ctx).
		Model(&catalogdomain.Prestation{}).
		Where("account_id = ?", accountID).
		Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	now := time.Now().UTC()
	prestations := []catalogdomain.Prestation{
		{
			ID:             node.Generate(),
			AccountID:      accountID,
			Label:          "Développement",
			Description:    "Développement sur mesure",
			PricingMode:    catalogdomain.PricingDaily,
			DefaultRate:    decimal.NewFromInt(500),
			DefaultTaxRate: decimal.NewFromInt(20),
			CreatedAt:      now,
			UpdatedAt:      now,
		},
		{
			ID:             node.Generate(),
			AccountID:      accountID,
			Label:          "Conseil",
			Description:    "Accompagnement et conseil",
			PricingMode:    catalogdomain.PricingHourly,
			DefaultRate:    decimal.NewFromInt(90),
			DefaultTaxRate: decimal.NewFromInt(20),
			CreatedAt:      now,
			UpdatedAt:      now,
		},
	}
	for i := range prestations {
		if err := tx.WithContext(ctx).Create(&prestations[i]).Error; err != nil {
			return err
		}
	}
	return nil
}

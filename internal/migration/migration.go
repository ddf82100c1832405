// Package migration creates the billing schema on startup so the
// service is usable out of the box for local and self-hosted setups.
package migration

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	accountdomain "github.com/smallbiznis/facturo/internal/account/domain"
	catalogdomain "github.com/smallbiznis/facturo/internal/catalog/domain"
	clientdomain "github.com/smallbiznis/facturo/internal/client/domain"
	dunningdomain "github.com/smallbiznis/facturo/internal/dunning/domain"
	invoicedomain "github.com/smallbiznis/facturo/internal/invoice/domain"
	notificationdomain "github.com/smallbiznis/facturo/internal/notification/domain"
	quotedomain "github.com/smallbiznis/facturo/internal/quote/domain"
	sequencedomain "github.com/smallbiznis/facturo/internal/sequence/domain"
	"gorm.io/gorm"
)

// RunMigrations applies the embedded SQL migrations against postgres.
func RunMigrations(db *sql.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// Do not call migrator.Close here because it would close the shared *sql.DB.

	return nil
}

// AutoMigrate builds the schema from the models for non-postgres
// drivers, mainly sqlite in development and tests.
func AutoMigrate(db *gorm.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}
	return db.AutoMigrate(
		&accountdomain.Account{},
		&clientdomain.Client{},
		&catalogdomain.Prestation{},
		&quotedomain.Quote{},
		&quotedomain.QuoteLine{},
		&invoicedomain.Invoice{},
		&invoicedomain.InvoiceLine{},
		&invoicedomain.Payment{},
		&sequencedomain.DocumentCounter{},
		&dunningdomain.Settings{},
		&notificationdomain.Notification{},
	)
}

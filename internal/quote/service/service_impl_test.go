package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	accountdomain "github.com/smallbiznis/facturo/internal/account/domain"
	accountrepo "github.com/smallbiznis/facturo/internal/account/repository"
	"github.com/smallbiznis/facturo/internal/accountctx"
	catalogdomain "github.com/smallbiznis/facturo/internal/catalog/domain"
	catalogrepo "github.com/smallbiznis/facturo/internal/catalog/repository"
	clientdomain "github.com/smallbiznis/facturo/internal/client/domain"
	clientrepo "github.com/smallbiznis/facturo/internal/client/repository"
	"github.com/smallbiznis/facturo/internal/clock"
	invoicedomain "github.com/smallbiznis/facturo/internal/invoice/domain"
	invoicerepo "github.com/smallbiznis/facturo/internal/invoice/repository"
	"github.com/smallbiznis/facturo/internal/plan"
	"github.com/smallbiznis/facturo/internal/quote/domain"
	quoterepo "github.com/smallbiznis/facturo/internal/quote/repository"
	"github.com/smallbiznis/facturo/internal/quote/service"
	sequencedomain "github.com/smallbiznis/facturo/internal/sequence/domain"
	sequencerepo "github.com/smallbiznis/facturo/internal/sequence/repository"
	sequenceservice "github.com/smallbiznis/facturo/internal/sequence/service"
	"github.com/smallbiznis/facturo/internal/usagegate"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func dec(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	// sqlite has no FOR UPDATE; row locks are a no-op on a single conn.
	require.NoError(t, db.Callback().Query().Before("gorm:query").Register("sqlite_no_lock", func(d *gorm.DB) {
		delete(d.Statement.Clauses, "FOR UPDATE")
	}))

	require.NoError(t, db.AutoMigrate(
		&accountdomain.Account{},
		&clientdomain.Client{},
		&catalogdomain.Prestation{},
		&domain.Quote{},
		&domain.QuoteLine{},
		&invoicedomain.Invoice{},
		&invoicedomain.InvoiceLine{},
		&sequencedomain.DocumentCounter{},
	))
	return db
}

type fixture struct {
	db           *gorm.DB
	node         *snowflake.Node
	fake         *clock.FakeClock
	svc          domain.Service
	accountID    snowflake.ID
	clientID     snowflake.ID
	prestationID snowflake.ID
	ctx          context.Context
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := setupTestDB(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fake := clock.NewFakeClock(time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC))

	now := fake.Now()
	account := accountdomain.Account{
		ID:              node.Generate(),
		Name:            "Atelier",
		Email:           "pro@example.fr",
		PlanCode:        plan.CodePro,
		PaymentTermDays: 30,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	require.NoError(t, db.Create(&account).Error)

	client := clientdomain.Client{
		ID:        node.Generate(),
		AccountID: account.ID,
		Kind:      clientdomain.KindOrganization,
		Name:      "ACME SARL",
		Email:     "compta@acme.fr",
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, db.Create(&client).Error)

	prestation := catalogdomain.Prestation{
		ID:             node.Generate(),
		AccountID:      account.ID,
		Label:          "Développement",
		PricingMode:    catalogdomain.PricingDaily,
		DefaultRate:    dec("500.00"),
		DefaultTaxRate: dec("20"),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	require.NoError(t, db.Create(&prestation).Error)

	allocator := sequenceservice.New(sequenceservice.Params{
		Log:   zap.NewNop(),
		Clock: fake,
		Repo:  sequencerepo.Provide(),
	})
	gate := usagegate.New(usagegate.Params{
		DB:          db,
		Log:         zap.NewNop(),
		AccountRepo: accountrepo.Provide(),
	})
	svc := service.New(service.Params{
		DB:          db,
		Log:         zap.NewNop(),
		Clock:       fake,
		GenID:       node,
		Repo:        quoterepo.Provide(),
		InvoiceRepo: invoicerepo.Provide(),
		AccountRepo: accountrepo.Provide(),
		ClientRepo:  clientrepo.Provide(),
		CatalogRepo: catalogrepo.Provide(),
		Allocator:   allocator,
		Gate:        gate,
	})

	return &fixture{
		db:           db,
		node:         node,
		fake:         fake,
		svc:          svc,
		accountID:    account.ID,
		clientID:     client.ID,
		prestationID: prestation.ID,
		ctx:          accountctx.WithAccountID(context.Background(), account.ID),
	}
}

func (f *fixture) createQuote(t *testing.T, deposit decimal.Decimal) domain.Quote {
	t.Helper()

	quote, err := f.svc.Create(f.ctx, domain.CreateQuoteRequest{
		ClientID:       f.clientID.String(),
		DepositPercent: deposit,
		Lines: []domain.LineInput{
			{Description: "Développement", Quantity: dec("2"), UnitPrice: dec("100.00"), TaxRate: dec("20")},
		},
		Metadata: datatypes.JSON(`{"project":"refonte-site"}`),
	})
	require.NoError(t, err)
	return quote
}

func (f *fixture) moveTo(t *testing.T, id snowflake.ID, statuses ...domain.Status) domain.Quote {
	t.Helper()

	var quote domain.Quote
	var err error
	for _, status := range statuses {
		quote, err = f.svc.UpdateStatus(f.ctx, domain.UpdateStatusRequest{ID: id.String(), Status: status})
		require.NoError(t, err)
	}
	return quote
}

func TestCreateQuoteNumberAndTotals(t *testing.T) {
	f := newFixture(t)

	quote := f.createQuote(t, decimal.Zero)
	require.Equal(t, "DEV-2026-00001", quote.Number)
	require.Equal(t, domain.StatusDraft, quote.Status)
	require.True(t, quote.TotalHT.Equal(dec("200.00")))
	require.True(t, quote.TotalTax.Equal(dec("40.00")))
	require.True(t, quote.TotalTTC.Equal(dec("240.00")))
	require.True(t, quote.DepositAmount.IsZero())
	require.Len(t, quote.Lines, 1)

	// Validity defaults to one month after issue.
	require.Equal(t, f.fake.Now().AddDate(0, 1, 0), quote.ValidityDate)
}

func TestCreateQuoteDeposit(t *testing.T) {
	f := newFixture(t)

	quote := f.createQuote(t, dec("30"))
	require.True(t, quote.DepositAmount.Equal(dec("72.00")), "got %s", quote.DepositAmount)

	_, err := f.svc.Create(f.ctx, domain.CreateQuoteRequest{
		ClientID:       f.clientID.String(),
		DepositPercent: dec("150"),
		Lines: []domain.LineInput{
			{Description: "Conseil", Quantity: dec("1"), UnitPrice: dec("100.00"), TaxRate: dec("20")},
		},
	})
	require.ErrorIs(t, err, domain.ErrInvalidDeposit)
}

func TestCreateQuotePrestationPrefill(t *testing.T) {
	f := newFixture(t)

	quote, err := f.svc.Create(f.ctx, domain.CreateQuoteRequest{
		ClientID: f.clientID.String(),
		Lines: []domain.LineInput{
			{PrestationID: f.prestationID.String(), Quantity: dec("3")},
		},
	})
	require.NoError(t, err)
	require.Len(t, quote.Lines, 1)

	line := quote.Lines[0]
	require.Equal(t, "Développement", line.Description)
	require.Equal(t, "day", line.Unit)
	require.True(t, line.UnitPrice.Equal(dec("500.00")))
	require.True(t, line.TaxRate.Equal(dec("20")))
	require.True(t, quote.TotalHT.Equal(dec("1500.00")), "got %s", quote.TotalHT)
}

func TestQuoteConversionCopiesDocument(t *testing.T) {
	f := newFixture(t)

	quote := f.createQuote(t, decimal.Zero)
	f.moveTo(t, quote.ID, domain.StatusSent, domain.StatusAccepted)

	invoice, err := f.svc.ConvertToInvoice(f.ctx, quote.ID.String())
	require.NoError(t, err)
	require.Equal(t, "FAC-2026-00001", invoice.Number)
	require.Equal(t, invoicedomain.StatusDraft, invoice.Status)
	require.True(t, invoice.TotalTTC.Equal(quote.TotalTTC))
	require.Len(t, invoice.Lines, len(quote.Lines))
	require.NotNil(t, invoice.QuoteID)
	require.Equal(t, quote.ID, *invoice.QuoteID)
	require.Equal(t, f.fake.Now().AddDate(0, 0, 30), invoice.DueDate)
	require.JSONEq(t, `{"project":"refonte-site"}`, string(invoice.Metadata))

	// The quote now links to the invoice and is terminal.
	converted, err := f.svc.GetByID(f.ctx, quote.ID.String())
	require.NoError(t, err)
	require.Equal(t, domain.StatusConverted, converted.Status)
	require.NotNil(t, converted.InvoiceID)
	require.Equal(t, invoice.ID, *converted.InvoiceID)
}

func TestQuoteConversionOnlyOnce(t *testing.T) {
	f := newFixture(t)

	quote := f.createQuote(t, decimal.Zero)
	f.moveTo(t, quote.ID, domain.StatusSent, domain.StatusAccepted)

	_, err := f.svc.ConvertToInvoice(f.ctx, quote.ID.String())
	require.NoError(t, err)

	_, err = f.svc.ConvertToInvoice(f.ctx, quote.ID.String())
	require.ErrorIs(t, err, domain.ErrAlreadyConverted)
}

func TestQuoteConversionRequiresAccepted(t *testing.T) {
	f := newFixture(t)

	quote := f.createQuote(t, decimal.Zero)
	_, err := f.svc.ConvertToInvoice(f.ctx, quote.ID.String())
	require.ErrorIs(t, err, domain.ErrNotAccepted)

	f.moveTo(t, quote.ID, domain.StatusSent, domain.StatusRefused)
	_, err = f.svc.ConvertToInvoice(f.ctx, quote.ID.String())
	require.ErrorIs(t, err, domain.ErrNotAccepted)
}

func TestQuoteUpdateStatusGuards(t *testing.T) {
	f := newFixture(t)
	quote := f.createQuote(t, decimal.Zero)

	// Conversion never moves through UpdateStatus.
	_, err := f.svc.UpdateStatus(f.ctx, domain.UpdateStatusRequest{ID: quote.ID.String(), Status: domain.StatusConverted})
	require.ErrorIs(t, err, domain.ErrIllegalTransition)

	// A draft cannot jump straight to ACCEPTED.
	_, err = f.svc.UpdateStatus(f.ctx, domain.UpdateStatusRequest{ID: quote.ID.String(), Status: domain.StatusAccepted})
	require.ErrorIs(t, err, domain.ErrIllegalTransition)
}

func TestQuoteSendRequiresClientEmail(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.db.Model(&clientdomain.Client{}).
		Where("id = ?", f.clientID).
		Update("email", "").Error)

	quote := f.createQuote(t, decimal.Zero)
	_, err := f.svc.UpdateStatus(f.ctx, domain.UpdateStatusRequest{ID: quote.ID.String(), Status: domain.StatusSent})
	require.ErrorIs(t, err, invoicedomain.ErrClientEmailEmpty)
}

func TestQuoteAcceptRequiresClientEmail(t *testing.T) {
	f := newFixture(t)

	quote := f.createQuote(t, decimal.Zero)
	f.moveTo(t, quote.ID, domain.StatusSent)

	// The recipient address went away between send and acceptance.
	require.NoError(t, f.db.Model(&clientdomain.Client{}).
		Where("id = ?", f.clientID).
		Update("email", "").Error)

	_, err := f.svc.UpdateStatus(f.ctx, domain.UpdateStatusRequest{ID: quote.ID.String(), Status: domain.StatusAccepted})
	require.ErrorIs(t, err, invoicedomain.ErrClientEmailEmpty)

	require.NoError(t, f.db.Model(&clientdomain.Client{}).
		Where("id = ?", f.clientID).
		Update("email", "compta@acme.fr").Error)

	accepted, err := f.svc.UpdateStatus(f.ctx, domain.UpdateStatusRequest{ID: quote.ID.String(), Status: domain.StatusAccepted})
	require.NoError(t, err)
	require.Equal(t, domain.StatusAccepted, accepted.Status)
}

func TestQuoteDeleteOnlyDrafts(t *testing.T) {
	f := newFixture(t)

	draft := f.createQuote(t, decimal.Zero)
	require.NoError(t, f.svc.Delete(f.ctx, draft.ID.String()))

	_, err := f.svc.GetByID(f.ctx, draft.ID.String())
	require.ErrorIs(t, err, domain.ErrNotFound)

	var lineCount int64
	require.NoError(t, f.db.Model(&domain.QuoteLine{}).Where("quote_id = ?", draft.ID).Count(&lineCount).Error)
	require.Zero(t, lineCount, "deleting a draft removes its lines")

	sent := f.createQuote(t, decimal.Zero)
	f.moveTo(t, sent.ID, domain.StatusSent)
	require.ErrorIs(t, f.svc.Delete(f.ctx, sent.ID.String()), domain.ErrNotDraft)
}

func TestQuoteValidityCannotBeInThePast(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Create(f.ctx, domain.CreateQuoteRequest{
		ClientID:     f.clientID.String(),
		ValidityDate: f.fake.Now().AddDate(0, 0, -1),
		Lines: []domain.LineInput{
			{Description: "Conseil", Quantity: dec("1"), UnitPrice: dec("100.00"), TaxRate: dec("20")},
		},
	})
	require.ErrorIs(t, err, domain.ErrInvalidValidityDate)
}

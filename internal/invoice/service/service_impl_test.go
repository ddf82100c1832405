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
	"github.com/smallbiznis/facturo/internal/invoice/domain"
	invoicerepo "github.com/smallbiznis/facturo/internal/invoice/repository"
	"github.com/smallbiznis/facturo/internal/invoice/service"
	"github.com/smallbiznis/facturo/internal/plan"
	sequencedomain "github.com/smallbiznis/facturo/internal/sequence/domain"
	sequencerepo "github.com/smallbiznis/facturo/internal/sequence/repository"
	sequenceservice "github.com/smallbiznis/facturo/internal/sequence/service"
	"github.com/smallbiznis/facturo/internal/usagegate"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
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
		&domain.Invoice{},
		&domain.InvoiceLine{},
		&domain.Payment{},
		&sequencedomain.DocumentCounter{},
	))
	return db
}

type fixture struct {
	db        *gorm.DB
	node      *snowflake.Node
	fake      *clock.FakeClock
	svc       domain.Service
	accountID snowflake.ID
	clientID  snowflake.ID
	ctx       context.Context
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
		Repo:        invoicerepo.Provide(),
		AccountRepo: accountrepo.Provide(),
		ClientRepo:  clientrepo.Provide(),
		CatalogRepo: catalogrepo.Provide(),
		Allocator:   allocator,
		Gate:        gate,
	})

	return &fixture{
		db:        db,
		node:      node,
		fake:      fake,
		svc:       svc,
		accountID: account.ID,
		clientID:  client.ID,
		ctx:       accountctx.WithAccountID(context.Background(), account.ID),
	}
}

func (f *fixture) createInvoice(t *testing.T) domain.Invoice {
	t.Helper()

	inv, err := f.svc.Create(f.ctx, domain.CreateInvoiceRequest{
		ClientID: f.clientID.String(),
		Lines: []domain.LineInput{
			{Description: "Développement", Quantity: dec("1"), UnitPrice: dec("100.00"), TaxRate: dec("20")},
			{Description: "Conseil", Quantity: dec("1"), UnitPrice: dec("100.00"), TaxRate: dec("20")},
		},
	})
	require.NoError(t, err)
	return inv
}

func (f *fixture) sentInvoice(t *testing.T) domain.Invoice {
	t.Helper()

	inv := f.createInvoice(t)
	sent, err := f.svc.UpdateStatus(f.ctx, domain.UpdateStatusRequest{ID: inv.ID.String(), Status: domain.StatusSent})
	require.NoError(t, err)
	return sent
}

func TestCreateInvoiceComputesTotalsAndNumber(t *testing.T) {
	f := newFixture(t)

	inv := f.createInvoice(t)
	require.Equal(t, "FAC-2026-00001", inv.Number)
	require.Equal(t, domain.StatusDraft, inv.Status)
	require.True(t, inv.TotalHT.Equal(dec("200.00")), "got %s", inv.TotalHT)
	require.True(t, inv.TotalTax.Equal(dec("40.00")), "got %s", inv.TotalTax)
	require.True(t, inv.TotalTTC.Equal(dec("240.00")), "got %s", inv.TotalTTC)
	require.True(t, inv.AmountPaid.IsZero())
	require.True(t, inv.AmountDue.Equal(inv.TotalTTC))
	require.Len(t, inv.Lines, 2)

	// Due date falls out of the account payment term.
	require.Equal(t, f.fake.Now().AddDate(0, 0, 30), inv.DueDate)

	second := f.createInvoice(t)
	require.Equal(t, "FAC-2026-00002", second.Number)
}

func TestCreateInvoiceClientTermOverridesAccount(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.db.Model(&clientdomain.Client{}).
		Where("id = ?", f.clientID).
		Update("payment_term_days", 45).Error)

	inv := f.createInvoice(t)
	require.Equal(t, f.fake.Now().AddDate(0, 0, 45), inv.DueDate)
}

func TestCreateInvoiceRejectsPastDueDate(t *testing.T) {
	f := newFixture(t)

	past := f.fake.Now().AddDate(0, 0, -1)
	_, err := f.svc.Create(f.ctx, domain.CreateInvoiceRequest{
		ClientID: f.clientID.String(),
		DueDate:  &past,
		Lines: []domain.LineInput{
			{Description: "Conseil", Quantity: dec("1"), UnitPrice: dec("100.00"), TaxRate: dec("20")},
		},
	})
	require.ErrorIs(t, err, domain.ErrInvalidDueDate)
}

func TestApplyPaymentPartialThenFull(t *testing.T) {
	f := newFixture(t)
	inv := f.sentInvoice(t)

	partial, err := f.svc.ApplyPayment(f.ctx, domain.ApplyPaymentRequest{
		InvoiceID: inv.ID.String(),
		Amount:    dec("100.00"),
		Method:    domain.MethodBankTransfer,
	})
	require.NoError(t, err)
	require.Equal(t, domain.StatusPartiallyPaid, partial.Status)
	require.True(t, partial.AmountPaid.Equal(dec("100.00")))
	require.True(t, partial.AmountDue.Equal(dec("140.00")), "got %s", partial.AmountDue)

	full, err := f.svc.ApplyPayment(f.ctx, domain.ApplyPaymentRequest{
		InvoiceID: inv.ID.String(),
		Amount:    dec("140.00"),
		Method:    domain.MethodCard,
		Reference: "VIR-2026-042",
	})
	require.NoError(t, err)
	require.Equal(t, domain.StatusPaid, full.Status)
	require.True(t, full.AmountDue.IsZero())
	require.True(t, full.AmountPaid.Equal(full.TotalTTC))

	loaded, err := f.svc.GetByID(f.ctx, inv.ID.String())
	require.NoError(t, err)
	require.Len(t, loaded.Payments, 2)
	require.NotEmpty(t, loaded.Payments[0].Reference, "missing reference must be generated")
	require.Equal(t, "VIR-2026-042", loaded.Payments[1].Reference)
}

func TestApplyPaymentOverpaymentRejected(t *testing.T) {
	f := newFixture(t)
	inv := f.sentInvoice(t)

	_, err := f.svc.ApplyPayment(f.ctx, domain.ApplyPaymentRequest{
		InvoiceID: inv.ID.String(),
		Amount:    dec("300.00"),
		Method:    domain.MethodCash,
	})
	require.ErrorIs(t, err, domain.ErrOverpayment)

	// The rejection leaves the invoice and its ledger untouched.
	loaded, err := f.svc.GetByID(f.ctx, inv.ID.String())
	require.NoError(t, err)
	require.Equal(t, domain.StatusSent, loaded.Status)
	require.True(t, loaded.AmountPaid.IsZero())
	require.Empty(t, loaded.Payments)
}

func TestApplyPaymentValidation(t *testing.T) {
	f := newFixture(t)
	inv := f.sentInvoice(t)

	_, err := f.svc.ApplyPayment(f.ctx, domain.ApplyPaymentRequest{
		InvoiceID: inv.ID.String(),
		Amount:    dec("-5.00"),
		Method:    domain.MethodCash,
	})
	require.ErrorIs(t, err, domain.ErrInvalidPayment)

	_, err = f.svc.ApplyPayment(f.ctx, domain.ApplyPaymentRequest{
		InvoiceID: inv.ID.String(),
		Amount:    dec("10.00"),
		Method:    domain.Method("PAYPAL"),
	})
	require.ErrorIs(t, err, domain.ErrInvalidMethod)
}

func TestApplyPaymentRequiresPayableStatus(t *testing.T) {
	f := newFixture(t)
	draft := f.createInvoice(t)

	_, err := f.svc.ApplyPayment(f.ctx, domain.ApplyPaymentRequest{
		InvoiceID: draft.ID.String(),
		Amount:    dec("10.00"),
		Method:    domain.MethodCash,
	})
	require.ErrorIs(t, err, domain.ErrNotPayable)

	paid := f.sentInvoice(t)
	_, err = f.svc.ApplyPayment(f.ctx, domain.ApplyPaymentRequest{
		InvoiceID: paid.ID.String(),
		Amount:    dec("240.00"),
		Method:    domain.MethodBankTransfer,
	})
	require.NoError(t, err)

	_, err = f.svc.ApplyPayment(f.ctx, domain.ApplyPaymentRequest{
		InvoiceID: paid.ID.String(),
		Amount:    dec("1.00"),
		Method:    domain.MethodBankTransfer,
	})
	require.ErrorIs(t, err, domain.ErrNotPayable)
}

func TestConvertToCreditNote(t *testing.T) {
	f := newFixture(t)

	sent := f.sentInvoice(t)
	credited, err := f.svc.ConvertToCreditNote(f.ctx, sent.ID.String())
	require.NoError(t, err)
	require.Equal(t, domain.StatusCredited, credited.Status)

	// Credited invoices accept no further payments.
	_, err = f.svc.ApplyPayment(f.ctx, domain.ApplyPaymentRequest{
		InvoiceID: sent.ID.String(),
		Amount:    dec("10.00"),
		Method:    domain.MethodCash,
	})
	require.ErrorIs(t, err, domain.ErrNotPayable)

	// And cannot be credited twice.
	_, err = f.svc.ConvertToCreditNote(f.ctx, sent.ID.String())
	require.ErrorIs(t, err, domain.ErrNotCreditable)

	draft := f.createInvoice(t)
	_, err = f.svc.ConvertToCreditNote(f.ctx, draft.ID.String())
	require.ErrorIs(t, err, domain.ErrNotCreditable)
}

func TestUpdateStatusGuards(t *testing.T) {
	f := newFixture(t)
	inv := f.createInvoice(t)

	// Payment-driven and credit states never move through
	// UpdateStatus, and OVERDUE belongs to the dunning sweep alone.
	for _, target := range []domain.Status{domain.StatusPaid, domain.StatusPartiallyPaid, domain.StatusCredited, domain.StatusOverdue, domain.StatusDraft} {
		_, err := f.svc.UpdateStatus(f.ctx, domain.UpdateStatusRequest{ID: inv.ID.String(), Status: target})
		require.ErrorIs(t, err, domain.ErrIllegalTransition, "target %s", target)
	}

	_, err := f.svc.UpdateStatus(f.ctx, domain.UpdateStatusRequest{ID: inv.ID.String(), Status: domain.StatusViewed})
	require.ErrorIs(t, err, domain.ErrIllegalTransition)

	sent, err := f.svc.UpdateStatus(f.ctx, domain.UpdateStatusRequest{ID: inv.ID.String(), Status: domain.StatusSent})
	require.NoError(t, err)
	require.Equal(t, domain.StatusSent, sent.Status)

	// The sweep still reaches OVERDUE, but a sent invoice cannot be
	// flipped there by hand.
	_, err = f.svc.UpdateStatus(f.ctx, domain.UpdateStatusRequest{ID: inv.ID.String(), Status: domain.StatusOverdue})
	require.ErrorIs(t, err, domain.ErrIllegalTransition)
}

func TestUpdateStatusSentRequiresClientEmail(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.db.Model(&clientdomain.Client{}).
		Where("id = ?", f.clientID).
		Update("email", "").Error)

	inv := f.createInvoice(t)
	_, err := f.svc.UpdateStatus(f.ctx, domain.UpdateStatusRequest{ID: inv.ID.String(), Status: domain.StatusSent})
	require.ErrorIs(t, err, domain.ErrClientEmailEmpty)
}

func TestInvoiceAccountScoping(t *testing.T) {
	f := newFixture(t)
	inv := f.createInvoice(t)

	otherCtx := accountctx.WithAccountID(context.Background(), f.node.Generate())
	_, err := f.svc.GetByID(otherCtx, inv.ID.String())
	require.ErrorIs(t, err, domain.ErrNotFound)
}

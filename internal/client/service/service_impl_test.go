package service_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	accountdomain "github.com/smallbiznis/facturo/internal/account/domain"
	accountrepo "github.com/smallbiznis/facturo/internal/account/repository"
	"github.com/smallbiznis/facturo/internal/accountctx"
	"github.com/smallbiznis/facturo/internal/client/domain"
	clientrepo "github.com/smallbiznis/facturo/internal/client/repository"
	"github.com/smallbiznis/facturo/internal/client/service"
	"github.com/smallbiznis/facturo/internal/clock"
	invoicedomain "github.com/smallbiznis/facturo/internal/invoice/domain"
	"github.com/smallbiznis/facturo/internal/plan"
	quotedomain "github.com/smallbiznis/facturo/internal/quote/domain"
	"github.com/smallbiznis/facturo/internal/usagegate"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&accountdomain.Account{},
		&domain.Client{},
		&quotedomain.Quote{},
		&invoicedomain.Invoice{},
	))
	return db
}

type fixture struct {
	db        *gorm.DB
	node      *snowflake.Node
	fake      *clock.FakeClock
	svc       domain.Service
	accountID snowflake.ID
	ctx       context.Context
}

func newFixture(t *testing.T, planCode string) *fixture {
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
		PlanCode:        planCode,
		PaymentTermDays: 30,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	require.NoError(t, db.Create(&account).Error)

	gate := usagegate.New(usagegate.Params{
		DB:          db,
		Log:         zap.NewNop(),
		AccountRepo: accountrepo.Provide(),
	})
	svc := service.New(service.Params{
		DB:    db,
		Log:   zap.NewNop(),
		Clock: fake,
		GenID: node,
		Repo:  clientrepo.Provide(),
		Gate:  gate,
	})

	return &fixture{
		db:        db,
		node:      node,
		fake:      fake,
		svc:       svc,
		accountID: account.ID,
		ctx:       accountctx.WithAccountID(context.Background(), account.ID),
	}
}

func (f *fixture) createClient(t *testing.T, name string) domain.Client {
	t.Helper()

	client, err := f.svc.Create(f.ctx, domain.CreateClientRequest{
		Kind:  domain.KindOrganization,
		Name:  name,
		Email: "compta@acme.fr",
	})
	require.NoError(t, err)
	return client
}

func TestCreateClientValidation(t *testing.T) {
	f := newFixture(t, plan.CodePro)

	_, err := f.svc.Create(f.ctx, domain.CreateClientRequest{Kind: "ROBOT", Name: "x", Email: "x@y.fr"})
	require.ErrorIs(t, err, domain.ErrInvalidKind)

	_, err = f.svc.Create(f.ctx, domain.CreateClientRequest{Kind: domain.KindPerson, Name: "   ", Email: "x@y.fr"})
	require.ErrorIs(t, err, domain.ErrInvalidName)

	_, err = f.svc.Create(f.ctx, domain.CreateClientRequest{Kind: domain.KindPerson, Name: "Jean", Email: "not-an-email"})
	require.ErrorIs(t, err, domain.ErrInvalidEmail)
}

func TestCreateClientFreePlanCap(t *testing.T) {
	f := newFixture(t, plan.CodeFree)

	for i := 0; i < 5; i++ {
		f.createClient(t, fmt.Sprintf("Client %d", i))
	}

	_, err := f.svc.Create(f.ctx, domain.CreateClientRequest{
		Kind:  domain.KindPerson,
		Name:  "Un de trop",
		Email: "six@example.fr",
	})
	var limitErr *usagegate.LimitExceededError
	require.ErrorAs(t, err, &limitErr)
	require.Equal(t, plan.ResourceClient, limitErr.Resource)
}

func TestDeleteClientRefusedWhileReferenced(t *testing.T) {
	f := newFixture(t, plan.CodePro)
	client := f.createClient(t, "ACME SARL")

	now := f.fake.Now()
	quote := quotedomain.Quote{
		ID:        f.node.Generate(),
		AccountID: f.accountID,
		ClientID:  client.ID,
		Number:    "DEV-2026-00001",
		Status:    quotedomain.StatusSent,
		IssueDate: now,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, f.db.Create(&quote).Error)

	err := f.svc.Delete(f.ctx, client.ID.String())
	require.ErrorIs(t, err, domain.ErrClientInUse)

	// Terminal documents no longer block deletion.
	require.NoError(t, f.db.Model(&quotedomain.Quote{}).
		Where("id = ?", quote.ID).
		Update("status", quotedomain.StatusRefused).Error)

	require.NoError(t, f.svc.Delete(f.ctx, client.ID.String()))
	_, err = f.svc.GetByID(f.ctx, client.ID.String())
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDeleteClientRefusedWithOpenInvoice(t *testing.T) {
	f := newFixture(t, plan.CodePro)
	client := f.createClient(t, "ACME SARL")

	now := f.fake.Now()
	invoice := invoicedomain.Invoice{
		ID:        f.node.Generate(),
		AccountID: f.accountID,
		ClientID:  client.ID,
		Number:    "FAC-2026-00001",
		Status:    invoicedomain.StatusOverdue,
		IssueDate: now,
		DueDate:   now.AddDate(0, 0, -10),
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, f.db.Create(&invoice).Error)

	err := f.svc.Delete(f.ctx, client.ID.String())
	require.ErrorIs(t, err, domain.ErrClientInUse)

	require.NoError(t, f.db.Model(&invoicedomain.Invoice{}).
		Where("id = ?", invoice.ID).
		Update("status", invoicedomain.StatusPaid).Error)
	require.NoError(t, f.svc.Delete(f.ctx, client.ID.String()))
}

func TestUpdateClientPartial(t *testing.T) {
	f := newFixture(t, plan.CodePro)
	client := f.createClient(t, "ACME SARL")

	newName := "ACME SAS"
	term := 60
	updated, err := f.svc.Update(f.ctx, domain.UpdateClientRequest{
		ID:              client.ID.String(),
		Name:            &newName,
		PaymentTermDays: &term,
	})
	require.NoError(t, err)
	require.Equal(t, "ACME SAS", updated.Name)
	require.Equal(t, 60, updated.PaymentTermDays)
	require.Equal(t, client.Email, updated.Email, "untouched fields keep their value")
}

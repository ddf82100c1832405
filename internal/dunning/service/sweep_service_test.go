package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	accountdomain "github.com/smallbiznis/facturo/internal/account/domain"
	accountrepo "github.com/smallbiznis/facturo/internal/account/repository"
	clientdomain "github.com/smallbiznis/facturo/internal/client/domain"
	clientrepo "github.com/smallbiznis/facturo/internal/client/repository"
	"github.com/smallbiznis/facturo/internal/clock"
	"github.com/smallbiznis/facturo/internal/config"
	"github.com/smallbiznis/facturo/internal/dunning/domain"
	dunningrepo "github.com/smallbiznis/facturo/internal/dunning/repository"
	"github.com/smallbiznis/facturo/internal/dunning/service"
	invoicedomain "github.com/smallbiznis/facturo/internal/invoice/domain"
	invoicerepo "github.com/smallbiznis/facturo/internal/invoice/repository"
	notificationdomain "github.com/smallbiznis/facturo/internal/notification/domain"
	notificationrepo "github.com/smallbiznis/facturo/internal/notification/repository"
	"github.com/smallbiznis/facturo/internal/plan"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type sentMail struct {
	To      []string
	Subject string
}

type captureProvider struct {
	mu   sync.Mutex
	sent []sentMail
	fail bool
}

func (p *captureProvider) Send(ctx context.Context, to []string, subject string, htmlBody string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("smtp unavailable")
	}
	p.sent = append(p.sent, sentMail{To: to, Subject: subject})
	return nil
}

func (p *captureProvider) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sent)
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&accountdomain.Account{},
		&clientdomain.Client{},
		&invoicedomain.Invoice{},
		&domain.Settings{},
		&notificationdomain.Notification{},
	))
	return db
}

type fixture struct {
	db       *gorm.DB
	node     *snowflake.Node
	fake     *clock.FakeClock
	sweeper  *service.Sweeper
	provider *captureProvider
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := setupTestDB(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fake := clock.NewFakeClock(time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC))

	holder, err := config.NewStaticDunningConfigHolder(config.DefaultDunningConfig())
	require.NoError(t, err)

	provider := &captureProvider{}
	sweeper := service.NewSweeper(service.SweepParams{
		DB:          db,
		Log:         zap.NewNop(),
		Clock:       fake,
		GenID:       node,
		Holder:      holder,
		Repo:        dunningrepo.Provide(),
		InvoiceRepo: invoicerepo.Provide(),
		AccountRepo: accountrepo.Provide(),
		ClientRepo:  clientrepo.Provide(),
		NotifRepo:   notificationrepo.Provide(),
		Email:       provider,
	})

	return &fixture{db: db, node: node, fake: fake, sweeper: sweeper, provider: provider}
}

func (f *fixture) seedAccount(t *testing.T, planCode string) snowflake.ID {
	t.Helper()

	now := f.fake.Now()
	account := accountdomain.Account{
		ID:              f.node.Generate(),
		Name:            "Atelier",
		Email:           "pro@example.fr",
		PlanCode:        planCode,
		PaymentTermDays: 30,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	require.NoError(t, f.db.Create(&account).Error)
	return account.ID
}

func (f *fixture) seedClient(t *testing.T, accountID snowflake.ID, email string) snowflake.ID {
	t.Helper()

	now := f.fake.Now()
	client := clientdomain.Client{
		ID:        f.node.Generate(),
		AccountID: accountID,
		Kind:      clientdomain.KindOrganization,
		Name:      "ACME SARL",
		Email:     email,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, f.db.Create(&client).Error)
	return client.ID
}

func (f *fixture) seedOverdueInvoice(t *testing.T, accountID, clientID snowflake.ID, number string, daysOverdue int) snowflake.ID {
	t.Helper()

	now := f.fake.Now()
	invoice := invoicedomain.Invoice{
		ID:         f.node.Generate(),
		AccountID:  accountID,
		ClientID:   clientID,
		Number:     number,
		Status:     invoicedomain.StatusSent,
		IssueDate:  now.AddDate(0, 0, -daysOverdue-30),
		DueDate:    now.AddDate(0, 0, -daysOverdue),
		TotalHT:    decimal.RequireFromString("200.00"),
		TotalTax:   decimal.RequireFromString("40.00"),
		TotalTTC:   decimal.RequireFromString("240.00"),
		AmountPaid: decimal.Zero,
		AmountDue:  decimal.RequireFromString("240.00"),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	require.NoError(t, f.db.Create(&invoice).Error)
	return invoice.ID
}

func (f *fixture) reload(t *testing.T, id snowflake.ID) invoicedomain.Invoice {
	t.Helper()

	var invoice invoicedomain.Invoice
	require.NoError(t, f.db.Where("id = ?", id).First(&invoice).Error)
	return invoice
}

func TestSweepSendsFirstReminderOnce(t *testing.T) {
	f := newFixture(t)
	accountID := f.seedAccount(t, plan.CodePro)
	clientID := f.seedClient(t, accountID, "compta@acme.fr")
	invoiceID := f.seedOverdueInvoice(t, accountID, clientID, "FAC-2026-00001", 3)

	report, err := f.sweeper.Sweep(context.Background(), 100)
	require.NoError(t, err)
	require.Equal(t, 1, report.Processed)
	require.Equal(t, 1, report.Sent())
	require.Equal(t, 1, report.SentByTier[1])
	require.Equal(t, 1, f.provider.count())

	invoice := f.reload(t, invoiceID)
	require.Equal(t, invoicedomain.StatusOverdue, invoice.Status)
	require.Equal(t, 1, invoice.ReminderCount)
	require.NotNil(t, invoice.LastReminderAt)

	var notifications []notificationdomain.Notification
	require.NoError(t, f.db.Where("account_id = ?", accountID).Find(&notifications).Error)
	require.Len(t, notifications, 1)
	require.Equal(t, notificationdomain.KindReminderSent, notifications[0].Kind)
	require.Equal(t, 1, notifications[0].Tier)

	// An immediate rerun converges on the persisted state and sends
	// nothing new.
	report, err = f.sweeper.Sweep(context.Background(), 100)
	require.NoError(t, err)
	require.Equal(t, 0, report.Sent())
	require.Equal(t, 1, report.Skipped)
	require.Equal(t, 1, f.provider.count())
}

func TestSweepEscalatesThroughTiers(t *testing.T) {
	f := newFixture(t)
	accountID := f.seedAccount(t, plan.CodePro)
	clientID := f.seedClient(t, accountID, "compta@acme.fr")
	invoiceID := f.seedOverdueInvoice(t, accountID, clientID, "FAC-2026-00001", 1)

	sweepDays := map[int]int{}
	// Sweep daily for six weeks, recording which day each tier fired.
	for day := 0; day < 42; day++ {
		report, err := f.sweeper.Sweep(context.Background(), 100)
		require.NoError(t, err)
		for tier, n := range report.SentByTier {
			if n > 0 {
				sweepDays[tier] = day
			}
		}
		f.fake.Advance(24 * time.Hour)
	}

	require.Equal(t, 4, f.provider.count(), "each tier fires exactly once")
	require.Equal(t, 0, sweepDays[1], "tier 1 on the first sweep")
	require.Equal(t, 6, sweepDays[2], "tier 2 at 7 days overdue")
	require.Equal(t, 14, sweepDays[3], "tier 3 at 15 days overdue")
	require.Equal(t, 29, sweepDays[4], "tier 4 at 30 days overdue")

	invoice := f.reload(t, invoiceID)
	require.Equal(t, 4, invoice.ReminderCount)
}

func TestSweepSkipsFreePlan(t *testing.T) {
	f := newFixture(t)
	accountID := f.seedAccount(t, plan.CodeFree)
	clientID := f.seedClient(t, accountID, "compta@acme.fr")
	f.seedOverdueInvoice(t, accountID, clientID, "FAC-2026-00001", 5)

	report, err := f.sweeper.Sweep(context.Background(), 100)
	require.NoError(t, err)
	require.Equal(t, 0, report.Sent())
	require.Equal(t, 1, report.Skipped)
	require.Zero(t, f.provider.count())
}

func TestSweepHonorsAccountSettings(t *testing.T) {
	f := newFixture(t)
	accountID := f.seedAccount(t, plan.CodePro)
	clientID := f.seedClient(t, accountID, "compta@acme.fr")
	f.seedOverdueInvoice(t, accountID, clientID, "FAC-2026-00001", 5)

	settings := domain.DefaultSettings(accountID, f.fake.Now())
	settings.Enabled = false
	require.NoError(t, f.db.Create(&settings).Error)

	report, err := f.sweeper.Sweep(context.Background(), 100)
	require.NoError(t, err)
	require.Equal(t, 0, report.Sent())
	require.Equal(t, 1, report.Skipped)
	require.Zero(t, f.provider.count())
}

func TestSweepHonorsTierToggle(t *testing.T) {
	f := newFixture(t)
	accountID := f.seedAccount(t, plan.CodePro)
	clientID := f.seedClient(t, accountID, "compta@acme.fr")
	invoiceID := f.seedOverdueInvoice(t, accountID, clientID, "FAC-2026-00001", 5)

	settings := domain.DefaultSettings(accountID, f.fake.Now())
	settings.Tier1Enabled = false
	require.NoError(t, f.db.Create(&settings).Error)

	report, err := f.sweeper.Sweep(context.Background(), 100)
	require.NoError(t, err)
	require.Equal(t, 0, report.Sent())
	require.Equal(t, 1, report.Skipped)
	require.Equal(t, 0, f.reload(t, invoiceID).ReminderCount)
}

func TestSweepIsolatesPerInvoiceErrors(t *testing.T) {
	f := newFixture(t)
	accountID := f.seedAccount(t, plan.CodePro)

	// The older invoice belongs to a client without an email address,
	// so its reminder fails; the younger one must still be processed.
	brokenClient := f.seedClient(t, accountID, "")
	okClient := f.seedClient(t, accountID, "compta@acme.fr")
	brokenID := f.seedOverdueInvoice(t, accountID, brokenClient, "FAC-2026-00001", 10)
	okID := f.seedOverdueInvoice(t, accountID, okClient, "FAC-2026-00002", 5)

	report, err := f.sweeper.Sweep(context.Background(), 100)
	require.NoError(t, err)
	require.Equal(t, 2, report.Processed)
	require.Equal(t, 1, report.Sent())
	require.Equal(t, 1, report.Errored)

	require.Equal(t, 0, f.reload(t, brokenID).ReminderCount)
	require.Equal(t, 1, f.reload(t, okID).ReminderCount)

	var errored []notificationdomain.Notification
	require.NoError(t, f.db.
		Where("account_id = ? AND kind = ?", accountID, notificationdomain.KindReminderError).
		Find(&errored).Error)
	require.Len(t, errored, 1)
}

func TestSweepDeliveryFailureLeavesStateUntouched(t *testing.T) {
	f := newFixture(t)
	accountID := f.seedAccount(t, plan.CodePro)
	clientID := f.seedClient(t, accountID, "compta@acme.fr")
	invoiceID := f.seedOverdueInvoice(t, accountID, clientID, "FAC-2026-00001", 3)

	f.provider.fail = true
	report, err := f.sweeper.Sweep(context.Background(), 100)
	require.NoError(t, err)
	require.Equal(t, 1, report.Errored)
	require.Equal(t, 0, f.reload(t, invoiceID).ReminderCount)

	// Once delivery recovers, the reminder goes out on the next run.
	f.provider.fail = false
	report, err = f.sweeper.Sweep(context.Background(), 100)
	require.NoError(t, err)
	require.Equal(t, 1, report.Sent())
	require.Equal(t, 1, f.reload(t, invoiceID).ReminderCount)
}

func TestSweepExcludesExhaustedInvoicesFromBatch(t *testing.T) {
	f := newFixture(t)
	accountID := f.seedAccount(t, plan.CodePro)
	clientID := f.seedClient(t, accountID, "compta@acme.fr")

	// Two invoices already at the last rung sort first by due date;
	// they must not occupy batch slots ahead of the eligible one.
	lastReminder := f.fake.Now().AddDate(0, 0, -10)
	for i, number := range []string{"FAC-2026-00001", "FAC-2026-00002"} {
		id := f.seedOverdueInvoice(t, accountID, clientID, number, 60-i)
		require.NoError(t, f.db.Model(&invoicedomain.Invoice{}).
			Where("id = ?", id).
			Updates(map[string]any{
				"status":           invoicedomain.StatusOverdue,
				"reminder_count":   4,
				"last_reminder_at": lastReminder,
			}).Error)
	}
	eligibleID := f.seedOverdueInvoice(t, accountID, clientID, "FAC-2026-00003", 3)

	report, err := f.sweeper.Sweep(context.Background(), 2)
	require.NoError(t, err)
	require.Equal(t, 1, report.Processed)
	require.Equal(t, 1, report.Sent())
	require.Equal(t, 1, f.reload(t, eligibleID).ReminderCount)
}

func TestSweepRespectsBatchSize(t *testing.T) {
	f := newFixture(t)
	accountID := f.seedAccount(t, plan.CodePro)
	clientID := f.seedClient(t, accountID, "compta@acme.fr")
	for i := 0; i < 5; i++ {
		f.seedOverdueInvoice(t, accountID, clientID, fmt.Sprintf("FAC-2026-%05d", i+1), 10-i)
	}

	report, err := f.sweeper.Sweep(context.Background(), 3)
	require.NoError(t, err)
	require.Equal(t, 3, report.Processed)
}

func TestSweepStopsOnCancelledContext(t *testing.T) {
	f := newFixture(t)
	accountID := f.seedAccount(t, plan.CodePro)
	clientID := f.seedClient(t, accountID, "compta@acme.fr")
	f.seedOverdueInvoice(t, accountID, clientID, "FAC-2026-00001", 3)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.sweeper.Sweep(ctx, 100)
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, f.provider.count())
}

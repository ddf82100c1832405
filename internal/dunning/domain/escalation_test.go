package domain_test

import (
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/facturo/internal/config"
	"github.com/smallbiznis/facturo/internal/dunning/domain"
	invoicedomain "github.com/smallbiznis/facturo/internal/invoice/domain"
	"github.com/stretchr/testify/require"
)

var testDue = time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

func overdueInvoice(reminderCount int, lastReminderAt *time.Time) *invoicedomain.Invoice {
	return &invoicedomain.Invoice{
		ID:             snowflake.ID(1),
		AccountID:      snowflake.ID(2),
		Status:         invoicedomain.StatusSent,
		DueDate:        testDue,
		ReminderCount:  reminderCount,
		LastReminderAt: lastReminderAt,
	}
}

func enabledSettings() domain.Settings {
	return domain.DefaultSettings(snowflake.ID(2), testDue)
}

func TestNextTierFirstReminder(t *testing.T) {
	ladder := config.DefaultDunningConfig()
	now := testDue.AddDate(0, 0, 2)

	tier, skip := domain.NextTier(overdueInvoice(0, nil), enabledSettings(), ladder, now)
	require.Equal(t, domain.SkipNone, skip)
	require.Equal(t, 1, tier)
}

func TestNextTierNotOverdue(t *testing.T) {
	ladder := config.DefaultDunningConfig()

	_, skip := domain.NextTier(overdueInvoice(0, nil), enabledSettings(), ladder, testDue)
	require.Equal(t, domain.SkipNotOverdue, skip)

	_, skip = domain.NextTier(overdueInvoice(0, nil), enabledSettings(), ladder, testDue.Add(-time.Hour))
	require.Equal(t, domain.SkipNotOverdue, skip)
}

func TestNextTierDisabled(t *testing.T) {
	ladder := config.DefaultDunningConfig()
	now := testDue.AddDate(0, 0, 5)

	settings := enabledSettings()
	settings.Enabled = false
	_, skip := domain.NextTier(overdueInvoice(0, nil), settings, ladder, now)
	require.Equal(t, domain.SkipDisabled, skip)
}

func TestNextTierTierDisabled(t *testing.T) {
	ladder := config.DefaultDunningConfig()
	now := testDue.AddDate(0, 0, 5)

	settings := enabledSettings()
	settings.Tier1Enabled = false
	_, skip := domain.NextTier(overdueInvoice(0, nil), settings, ladder, now)
	require.Equal(t, domain.SkipTierDisabled, skip)
}

func TestNextTierTooEarlyForNextRung(t *testing.T) {
	ladder := config.DefaultDunningConfig()
	// Tier 1 already sent; tier 2 requires 7 days overdue.
	last := testDue.AddDate(0, 0, 1)
	now := testDue.AddDate(0, 0, 3)

	_, skip := domain.NextTier(overdueInvoice(1, &last), enabledSettings(), ladder, now)
	require.Equal(t, domain.SkipTooEarly, skip)
}

func TestNextTierSpacingBlocksRapidEscalation(t *testing.T) {
	ladder := config.DefaultDunningConfig()
	// Deep overdue, but tier 3 requires 7 days since the last reminder.
	now := testDue.AddDate(0, 0, 20)
	last := now.AddDate(0, 0, -3)

	_, skip := domain.NextTier(overdueInvoice(2, &last), enabledSettings(), ladder, now)
	require.Equal(t, domain.SkipSpacing, skip)

	// Once both thresholds are met, tier 3 fires.
	last = now.AddDate(0, 0, -7)
	tier, skip := domain.NextTier(overdueInvoice(2, &last), enabledSettings(), ladder, now)
	require.Equal(t, domain.SkipNone, skip)
	require.Equal(t, 3, tier)
}

func TestNextTierExhaustedAfterLastRung(t *testing.T) {
	ladder := config.DefaultDunningConfig()
	now := testDue.AddDate(0, 0, 90)
	last := now.AddDate(0, 0, -30)

	_, skip := domain.NextTier(overdueInvoice(4, &last), enabledSettings(), ladder, now)
	require.Equal(t, domain.SkipExhausted, skip)
}

func TestNextTierRetryConvergesAfterRecordedSend(t *testing.T) {
	ladder := config.DefaultDunningConfig()
	now := testDue.AddDate(0, 0, 8)

	inv := overdueInvoice(0, nil)
	tier, skip := domain.NextTier(inv, enabledSettings(), ladder, now)
	require.Equal(t, domain.SkipNone, skip)
	require.Equal(t, 1, tier)

	// After the send is recorded, an immediate rerun must not fire
	// tier 2: it needs 6 days since the last reminder.
	inv.ReminderCount = 1
	inv.LastReminderAt = &now
	_, skip = domain.NextTier(inv, enabledSettings(), ladder, now)
	require.Equal(t, domain.SkipSpacing, skip)
}

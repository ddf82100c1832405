package domain

import (
	"time"

	"github.com/smallbiznis/facturo/internal/config"
	invoicedomain "github.com/smallbiznis/facturo/internal/invoice/domain"
)

// SkipReason explains why an overdue invoice receives no reminder on
// this sweep. Values double as metric labels.
type SkipReason string

const (
	SkipNone           SkipReason = ""
	SkipDisabled       SkipReason = "disabled"
	SkipTierDisabled   SkipReason = "tier_disabled"
	SkipNotEntitled    SkipReason = "not_entitled"
	SkipExhausted      SkipReason = "exhausted"
	SkipTooEarly       SkipReason = "too_early"
	SkipSpacing        SkipReason = "spacing"
	SkipNoClientEmail  SkipReason = "no_client_email"
	SkipNotOverdue     SkipReason = "not_overdue"
	SkipUnknownAccount SkipReason = "unknown_account"
)

// NextTier decides which escalation tier, if any, fires for the
// invoice at the given instant. The decision is a pure function of
// persisted invoice fields, the account settings and the configured
// ladder, so overlapping or retried sweeps converge on the same
// answer: once a reminder is recorded, the spacing threshold blocks a
// duplicate without any run bookkeeping.
func NextTier(inv *invoicedomain.Invoice, settings Settings, ladder config.DunningConfig, now time.Time) (int, SkipReason) {
	if !settings.Enabled {
		return 0, SkipDisabled
	}

	if !now.After(inv.DueDate) {
		return 0, SkipNotOverdue
	}
	daysOverdue := int(now.Sub(inv.DueDate).Hours() / 24)

	next := inv.ReminderCount + 1
	var tier *config.DunningTier
	for i := range ladder.Tiers {
		if ladder.Tiers[i].Tier == next {
			tier = &ladder.Tiers[i]
			break
		}
	}
	if tier == nil {
		return 0, SkipExhausted
	}

	if !settings.TierEnabled(next) {
		return 0, SkipTierDisabled
	}
	if daysOverdue < tier.MinDaysOverdue {
		return 0, SkipTooEarly
	}
	if inv.LastReminderAt != nil && tier.MinDaysSinceLast > 0 {
		daysSinceLast := int(now.Sub(*inv.LastReminderAt).Hours() / 24)
		if daysSinceLast < tier.MinDaysSinceLast {
			return 0, SkipSpacing
		}
	}

	return next, SkipNone
}

package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/smallbiznis/facturo/internal/account/domain"
	clientdomain "github.com/smallbiznis/facturo/internal/client/domain"
	"github.com/smallbiznis/facturo/internal/clock"
	"github.com/smallbiznis/facturo/internal/config"
	"github.com/smallbiznis/facturo/internal/dunning/domain"
	invoicedomain "github.com/smallbiznis/facturo/internal/invoice/domain"
	notificationdomain "github.com/smallbiznis/facturo/internal/notification/domain"
	"github.com/smallbiznis/facturo/internal/observability/metrics"
	"github.com/smallbiznis/facturo/internal/plan"
	"github.com/smallbiznis/facturo/internal/providers/email"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type SweepParams struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	Clock       clock.Clock
	GenID       *snowflake.Node
	Holder      *config.DunningConfigHolder
	Repo        domain.Repository
	InvoiceRepo invoicedomain.Repository
	AccountRepo accountdomain.Repository
	ClientRepo  clientdomain.Repository
	NotifRepo   notificationdomain.Repository
	Email       email.Provider
}

// Sweeper walks overdue invoices and escalates reminders tier by tier.
type Sweeper struct {
	db          *gorm.DB
	log         *zap.Logger
	clock       clock.Clock
	genID       *snowflake.Node
	holder      *config.DunningConfigHolder
	repo        domain.Repository
	invoiceRepo invoicedomain.Repository
	accountRepo accountdomain.Repository
	clientRepo  clientdomain.Repository
	notifRepo   notificationdomain.Repository
	email       email.Provider
}

func NewSweeper(p SweepParams) *Sweeper {
	return &Sweeper{
		db:          p.DB,
		log:         p.Log.Named("dunning.sweep"),
		clock:       p.Clock,
		genID:       p.GenID,
		holder:      p.Holder,
		repo:        p.Repo,
		invoiceRepo: p.InvoiceRepo,
		accountRepo: p.AccountRepo,
		clientRepo:  p.ClientRepo,
		notifRepo:   p.NotifRepo,
		email:       p.Email,
	}
}

type accountState struct {
	settings domain.Settings
	entitled bool
	missing  bool
}

// Sweep processes up to batchSize overdue invoices. Each invoice is an
// independent atomic unit: one failure is counted and logged, never
// propagated, so the rest of the batch still makes progress. There is
// no run lock; re-running immediately is safe because the per-invoice
// spacing check blocks duplicate sends.
func (s *Sweeper) Sweep(ctx context.Context, batchSize int) (domain.Report, error) {
	now := s.clock.Now()
	ladder := s.holder.Get()
	report := domain.NewReport()
	m := metrics.Sweep()

	candidates, err := s.invoiceRepo.ListDunningCandidates(ctx, s.db, now, ladder.MaxTier(), batchSize)
	if err != nil {
		return report, err
	}

	states := make(map[snowflake.ID]*accountState)

	for _, inv := range candidates {
		if err := ctx.Err(); err != nil {
			// Mid-run cancellation is safe: processed invoices keep
			// their state, the rest wait for the next run.
			return report, err
		}

		report.Processed++

		state, err := s.accountStateFor(ctx, states, inv.AccountID, now)
		if err != nil {
			report.Errored++
			m.IncSweepError("dunning_sweep", err)
			s.log.Warn("load account state",
				zap.String("invoice_id", inv.ID.String()),
				zap.Error(err),
			)
			continue
		}
		if state.missing {
			report.Skipped++
			m.IncSkipped(string(domain.SkipUnknownAccount))
			continue
		}
		if !state.entitled {
			report.Skipped++
			m.IncSkipped(string(domain.SkipNotEntitled))
			continue
		}

		tier, skip := domain.NextTier(inv, state.settings, ladder, now)
		if skip != domain.SkipNone {
			report.Skipped++
			m.IncSkipped(string(skip))
			continue
		}

		if err := s.remind(ctx, inv, tier, now); err != nil {
			report.Errored++
			m.IncSweepError("dunning_sweep", err)
			s.log.Warn("send reminder",
				zap.String("invoice_id", inv.ID.String()),
				zap.Int("tier", tier),
				zap.Error(err),
			)
			s.recordNotification(ctx, inv, tier, notificationdomain.KindReminderError,
				fmt.Sprintf("reminder tier %d failed for invoice %s", tier, inv.Number), now)
			continue
		}

		report.SentByTier[tier]++
		m.IncReminderSent(tier)
	}

	s.log.Info("sweep finished",
		zap.Int("processed", report.Processed),
		zap.Int("sent", report.Sent()),
		zap.Int("skipped", report.Skipped),
		zap.Int("errored", report.Errored),
	)
	return report, nil
}

func (s *Sweeper) accountStateFor(ctx context.Context, states map[snowflake.ID]*accountState, accountID snowflake.ID, now time.Time) (*accountState, error) {
	if state, ok := states[accountID]; ok {
		return state, nil
	}

	account, err := s.accountRepo.FindByID(ctx, s.db, accountID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		state := &accountState{missing: true}
		states[accountID] = state
		return state, nil
	}

	entitled := false
	if p, ok := plan.ByCode(account.PlanCode); ok {
		entitled = p.AutoDunning
	}

	settings := domain.DefaultSettings(accountID, now)
	stored, err := s.repo.Get(ctx, s.db, accountID)
	if err != nil {
		return nil, err
	}
	if stored != nil {
		settings = *stored
	}

	state := &accountState{settings: settings, entitled: entitled}
	states[accountID] = state
	return state, nil
}

// remind sends the tier email, then persists reminder bookkeeping and
// the OVERDUE status in one update. The email goes first so a storage
// failure leaves the counters untouched and the reminder retries on
// the next run; the reverse order could silently swallow a reminder.
func (s *Sweeper) remind(ctx context.Context, inv *invoicedomain.Invoice, tier int, now time.Time) error {
	client, err := s.clientRepo.FindByID(ctx, s.db, inv.AccountID, inv.ClientID)
	if err != nil {
		return err
	}
	if client == nil {
		return clientdomain.ErrNotFound
	}
	if strings.TrimSpace(client.Email) == "" {
		return invoicedomain.ErrClientEmailEmpty
	}

	daysOverdue := int(now.Sub(inv.DueDate).Hours() / 24)
	err = email.SendReminder(ctx, s.email, client.Email, tier, email.ReminderData{
		ClientName:    client.Name,
		InvoiceNumber: inv.Number,
		AmountDue:     inv.AmountDue.StringFixed(2) + " EUR",
		DueDate:       inv.DueDate.Format("02/01/2006"),
		DaysOverdue:   daysOverdue,
	})
	if err != nil {
		return err
	}

	inv.ReminderCount = tier
	inv.LastReminderAt = &now
	if inv.Status != invoicedomain.StatusOverdue {
		inv.Status = invoicedomain.StatusOverdue
	}
	inv.UpdatedAt = now
	if err := s.invoiceRepo.UpdateReminder(ctx, s.db, inv); err != nil {
		return err
	}

	s.recordNotification(ctx, inv, tier, notificationdomain.KindReminderSent,
		fmt.Sprintf("reminder tier %d sent for invoice %s", tier, inv.Number), now)
	return nil
}

// recordNotification is best effort; a failed insert only logs.
func (s *Sweeper) recordNotification(ctx context.Context, inv *invoicedomain.Invoice, tier int, kind notificationdomain.Kind, message string, now time.Time) {
	metadata, _ := json.Marshal(map[string]any{
		"invoice_number": inv.Number,
		"amount_due":     inv.AmountDue.StringFixed(2),
		"due_date":       inv.DueDate.Format(time.RFC3339),
	})
	notification := notificationdomain.Notification{
		ID:        s.genID.Generate(),
		AccountID: inv.AccountID,
		Kind:      kind,
		InvoiceID: &inv.ID,
		Tier:      tier,
		Message:   message,
		Metadata:  datatypes.JSON(metadata),
		CreatedAt: now,
	}
	if err := s.notifRepo.Insert(ctx, s.db, &notification); err != nil {
		s.log.Warn("record notification",
			zap.String("invoice_id", inv.ID.String()),
			zap.Error(err),
		)
	}
}

// Package usagegate enforces plan limits before resource creation.
// The check is read-then-act: it does not reserve capacity, so a
// narrow race between two concurrent creations is accepted.
package usagegate

import (
	"context"
	"fmt"

	accountdomain "github.com/smallbiznis/facturo/internal/account/domain"
	"github.com/smallbiznis/facturo/internal/accountctx"
	"github.com/smallbiznis/facturo/internal/plan"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// LimitExceededError reports a denied creation with the resource and
// the plan limit that was hit.
type LimitExceededError struct {
	Resource plan.Resource
	Limit    int64
	Current  int64
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("limit_exceeded: %s (%d/%d)", e.Resource, e.Current, e.Limit)
}

var resourceTables = map[plan.Resource]string{
	plan.ResourceClient:     "clients",
	plan.ResourceQuote:      "quotes",
	plan.ResourceInvoice:    "invoices",
	plan.ResourcePrestation: "prestations",
}

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	AccountRepo accountdomain.Repository
}

type Gate struct {
	db          *gorm.DB
	log         *zap.Logger
	accountRepo accountdomain.Repository
}

func New(p Params) *Gate {
	return &Gate{
		db:          p.DB,
		log:         p.Log.Named("usagegate"),
		accountRepo: p.AccountRepo,
	}
}

// CheckLimit allows the creation of one more resource of the given kind,
// or returns a *LimitExceededError when the account's plan cap is reached.
func (g *Gate) CheckLimit(ctx context.Context, resource plan.Resource) error {
	accountID, ok := accountctx.AccountIDFromContext(ctx)
	if !ok || accountID == 0 {
		return accountdomain.ErrInvalidAccount
	}

	account, err := g.accountRepo.FindByID(ctx, g.db, accountID)
	if err != nil {
		return err
	}
	if account == nil {
		return accountdomain.ErrNotFound
	}

	p, ok := plan.ByCode(account.PlanCode)
	if !ok {
		return plan.ErrUnknownPlan
	}

	limit := p.Limit(resource)
	if limit == plan.Unlimited {
		return nil
	}

	table, ok := resourceTables[resource]
	if !ok {
		return nil
	}

	var current int64
	err = g.db.WithContext(ctx).
		Table(table).
		Where("account_id = ?", accountID).
		Count(&current).Error
	if err != nil {
		return err
	}

	if current >= limit {
		g.log.Info("creation denied by plan limit",
			zap.String("resource", string(resource)),
			zap.Int64("limit", limit),
			zap.Int64("current", current),
		)
		return &LimitExceededError{Resource: resource, Limit: limit, Current: current}
	}
	return nil
}

var Module = fx.Module("usagegate", fx.Provide(New))

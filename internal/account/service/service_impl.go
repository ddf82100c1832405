package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/facturo/internal/account/domain"
	"github.com/smallbiznis/facturo/internal/accountctx"
	"github.com/smallbiznis/facturo/internal/clock"
	"github.com/smallbiznis/facturo/internal/plan"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock
	GenID *snowflake.Node
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
	genID *snowflake.Node
	repo  domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("account.service"),
		clock: p.Clock,
		genID: p.GenID,
		repo:  p.Repo,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateAccountRequest) (domain.Account, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Account{}, domain.ErrInvalidName
	}

	email := strings.TrimSpace(req.Email)
	if email == "" || !strings.Contains(email, "@") {
		return domain.Account{}, domain.ErrInvalidEmail
	}

	planCode := strings.TrimSpace(req.PlanCode)
	if planCode == "" {
		planCode = plan.CodeFree
	}
	if _, ok := plan.ByCode(planCode); !ok {
		return domain.Account{}, plan.ErrUnknownPlan
	}

	termDays := req.PaymentTermDays
	if termDays == 0 {
		termDays = domain.DefaultPaymentTermDays
	}
	if termDays < 0 || termDays > 365 {
		return domain.Account{}, domain.ErrInvalidPaymentTerm
	}

	now := s.clock.Now()
	account := domain.Account{
		ID:              s.genID.Generate(),
		Name:            name,
		Email:           email,
		PlanCode:        planCode,
		PaymentTermDays: termDays,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.repo.Insert(ctx, s.db, &account); err != nil {
		return domain.Account{}, err
	}

	return account, nil
}

func (s *Service) Get(ctx context.Context) (domain.Account, error) {
	accountID, ok := accountctx.AccountIDFromContext(ctx)
	if !ok || accountID == 0 {
		return domain.Account{}, domain.ErrInvalidAccount
	}

	item, err := s.repo.FindByID(ctx, s.db, accountID)
	if err != nil {
		return domain.Account{}, err
	}
	if item == nil {
		return domain.Account{}, domain.ErrNotFound
	}

	return *item, nil
}

func (s *Service) Update(ctx context.Context, req domain.UpdateAccountRequest) (domain.Account, error) {
	accountID, ok := accountctx.AccountIDFromContext(ctx)
	if !ok || accountID == 0 {
		return domain.Account{}, domain.ErrInvalidAccount
	}

	item, err := s.repo.FindByID(ctx, s.db, accountID)
	if err != nil {
		return domain.Account{}, err
	}
	if item == nil {
		return domain.Account{}, domain.ErrNotFound
	}

	if req.PaymentTermDays != nil {
		if *req.PaymentTermDays < 0 || *req.PaymentTermDays > 365 {
			return domain.Account{}, domain.ErrInvalidPaymentTerm
		}
		item.PaymentTermDays = *req.PaymentTermDays
	}
	if req.PlanCode != nil {
		code := strings.TrimSpace(*req.PlanCode)
		if _, ok := plan.ByCode(code); !ok {
			return domain.Account{}, plan.ErrUnknownPlan
		}
		item.PlanCode = code
	}

	item.UpdatedAt = s.clock.Now()
	if err := s.repo.Update(ctx, s.db, item); err != nil {
		return domain.Account{}, err
	}

	return *item, nil
}

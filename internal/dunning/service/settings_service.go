package service

import (
	"context"

	accountdomain "github.com/smallbiznis/facturo/internal/account/domain"
	"github.com/smallbiznis/facturo/internal/accountctx"
	"github.com/smallbiznis/facturo/internal/clock"
	"github.com/smallbiznis/facturo/internal/dunning/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type SettingsParams struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock
	Repo  domain.Repository
}

type SettingsService struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
	repo  domain.Repository
}

func NewSettings(p SettingsParams) domain.SettingsService {
	return &SettingsService{
		db:    p.DB,
		log:   p.Log.Named("dunning.settings"),
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *SettingsService) Get(ctx context.Context) (domain.Settings, error) {
	accountID, ok := accountctx.AccountIDFromContext(ctx)
	if !ok || accountID == 0 {
		return domain.Settings{}, accountdomain.ErrInvalidAccount
	}

	stored, err := s.repo.Get(ctx, s.db, accountID)
	if err != nil {
		return domain.Settings{}, err
	}
	if stored == nil {
		return domain.DefaultSettings(accountID, s.clock.Now()), nil
	}
	return *stored, nil
}

func (s *SettingsService) Update(ctx context.Context, req domain.UpdateSettingsRequest) (domain.Settings, error) {
	accountID, ok := accountctx.AccountIDFromContext(ctx)
	if !ok || accountID == 0 {
		return domain.Settings{}, accountdomain.ErrInvalidAccount
	}

	current, err := s.Get(ctx)
	if err != nil {
		return domain.Settings{}, err
	}

	if req.Enabled != nil {
		current.Enabled = *req.Enabled
	}
	if req.Tier1Enabled != nil {
		current.Tier1Enabled = *req.Tier1Enabled
	}
	if req.Tier2Enabled != nil {
		current.Tier2Enabled = *req.Tier2Enabled
	}
	if req.Tier3Enabled != nil {
		current.Tier3Enabled = *req.Tier3Enabled
	}
	if req.Tier4Enabled != nil {
		current.Tier4Enabled = *req.Tier4Enabled
	}

	current.UpdatedAt = s.clock.Now()
	if err := s.repo.Upsert(ctx, s.db, &current); err != nil {
		return domain.Settings{}, err
	}

	return current, nil
}

package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/smallbiznis/facturo/internal/account/domain"
	"github.com/smallbiznis/facturo/internal/accountctx"
	"github.com/smallbiznis/facturo/internal/catalog/domain"
	"github.com/smallbiznis/facturo/internal/clock"
	"github.com/smallbiznis/facturo/internal/plan"
	"github.com/smallbiznis/facturo/internal/usagegate"
	"github.com/smallbiznis/facturo/pkg/db/pagination"
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
	Gate  *usagegate.Gate
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
	genID *snowflake.Node
	repo  domain.Repository
	gate  *usagegate.Gate
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("catalog.service"),
		clock: p.Clock,
		genID: p.GenID,
		repo:  p.Repo,
		gate:  p.Gate,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreatePrestationRequest) (domain.Prestation, error) {
	accountID, ok := accountctx.AccountIDFromContext(ctx)
	if !ok || accountID == 0 {
		return domain.Prestation{}, accountdomain.ErrInvalidAccount
	}

	label := strings.TrimSpace(req.Label)
	if label == "" {
		return domain.Prestation{}, domain.ErrInvalidLabel
	}
	if !req.PricingMode.Valid() {
		return domain.Prestation{}, domain.ErrInvalidPricingMode
	}
	if req.DefaultRate.IsNegative() || req.DefaultTaxRate.IsNegative() {
		return domain.Prestation{}, domain.ErrInvalidRate
	}

	if err := s.gate.CheckLimit(ctx, plan.ResourcePrestation); err != nil {
		return domain.Prestation{}, err
	}

	now := s.clock.Now()
	prestation := domain.Prestation{
		ID:             s.genID.Generate(),
		AccountID:      accountID,
		Label:          label,
		Description:    strings.TrimSpace(req.Description),
		PricingMode:    req.PricingMode,
		DefaultRate:    req.DefaultRate,
		DefaultTaxRate: req.DefaultTaxRate,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.repo.Insert(ctx, s.db, &prestation); err != nil {
		return domain.Prestation{}, err
	}

	return prestation, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (domain.Prestation, error) {
	accountID, ok := accountctx.AccountIDFromContext(ctx)
	if !ok || accountID == 0 {
		return domain.Prestation{}, accountdomain.ErrInvalidAccount
	}

	prestationID, err := s.parseID(id)
	if err != nil {
		return domain.Prestation{}, err
	}

	item, err := s.repo.FindByID(ctx, s.db, accountID, prestationID)
	if err != nil {
		return domain.Prestation{}, err
	}
	if item == nil {
		return domain.Prestation{}, domain.ErrNotFound
	}

	return *item, nil
}

func (s *Service) List(ctx context.Context, req domain.ListPrestationRequest) (domain.ListPrestationResponse, error) {
	accountID, ok := accountctx.AccountIDFromContext(ctx)
	if !ok || accountID == 0 {
		return domain.ListPrestationResponse{}, accountdomain.ErrInvalidAccount
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	items, err := s.repo.List(ctx, s.db, accountID, pagination.Pagination{
		PageToken: req.PageToken,
		PageSize:  int(pageSize),
	})
	if err != nil {
		return domain.ListPrestationResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(prestation *domain.Prestation) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        prestation.ID.String(),
			CreatedAt: prestation.CreatedAt.Format(time.RFC3339),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo != nil && pageInfo.HasMore && len(items) > int(pageSize) {
		items = items[:pageSize]
	}

	prestations := make([]domain.Prestation, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		prestations = append(prestations, *item)
	}

	resp := domain.ListPrestationResponse{Prestations: prestations}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}

	return resp, nil
}

func (s *Service) Update(ctx context.Context, req domain.UpdatePrestationRequest) (domain.Prestation, error) {
	accountID, ok := accountctx.AccountIDFromContext(ctx)
	if !ok || accountID == 0 {
		return domain.Prestation{}, accountdomain.ErrInvalidAccount
	}

	prestationID, err := s.parseID(req.ID)
	if err != nil {
		return domain.Prestation{}, err
	}

	item, err := s.repo.FindByID(ctx, s.db, accountID, prestationID)
	if err != nil {
		return domain.Prestation{}, err
	}
	if item == nil {
		return domain.Prestation{}, domain.ErrNotFound
	}

	if req.Label != nil {
		label := strings.TrimSpace(*req.Label)
		if label == "" {
			return domain.Prestation{}, domain.ErrInvalidLabel
		}
		item.Label = label
	}
	if req.Description != nil {
		item.Description = strings.TrimSpace(*req.Description)
	}
	if req.PricingMode != nil {
		if !req.PricingMode.Valid() {
			return domain.Prestation{}, domain.ErrInvalidPricingMode
		}
		item.PricingMode = *req.PricingMode
	}
	if req.DefaultRate != nil {
		if req.DefaultRate.IsNegative() {
			return domain.Prestation{}, domain.ErrInvalidRate
		}
		item.DefaultRate = *req.DefaultRate
	}
	if req.DefaultTaxRate != nil {
		if req.DefaultTaxRate.IsNegative() {
			return domain.Prestation{}, domain.ErrInvalidRate
		}
		item.DefaultTaxRate = *req.DefaultTaxRate
	}

	item.UpdatedAt = s.clock.Now()
	if err := s.repo.Update(ctx, s.db, item); err != nil {
		return domain.Prestation{}, err
	}

	return *item, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	accountID, ok := accountctx.AccountIDFromContext(ctx)
	if !ok || accountID == 0 {
		return accountdomain.ErrInvalidAccount
	}

	prestationID, err := s.parseID(id)
	if err != nil {
		return err
	}

	item, err := s.repo.FindByID(ctx, s.db, accountID, prestationID)
	if err != nil {
		return err
	}
	if item == nil {
		return domain.ErrNotFound
	}

	return s.repo.Delete(ctx, s.db, accountID, prestationID)
}

func (s *Service) parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}

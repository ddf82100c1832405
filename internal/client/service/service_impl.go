package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/facturo/internal/accountctx"
	accountdomain "github.com/smallbiznis/facturo/internal/account/domain"
	"github.com/smallbiznis/facturo/internal/client/domain"
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
		log:   p.Log.Named("client.service"),
		clock: p.Clock,
		genID: p.GenID,
		repo:  p.Repo,
		gate:  p.Gate,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateClientRequest) (domain.Client, error) {
	accountID, ok := accountctx.AccountIDFromContext(ctx)
	if !ok || accountID == 0 {
		return domain.Client{}, accountdomain.ErrInvalidAccount
	}

	if !req.Kind.Valid() {
		return domain.Client{}, domain.ErrInvalidKind
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Client{}, domain.ErrInvalidName
	}

	email := strings.TrimSpace(req.Email)
	if email == "" || !strings.Contains(email, "@") {
		return domain.Client{}, domain.ErrInvalidEmail
	}

	if err := s.gate.CheckLimit(ctx, plan.ResourceClient); err != nil {
		return domain.Client{}, err
	}

	now := s.clock.Now()
	client := domain.Client{
		ID:              s.genID.Generate(),
		AccountID:       accountID,
		Kind:            req.Kind,
		Name:            name,
		Email:           email,
		AddressLine1:    strings.TrimSpace(req.AddressLine1),
		AddressLine2:    strings.TrimSpace(req.AddressLine2),
		PostalCode:      strings.TrimSpace(req.PostalCode),
		City:            strings.TrimSpace(req.City),
		Country:         strings.TrimSpace(req.Country),
		VATNumber:       strings.TrimSpace(req.VATNumber),
		SIRET:           strings.TrimSpace(req.SIRET),
		PaymentTermDays: req.PaymentTermDays,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.repo.Insert(ctx, s.db, &client); err != nil {
		return domain.Client{}, err
	}

	return client, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (domain.Client, error) {
	accountID, ok := accountctx.AccountIDFromContext(ctx)
	if !ok || accountID == 0 {
		return domain.Client{}, accountdomain.ErrInvalidAccount
	}

	clientID, err := s.parseID(id)
	if err != nil {
		return domain.Client{}, err
	}

	item, err := s.repo.FindByID(ctx, s.db, accountID, clientID)
	if err != nil {
		return domain.Client{}, err
	}
	if item == nil {
		return domain.Client{}, domain.ErrNotFound
	}

	return *item, nil
}

func (s *Service) List(ctx context.Context, req domain.ListClientRequest) (domain.ListClientResponse, error) {
	accountID, ok := accountctx.AccountIDFromContext(ctx)
	if !ok || accountID == 0 {
		return domain.ListClientResponse{}, accountdomain.ErrInvalidAccount
	}

	filter := domain.ListClientFilter{
		Name:  strings.TrimSpace(req.Name),
		Email: strings.TrimSpace(req.Email),
		Kind:  domain.Kind(strings.TrimSpace(req.Kind)),
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	items, err := s.repo.List(ctx, s.db, accountID, filter, pagination.Pagination{
		PageToken: req.PageToken,
		PageSize:  int(pageSize),
	})
	if err != nil {
		return domain.ListClientResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(client *domain.Client) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        client.ID.String(),
			CreatedAt: client.CreatedAt.Format(time.RFC3339),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo != nil && pageInfo.HasMore && len(items) > int(pageSize) {
		items = items[:pageSize]
	}

	clients := make([]domain.Client, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		clients = append(clients, *item)
	}

	resp := domain.ListClientResponse{Clients: clients}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}

	return resp, nil
}

func (s *Service) Update(ctx context.Context, req domain.UpdateClientRequest) (domain.Client, error) {
	accountID, ok := accountctx.AccountIDFromContext(ctx)
	if !ok || accountID == 0 {
		return domain.Client{}, accountdomain.ErrInvalidAccount
	}

	clientID, err := s.parseID(req.ID)
	if err != nil {
		return domain.Client{}, err
	}

	item, err := s.repo.FindByID(ctx, s.db, accountID, clientID)
	if err != nil {
		return domain.Client{}, err
	}
	if item == nil {
		return domain.Client{}, domain.ErrNotFound
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Client{}, domain.ErrInvalidName
		}
		item.Name = name
	}
	if req.Email != nil {
		email := strings.TrimSpace(*req.Email)
		if email == "" || !strings.Contains(email, "@") {
			return domain.Client{}, domain.ErrInvalidEmail
		}
		item.Email = email
	}
	if req.AddressLine1 != nil {
		item.AddressLine1 = strings.TrimSpace(*req.AddressLine1)
	}
	if req.AddressLine2 != nil {
		item.AddressLine2 = strings.TrimSpace(*req.AddressLine2)
	}
	if req.PostalCode != nil {
		item.PostalCode = strings.TrimSpace(*req.PostalCode)
	}
	if req.City != nil {
		item.City = strings.TrimSpace(*req.City)
	}
	if req.Country != nil {
		item.Country = strings.TrimSpace(*req.Country)
	}
	if req.VATNumber != nil {
		item.VATNumber = strings.TrimSpace(*req.VATNumber)
	}
	if req.SIRET != nil {
		item.SIRET = strings.TrimSpace(*req.SIRET)
	}
	if req.PaymentTermDays != nil {
		item.PaymentTermDays = *req.PaymentTermDays
	}

	item.UpdatedAt = s.clock.Now()
	if err := s.repo.Update(ctx, s.db, item); err != nil {
		return domain.Client{}, err
	}

	return *item, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	accountID, ok := accountctx.AccountIDFromContext(ctx)
	if !ok || accountID == 0 {
		return accountdomain.ErrInvalidAccount
	}

	clientID, err := s.parseID(id)
	if err != nil {
		return err
	}

	item, err := s.repo.FindByID(ctx, s.db, accountID, clientID)
	if err != nil {
		return err
	}
	if item == nil {
		return domain.ErrNotFound
	}

	refs, err := s.repo.CountActiveReferences(ctx, s.db, accountID, clientID)
	if err != nil {
		return err
	}
	if refs > 0 {
		return domain.ErrClientInUse
	}

	return s.repo.Delete(ctx, s.db, accountID, clientID)
}

func (s *Service) parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}

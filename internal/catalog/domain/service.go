package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/facturo/pkg/db/pagination"
	"gorm.io/gorm"
)

var (
	ErrInvalidID          = errors.New("invalid_prestation_id")
	ErrInvalidLabel       = errors.New("invalid_prestation_label")
	ErrInvalidPricingMode = errors.New("invalid_pricing_mode")
	ErrInvalidRate        = errors.New("invalid_rate")
	ErrNotFound           = errors.New("prestation_not_found")
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, prestation *Prestation) error
	FindByID(ctx context.Context, db *gorm.DB, accountID, id snowflake.ID) (*Prestation, error)
	List(ctx context.Context, db *gorm.DB, accountID snowflake.ID, page pagination.Pagination) ([]*Prestation, error)
	Update(ctx context.Context, db *gorm.DB, prestation *Prestation) error
	Delete(ctx context.Context, db *gorm.DB, accountID, id snowflake.ID) error
}

type CreatePrestationRequest struct {
	Label          string          `json:"label"`
	Description    string          `json:"description"`
	PricingMode    PricingMode     `json:"pricing_mode"`
	DefaultRate    decimal.Decimal `json:"default_rate"`
	DefaultTaxRate decimal.Decimal `json:"default_tax_rate"`
}

type UpdatePrestationRequest struct {
	ID             string           `json:"-"`
	Label          *string          `json:"label"`
	Description    *string          `json:"description"`
	PricingMode    *PricingMode     `json:"pricing_mode"`
	DefaultRate    *decimal.Decimal `json:"default_rate"`
	DefaultTaxRate *decimal.Decimal `json:"default_tax_rate"`
}

type ListPrestationRequest struct {
	PageToken string `form:"page_token"`
	PageSize  int32  `form:"page_size"`
}

type ListPrestationResponse struct {
	Prestations []Prestation        `json:"prestations"`
	PageInfo    pagination.PageInfo `json:"page_info"`
}

type Service interface {
	Create(context.Context, CreatePrestationRequest) (Prestation, error)
	GetByID(ctx context.Context, id string) (Prestation, error)
	List(context.Context, ListPrestationRequest) (ListPrestationResponse, error)
	Update(context.Context, UpdatePrestationRequest) (Prestation, error)
	Delete(ctx context.Context, id string) error
}

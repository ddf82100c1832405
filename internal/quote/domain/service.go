package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	invoicedomain "github.com/smallbiznis/facturo/internal/invoice/domain"
	"github.com/smallbiznis/facturo/pkg/db/pagination"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	ErrInvalidID           = errors.New("invalid_quote_id")
	ErrInvalidValidityDate = errors.New("invalid_validity_date")
	ErrInvalidDeposit      = errors.New("invalid_deposit")
	ErrNotFound            = errors.New("quote_not_found")
	ErrIllegalTransition   = errors.New("illegal_quote_transition")
	ErrNotDraft            = errors.New("quote_not_draft")
	ErrNotAccepted         = errors.New("quote_not_accepted")
	ErrAlreadyConverted    = errors.New("quote_already_converted")
)

type ListQuoteFilter struct {
	ClientID snowflake.ID
	Status   Status
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, quote *Quote) error
	InsertLines(ctx context.Context, db *gorm.DB, lines []QuoteLine) error
	// FindByID loads the header only. FindByIDForUpdate additionally
	// takes a row lock inside the surrounding transaction.
	FindByID(ctx context.Context, db *gorm.DB, accountID, id snowflake.ID) (*Quote, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, accountID, id snowflake.ID) (*Quote, error)
	FindLines(ctx context.Context, db *gorm.DB, quoteID snowflake.ID) ([]QuoteLine, error)
	List(ctx context.Context, db *gorm.DB, accountID snowflake.ID, filter ListQuoteFilter, page pagination.Pagination) ([]*Quote, error)
	UpdateStatus(ctx context.Context, db *gorm.DB, quote *Quote) error
	MarkConverted(ctx context.Context, db *gorm.DB, quote *Quote, invoiceID snowflake.ID, now time.Time) error
	Delete(ctx context.Context, db *gorm.DB, accountID, id snowflake.ID) error
}

type LineInput struct {
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	Unit        string          `json:"unit"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	TaxRate     decimal.Decimal `json:"tax_rate"`

	// PrestationID, when set, pre-fills unit, unit price and tax rate
	// from the catalog for fields left empty.
	PrestationID string `json:"prestation_id,omitempty"`
}

type CreateQuoteRequest struct {
	ClientID       string          `json:"client_id"`
	ValidityDate   time.Time       `json:"validity_date"`
	DepositPercent decimal.Decimal `json:"deposit_percent"`
	Lines          []LineInput     `json:"lines"`
	Metadata       datatypes.JSON  `json:"metadata,omitempty"`
}

type UpdateStatusRequest struct {
	ID     string `json:"-"`
	Status Status `json:"status"`
}

type ListQuoteRequest struct {
	ClientID  string `form:"client_id"`
	Status    string `form:"status"`
	PageToken string `form:"page_token"`
	PageSize  int32  `form:"page_size"`
}

type ListQuoteResponse struct {
	Quotes   []Quote             `json:"quotes"`
	PageInfo pagination.PageInfo `json:"page_info"`
}

type Service interface {
	Create(context.Context, CreateQuoteRequest) (Quote, error)
	GetByID(ctx context.Context, id string) (Quote, error)
	List(context.Context, ListQuoteRequest) (ListQuoteResponse, error)
	UpdateStatus(context.Context, UpdateStatusRequest) (Quote, error)
	Delete(ctx context.Context, id string) error
	// ConvertToInvoice materializes an accepted quote into a new
	// invoice in one transaction and links the two documents.
	ConvertToInvoice(ctx context.Context, id string) (invoicedomain.Invoice, error)
}

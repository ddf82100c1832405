package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/facturo/pkg/db/pagination"
	"gorm.io/gorm"
)

var (
	ErrInvalidID    = errors.New("invalid_client_id")
	ErrInvalidKind  = errors.New("invalid_client_kind")
	ErrInvalidName  = errors.New("invalid_client_name")
	ErrInvalidEmail = errors.New("invalid_client_email")
	ErrNotFound     = errors.New("client_not_found")

	// ErrClientInUse is returned when deletion is refused because
	// non-terminal quotes or invoices still reference the client.
	ErrClientInUse = errors.New("client_in_use")
)

type ListClientFilter struct {
	Name        string
	Email       string
	Kind        Kind
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, client *Client) error
	FindByID(ctx context.Context, db *gorm.DB, accountID, id snowflake.ID) (*Client, error)
	List(ctx context.Context, db *gorm.DB, accountID snowflake.ID, filter ListClientFilter, page pagination.Pagination) ([]*Client, error)
	Update(ctx context.Context, db *gorm.DB, client *Client) error
	Delete(ctx context.Context, db *gorm.DB, accountID, id snowflake.ID) error
	// CountActiveReferences counts quotes and invoices referencing the
	// client that are not in a terminal state.
	CountActiveReferences(ctx context.Context, db *gorm.DB, accountID, id snowflake.ID) (int64, error)
}

type CreateClientRequest struct {
	Kind            Kind   `json:"kind"`
	Name            string `json:"name"`
	Email           string `json:"email"`
	AddressLine1    string `json:"address_line1"`
	AddressLine2    string `json:"address_line2"`
	PostalCode      string `json:"postal_code"`
	City            string `json:"city"`
	Country         string `json:"country"`
	VATNumber       string `json:"vat_number"`
	SIRET           string `json:"siret"`
	PaymentTermDays int    `json:"payment_term_days"`
}

type UpdateClientRequest struct {
	ID              string  `json:"-"`
	Name            *string `json:"name"`
	Email           *string `json:"email"`
	AddressLine1    *string `json:"address_line1"`
	AddressLine2    *string `json:"address_line2"`
	PostalCode      *string `json:"postal_code"`
	City            *string `json:"city"`
	Country         *string `json:"country"`
	VATNumber       *string `json:"vat_number"`
	SIRET           *string `json:"siret"`
	PaymentTermDays *int    `json:"payment_term_days"`
}

type ListClientRequest struct {
	Name      string `form:"name"`
	Email     string `form:"email"`
	Kind      string `form:"kind"`
	PageToken string `form:"page_token"`
	PageSize  int32  `form:"page_size"`
}

type ListClientResponse struct {
	Clients  []Client            `json:"clients"`
	PageInfo pagination.PageInfo `json:"page_info"`
}

type Service interface {
	Create(context.Context, CreateClientRequest) (Client, error)
	GetByID(ctx context.Context, id string) (Client, error)
	List(context.Context, ListClientRequest) (ListClientResponse, error)
	Update(context.Context, UpdateClientRequest) (Client, error)
	Delete(ctx context.Context, id string) error
}

package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/facturo/pkg/db/pagination"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	ErrInvalidID         = errors.New("invalid_invoice_id")
	ErrInvalidDueDate    = errors.New("invalid_due_date")
	ErrInvalidPayment    = errors.New("invalid_payment")
	ErrInvalidMethod     = errors.New("invalid_payment_method")
	ErrNotFound          = errors.New("invoice_not_found")
	ErrIllegalTransition = errors.New("illegal_invoice_transition")
	ErrNotPayable        = errors.New("invoice_not_payable")
	ErrOverpayment       = errors.New("overpayment")
	ErrNotCreditable     = errors.New("invoice_not_creditable")
	ErrNotCancellable    = errors.New("invoice_not_cancellable")
	ErrClientEmailEmpty  = errors.New("client_email_empty")
)

type ListInvoiceFilter struct {
	ClientID snowflake.ID
	Status   Status
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, invoice *Invoice) error
	InsertLines(ctx context.Context, db *gorm.DB, lines []InvoiceLine) error
	InsertPayment(ctx context.Context, db *gorm.DB, payment *Payment) error
	// FindByID loads the header only. FindByIDForUpdate additionally
	// takes a row lock inside the surrounding transaction.
	FindByID(ctx context.Context, db *gorm.DB, accountID, id snowflake.ID) (*Invoice, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, accountID, id snowflake.ID) (*Invoice, error)
	FindLines(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) ([]InvoiceLine, error)
	FindPayments(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) ([]Payment, error)
	List(ctx context.Context, db *gorm.DB, accountID snowflake.ID, filter ListInvoiceFilter, page pagination.Pagination) ([]*Invoice, error)
	UpdateStatus(ctx context.Context, db *gorm.DB, invoice *Invoice) error
	UpdateBalance(ctx context.Context, db *gorm.DB, invoice *Invoice) error
	// UpdateReminder persists dunning bookkeeping and the OVERDUE
	// status in one statement.
	UpdateReminder(ctx context.Context, db *gorm.DB, invoice *Invoice) error
	// ListDunningCandidates returns non-terminal invoices past their
	// due date across all accounts, oldest due date first. Invoices
	// already at maxReminders stay out of the batch so they cannot
	// starve eligible ones.
	ListDunningCandidates(ctx context.Context, db *gorm.DB, now time.Time, maxReminders, limit int) ([]*Invoice, error)
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

type CreateInvoiceRequest struct {
	ClientID string         `json:"client_id"`
	DueDate  *time.Time     `json:"due_date"`
	Lines    []LineInput    `json:"lines"`
	Metadata datatypes.JSON `json:"metadata,omitempty"`
}

type UpdateStatusRequest struct {
	ID     string `json:"-"`
	Status Status `json:"status"`
}

type ApplyPaymentRequest struct {
	InvoiceID string          `json:"-"`
	Amount    decimal.Decimal `json:"amount"`
	Method    Method          `json:"method"`
	Reference string          `json:"reference"`
	PaidAt    *time.Time      `json:"paid_at"`
	Notes     string          `json:"notes"`
}

type ListInvoiceRequest struct {
	ClientID  string `form:"client_id"`
	Status    string `form:"status"`
	PageToken string `form:"page_token"`
	PageSize  int32  `form:"page_size"`
}

type ListInvoiceResponse struct {
	Invoices []Invoice           `json:"invoices"`
	PageInfo pagination.PageInfo `json:"page_info"`
}

type Service interface {
	Create(context.Context, CreateInvoiceRequest) (Invoice, error)
	GetByID(ctx context.Context, id string) (Invoice, error)
	List(context.Context, ListInvoiceRequest) (ListInvoiceResponse, error)
	// UpdateStatus covers send, view, overdue and cancel moves. Send
	// requires the client to have a billing email on file.
	UpdateStatus(context.Context, UpdateStatusRequest) (Invoice, error)
	// ApplyPayment appends a ledger entry and updates the balance and
	// status in one atomic read-modify-write against the invoice row.
	ApplyPayment(context.Context, ApplyPaymentRequest) (Invoice, error)
	// ConvertToCreditNote marks the invoice CREDITED. No separate
	// negative-amount document is produced.
	ConvertToCreditNote(ctx context.Context, id string) (Invoice, error)
}

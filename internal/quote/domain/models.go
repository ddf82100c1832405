// Package domain contains the quote aggregate: header, lines and the
// status machine.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusSent      Status = "SENT"
	StatusViewed    Status = "VIEWED"
	StatusAccepted  Status = "ACCEPTED"
	StatusRefused   Status = "REFUSED"
	StatusExpired   Status = "EXPIRED"
	StatusConverted Status = "CONVERTED"
)

// transitions lists the allowed status moves. REFUSED, EXPIRED and
// CONVERTED are terminal.
var transitions = map[Status][]Status{
	StatusDraft:    {StatusSent},
	StatusSent:     {StatusViewed, StatusAccepted, StatusRefused, StatusExpired},
	StatusViewed:   {StatusAccepted, StatusRefused, StatusExpired},
	StatusAccepted: {StatusConverted, StatusExpired},
}

// CanTransition reports whether moving from one status to another is legal.
func CanTransition(from, to Status) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

// Quote is a priced proposal that may later convert into an invoice.
type Quote struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	AccountID snowflake.ID `gorm:"index;not null" json:"account_id"`
	ClientID  snowflake.ID `gorm:"index;not null" json:"client_id"`

	Number       string    `gorm:"not null;uniqueIndex:idx_quotes_account_number,composite:account_id" json:"number"`
	Status       Status    `gorm:"type:text;not null;default:'DRAFT'" json:"status"`
	IssueDate    time.Time `gorm:"not null" json:"issue_date"`
	ValidityDate time.Time `gorm:"not null" json:"validity_date"`

	TotalHT  decimal.Decimal `gorm:"type:numeric(18,2);not null" json:"total_ht"`
	TotalTax decimal.Decimal `gorm:"type:numeric(18,2);not null" json:"total_tax"`
	TotalTTC decimal.Decimal `gorm:"type:numeric(18,2);not null" json:"total_ttc"`

	// DepositPercent, when positive, requires an advance payment of
	// DepositAmount before delivery.
	DepositPercent decimal.Decimal `gorm:"type:numeric(5,2);not null;default:0" json:"deposit_percent"`
	DepositAmount  decimal.Decimal `gorm:"type:numeric(18,2);not null;default:0" json:"deposit_amount"`

	// InvoiceID links to the invoice this quote was converted into.
	InvoiceID *snowflake.ID `gorm:"index" json:"invoice_id,omitempty"`

	// Metadata is a free-form JSON blob for caller bookkeeping; it is
	// carried over to the invoice on conversion.
	Metadata datatypes.JSON `gorm:"type:jsonb" json:"metadata,omitempty"`

	Lines []QuoteLine `gorm:"-" json:"lines,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Quote) TableName() string { return "quotes" }

// QuoteLine is immutable once the quote leaves DRAFT.
type QuoteLine struct {
	ID      snowflake.ID `gorm:"primaryKey" json:"id"`
	QuoteID snowflake.ID `gorm:"index;not null" json:"quote_id"`

	Position    int             `gorm:"not null" json:"position"`
	Description string          `gorm:"not null" json:"description"`
	Quantity    decimal.Decimal `gorm:"type:numeric(18,3);not null" json:"quantity"`
	Unit        string          `json:"unit"`
	UnitPrice   decimal.Decimal `gorm:"type:numeric(18,2);not null" json:"unit_price"`
	TaxRate     decimal.Decimal `gorm:"type:numeric(5,2);not null" json:"tax_rate"`

	TotalHT  decimal.Decimal `gorm:"type:numeric(18,2);not null" json:"total_ht"`
	TotalTax decimal.Decimal `gorm:"type:numeric(18,2);not null" json:"total_tax"`
	TotalTTC decimal.Decimal `gorm:"type:numeric(18,2);not null" json:"total_ttc"`
}

func (QuoteLine) TableName() string { return "quote_lines" }

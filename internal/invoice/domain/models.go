// Package domain contains the invoice aggregate: header, lines,
// payments and the status machine.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusDraft         Status = "DRAFT"
	StatusSent          Status = "SENT"
	StatusViewed        Status = "VIEWED"
	StatusPartiallyPaid Status = "PARTIALLY_PAID"
	StatusPaid          Status = "PAID"
	StatusOverdue       Status = "OVERDUE"
	StatusCancelled     Status = "CANCELLED"
	StatusCredited      Status = "CREDITED"
)

// transitions lists the allowed status moves. PAID, CANCELLED and
// CREDITED are terminal for UpdateStatus purposes; CREDITED is reached
// through ConvertToCreditNote from every state except DRAFT and
// CANCELLED, so it appears in several rows here.
var transitions = map[Status][]Status{
	StatusDraft:         {StatusSent, StatusCancelled},
	StatusSent:          {StatusViewed, StatusPartiallyPaid, StatusPaid, StatusOverdue, StatusCancelled, StatusCredited},
	StatusViewed:        {StatusPartiallyPaid, StatusPaid, StatusOverdue, StatusCancelled, StatusCredited},
	StatusPartiallyPaid: {StatusPaid, StatusOverdue, StatusCancelled, StatusCredited},
	StatusOverdue:       {StatusPartiallyPaid, StatusPaid, StatusCancelled, StatusCredited},
	StatusPaid:          {StatusCredited},
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

// Payable reports whether the invoice status accepts new payments.
func (s Status) Payable() bool {
	switch s {
	case StatusSent, StatusViewed, StatusPartiallyPaid, StatusOverdue:
		return true
	}
	return false
}

// Creditable reports whether the invoice can be turned into a credit
// note. Drafts are deleted instead, and cancelled invoices stay
// cancelled.
func (s Status) Creditable() bool {
	switch s {
	case StatusDraft, StatusCancelled, StatusCredited:
		return false
	}
	return true
}

// Method is an accepted payment method.
type Method string

const (
	MethodBankTransfer Method = "BANK_TRANSFER"
	MethodCard         Method = "CARD"
	MethodCheque       Method = "CHEQUE"
	MethodCash         Method = "CASH"
	MethodDirectDebit  Method = "DIRECT_DEBIT"
	MethodGateway      Method = "GATEWAY"
)

func (m Method) Valid() bool {
	switch m {
	case MethodBankTransfer, MethodCard, MethodCheque, MethodCash, MethodDirectDebit, MethodGateway:
		return true
	}
	return false
}

// Invoice is the billed document. AmountPaid and AmountDue derive from
// the payment ledger and are only mutated inside ApplyPayment's
// transaction.
type Invoice struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	AccountID snowflake.ID `gorm:"index;not null" json:"account_id"`
	ClientID  snowflake.ID `gorm:"index;not null" json:"client_id"`

	Number    string    `gorm:"not null;uniqueIndex:idx_invoices_account_number,composite:account_id" json:"number"`
	Status    Status    `gorm:"type:text;not null;default:'DRAFT'" json:"status"`
	IssueDate time.Time `gorm:"not null" json:"issue_date"`
	DueDate   time.Time `gorm:"not null" json:"due_date"`

	TotalHT  decimal.Decimal `gorm:"type:numeric(18,2);not null" json:"total_ht"`
	TotalTax decimal.Decimal `gorm:"type:numeric(18,2);not null" json:"total_tax"`
	TotalTTC decimal.Decimal `gorm:"type:numeric(18,2);not null" json:"total_ttc"`

	AmountPaid decimal.Decimal `gorm:"type:numeric(18,2);not null;default:0" json:"amount_paid"`
	AmountDue  decimal.Decimal `gorm:"type:numeric(18,2);not null;default:0" json:"amount_due"`

	// Dunning bookkeeping. Spacing decisions derive from these two
	// fields, never from sweep run history.
	ReminderCount  int        `gorm:"not null;default:0" json:"reminder_count"`
	LastReminderAt *time.Time `json:"last_reminder_at,omitempty"`

	// QuoteID links back to the quote this invoice was converted from.
	QuoteID *snowflake.ID `gorm:"index" json:"quote_id,omitempty"`

	// Metadata is a free-form JSON blob for caller bookkeeping, for
	// example an external project or order reference.
	Metadata datatypes.JSON `gorm:"type:jsonb" json:"metadata,omitempty"`

	Lines    []InvoiceLine `gorm:"-" json:"lines,omitempty"`
	Payments []Payment     `gorm:"-" json:"payments,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Invoice) TableName() string { return "invoices" }

// InvoiceLine is immutable once the invoice leaves DRAFT.
type InvoiceLine struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	InvoiceID snowflake.ID `gorm:"index;not null" json:"invoice_id"`

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

func (InvoiceLine) TableName() string { return "invoice_lines" }

// Payment is an append-only ledger entry owned by one invoice.
type Payment struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	InvoiceID snowflake.ID `gorm:"index;not null" json:"invoice_id"`

	Amount    decimal.Decimal `gorm:"type:numeric(18,2);not null" json:"amount"`
	Method    Method          `gorm:"type:text;not null" json:"method"`
	Reference string          `json:"reference"`
	PaidAt    time.Time       `gorm:"not null" json:"paid_at"`
	Notes     string          `json:"notes"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (Payment) TableName() string { return "payments" }

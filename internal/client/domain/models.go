// Package domain contains the billable counterparty model.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Kind distinguishes person clients from organizations.
type Kind string

const (
	KindPerson       Kind = "PERSON"
	KindOrganization Kind = "ORGANIZATION"
)

func (k Kind) Valid() bool {
	return k == KindPerson || k == KindOrganization
}

// Client is a billable counterparty owned by one account.
type Client struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	AccountID snowflake.ID `gorm:"index;not null" json:"account_id"`

	Kind  Kind   `gorm:"type:text;not null" json:"kind"`
	Name  string `gorm:"not null" json:"name"`
	Email string `gorm:"not null" json:"email"`

	AddressLine1 string `json:"address_line1"`
	AddressLine2 string `json:"address_line2"`
	PostalCode   string `json:"postal_code"`
	City         string `json:"city"`
	Country      string `json:"country"`

	// VATNumber and SIRET are the French tax registration fields shown
	// on issued documents.
	VATNumber string `json:"vat_number"`
	SIRET     string `json:"siret"`

	// PaymentTermDays overrides the account default when positive.
	PaymentTermDays int `gorm:"not null;default:0" json:"payment_term_days"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Client) TableName() string { return "clients" }

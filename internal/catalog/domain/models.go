// Package domain contains the reusable service catalog (prestations).
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// PricingMode controls how a prestation's default rate is interpreted.
type PricingMode string

const (
	PricingHourly PricingMode = "HOURLY"
	PricingDaily  PricingMode = "DAILY"
	PricingFlat   PricingMode = "FLAT"
)

func (m PricingMode) Valid() bool {
	switch m {
	case PricingHourly, PricingDaily, PricingFlat:
		return true
	}
	return false
}

// Unit returns the default line unit for the pricing mode.
func (m PricingMode) Unit() string {
	switch m {
	case PricingHourly:
		return "hour"
	case PricingDaily:
		return "day"
	default:
		return "unit"
	}
}

// Prestation is a reusable service definition used to pre-fill document
// lines. Its lifecycle is independent from the documents referencing it.
type Prestation struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	AccountID snowflake.ID `gorm:"index;not null" json:"account_id"`

	Label       string      `gorm:"not null" json:"label"`
	Description string      `json:"description"`
	PricingMode PricingMode `gorm:"type:text;not null" json:"pricing_mode"`

	// DefaultRate is the unit price (HT) suggested when the prestation
	// pre-fills a line.
	DefaultRate    decimal.Decimal `gorm:"type:numeric(18,2);not null" json:"default_rate"`
	DefaultTaxRate decimal.Decimal `gorm:"type:numeric(5,2);not null" json:"default_tax_rate"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Prestation) TableName() string { return "prestations" }

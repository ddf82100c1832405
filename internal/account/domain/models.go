// Package domain contains persistence models for owning accounts.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// DefaultPaymentTermDays is applied when an account does not set its own term.
const DefaultPaymentTermDays = 30

// Account is the owning tenant for clients, documents and counters.
type Account struct {
	ID    snowflake.ID `gorm:"primaryKey" json:"id"`
	Name  string       `gorm:"not null" json:"name"`
	Email string       `gorm:"not null" json:"email"`

	// PlanCode selects the subscription plan whose limits and entitlements
	// the engine consumes. Plans themselves are defined elsewhere.
	PlanCode string `gorm:"type:text;not null;default:'free'" json:"plan_code"`

	// PaymentTermDays is the default offset applied to invoice due dates.
	PaymentTermDays int `gorm:"not null;default:30" json:"payment_term_days"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Account) TableName() string { return "accounts" }

// Package domain contains in-app notification records written as side
// effects of engine operations, mainly dunning reminders.
package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/facturo/pkg/db/pagination"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Kind string

const (
	KindReminderSent  Kind = "REMINDER_SENT"
	KindReminderError Kind = "REMINDER_ERROR"
)

type Notification struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	AccountID snowflake.ID `gorm:"index;not null" json:"account_id"`

	Kind      Kind          `gorm:"type:text;not null" json:"kind"`
	InvoiceID *snowflake.ID `gorm:"index" json:"invoice_id,omitempty"`
	Tier      int           `gorm:"not null;default:0" json:"tier"`
	Message   string        `gorm:"not null" json:"message"`

	// Metadata carries structured context for the UI, such as the
	// invoice number and outstanding amount at send time.
	Metadata datatypes.JSON `gorm:"type:jsonb" json:"metadata,omitempty"`

	ReadAt    *time.Time `json:"read_at,omitempty"`
	CreatedAt time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (Notification) TableName() string { return "notifications" }

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, notification *Notification) error
	List(ctx context.Context, db *gorm.DB, accountID snowflake.ID, page pagination.Pagination) ([]*Notification, error)
}

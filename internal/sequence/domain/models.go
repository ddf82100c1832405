// Package domain contains the per-account document number counters.
package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Known counter prefixes, one per document kind.
const (
	PrefixQuote   = "DEV"
	PrefixInvoice = "FAC"
)

// DocumentCounter tracks the last issued sequence value for one
// (account, prefix, year) triple.
type DocumentCounter struct {
	AccountID snowflake.ID `gorm:"primaryKey" json:"account_id"`
	Prefix    string       `gorm:"primaryKey;type:text" json:"prefix"`
	Year      int          `gorm:"primaryKey" json:"year"`
	Value     int64        `gorm:"not null;default:0" json:"value"`
	UpdatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (DocumentCounter) TableName() string { return "document_counters" }

type Repository interface {
	// NextValue atomically increments and returns the counter for the
	// triple, creating it on first use.
	NextValue(ctx context.Context, db *gorm.DB, accountID snowflake.ID, prefix string, year int, now time.Time) (int64, error)
}

// Allocator issues unique, monotonically increasing document numbers.
type Allocator interface {
	NextNumber(ctx context.Context, db *gorm.DB, accountID snowflake.ID, prefix string) (string, error)
}

package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/facturo/internal/sequence/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

// NextValue relies on the storage engine's native upsert so that two
// concurrent calls can never observe the same value. Works on postgres
// and sqlite; both support ON CONFLICT .. DO UPDATE with RETURNING.
func (r *repo) NextValue(ctx context.Context, db *gorm.DB, accountID snowflake.ID, prefix string, year int, now time.Time) (int64, error) {
	var value int64
	err := db.WithContext(ctx).Raw(
		`INSERT INTO document_counters (account_id, prefix, year, value, updated_at)
		 VALUES (?, ?, ?, 1, ?)
		 ON CONFLICT (account_id, prefix, year)
		 DO UPDATE SET value = document_counters.value + 1, updated_at = ?
		 RETURNING value`,
		accountID,
		prefix,
		year,
		now,
		now,
	).Scan(&value).Error
	if err != nil {
		return 0, err
	}
	return value, nil
}

package service

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/facturo/internal/clock"
	"github.com/smallbiznis/facturo/internal/sequence/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	Log   *zap.Logger
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	log   *zap.Logger
	clock clock.Clock
	repo  domain.Repository
}

func New(p Params) domain.Allocator {
	return &Service{
		log:   p.Log.Named("sequence.service"),
		clock: p.Clock,
		repo:  p.Repo,
	}
}

// NextNumber allocates the next number for the account and prefix,
// formatted as {PREFIX}-{year}-{value padded to five digits}. The db
// handle is passed in so callers can allocate inside their own
// transaction and fail document creation atomically when the
// increment fails.
func (s *Service) NextNumber(ctx context.Context, db *gorm.DB, accountID snowflake.ID, prefix string) (string, error) {
	now := s.clock.Now()
	year := now.Year()

	value, err := s.repo.NextValue(ctx, db, accountID, prefix, year, now)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%s-%d-%05d", prefix, year, value), nil
}

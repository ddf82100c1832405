// Package scheduler drives the periodic dunning sweep.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/smallbiznis/facturo/internal/clock"
	dunningdomain "github.com/smallbiznis/facturo/internal/dunning/domain"
	dunningservice "github.com/smallbiznis/facturo/internal/dunning/service"
	obsmetrics "github.com/smallbiznis/facturo/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrInvalidConfig = errors.New("scheduler: invalid configuration")

type Params struct {
	fx.In

	Log     *zap.Logger
	Clock   clock.Clock
	Sweeper *dunningservice.Sweeper
	Config  Config `optional:"true"`
}

type Scheduler struct {
	log     *zap.Logger
	cfg     Config
	clock   clock.Clock
	sweeper *dunningservice.Sweeper
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.Clock == nil || p.Sweeper == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:     p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:     p.Config.withDefaults(),
		clock:   p.Clock,
		sweeper: p.Sweeper,
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	m := obsmetrics.Sweep()
	m.IncSweepRun(name)

	err := fn(ctx)
	m.ObserveSweepDuration(name, time.Since(start))
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		// Soft timeout: unprocessed invoices are picked up next run.
		m.IncSweepTimeout(name)
		s.log.Warn("job timed out",
			zap.String("job", name),
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	m.IncSweepError(name, err)
	return fmt.Errorf("%s: %w", name, err)
}

// RunOnce executes one dunning sweep and returns its report.
func (s *Scheduler) RunOnce(parent context.Context) (dunningdomain.Report, error) {
	var report dunningdomain.Report
	err := s.runJob(parent, "dunning_sweep", s.cfg.SweepTimeout, func(ctx context.Context) error {
		var sweepErr error
		report, sweepErr = s.sweeper.Sweep(ctx, s.cfg.BatchSize)
		return sweepErr
	})
	return report, err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := s.clock.Now().Add(s.cfg.RunInterval)
	m := obsmetrics.Sweep()

	for {
		runLag := time.Since(nextRun)
		if runLag > 0 {
			m.ObserveRunLoopLag(runLag)
		}
		if _, err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(s.cfg.RunInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

package metrics

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	clientdomain "github.com/smallbiznis/facturo/internal/client/domain"
	invoicedomain "github.com/smallbiznis/facturo/internal/invoice/domain"
	"github.com/smallbiznis/facturo/internal/providers/email"
	"gorm.io/gorm"
)

const (
	SweepErrorTypeDeadlineExceeded = "deadline_exceeded"
	SweepErrorTypeDelivery         = "delivery"
	SweepErrorTypeBusinessRule     = "business_rule"
	SweepErrorTypeDB               = "db"
	SweepErrorTypeUnknown          = "unknown"
)

// SweepMetrics captures dunning sweep health signals.
type SweepMetrics struct {
	sweepRuns     *prometheus.CounterVec
	sweepDuration *prometheus.HistogramVec
	sweepTimeouts *prometheus.CounterVec
	sweepErrors   *prometheus.CounterVec
	remindersSent *prometheus.CounterVec
	skipped       *prometheus.CounterVec
	runLoopLag    prometheus.Observer
}

var (
	sweepMetricsOnce sync.Once
	sweepMetrics     *SweepMetrics
)

// Sweep returns the singleton sweep metrics registry.
func Sweep() *SweepMetrics {
	return SweepWithConfig(Config{})
}

// SweepWithConfig returns the singleton sweep metrics registry using config labels.
func SweepWithConfig(cfg Config) *SweepMetrics {
	sweepMetricsOnce.Do(func() {
		sweepMetrics = newSweepMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return sweepMetrics
}

// ResetSweepMetricsForTest resets the sweep metrics singleton for tests.
func ResetSweepMetricsForTest() {
	sweepMetricsOnce = sync.Once{}
	sweepMetrics = nil
}

func newSweepMetrics(registerer prometheus.Registerer, cfg Config) *SweepMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	labels := constLabels(cfg)

	sweepRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "facturo_dunning_sweep_runs_total",
		Help:        "Dunning sweep runs by job name.",
		ConstLabels: labels,
	}, []string{"job"})
	sweepDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "facturo_dunning_sweep_duration_seconds",
		Help:        "Dunning sweep duration.",
		Buckets:     []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120},
		ConstLabels: labels,
	}, []string{"job"})
	sweepTimeouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "facturo_dunning_sweep_timeouts_total",
		Help:        "Dunning sweeps cut short by their deadline.",
		ConstLabels: labels,
	}, []string{"job"})
	sweepErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "facturo_dunning_sweep_errors_total",
		Help:        "Per-invoice sweep errors by type.",
		ConstLabels: labels,
	}, []string{"job", "reason"})
	remindersSent := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "facturo_dunning_reminders_sent_total",
		Help:        "Reminders sent by escalation tier.",
		ConstLabels: labels,
	}, []string{"tier"})
	skipped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "facturo_dunning_skipped_total",
		Help:        "Candidate invoices skipped by reason.",
		ConstLabels: labels,
	}, []string{"reason"})
	runLoopLag := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "facturo_dunning_run_loop_lag_seconds",
		Help:        "Delay between scheduled and actual sweep start.",
		Buckets:     []float64{0.1, 0.5, 1, 5, 30, 60, 300},
		ConstLabels: labels,
	})

	for _, collector := range []prometheus.Collector{
		sweepRuns, sweepDuration, sweepTimeouts, sweepErrors, remindersSent, skipped, runLoopLag,
	} {
		registerer.MustRegister(collector)
	}

	return &SweepMetrics{
		sweepRuns:     sweepRuns,
		sweepDuration: sweepDuration,
		sweepTimeouts: sweepTimeouts,
		sweepErrors:   sweepErrors,
		remindersSent: remindersSent,
		skipped:       skipped,
		runLoopLag:    runLoopLag,
	}
}

func (m *SweepMetrics) IncSweepRun(job string) {
	if m == nil {
		return
	}
	m.sweepRuns.WithLabelValues(job).Inc()
}

func (m *SweepMetrics) ObserveSweepDuration(job string, d time.Duration) {
	if m == nil {
		return
	}
	m.sweepDuration.WithLabelValues(job).Observe(d.Seconds())
}

func (m *SweepMetrics) IncSweepTimeout(job string) {
	if m == nil {
		return
	}
	m.sweepTimeouts.WithLabelValues(job).Inc()
}

func (m *SweepMetrics) IncSweepError(job string, err error) {
	if m == nil {
		return
	}
	m.sweepErrors.WithLabelValues(job, ClassifySweepErrorType(err)).Inc()
}

func (m *SweepMetrics) IncReminderSent(tier int) {
	if m == nil {
		return
	}
	m.remindersSent.WithLabelValues(strconv.Itoa(tier)).Inc()
}

func (m *SweepMetrics) IncSkipped(reason string) {
	if m == nil {
		return
	}
	m.skipped.WithLabelValues(reason).Inc()
}

func (m *SweepMetrics) ObserveRunLoopLag(lag time.Duration) {
	if m == nil {
		return
	}
	m.runLoopLag.Observe(lag.Seconds())
}

// ClassifySweepErrorType buckets per-invoice errors for low-cardinality labels.
func ClassifySweepErrorType(err error) string {
	switch {
	case err == nil:
		return SweepErrorTypeUnknown
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return SweepErrorTypeDeadlineExceeded
	case errors.Is(err, email.ErrDelivery):
		return SweepErrorTypeDelivery
	case errors.Is(err, invoicedomain.ErrClientEmailEmpty), errors.Is(err, clientdomain.ErrNotFound):
		return SweepErrorTypeBusinessRule
	case errors.Is(err, gorm.ErrRecordNotFound):
		return SweepErrorTypeDB
	default:
		return SweepErrorTypeUnknown
	}
}

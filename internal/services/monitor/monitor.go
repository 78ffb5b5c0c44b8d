// Package monitor polls a snapshot provider, evaluates risk and records the result.
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/riskdesk/internal/domain"
	"github.com/vadiminshakov/riskdesk/internal/services/snapshot"
	"github.com/vadiminshakov/riskdesk/pkg/retrier"
)

// DefaultPollInterval used when the caller passes zero.
const DefaultPollInterval = 30 * time.Second

// Evaluator computes a risk report from one snapshot.
type Evaluator interface {
	Evaluate(account domain.AccountSnapshot, positions []domain.PositionSnapshot, at time.Time) (domain.Report, error)
}

// ReportStore persists evaluated reports.
type ReportStore interface {
	Save(report domain.Report) (uint64, error)
}

// Recorder receives report gauges and alert counters.
type Recorder interface {
	ObserveReport(report domain.Report)
	RecordNewAlert(alert domain.RiskAlert)
	RecordError(errorType string)
}

// Monitor runs the snapshot -> evaluate -> persist loop.
type Monitor struct {
	logger   *zap.Logger
	provider snapshot.Provider
	engine   Evaluator
	store    ReportStore
	recorder Recorder
	retrier  *retrier.Retrier
	interval time.Duration

	mu         sync.Mutex
	lastAlerts map[string]struct{}
	last       *domain.Report
}

// New creates a monitor. store and recorder may be nil.
func New(l *zap.Logger, provider snapshot.Provider, engine Evaluator, store ReportStore, recorder Recorder, r *retrier.Retrier, interval time.Duration) (*Monitor, error) {
	if provider == nil {
		return nil, errors.New("snapshot provider is required")
	}
	if engine == nil {
		return nil, errors.New("risk engine is required")
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if l == nil {
		l = zap.NewNop()
	}
	if r == nil {
		r = retrier.New(
			retrier.WithMaxRetries(3),
			retrier.WithRetryIf(Retryable),
		)
	}

	return &Monitor{
		logger:     l.With(zap.String("provider", provider.Name())),
		provider:   provider,
		engine:     engine,
		store:      store,
		recorder:   recorder,
		retrier:    r,
		interval:   interval,
		lastAlerts: make(map[string]struct{}),
	}, nil
}

// Retryable reports whether a provider error is worth another attempt.
// Malformed snapshots and cancellation are not.
func Retryable(err error) bool {
	if errors.Is(err, domain.ErrInvalidSnapshot) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}

// Tick performs one poll and returns the evaluated report.
func (m *Monitor) Tick(ctx context.Context) (domain.Report, error) {
	snap, err := retrier.DoWithData(m.retrier, ctx, m.provider.Snapshot)
	if err != nil {
		m.recordError("snapshot")
		return domain.Report{}, errors.Wrap(err, "failed to fetch snapshot")
	}

	at := snap.FetchedAt
	if at.IsZero() {
		at = time.Now().UTC()
	}

	report, err := m.engine.Evaluate(snap.Account, snap.Positions, at)
	if err != nil {
		m.recordError("evaluate")
		return domain.Report{}, errors.Wrap(err, "failed to evaluate risk")
	}

	if m.store != nil {
		if _, err := m.store.Save(report); err != nil {
			m.recordError("persist")
			m.logger.Error("failed to persist risk report", zap.Error(err))
		}
	}

	if m.recorder != nil {
		m.recorder.ObserveReport(report)
	}

	for _, alert := range m.newAlerts(report) {
		fields := []zap.Field{
			zap.String("kind", string(alert.Kind)),
			zap.String("severity", string(alert.Severity)),
			zap.String("symbol", alert.Symbol),
			zap.String("message", alert.Message),
		}
		if alert.Severity == domain.SeverityCritical {
			m.logger.Error("risk alert raised", fields...)
		} else {
			m.logger.Warn("risk alert raised", fields...)
		}
		if m.recorder != nil {
			m.recorder.RecordNewAlert(alert)
		}
	}

	return report, nil
}

// Last returns the most recent successful report.
func (m *Monitor) Last() (domain.Report, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.last == nil {
		return domain.Report{}, false
	}
	return *m.last, true
}

// Run polls until ctx is cancelled. The first poll happens immediately.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.logger.Info("starting risk monitor", zap.Duration("poll_interval", m.interval))

	m.tickAndLog(ctx)
	for {
		select {
		case <-ctx.Done():
			m.logger.Info("context done, stopping risk monitor")
			return ctx.Err()
		case <-ticker.C:
			m.tickAndLog(ctx)
		}
	}
}

func (m *Monitor) tickAndLog(ctx context.Context) {
	report, err := m.Tick(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		m.logger.Error("risk monitor tick failed", zap.Error(err))
		return
	}
	m.logger.Debug("risk evaluated",
		zap.String("portfolio_value", report.Metrics.PortfolioValue.String()),
		zap.Int("open_positions", report.Metrics.OpenPositions),
		zap.Int("alerts", len(report.Alerts)),
	)
}

// newAlerts returns alerts whose key was absent from the previous report.
func (m *Monitor) newAlerts(report domain.Report) []domain.RiskAlert {
	m.mu.Lock()
	defer m.mu.Unlock()

	current := make(map[string]struct{}, len(report.Alerts))
	var fresh []domain.RiskAlert
	for _, a := range report.Alerts {
		key := a.Key()
		current[key] = struct{}{}
		if _, seen := m.lastAlerts[key]; !seen {
			fresh = append(fresh, a)
		}
	}
	m.lastAlerts = current
	m.last = &report
	return fresh
}

func (m *Monitor) recordError(kind string) {
	if m.recorder != nil {
		m.recorder.RecordError(kind)
	}
}

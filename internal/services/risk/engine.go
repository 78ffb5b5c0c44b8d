// Package risk turns account snapshots into portfolio risk metrics and alerts.
package risk

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/moznion/go-optional"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/riskdesk/internal/domain"
)

var (
	hundred = decimal.NewFromInt(100)

	// alertNamespace seeds deterministic alert ids.
	alertNamespace = uuid.MustParse("6f1c7a52-3b8e-4f0e-9d55-1a2b7c4e9f10")
)

// Limits thresholds used by the engine.
type Limits struct {
	// MaxDailyLossPct fraction of portfolio value that may be lost in one day.
	MaxDailyLossPct decimal.Decimal
	// MaxPositionPct fraction of portfolio value allowed in a single position.
	MaxPositionPct decimal.Decimal
	MaxPositions   int
	// LossWarnRatio share of MaxDailyLoss above which a warning is raised.
	LossWarnRatio decimal.Decimal
	// PositionWarnRatio share of MaxPositions at which a warning is raised.
	PositionWarnRatio decimal.Decimal
	// ConcentrationPct position risk percentage above which a warning is raised.
	ConcentrationPct decimal.Decimal
}

// DefaultLimits returns the standard limits: 2% daily loss, 10% per position, 10 positions.
func DefaultLimits() Limits {
	return Limits{
		MaxDailyLossPct:   decimal.RequireFromString("0.02"),
		MaxPositionPct:    decimal.RequireFromString("0.10"),
		MaxPositions:      10,
		LossWarnRatio:     decimal.RequireFromString("0.5"),
		PositionWarnRatio: decimal.RequireFromString("0.8"),
		ConcentrationPct:  decimal.NewFromInt(10),
	}
}

// Validate checks that limits are usable.
func (l Limits) Validate() error {
	if !l.MaxDailyLossPct.IsPositive() {
		return fmt.Errorf("max daily loss pct must be positive, got %s", l.MaxDailyLossPct)
	}
	if !l.MaxPositionPct.IsPositive() {
		return fmt.Errorf("max position pct must be positive, got %s", l.MaxPositionPct)
	}
	if l.MaxPositions < 1 {
		return fmt.Errorf("max positions must be at least 1, got %d", l.MaxPositions)
	}
	if !l.LossWarnRatio.IsPositive() || l.LossWarnRatio.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("loss warn ratio must be in (0, 1], got %s", l.LossWarnRatio)
	}
	if !l.PositionWarnRatio.IsPositive() || l.PositionWarnRatio.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("position warn ratio must be in (0, 1], got %s", l.PositionWarnRatio)
	}
	if l.ConcentrationPct.IsNegative() {
		return fmt.Errorf("concentration pct must not be negative, got %s", l.ConcentrationPct)
	}
	return nil
}

// Engine evaluates snapshots against Limits. It holds no mutable state.
type Engine struct {
	limits Limits
}

// NewEngine creates an engine with the given limits.
func NewEngine(limits Limits) (*Engine, error) {
	if err := limits.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid risk limits")
	}
	return &Engine{limits: limits}, nil
}

// Evaluate computes metrics, per-position risk and alerts for one snapshot.
// Alerts are ordered: daily loss, position count, then concentration in input order.
func (e *Engine) Evaluate(account domain.AccountSnapshot, positions []domain.PositionSnapshot, at time.Time) (domain.Report, error) {
	if err := account.Validate(); err != nil {
		return domain.Report{}, err
	}
	if err := domain.ValidatePositions(positions); err != nil {
		return domain.Report{}, err
	}

	metrics := e.metrics(account, len(positions))
	positionRisks := make([]domain.PositionRisk, 0, len(positions))
	for _, p := range positions {
		positionRisks = append(positionRisks, positionRisk(p, metrics.PortfolioValue))
	}

	alerts := make([]domain.RiskAlert, 0)
	if alert, ok := e.dailyLossAlert(metrics, at); ok {
		alerts = append(alerts, alert)
	}
	if alert, ok := e.positionCountAlert(metrics, at); ok {
		alerts = append(alerts, alert)
	}
	for _, pr := range positionRisks {
		if pr.RiskPct.GreaterThan(e.limits.ConcentrationPct) {
			alerts = append(alerts, newAlert(domain.SeverityWarning, domain.AlertKindConcentration, pr.Symbol, at,
				fmt.Sprintf("%s is %s%% of portfolio value, above the %s%% concentration limit",
					pr.Symbol, pr.RiskPct.StringFixed(2), e.limits.ConcentrationPct.String())))
		}
	}

	return domain.Report{
		GeneratedAt: at,
		Metrics:     metrics,
		Positions:   positionRisks,
		Alerts:      alerts,
	}, nil
}

func (e *Engine) metrics(account domain.AccountSnapshot, openPositions int) domain.RiskMetrics {
	portfolioValue := account.Equity

	dailyLoss := account.LastEquity.Sub(account.Equity)
	if dailyLoss.IsNegative() {
		dailyLoss = decimal.Zero
	}

	return domain.RiskMetrics{
		PortfolioValue:       portfolioValue,
		BuyingPower:          account.BuyingPower,
		CashBalance:          account.Cash,
		CurrentDailyLoss:     dailyLoss,
		MaxDailyLoss:         portfolioValue.Mul(e.limits.MaxDailyLossPct),
		PortfolioRiskPct:     percentOf(account.InitialMargin, portfolioValue),
		MaxPositionSizeValue: portfolioValue.Mul(e.limits.MaxPositionPct),
		OpenPositions:        openPositions,
		MaxPositions:         e.limits.MaxPositions,
		MarginUsed:           account.InitialMargin,
		MarginAvailable:      account.BuyingPower.Sub(portfolioValue),
	}
}

func (e *Engine) dailyLossAlert(m domain.RiskMetrics, at time.Time) (domain.RiskAlert, bool) {
	switch {
	case m.CurrentDailyLoss.GreaterThan(m.MaxDailyLoss):
		return newAlert(domain.SeverityCritical, domain.AlertKindDailyLoss, "", at,
			fmt.Sprintf("daily loss %s exceeds limit %s", m.CurrentDailyLoss.StringFixed(2), m.MaxDailyLoss.StringFixed(2))), true
	case m.CurrentDailyLoss.GreaterThan(m.MaxDailyLoss.Mul(e.limits.LossWarnRatio)):
		return newAlert(domain.SeverityWarning, domain.AlertKindDailyLoss, "", at,
			fmt.Sprintf("daily loss %s is above %s%% of limit %s", m.CurrentDailyLoss.StringFixed(2),
				e.limits.LossWarnRatio.Mul(hundred).String(), m.MaxDailyLoss.StringFixed(2))), true
	}
	return domain.RiskAlert{}, false
}

func (e *Engine) positionCountAlert(m domain.RiskMetrics, at time.Time) (domain.RiskAlert, bool) {
	open := decimal.NewFromInt(int64(m.OpenPositions))
	limit := decimal.NewFromInt(int64(m.MaxPositions))

	switch {
	case m.OpenPositions >= m.MaxPositions:
		return newAlert(domain.SeverityCritical, domain.AlertKindPositionCount, "", at,
			fmt.Sprintf("%d open positions, limit is %d", m.OpenPositions, m.MaxPositions)), true
	case open.GreaterThanOrEqual(limit.Mul(e.limits.PositionWarnRatio)):
		return newAlert(domain.SeverityWarning, domain.AlertKindPositionCount, "", at,
			fmt.Sprintf("%d open positions, approaching limit of %d", m.OpenPositions, m.MaxPositions)), true
	}
	return domain.RiskAlert{}, false
}

func positionRisk(p domain.PositionSnapshot, portfolioValue decimal.Decimal) domain.PositionRisk {
	return domain.PositionRisk{
		Symbol:          p.Symbol,
		Side:            p.Side,
		Exposure:        p.MarketValue,
		RiskPct:         percentOf(p.MarketValue, portfolioValue),
		StopLoss:        p.StopLoss,
		TakeProfit:      p.TakeProfit,
		RiskRewardRatio: RiskReward(p.AvgEntryPrice, p.StopLoss, p.TakeProfit),
	}
}

// RiskReward returns |target - entry| / |entry - stop| when both levels are known and risk is non-zero.
func RiskReward(entry decimal.Decimal, stop, target optional.Option[decimal.Decimal]) optional.Option[decimal.Decimal] {
	if stop.IsNone() || target.IsNone() {
		return optional.None[decimal.Decimal]()
	}

	risk := entry.Sub(stop.Unwrap()).Abs()
	if risk.IsZero() {
		return optional.None[decimal.Decimal]()
	}

	reward := target.Unwrap().Sub(entry).Abs()
	return optional.Some(reward.Div(risk))
}

// percentOf returns part / whole * 100, or zero when whole is zero.
func percentOf(part, whole decimal.Decimal) decimal.Decimal {
	if whole.IsZero() {
		return decimal.Zero
	}
	return part.Div(whole).Mul(hundred)
}

func newAlert(severity domain.AlertSeverity, kind domain.AlertKind, symbol string, at time.Time, message string) domain.RiskAlert {
	name := string(kind) + ":" + symbol + ":" + strconv.FormatInt(at.UnixNano(), 10)
	return domain.RiskAlert{
		ID:        uuid.NewSHA1(alertNamespace, []byte(name)).String(),
		Severity:  severity,
		Kind:      kind,
		Symbol:    symbol,
		Message:   message,
		Timestamp: at,
	}
}

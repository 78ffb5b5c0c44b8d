package domain

import (
	"time"

	"github.com/moznion/go-optional"
	"github.com/shopspring/decimal"
)

// AlertSeverity how urgent a risk alert is.
type AlertSeverity string

const (
	SeverityInfo     AlertSeverity = "info"
	SeverityWarning  AlertSeverity = "warning"
	SeverityCritical AlertSeverity = "critical"
)

// AlertKind the rule that raised an alert.
type AlertKind string

const (
	AlertKindDailyLoss     AlertKind = "daily_loss"
	AlertKindPositionCount AlertKind = "position_count"
	AlertKindConcentration AlertKind = "concentration"
)

// RiskMetrics portfolio-level figures derived from one account snapshot.
type RiskMetrics struct {
	PortfolioValue       decimal.Decimal `json:"portfolio_value"`
	BuyingPower          decimal.Decimal `json:"buying_power"`
	CashBalance          decimal.Decimal `json:"cash_balance"`
	CurrentDailyLoss     decimal.Decimal `json:"current_daily_loss"`
	MaxDailyLoss         decimal.Decimal `json:"max_daily_loss"`
	PortfolioRiskPct     decimal.Decimal `json:"portfolio_risk_pct"`
	MaxPositionSizeValue decimal.Decimal `json:"max_position_size_value"`
	OpenPositions        int             `json:"open_positions"`
	MaxPositions         int             `json:"max_positions"`
	MarginUsed           decimal.Decimal `json:"margin_used"`
	MarginAvailable      decimal.Decimal `json:"margin_available"`
}

// PositionRisk exposure of a single position relative to the portfolio.
type PositionRisk struct {
	Symbol          string                           `json:"symbol"`
	Side            PositionSide                     `json:"side"`
	Exposure        decimal.Decimal                  `json:"exposure"`
	RiskPct         decimal.Decimal                  `json:"risk_pct"`
	StopLoss        optional.Option[decimal.Decimal] `json:"stop_loss"`
	TakeProfit      optional.Option[decimal.Decimal] `json:"take_profit"`
	RiskRewardRatio optional.Option[decimal.Decimal] `json:"risk_reward_ratio"`
}

// RiskAlert a condition the caller may want to surface. Alerts are never persisted by the engine.
type RiskAlert struct {
	ID        string        `json:"id"`
	Severity  AlertSeverity `json:"severity"`
	Kind      AlertKind     `json:"kind"`
	Symbol    string        `json:"symbol,omitempty"`
	Message   string        `json:"message"`
	Timestamp time.Time     `json:"ts"`
}

// Key identifies the condition behind an alert regardless of when it was raised.
func (a RiskAlert) Key() string {
	return string(a.Kind) + ":" + a.Symbol + ":" + string(a.Severity)
}

// Report is the full output of one risk evaluation.
type Report struct {
	GeneratedAt time.Time      `json:"ts"`
	Metrics     RiskMetrics    `json:"metrics"`
	Positions   []PositionRisk `json:"positions"`
	Alerts      []RiskAlert    `json:"alerts"`
}

// HasCritical returns true if any alert in the report is critical.
func (r Report) HasCritical() bool {
	for _, a := range r.Alerts {
		if a.Severity == SeverityCritical {
			return true
		}
	}
	return false
}

// ReportRecord bundles a stored report with its log index.
type ReportRecord struct {
	Index  uint64
	Report Report
}

// Package monitoring exposes risk and approval metrics to Prometheus.
package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vadiminshakov/riskdesk/internal/domain"
)

// Metrics holds all collectors registered by riskdesk.
type Metrics struct {
	gatherer prometheus.Gatherer

	// Risk metrics
	portfolioValue   prometheus.Gauge
	dailyLoss        prometheus.Gauge
	maxDailyLoss     prometheus.Gauge
	portfolioRiskPct prometheus.Gauge
	openPositions    prometheus.Gauge
	positionRiskPct  *prometheus.GaugeVec
	activeAlerts     *prometheus.GaugeVec
	alertsRaised     *prometheus.CounterVec

	// Approval metrics
	pendingTrades    prometheus.Gauge
	tradeTransitions *prometheus.CounterVec

	// Error metrics
	errorsTotal *prometheus.CounterVec
}

// NewMetrics creates collectors and registers them with reg.
// A nil reg uses a fresh private registry.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	m := &Metrics{
		gatherer: reg,
		portfolioValue: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "riskdesk_portfolio_value",
			Help: "Portfolio value from the latest snapshot",
		}),
		dailyLoss: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "riskdesk_daily_loss",
			Help: "Current loss against previous close equity",
		}),
		maxDailyLoss: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "riskdesk_max_daily_loss",
			Help: "Allowed daily loss",
		}),
		portfolioRiskPct: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "riskdesk_portfolio_risk_pct",
			Help: "Initial margin as a percentage of portfolio value",
		}),
		openPositions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "riskdesk_open_positions",
			Help: "Number of open positions",
		}),
		positionRiskPct: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "riskdesk_position_risk_pct",
			Help: "Position exposure as a percentage of portfolio value",
		}, []string{"symbol"}),
		activeAlerts: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "riskdesk_active_alerts",
			Help: "Alerts in the latest report by severity",
		}, []string{"severity"}),
		alertsRaised: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "riskdesk_alerts_raised_total",
			Help: "Alerts that newly appeared",
		}, []string{"kind", "severity"}),
		pendingTrades: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "riskdesk_pending_trades",
			Help: "Trades waiting for a decision",
		}),
		tradeTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "riskdesk_trade_transitions_total",
			Help: "Trade lifecycle transitions by target state",
		}, []string{"state"}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "riskdesk_errors_total",
			Help: "Total number of errors",
		}, []string{"type"}),
	}

	reg.MustRegister(
		m.portfolioValue,
		m.dailyLoss,
		m.maxDailyLoss,
		m.portfolioRiskPct,
		m.openPositions,
		m.positionRiskPct,
		m.activeAlerts,
		m.alertsRaised,
		m.pendingTrades,
		m.tradeTransitions,
		m.errorsTotal,
	)

	return m
}

// Handler serves the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// ObserveReport replaces risk gauges with values from report.
func (m *Metrics) ObserveReport(report domain.Report) {
	metrics := report.Metrics
	m.portfolioValue.Set(metrics.PortfolioValue.InexactFloat64())
	m.dailyLoss.Set(metrics.CurrentDailyLoss.InexactFloat64())
	m.maxDailyLoss.Set(metrics.MaxDailyLoss.InexactFloat64())
	m.portfolioRiskPct.Set(metrics.PortfolioRiskPct.InexactFloat64())
	m.openPositions.Set(float64(metrics.OpenPositions))

	m.positionRiskPct.Reset()
	for _, p := range report.Positions {
		m.positionRiskPct.WithLabelValues(p.Symbol).Set(p.RiskPct.InexactFloat64())
	}

	counts := map[domain.AlertSeverity]int{
		domain.SeverityInfo:     0,
		domain.SeverityWarning:  0,
		domain.SeverityCritical: 0,
	}
	for _, a := range report.Alerts {
		counts[a.Severity]++
	}
	for severity, n := range counts {
		m.activeAlerts.WithLabelValues(string(severity)).Set(float64(n))
	}
}

// RecordNewAlert counts an alert that was not present in the previous report.
func (m *Metrics) RecordNewAlert(alert domain.RiskAlert) {
	m.alertsRaised.WithLabelValues(string(alert.Kind), string(alert.Severity)).Inc()
}

// SetPendingTrades sets the pending gauge, used once at startup.
func (m *Metrics) SetPendingTrades(n int) {
	m.pendingTrades.Set(float64(n))
}

// Publish tracks lifecycle events so Metrics can be registered as an approval notifier.
func (m *Metrics) Publish(ev domain.ApprovalEvent) {
	m.tradeTransitions.WithLabelValues(string(ev.To)).Inc()
	if ev.To == domain.ApprovalStatePending {
		m.pendingTrades.Inc()
	}
	if ev.From == domain.ApprovalStatePending && ev.To != domain.ApprovalStatePending {
		m.pendingTrades.Dec()
	}
}

// RecordError records an error metric.
func (m *Metrics) RecordError(errorType string) {
	m.errorsTotal.WithLabelValues(errorType).Inc()
}

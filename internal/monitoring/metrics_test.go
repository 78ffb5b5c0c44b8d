package monitoring

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/riskdesk/internal/domain"
)

func TestMetrics_ObserveReport(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.ObserveReport(domain.Report{
		Metrics: domain.RiskMetrics{
			PortfolioValue:   decimal.NewFromInt(100000),
			PortfolioRiskPct: decimal.NewFromInt(20),
			OpenPositions:    2,
		},
		Positions: []domain.PositionRisk{
			{Symbol: "SPY", RiskPct: decimal.NewFromInt(12)},
			{Symbol: "QQQ", RiskPct: decimal.NewFromInt(3)},
		},
		Alerts: []domain.RiskAlert{{Severity: domain.SeverityWarning}},
	})

	assert.Equal(t, 100000.0, testutil.ToFloat64(m.portfolioValue))
	assert.Equal(t, 20.0, testutil.ToFloat64(m.portfolioRiskPct))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.openPositions))
	assert.Equal(t, 12.0, testutil.ToFloat64(m.positionRiskPct.WithLabelValues("SPY")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.activeAlerts.WithLabelValues("warning")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.activeAlerts.WithLabelValues("critical")))

	// closed positions disappear on the next report
	m.ObserveReport(domain.Report{Positions: []domain.PositionRisk{{Symbol: "QQQ", RiskPct: decimal.NewFromInt(4)}}})
	assert.Equal(t, 1, testutil.CollectAndCount(m.positionRiskPct))
}

func TestMetrics_Publish(t *testing.T) {
	m := NewMetrics(nil)
	m.SetPendingTrades(1)

	m.Publish(domain.ApprovalEvent{TradeID: "a", To: domain.ApprovalStatePending})
	m.Publish(domain.ApprovalEvent{TradeID: "b", To: domain.ApprovalStatePending})
	m.Publish(domain.ApprovalEvent{TradeID: "a", From: domain.ApprovalStatePending, To: domain.ApprovalStateApproved})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.pendingTrades))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.tradeTransitions.WithLabelValues("approved")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.tradeTransitions.WithLabelValues("pending")))
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics(nil)
	m.RecordError("snapshot")
	m.RecordNewAlert(domain.RiskAlert{Kind: domain.AlertKindDailyLoss, Severity: domain.SeverityCritical})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `riskdesk_errors_total{type="snapshot"} 1`)
	assert.Contains(t, body, `riskdesk_alerts_raised_total{kind="daily_loss",severity="critical"} 1`)
}

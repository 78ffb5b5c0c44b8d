package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/moznion/go-optional"
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/riskdesk/internal/domain"
	"github.com/vadiminshakov/riskdesk/internal/services/approval"
)

var (
	warningStyle  = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#B7791F", Dark: "#F6E05E"}).Bold(true)
	criticalStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#C53030", Dark: "#FC8181"}).Bold(true)
	okStyle       = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"})
	mutedStyle    = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#9C9C9C", Dark: "#6B6B6B"})
)

func severityLabel(s domain.AlertSeverity) string {
	switch s {
	case domain.SeverityCritical:
		return criticalStyle.Render(string(s))
	case domain.SeverityWarning:
		return warningStyle.Render(string(s))
	}
	return mutedStyle.Render(string(s))
}

func stateLabel(s domain.ApprovalState) string {
	switch s {
	case domain.ApprovalStateApproved:
		return okStyle.Render(string(s))
	case domain.ApprovalStateRejected:
		return criticalStyle.Render(string(s))
	case domain.ApprovalStateExpired:
		return mutedStyle.Render(string(s))
	}
	return string(s)
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func optionalMoney(o optional.Option[decimal.Decimal]) string {
	if o.IsNone() {
		return "-"
	}
	return o.Unwrap().StringFixed(2)
}

func newTable(w io.Writer, title string) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(title)
	t.SetStyle(table.StyleRounded)
	return t
}

func renderReport(w io.Writer, report domain.Report) {
	m := report.Metrics

	t := newTable(w, "RISK METRICS "+report.GeneratedAt.Format(time.RFC3339))
	t.AppendRows([]table.Row{
		{"Portfolio value", money(m.PortfolioValue)},
		{"Buying power", money(m.BuyingPower)},
		{"Cash", money(m.CashBalance)},
		{"Daily loss", fmt.Sprintf("%s / %s", money(m.CurrentDailyLoss), money(m.MaxDailyLoss))},
		{"Margin risk %", m.PortfolioRiskPct.StringFixed(2)},
		{"Max position size", money(m.MaxPositionSizeValue)},
		{"Open positions", fmt.Sprintf("%d / %d", m.OpenPositions, m.MaxPositions)},
		{"Margin used", money(m.MarginUsed)},
		{"Margin available", money(m.MarginAvailable)},
	})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, WidthMin: 18, Align: text.AlignLeft},
		{Number: 2, WidthMin: 20, Align: text.AlignRight},
	})
	t.Render()
	fmt.Fprintln(w)

	if len(report.Positions) > 0 {
		pt := newTable(w, "POSITIONS")
		pt.AppendHeader(table.Row{"Symbol", "Side", "Exposure", "Risk %", "Stop", "Target", "R:R"})
		for _, p := range report.Positions {
			pt.AppendRow(table.Row{
				p.Symbol,
				p.Side,
				money(p.Exposure),
				p.RiskPct.StringFixed(2),
				optionalMoney(p.StopLoss),
				optionalMoney(p.TakeProfit),
				optionalMoney(p.RiskRewardRatio),
			})
		}
		pt.Render()
		fmt.Fprintln(w)
	}

	if len(report.Alerts) == 0 {
		fmt.Fprintln(w, okStyle.Render("No alerts"))
		return
	}
	at := newTable(w, "ALERTS")
	at.AppendHeader(table.Row{"Severity", "Kind", "Symbol", "Message"})
	for _, a := range report.Alerts {
		at.AppendRow(table.Row{severityLabel(a.Severity), a.Kind, a.Symbol, a.Message})
	}
	at.Render()
}

func renderTrades(w io.Writer, trades []domain.PendingTrade, now time.Time) {
	if len(trades) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("No pending trades"))
		return
	}

	t := newTable(w, "PENDING TRADES")
	t.AppendHeader(table.Row{"ID", "Symbol", "Type", "Qty", "Value", "Risk", "Conf %", "Expires in", "Reason"})
	for _, tr := range trades {
		remaining, _ := tr.TimeRemaining(now)
		t.AppendRow(table.Row{
			tr.ID,
			tr.Symbol,
			tr.TradeType,
			tr.Quantity.String(),
			money(tr.EstimatedValue),
			riskLabel(tr.RiskScore),
			fmt.Sprintf("%.0f", tr.AIConfidence),
			remaining.Truncate(time.Second).String(),
			tr.Reason,
		})
	}
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 9, WidthMax: 40},
	})
	t.Render()
}

func renderHistory(w io.Writer, trades []domain.PendingTrade) {
	if len(trades) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("No trades"))
		return
	}

	t := newTable(w, "TRADES")
	t.AppendHeader(table.Row{"ID", "Symbol", "Type", "Risk", "State", "Created", "Resolved", "Rejection"})
	for _, tr := range trades {
		resolved := "-"
		if tr.ResolvedAt != nil {
			resolved = tr.ResolvedAt.Format(time.RFC3339)
		}
		t.AppendRow(table.Row{
			tr.ID,
			tr.Symbol,
			tr.TradeType,
			riskLabel(tr.RiskScore),
			stateLabel(tr.State),
			tr.CreatedAt.Format(time.RFC3339),
			resolved,
			tr.RejectionReason,
		})
	}
	t.Render()
}

func riskLabel(score float64) string {
	label := fmt.Sprintf("%.1f", score)
	switch {
	case score >= domain.HighRiskScore:
		return criticalStyle.Render(label)
	case score < domain.LowRiskScore:
		return okStyle.Render(label)
	}
	return warningStyle.Render(label)
}

func renderOutcomes(w io.Writer, outcomes []approval.Outcome) {
	if len(outcomes) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("No matching trades"))
		return
	}

	t := newTable(w, "RESULTS")
	t.AppendHeader(table.Row{"ID", "Symbol", "State", "Error"})
	for _, o := range outcomes {
		errText := ""
		if o.Err != nil {
			errText = o.Err.Error()
		}
		t.AppendRow(table.Row{o.TradeID, o.Symbol, stateLabel(o.State), errText})
	}
	t.Render()
}

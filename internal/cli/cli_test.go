package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vadiminshakov/riskdesk/config"
	"github.com/vadiminshakov/riskdesk/internal/domain"
)

const paperAccount = `
account:
  equity: 100000
  last_equity: 103000
  cash: 40000
  buying_power: 150000
  initial_margin: 20000
positions:
  - symbol: NVDA
    market_value: 15000
    avg_entry_price: 100
    quantity: 150
    side: long
    stop_loss: 90
    take_profit: 130
`

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	paper := filepath.Join(dir, "paper.yaml")
	require.NoError(t, os.WriteFile(paper, []byte(paperAccount), 0o644))

	cfg := "provider:\n  type: paper\n  paper_file: " + paper + "\nwal_dir: " + filepath.Join(dir, "wal") + "\n"
	path := filepath.Join(dir, "riskdesk.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append(args, "--env-file", filepath.Join(t.TempDir(), "none.env")))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

var idPattern = regexp.MustCompile(`queued (\S+) `)

func submit(t *testing.T, cfgPath, symbol, risk string) string {
	t.Helper()
	out, err := run(t, "trades", "submit", "-c", cfgPath, "--symbol", symbol, "--qty", "5", "--price", "20", "--risk", risk)
	require.NoError(t, err, out)
	m := idPattern.FindStringSubmatch(out)
	require.Len(t, m, 2, out)
	return m[1]
}

func TestReportCommand_JSON(t *testing.T) {
	cfgPath := writeConfig(t)

	out, err := run(t, "report", "-c", cfgPath, "--json")
	require.NoError(t, err, out)

	var report domain.Report
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.True(t, report.Metrics.PortfolioValue.Equal(decimal.NewFromInt(100000)))
	assert.True(t, report.Metrics.CurrentDailyLoss.Equal(decimal.NewFromInt(3000)))
	require.Len(t, report.Alerts, 2)
	assert.Equal(t, domain.AlertKindDailyLoss, report.Alerts[0].Kind)
	assert.Equal(t, domain.AlertKindConcentration, report.Alerts[1].Kind)
	require.Len(t, report.Positions, 1)
	assert.True(t, report.Positions[0].RiskRewardRatio.IsSome())
}

func TestReportCommand_Table(t *testing.T) {
	cfgPath := writeConfig(t)

	out, err := run(t, "report", "-c", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "RISK METRICS")
	assert.Contains(t, out, "NVDA")
	assert.Contains(t, out, "daily_loss")
}

func TestTradesCommands_Lifecycle(t *testing.T) {
	cfgPath := writeConfig(t)

	a := submit(t, cfgPath, "AAPL", "8")
	b := submit(t, cfgPath, "MSFT", "2")
	c := submit(t, cfgPath, "AMZN", "5")

	out, err := run(t, "trades", "list", "-c", cfgPath, "--filter", "highRisk")
	require.NoError(t, err)
	assert.Contains(t, out, a)
	assert.NotContains(t, out, b)

	out, err = run(t, "trades", "approve", a, "-c", cfgPath)
	require.NoError(t, err, out)
	assert.Contains(t, out, "approved")

	_, err = run(t, "trades", "approve", a, "-c", cfgPath)
	assert.ErrorIs(t, err, domain.ErrAlreadyResolved)

	_, err = run(t, "trades", "reject", "nope", "-c", cfgPath)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	out, err = run(t, "trades", "reject-all", "-c", cfgPath, "--filter", "lowRisk", "--reason", "too small")
	require.NoError(t, err)
	assert.Contains(t, out, b)
	assert.NotContains(t, out, c)

	out, err = run(t, "trades", "approve-all", "-c", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, c)

	out, err = run(t, "trades", "list", "-c", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "No pending trades")
	out, err = run(t, "trades", "history", "-c", cfgPath)
	require.NoError(t, err)
	for _, id := range []string{a, b, c} {
		assert.Contains(t, out, id)
	}
	assert.Contains(t, out, "rejected")
	assert.Contains(t, out, "too small")
}

func TestTradesCommands_BadFilter(t *testing.T) {
	cfgPath := writeConfig(t)
	_, err := run(t, "trades", "list", "-c", cfgPath, "--filter", "medium")
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	cfgPath := writeConfig(t)

	out, err := run(t, "config", "validate", "-c", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "configuration valid")
	assert.Contains(t, out, "Provider: paper")

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("provider:\n  type: kraken\n"), 0o644))
	_, err = run(t, "config", "validate", "-c", bad)
	assert.Error(t, err)
}

func TestServe_StopsOnCancel(t *testing.T) {
	cfgPath := writeConfig(t)
	cfg, err := config.Load(cfgPath, filepath.Join(t.TempDir(), "none.env"))
	require.NoError(t, err)
	cfg.HTTP.Addr = "127.0.0.1:0"
	cfg.PollInterval = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, zap.NewNop(), cfg) }()

	reportsDir := cfg.ReportsWALDir()
	require.Eventually(t, func() bool {
		entries, err := os.ReadDir(reportsDir)
		return err == nil && len(entries) > 0
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not stop")
	}
}

package snapshot

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/riskdesk/internal/domain"
)

const paperYAML = `
account:
  equity: 100000
  last_equity: 101500
  cash: 42000.5
  buying_power: 184000
  initial_margin: 20000
positions:
  - symbol: SPY
    market_value: 12000
    avg_entry_price: 450
    quantity: 26
    side: long
    stop_loss: 440
    take_profit: 470
  - symbol: TSLA
    market_value: 3000
    avg_entry_price: 250
    quantity: 12
    side: short
`

func writePaper(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "account.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestPaperProvider_Snapshot(t *testing.T) {
	p, err := NewPaperProvider(writePaper(t, paperYAML))
	require.NoError(t, err)

	snap, err := p.Snapshot(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "paper", snap.Source)
	assert.True(t, snap.Account.Equity.Equal(decimal.NewFromInt(100000)))
	assert.True(t, snap.Account.Cash.Equal(decimal.RequireFromString("42000.5")))
	assert.True(t, snap.Account.LastEquity.Equal(decimal.NewFromInt(101500)))

	require.Len(t, snap.Positions, 2)
	spy := snap.Positions[0]
	assert.Equal(t, "SPY", spy.Symbol)
	assert.Equal(t, domain.PositionSideLong, spy.Side)
	require.True(t, spy.StopLoss.IsSome())
	assert.True(t, spy.StopLoss.Unwrap().Equal(decimal.NewFromInt(440)))
	assert.True(t, spy.TakeProfit.Unwrap().Equal(decimal.NewFromInt(470)))

	tsla := snap.Positions[1]
	assert.Equal(t, domain.PositionSideShort, tsla.Side)
	assert.True(t, tsla.StopLoss.IsNone())
	assert.True(t, tsla.TakeProfit.IsNone())
}

func TestPaperProvider_Errors(t *testing.T) {
	_, err := NewPaperProvider("")
	assert.Error(t, err)

	missing, err := NewPaperProvider(filepath.Join(t.TempDir(), "none.yaml"))
	require.NoError(t, err)
	_, err = missing.Snapshot(context.Background())
	assert.Error(t, err)

	broken, err := NewPaperProvider(writePaper(t, "account: [1, 2"))
	require.NoError(t, err)
	_, err = broken.Snapshot(context.Background())
	assert.True(t, errors.Is(err, domain.ErrInvalidSnapshot))

	badSide, err := NewPaperProvider(writePaper(t, "positions:\n  - symbol: X\n    side: sideways\n"))
	require.NoError(t, err)
	_, err = badSide.Snapshot(context.Background())
	assert.True(t, errors.Is(err, domain.ErrInvalidSnapshot))
}

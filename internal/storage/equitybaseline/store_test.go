package equitybaseline

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_Observe(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir, "Binance Spot")
	require.NoError(t, err)

	day1 := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	prev, err := store.Observe(day1, decimal.NewFromInt(1000))
	require.NoError(t, err)
	assert.True(t, prev.Equal(decimal.NewFromInt(1000)), "first observation is its own baseline")

	prev, err = store.Observe(day1.Add(6*time.Hour), decimal.NewFromInt(950))
	require.NoError(t, err)
	assert.True(t, prev.Equal(decimal.NewFromInt(1000)))

	// next day: yesterday's last value becomes the baseline
	prev, err = store.Observe(day1.Add(24*time.Hour), decimal.NewFromInt(990))
	require.NoError(t, err)
	assert.True(t, prev.Equal(decimal.NewFromInt(950)))

	// restart keeps the baseline
	reopened, err := NewStore(dir, "Binance Spot")
	require.NoError(t, err)
	prev, err = reopened.Observe(day1.Add(25*time.Hour), decimal.NewFromInt(1010))
	require.NoError(t, err)
	assert.True(t, prev.Equal(decimal.NewFromInt(950)))

	_, err = os.Stat(filepath.Join(dir, "binance_spot.json"))
	assert.NoError(t, err)
}

func TestStore_ClockSkew(t *testing.T) {
	store, err := NewStore(t.TempDir(), "hl")
	require.NoError(t, err)

	day := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	_, err = store.Observe(day, decimal.NewFromInt(100))
	require.NoError(t, err)
	_, err = store.Observe(day.Add(24*time.Hour), decimal.NewFromInt(120))
	require.NoError(t, err)

	prev, err := store.Observe(day, decimal.NewFromInt(50))
	require.NoError(t, err)
	assert.True(t, prev.Equal(decimal.NewFromInt(100)))
}

func TestSanitizeScope(t *testing.T) {
	assert.Equal(t, "0xabc_def", sanitizeScope(" 0xABC--def "))
	assert.Equal(t, "", sanitizeScope("  "))
}

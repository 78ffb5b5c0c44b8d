// Package snapshot supplies account and position snapshots from paper files and live exchanges.
package snapshot

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/riskdesk/internal/domain"
)

// Snapshot one consistent read of an account.
type Snapshot struct {
	Source    string
	FetchedAt time.Time
	Account   domain.AccountSnapshot
	Positions []domain.PositionSnapshot
}

// Provider fetches fresh snapshots.
type Provider interface {
	Name() string
	Snapshot(ctx context.Context) (Snapshot, error)
}

// Baseline supplies previous-day close equity for venues that do not report it.
type Baseline interface {
	Observe(now time.Time, equity decimal.Decimal) (decimal.Decimal, error)
}

// stablecoins are treated as cash rather than positions.
var stablecoins = map[string]struct{}{
	"USDT":  {},
	"USDC":  {},
	"BUSD":  {},
	"FDUSD": {},
	"DAI":   {},
	"TUSD":  {},
}

func isStable(asset string) bool {
	_, ok := stablecoins[asset]
	return ok
}

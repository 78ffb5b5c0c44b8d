package snapshot

import (
	"context"
	"strings"
	"time"

	"github.com/moznion/go-optional"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	hyperliquid "github.com/sonirico/go-hyperliquid"
	"github.com/vadiminshakov/riskdesk/internal/domain"
	"go.uber.org/zap"
)

// HyperliquidProvider reads a Hyperliquid perpetuals account.
type HyperliquidProvider struct {
	l           *zap.Logger
	info        *hyperliquid.Info
	accountAddr string
	baseline    Baseline
}

// NewHyperliquidProvider creates a perps snapshot provider for accountAddr.
func NewHyperliquidProvider(l *zap.Logger, info *hyperliquid.Info, accountAddr string, baseline Baseline) (*HyperliquidProvider, error) {
	if info == nil {
		return nil, errors.New("hyperliquid info client is required")
	}
	if accountAddr == "" {
		return nil, errors.New("hyperliquid account address is required")
	}
	if baseline == nil {
		return nil, errors.New("equity baseline is required")
	}
	return &HyperliquidProvider{l: l, info: info, accountAddr: accountAddr, baseline: baseline}, nil
}

func (p *HyperliquidProvider) Name() string { return "hyperliquid" }

// Snapshot values every open perp at the current mid.
// Equity is raw USD plus signed position value; margin in use is whatever is not withdrawable.
func (p *HyperliquidProvider) Snapshot(ctx context.Context) (Snapshot, error) {
	st, err := p.info.UserState(ctx, p.accountAddr)
	if err != nil {
		return Snapshot{}, errors.Wrap(err, "get user state")
	}

	mids, err := p.info.AllMids(ctx)
	if err != nil {
		return Snapshot{}, errors.Wrap(err, "get mids")
	}

	rawUsd, err := parseDecimal(st.MarginSummary.TotalRawUsd)
	if err != nil {
		return Snapshot{}, errors.Wrap(err, "parse raw usd")
	}
	withdrawable, err := parseDecimal(st.Withdrawable)
	if err != nil {
		return Snapshot{}, errors.Wrap(err, "parse withdrawable")
	}

	equity := rawUsd
	positions := make([]domain.PositionSnapshot, 0, len(st.AssetPositions))
	for _, ap := range st.AssetPositions {
		szi := strings.TrimSpace(ap.Position.Szi)
		if szi == "" {
			continue
		}
		size, err := decimal.NewFromString(szi)
		if err != nil || size.IsZero() {
			continue
		}

		coin := ap.Position.Coin
		mid, err := parseDecimal(mids[coin])
		if err != nil || mid.IsZero() {
			p.l.Warn("no mid price for position, skipping", zap.String("coin", coin))
			continue
		}

		var entry decimal.Decimal
		if ap.Position.EntryPx != nil {
			if d, err := decimal.NewFromString(*ap.Position.EntryPx); err == nil {
				entry = d
			}
		}
		if entry.IsZero() {
			entry = mid
		}

		side := domain.PositionSideLong
		if size.IsNegative() {
			side = domain.PositionSideShort
		}

		equity = equity.Add(size.Mul(mid))
		positions = append(positions, domain.PositionSnapshot{
			Symbol:        coin,
			MarketValue:   size.Abs().Mul(mid),
			AvgEntryPrice: entry,
			Quantity:      size.Abs(),
			Side:          side,
			StopLoss:      optional.None[decimal.Decimal](),
			TakeProfit:    optional.None[decimal.Decimal](),
		})
	}

	if equity.IsNegative() {
		equity = decimal.Zero
	}
	initialMargin := equity.Sub(withdrawable)
	if initialMargin.IsNegative() {
		initialMargin = decimal.Zero
	}

	now := time.Now().UTC()
	lastEquity, err := p.baseline.Observe(now, equity)
	if err != nil {
		return Snapshot{}, errors.Wrap(err, "failed to update equity baseline")
	}

	return Snapshot{
		Source:    p.Name(),
		FetchedAt: now,
		Account: domain.AccountSnapshot{
			Equity:        equity,
			LastEquity:    lastEquity,
			Cash:          withdrawable,
			BuyingPower:   withdrawable,
			InitialMargin: initialMargin,
		},
		Positions: positions,
	}, nil
}

package snapshot

import (
	"context"
	"fmt"
	"time"

	"github.com/hirokisan/bybit/v2"
	"github.com/moznion/go-optional"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/riskdesk/internal/domain"
	"go.uber.org/zap"
)

// BybitProvider reads a Bybit unified trading account. Coins other than the stablecoins
// become long positions valued in USD as reported by the exchange.
type BybitProvider struct {
	l        *zap.Logger
	client   *bybit.Client
	minValue decimal.Decimal
	baseline Baseline
}

// NewBybitProvider creates a unified-wallet snapshot provider.
func NewBybitProvider(l *zap.Logger, client *bybit.Client, minValue decimal.Decimal, baseline Baseline) (*BybitProvider, error) {
	if client == nil {
		return nil, errors.New("bybit client is required")
	}
	if baseline == nil {
		return nil, errors.New("equity baseline is required")
	}
	return &BybitProvider{l: l, client: client, minValue: minValue, baseline: baseline}, nil
}

func (p *BybitProvider) Name() string { return "bybit" }

// Snapshot fetches the unified wallet balance.
func (p *BybitProvider) Snapshot(ctx context.Context) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}

	resp, err := p.client.V5().Account().GetWalletBalance(bybit.AccountTypeV5("UNIFIED"), nil)
	if err != nil {
		return Snapshot{}, errors.Wrap(err, "failed to get bybit wallet balance")
	}
	if len(resp.Result.List) == 0 {
		return Snapshot{}, fmt.Errorf("bybit API returned no unified account")
	}
	wallet := resp.Result.List[0]

	equity, err := parseDecimal(wallet.TotalEquity)
	if err != nil {
		return Snapshot{}, errors.Wrap(err, "failed to parse total equity")
	}
	available, err := parseDecimal(wallet.TotalAvailableBalance)
	if err != nil {
		return Snapshot{}, errors.Wrap(err, "failed to parse available balance")
	}
	initialMargin, err := parseDecimal(wallet.TotalInitialMargin)
	if err != nil {
		return Snapshot{}, errors.Wrap(err, "failed to parse initial margin")
	}

	cash := decimal.Zero
	positions := make([]domain.PositionSnapshot, 0, len(wallet.Coin))
	for _, c := range wallet.Coin {
		asset := string(c.Coin)
		value, err := parseDecimal(c.UsdValue)
		if err != nil {
			return Snapshot{}, errors.Wrapf(err, "failed to parse %s usd value", asset)
		}
		qty, err := parseDecimal(c.WalletBalance)
		if err != nil {
			return Snapshot{}, errors.Wrapf(err, "failed to parse %s wallet balance", asset)
		}

		if isStable(asset) {
			cash = cash.Add(value)
			continue
		}
		if !qty.IsPositive() || value.LessThan(p.minValue) {
			continue
		}

		positions = append(positions, domain.PositionSnapshot{
			Symbol:      asset + "USDT",
			MarketValue: value,
			// the wallet endpoint carries no cost basis
			AvgEntryPrice: value.Div(qty),
			Quantity:      qty,
			Side:          domain.PositionSideLong,
			StopLoss:      optional.None[decimal.Decimal](),
			TakeProfit:    optional.None[decimal.Decimal](),
		})
	}

	now := time.Now().UTC()
	lastEquity, err := p.baseline.Observe(now, equity)
	if err != nil {
		return Snapshot{}, errors.Wrap(err, "failed to update equity baseline")
	}

	p.l.Debug("bybit snapshot", zap.String("equity", equity.String()), zap.Int("positions", len(positions)))

	return Snapshot{
		Source:    p.Name(),
		FetchedAt: now,
		Account: domain.AccountSnapshot{
			Equity:        equity,
			LastEquity:    lastEquity,
			Cash:          cash,
			BuyingPower:   available,
			InitialMargin: initialMargin,
		},
		Positions: positions,
	}, nil
}

// parseDecimal treats an empty exchange field as zero.
func parseDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

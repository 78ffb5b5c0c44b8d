package snapshot

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/moznion/go-optional"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/riskdesk/internal/domain"
	"go.uber.org/zap"
)

// BinanceProvider reads a Binance spot account. Every non-quote asset becomes a long position
// valued at the last price against the quote asset.
type BinanceProvider struct {
	l        *zap.Logger
	client   *binance.Client
	quote    string
	minValue decimal.Decimal
	baseline Baseline
}

// NewBinanceProvider creates a spot snapshot provider. Holdings worth less than minValue are ignored.
func NewBinanceProvider(l *zap.Logger, client *binance.Client, quote string, minValue decimal.Decimal, baseline Baseline) (*BinanceProvider, error) {
	if client == nil {
		return nil, errors.New("binance client is required")
	}
	if baseline == nil {
		return nil, errors.New("equity baseline is required")
	}
	if quote == "" {
		quote = "USDT"
	}
	return &BinanceProvider{
		l:        l,
		client:   client,
		quote:    strings.ToUpper(quote),
		minValue: minValue,
		baseline: baseline,
	}, nil
}

func (p *BinanceProvider) Name() string { return "binance" }

// Snapshot fetches balances, prices, fills and open stop orders.
func (p *BinanceProvider) Snapshot(ctx context.Context) (Snapshot, error) {
	account, err := p.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return Snapshot{}, errors.Wrap(err, "failed to get binance account")
	}

	prices, err := p.client.NewListPricesService().Do(ctx)
	if err != nil {
		return Snapshot{}, errors.Wrap(err, "failed to list binance prices")
	}
	priceBySymbol := make(map[string]decimal.Decimal, len(prices))
	for _, pr := range prices {
		d, err := decimal.NewFromString(pr.Price)
		if err != nil {
			continue
		}
		priceBySymbol[pr.Symbol] = d
	}

	stops, targets := p.protectiveOrders(ctx)

	cash := decimal.Zero
	freeQuote := decimal.Zero
	positions := make([]domain.PositionSnapshot, 0)

	for _, balance := range account.Balances {
		free, err := decimal.NewFromString(balance.Free)
		if err != nil {
			return Snapshot{}, errors.Wrapf(err, "failed to parse %s free balance", balance.Asset)
		}
		locked, err := decimal.NewFromString(balance.Locked)
		if err != nil {
			return Snapshot{}, errors.Wrapf(err, "failed to parse %s locked balance", balance.Asset)
		}
		total := free.Add(locked)
		if !total.IsPositive() {
			continue
		}

		if balance.Asset == p.quote {
			cash = cash.Add(total)
			freeQuote = free
			continue
		}
		if isStable(balance.Asset) {
			cash = cash.Add(total)
			continue
		}

		symbol := balance.Asset + p.quote
		price, ok := priceBySymbol[symbol]
		if !ok {
			p.l.Debug("no price for asset, skipping", zap.String("asset", balance.Asset))
			continue
		}

		value := total.Mul(price)
		if value.LessThan(p.minValue) {
			continue
		}

		entry, err := p.averageEntry(ctx, symbol)
		if err != nil || entry.IsZero() {
			if err != nil {
				p.l.Warn("failed to compute average entry, using last price", zap.String("symbol", symbol), zap.Error(err))
			}
			entry = price
		}

		positions = append(positions, domain.PositionSnapshot{
			Symbol:        symbol,
			MarketValue:   value,
			AvgEntryPrice: entry,
			Quantity:      total,
			Side:          domain.PositionSideLong,
			StopLoss:      optionFromMap(stops, symbol),
			TakeProfit:    optionFromMap(targets, symbol),
		})
	}

	equity := cash
	for _, pos := range positions {
		equity = equity.Add(pos.MarketValue)
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
			Cash:          cash,
			BuyingPower:   freeQuote,
			InitialMargin: decimal.Zero,
		},
		Positions: positions,
	}, nil
}

// averageEntry replays fills in time order and returns the cost basis of what is still held.
func (p *BinanceProvider) averageEntry(ctx context.Context, symbol string) (decimal.Decimal, error) {
	trades, err := p.client.NewListTradesService().Symbol(symbol).Limit(1000).Do(ctx)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "failed to list binance trades")
	}

	sort.Slice(trades, func(i, j int) bool {
		return trades[i].Time < trades[j].Time
	})

	totalQty := decimal.Zero
	totalCost := decimal.Zero

	for _, trade := range trades {
		qty, err := decimal.NewFromString(trade.Quantity)
		if err != nil {
			return decimal.Zero, errors.Wrap(err, "failed to parse trade quantity")
		}
		price, err := decimal.NewFromString(trade.Price)
		if err != nil {
			return decimal.Zero, errors.Wrap(err, "failed to parse trade price")
		}

		if trade.IsBuyer {
			totalCost = totalCost.Add(price.Mul(qty))
			totalQty = totalQty.Add(qty)
			continue
		}

		if !totalQty.IsPositive() {
			continue
		}
		reduced := decimal.Min(qty, totalQty)
		avgCost := totalCost.Div(totalQty)
		totalCost = totalCost.Sub(avgCost.Mul(reduced))
		totalQty = totalQty.Sub(reduced)
		if !totalQty.IsPositive() {
			totalQty = decimal.Zero
			totalCost = decimal.Zero
		}
	}

	if totalQty.IsZero() {
		return decimal.Zero, nil
	}
	return totalCost.Div(totalQty), nil
}

// protectiveOrders collects stop and take-profit prices of resting sell orders keyed by symbol.
func (p *BinanceProvider) protectiveOrders(ctx context.Context) (map[string]decimal.Decimal, map[string]decimal.Decimal) {
	stops := make(map[string]decimal.Decimal)
	targets := make(map[string]decimal.Decimal)

	orders, err := p.client.NewListOpenOrdersService().Do(ctx)
	if err != nil {
		p.l.Warn("failed to list open orders, stops unavailable", zap.Error(err))
		return stops, targets
	}

	for _, o := range orders {
		if o.Side != binance.SideTypeSell {
			continue
		}
		trigger, err := decimal.NewFromString(o.StopPrice)
		if err != nil || !trigger.IsPositive() {
			continue
		}
		switch o.Type {
		case binance.OrderTypeStopLoss, binance.OrderTypeStopLossLimit:
			stops[o.Symbol] = trigger
		case binance.OrderTypeTakeProfit, binance.OrderTypeTakeProfitLimit:
			targets[o.Symbol] = trigger
		}
	}

	return stops, targets
}

func optionFromMap(m map[string]decimal.Decimal, key string) optional.Option[decimal.Decimal] {
	if v, ok := m[key]; ok {
		return optional.Some(v)
	}
	return optional.None[decimal.Decimal]()
}

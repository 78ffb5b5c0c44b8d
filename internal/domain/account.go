// Package domain defines core data structures shared by the risk engine and the approval queue.
package domain

import (
	"math"

	"github.com/moznion/go-optional"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// PositionSide direction of an open position.
type PositionSide string

const (
	// PositionSideLong bought to open.
	PositionSideLong PositionSide = "long"
	// PositionSideShort sold to open.
	PositionSideShort PositionSide = "short"
)

// IsValid checks if the PositionSide value is valid.
func (s PositionSide) IsValid() bool {
	return s == PositionSideLong || s == PositionSideShort
}

// AccountSnapshot account state supplied by the brokerage on every refresh.
type AccountSnapshot struct {
	Equity        decimal.Decimal `json:"equity"`
	LastEquity    decimal.Decimal `json:"last_equity"`
	Cash          decimal.Decimal `json:"cash"`
	BuyingPower   decimal.Decimal `json:"buying_power"`
	InitialMargin decimal.Decimal `json:"initial_margin"`
}

// NewAccountSnapshot builds a snapshot from raw provider values.
// Non-finite values are rejected with ErrInvalidSnapshot.
func NewAccountSnapshot(equity, lastEquity, cash, buyingPower, initialMargin float64) (AccountSnapshot, error) {
	raw := []struct {
		name  string
		value float64
	}{
		{"equity", equity},
		{"last_equity", lastEquity},
		{"cash", cash},
		{"buying_power", buyingPower},
		{"initial_margin", initialMargin},
	}
	for _, f := range raw {
		if math.IsNaN(f.value) || math.IsInf(f.value, 0) {
			return AccountSnapshot{}, errors.Wrapf(ErrInvalidSnapshot, "%s is not finite", f.name)
		}
	}

	return AccountSnapshot{
		Equity:        decimal.NewFromFloat(equity),
		LastEquity:    decimal.NewFromFloat(lastEquity),
		Cash:          decimal.NewFromFloat(cash),
		BuyingPower:   decimal.NewFromFloat(buyingPower),
		InitialMargin: decimal.NewFromFloat(initialMargin),
	}, nil
}

// Validate checks that all account values are non-negative.
func (a AccountSnapshot) Validate() error {
	fields := []struct {
		name  string
		value decimal.Decimal
	}{
		{"equity", a.Equity},
		{"cash", a.Cash},
		{"last_equity", a.LastEquity},
		{"buying_power", a.BuyingPower},
		{"initial_margin", a.InitialMargin},
	}
	for _, f := range fields {
		if f.value.IsNegative() {
			return errors.Wrapf(ErrInvalidSnapshot, "%s is negative: %s", f.name, f.value.String())
		}
	}
	return nil
}

// PositionSnapshot one open position as reported by the provider.
type PositionSnapshot struct {
	Symbol        string          `json:"symbol"`
	MarketValue   decimal.Decimal `json:"market_value"`
	AvgEntryPrice decimal.Decimal `json:"avg_entry_price"`
	Quantity      decimal.Decimal `json:"quantity"`
	Side          PositionSide    `json:"side"`
	// StopLoss and TakeProfit come from resting order metadata, when the provider has any.
	StopLoss   optional.Option[decimal.Decimal] `json:"stop_loss"`
	TakeProfit optional.Option[decimal.Decimal] `json:"take_profit"`
}

// ValidatePositions checks that every position has a symbol and that symbols are unique.
func ValidatePositions(positions []PositionSnapshot) error {
	seen := make(map[string]struct{}, len(positions))
	for i, p := range positions {
		if p.Symbol == "" {
			return errors.Wrapf(ErrInvalidSnapshot, "position %d has no symbol", i)
		}
		if _, ok := seen[p.Symbol]; ok {
			return errors.Wrapf(ErrInvalidSnapshot, "duplicate position symbol %s", p.Symbol)
		}
		seen[p.Symbol] = struct{}{}
	}
	return nil
}

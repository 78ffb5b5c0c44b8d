package snapshot

import (
	"context"
	"os"
	"time"

	"github.com/moznion/go-optional"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/riskdesk/internal/domain"
	"gopkg.in/yaml.v3"
)

type paperFile struct {
	Account struct {
		Equity        float64 `yaml:"equity"`
		LastEquity    float64 `yaml:"last_equity"`
		Cash          float64 `yaml:"cash"`
		BuyingPower   float64 `yaml:"buying_power"`
		InitialMargin float64 `yaml:"initial_margin"`
	} `yaml:"account"`
	Positions []paperPosition `yaml:"positions"`
}

type paperPosition struct {
	Symbol        string   `yaml:"symbol"`
	MarketValue   float64  `yaml:"market_value"`
	AvgEntryPrice float64  `yaml:"avg_entry_price"`
	Quantity      float64  `yaml:"quantity"`
	Side          string   `yaml:"side"`
	StopLoss      *float64 `yaml:"stop_loss,omitempty"`
	TakeProfit    *float64 `yaml:"take_profit,omitempty"`
}

// PaperProvider reads a hand-maintained YAML account file on every call.
type PaperProvider struct {
	path string
	now  func() time.Time
}

// NewPaperProvider creates a provider backed by the YAML file at path.
func NewPaperProvider(path string) (*PaperProvider, error) {
	if path == "" {
		return nil, errors.New("paper account file is required")
	}
	return &PaperProvider{path: path, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (p *PaperProvider) Name() string { return "paper" }

// Snapshot reads and converts the account file.
func (p *PaperProvider) Snapshot(_ context.Context) (Snapshot, error) {
	raw, err := os.ReadFile(p.path)
	if err != nil {
		return Snapshot{}, errors.Wrapf(err, "read paper account %s", p.path)
	}

	var f paperFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return Snapshot{}, errors.Wrapf(domain.ErrInvalidSnapshot, "decode paper account: %v", err)
	}

	account, err := domain.NewAccountSnapshot(
		f.Account.Equity,
		f.Account.LastEquity,
		f.Account.Cash,
		f.Account.BuyingPower,
		f.Account.InitialMargin,
	)
	if err != nil {
		return Snapshot{}, err
	}

	positions := make([]domain.PositionSnapshot, 0, len(f.Positions))
	for _, pp := range f.Positions {
		side := domain.PositionSide(pp.Side)
		if pp.Side == "" {
			side = domain.PositionSideLong
		}
		if !side.IsValid() {
			return Snapshot{}, errors.Wrapf(domain.ErrInvalidSnapshot, "position %s has unknown side %q", pp.Symbol, pp.Side)
		}

		positions = append(positions, domain.PositionSnapshot{
			Symbol:        pp.Symbol,
			MarketValue:   decimal.NewFromFloat(pp.MarketValue),
			AvgEntryPrice: decimal.NewFromFloat(pp.AvgEntryPrice),
			Quantity:      decimal.NewFromFloat(pp.Quantity),
			Side:          side,
			StopLoss:      optionalPrice(pp.StopLoss),
			TakeProfit:    optionalPrice(pp.TakeProfit),
		})
	}

	return Snapshot{
		Source:    p.Name(),
		FetchedAt: p.now(),
		Account:   account,
		Positions: positions,
	}, nil
}

func optionalPrice(v *float64) optional.Option[decimal.Decimal] {
	if v == nil {
		return optional.None[decimal.Decimal]()
	}
	return optional.Some(decimal.NewFromFloat(*v))
}

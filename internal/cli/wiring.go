package cli

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/riskdesk/config"
	"github.com/vadiminshakov/riskdesk/internal/clients"
	"github.com/vadiminshakov/riskdesk/internal/services/approval"
	"github.com/vadiminshakov/riskdesk/internal/services/monitor"
	"github.com/vadiminshakov/riskdesk/internal/services/snapshot"
	"github.com/vadiminshakov/riskdesk/internal/storage/equitybaseline"
	"github.com/vadiminshakov/riskdesk/internal/storage/pendingtrades"
	"github.com/vadiminshakov/riskdesk/pkg/retrier"
)

// buildProvider creates the snapshot source selected in cfg.
func buildProvider(l *zap.Logger, cfg config.Config) (snapshot.Provider, error) {
	pl := l.Named("snapshot")

	switch cfg.Provider.Type {
	case config.ProviderPaper:
		return snapshot.NewPaperProvider(cfg.Provider.PaperFile)

	case config.ProviderBinance:
		baseline, err := equitybaseline.NewStore(cfg.BaselineDir(), "binance")
		if err != nil {
			return nil, err
		}
		client := clients.NewBinanceClient(cfg.Credentials.BinanceKey, cfg.Credentials.BinanceSecret, cfg.Provider.Testnet)
		return snapshot.NewBinanceProvider(pl, client, cfg.Provider.Quote, cfg.Provider.MinValue, baseline)

	case config.ProviderBybit:
		baseline, err := equitybaseline.NewStore(cfg.BaselineDir(), "bybit")
		if err != nil {
			return nil, err
		}
		client := clients.NewBybitClient(cfg.Credentials.BybitKey, cfg.Credentials.BybitSecret)
		return snapshot.NewBybitProvider(pl, client, cfg.Provider.MinValue, baseline)

	case config.ProviderHyperliquid:
		client, err := clients.NewHyperliquidClient(cfg.Credentials.HyperliquidPrivateKey, cfg.Provider.HyperliquidURL, cfg.Provider.AccountAddress)
		if err != nil {
			return nil, errors.Wrap(err, "failed to create hyperliquid client")
		}
		baseline, err := equitybaseline.NewStore(cfg.BaselineDir(), "hyperliquid_"+client.AccountAddress())
		if err != nil {
			return nil, err
		}
		return snapshot.NewHyperliquidProvider(pl, client.Info(), client.AccountAddress(), baseline)
	}

	return nil, errors.Errorf("unsupported provider: %s", cfg.Provider.Type)
}

// providerRetrier retries transient provider failures and logs every retry.
func providerRetrier(l *zap.Logger) *retrier.Retrier {
	return retrier.New(
		retrier.WithMaxRetries(3),
		retrier.WithInitialInterval(time.Second),
		retrier.WithMaxInterval(10*time.Second),
		retrier.WithRetryIf(monitor.Retryable),
		retrier.WithOnRetry(func(attempt int, err error, wait time.Duration) {
			l.Warn("snapshot fetch failed, retrying",
				zap.Int("attempt", attempt),
				zap.Duration("wait", wait),
				zap.Error(err))
		}),
	)
}

// openManager opens the pending-trade log and builds a manager on top of it.
// The caller closes the returned store.
func openManager(ctx context.Context, l *zap.Logger, cfg config.Config, opts ...approval.Option) (*approval.Manager, *pendingtrades.WALStore, error) {
	store, err := pendingtrades.NewWALStore(l.Named("trades_wal"), cfg.TradesWALDir())
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to open pending trade store")
	}

	opts = append([]approval.Option{approval.WithTTL(cfg.TradeTTL)}, opts...)
	manager, err := approval.NewManager(ctx, l.Named("approval"), store, opts...)
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	return manager, store, nil
}

package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vadiminshakov/riskdesk/config"
	"github.com/vadiminshakov/riskdesk/internal/domain"
	"github.com/vadiminshakov/riskdesk/internal/events"
	"github.com/vadiminshakov/riskdesk/internal/monitoring"
	"github.com/vadiminshakov/riskdesk/internal/services/approval"
	"github.com/vadiminshakov/riskdesk/internal/services/monitor"
	"github.com/vadiminshakov/riskdesk/internal/services/risk"
	"github.com/vadiminshakov/riskdesk/internal/storage/riskreports"
	"github.com/vadiminshakov/riskdesk/internal/web"
)

func newServeCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the risk monitor, expiry sweep and HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := o.loadConfig()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return serve(ctx, o.log(), cfg)
		},
	}
}

func serve(ctx context.Context, l *zap.Logger, cfg config.Config) error {
	provider, err := buildProvider(l, cfg)
	if err != nil {
		return err
	}

	engine, err := risk.NewEngine(cfg.Limits)
	if err != nil {
		return err
	}

	reports, err := riskreports.NewWALStore(l.Named("risk_wal"), cfg.ReportsWALDir(), cfg.RetainedReports)
	if err != nil {
		return errors.Wrap(err, "failed to open risk report store")
	}
	defer reports.Close()

	metrics := monitoring.NewMetrics(nil)
	broadcaster := events.NewApprovalBroadcaster(64)

	manager, trades, err := openManager(ctx, l, cfg,
		approval.WithNotifier(broadcaster),
		approval.WithNotifier(metrics),
	)
	if err != nil {
		return err
	}
	defer trades.Close()

	if _, err := manager.Sweep(ctx); err != nil {
		l.Warn("initial expiry sweep failed", zap.Error(err))
	}
	pending, err := manager.ListPending(ctx, domain.FilterAll)
	if err != nil {
		l.Warn("failed to count pending trades", zap.Error(err))
	}
	metrics.SetPendingTrades(len(pending))

	mon, err := monitor.New(l.Named("monitor"), provider, engine, reports, metrics, providerRetrier(l), cfg.PollInterval)
	if err != nil {
		return err
	}

	server := web.NewServer(l.Named("http"), cfg.HTTP.Addr, reports, manager, broadcaster, metrics.Handler())

	l.Info("riskdesk starting",
		zap.String("provider", provider.Name()),
		zap.Duration("poll_interval", cfg.PollInterval),
		zap.Duration("trade_ttl", cfg.TradeTTL),
		zap.Int("pending_trades", len(pending)))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return mon.Run(gctx) })
	g.Go(func() error { return manager.Run(gctx, cfg.SweepInterval) })
	g.Go(func() error {
		if len(cfg.HTTP.AutoTLSDomains) > 0 {
			return server.StartWithAutoTLS(gctx, cfg.HTTP.AutoTLSDomains, cfg.HTTP.CertCache)
		}
		return server.Start(gctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	l.Info("riskdesk stopped")
	return nil
}

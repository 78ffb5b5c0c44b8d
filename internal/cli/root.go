// Package cli wires riskdesk components into cobra commands.
package cli

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/vadiminshakov/riskdesk/config"
)

type rootOptions struct {
	configPath string
	envFile    string
	debug      bool

	logger *zap.Logger
}

// NewRootCommand builds the riskdesk command tree.
func NewRootCommand() *cobra.Command {
	o := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "riskdesk",
		Short: "Portfolio risk monitor and trade approval queue",
		Long: `riskdesk evaluates account snapshots against risk limits and keeps
automated trade proposals waiting for a human decision.

Exchange credentials are read from the environment or a .env file:
  Binance:     BINANCE_API_KEY, BINANCE_API_SECRET
  Bybit:       BYBIT_API_KEY, BYBIT_API_SECRET
  Hyperliquid: HYPERLIQUID_PRIVATE_KEY`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(o.debug)
			if err != nil {
				return err
			}
			o.logger = logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if o.logger != nil {
				_ = o.logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVarP(&o.configPath, "config", "c", "", "path to yaml config (defaults apply when empty)")
	cmd.PersistentFlags().StringVar(&o.envFile, "env-file", ".env", "file with exchange credentials")
	cmd.PersistentFlags().BoolVar(&o.debug, "debug", false, "enable debug logging")

	cmd.AddCommand(
		newServeCmd(o),
		newReportCmd(o),
		newTradesCmd(o),
		newSetupCmd(),
		newConfigCmd(o),
	)

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCommand().Execute()
}

func (o *rootOptions) loadConfig() (config.Config, error) {
	cfg, err := config.Load(o.configPath, o.envFile)
	if err != nil {
		return config.Config{}, errors.Wrap(err, "failed to load configuration")
	}
	return cfg, nil
}

func (o *rootOptions) log() *zap.Logger {
	if o.logger == nil {
		return zap.NewNop()
	}
	return o.logger
}

func newLogger(debug bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if debug {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	logger, err := cfg.Build()
	if err != nil {
		return nil, errors.Wrap(err, "failed to build logger")
	}
	return logger, nil
}

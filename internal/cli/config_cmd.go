package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vadiminshakov/riskdesk/internal/setup"
)

func newSetupCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Create a config file with an interactive wizard",
		RunE: func(cmd *cobra.Command, args []string) error {
			return setup.RunTUI(output)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "riskdesk.yaml", "output config file path")
	return cmd
}

func newConfigCmd(o *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration files",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate the file given with --config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := o.loadConfig()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			name := o.configPath
			if name == "" {
				name = "(defaults)"
			}
			fmt.Fprintf(out, "%s configuration valid: %s\n", okStyle.Render("✓"), name)
			fmt.Fprintf(out, "  Provider: %s\n", cfg.Provider.Type)
			fmt.Fprintf(out, "  Poll: %s  Sweep: %s  Trade TTL: %s\n", cfg.PollInterval, cfg.SweepInterval, cfg.TradeTTL)
			fmt.Fprintf(out, "  Limits: daily loss %s, position %s, max positions %d\n",
				cfg.Limits.MaxDailyLossPct, cfg.Limits.MaxPositionPct, cfg.Limits.MaxPositions)
			fmt.Fprintf(out, "  WAL: %s\n", cfg.WALDir)
			fmt.Fprintf(out, "  HTTP: %s\n", cfg.HTTP.Addr)
			return nil
		},
	})
	return cmd
}

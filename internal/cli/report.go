package cli

import (
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/vadiminshakov/riskdesk/internal/services/monitor"
	"github.com/vadiminshakov/riskdesk/internal/services/risk"
)

func newReportCmd(o *rootOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Fetch one snapshot and print its risk report",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := o.loadConfig()
			if err != nil {
				return err
			}
			provider, err := buildProvider(o.log(), cfg)
			if err != nil {
				return err
			}
			engine, err := risk.NewEngine(cfg.Limits)
			if err != nil {
				return err
			}
			mon, err := monitor.New(o.log().Named("monitor"), provider, engine, nil, nil, providerRetrier(o.log()), cfg.PollInterval)
			if err != nil {
				return err
			}

			report, err := mon.Tick(cmd.Context())
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return errors.Wrap(enc.Encode(report), "encode report")
			}
			renderReport(cmd.OutOrStdout(), report)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")

	return cmd
}

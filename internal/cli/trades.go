package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/vadiminshakov/riskdesk/internal/domain"
	"github.com/vadiminshakov/riskdesk/internal/services/approval"
)

// withManager opens the pending-trade log for the duration of fn.
// The log is single-writer: stop "serve" before changing trades from the CLI.
func (o *rootOptions) withManager(ctx context.Context, fn func(m *approval.Manager) error) error {
	cfg, err := o.loadConfig()
	if err != nil {
		return err
	}
	manager, store, err := openManager(ctx, o.log(), cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	return fn(manager)
}

func newTradesCmd(o *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trades",
		Short: "Inspect and resolve proposed trades",
	}

	cmd.AddCommand(
		newTradesListCmd(o),
		newTradesHistoryCmd(o),
		newTradesSubmitCmd(o),
		newTradesApproveCmd(o),
		newTradesRejectCmd(o),
		newTradesApproveAllCmd(o),
		newTradesRejectAllCmd(o),
	)
	return cmd
}

func newTradesListCmd(o *rootOptions) *cobra.Command {
	var filter string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List live pending trades",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := domain.ParseFilter(filter)
			if err != nil {
				return err
			}
			return o.withManager(cmd.Context(), func(m *approval.Manager) error {
				trades, err := m.ListPending(cmd.Context(), f)
				if err != nil {
					return err
				}
				renderTrades(cmd.OutOrStdout(), trades, time.Now().UTC())
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&filter, "filter", "f", "all", "all, highRisk or lowRisk")
	return cmd
}

func newTradesHistoryCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "List every known trade with its final state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withManager(cmd.Context(), func(m *approval.Manager) error {
				trades, err := m.List(cmd.Context())
				if err != nil {
					return err
				}
				renderHistory(cmd.OutOrStdout(), trades)
				return nil
			})
		},
	}
}

func newTradesSubmitCmd(o *rootOptions) *cobra.Command {
	var (
		symbol     string
		tradeType  string
		quantity   string
		price      string
		reason     string
		riskScore  float64
		confidence float64
		ttl        time.Duration
	)

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Queue a trade proposal for approval",
		RunE: func(cmd *cobra.Command, args []string) error {
			qty, err := decimal.NewFromString(quantity)
			if err != nil {
				return errors.Wrap(err, "invalid --qty")
			}
			px := decimal.Zero
			if price != "" {
				if px, err = decimal.NewFromString(price); err != nil {
					return errors.Wrap(err, "invalid --price")
				}
			}

			trade := domain.PendingTrade{
				Symbol:         symbol,
				TradeType:      domain.TradeType(tradeType),
				Quantity:       qty,
				EstimatedPrice: px,
				Reason:         reason,
				RiskScore:      riskScore,
				AIConfidence:   confidence,
			}
			if ttl > 0 {
				now := time.Now().UTC()
				trade.CreatedAt = now
				trade.ExpiresAt = now.Add(ttl)
			}

			return o.withManager(cmd.Context(), func(m *approval.Manager) error {
				created, err := m.Submit(cmd.Context(), trade)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "queued %s (%s %s %s), expires %s\n",
					created.ID, created.TradeType, created.Quantity, created.Symbol, created.ExpiresAt.Format(time.RFC3339))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&symbol, "symbol", "", "instrument symbol")
	cmd.Flags().StringVar(&tradeType, "type", "buy", "buy or sell")
	cmd.Flags().StringVar(&quantity, "qty", "", "quantity")
	cmd.Flags().StringVar(&price, "price", "", "estimated price")
	cmd.Flags().StringVar(&reason, "reason", "", "why the trade is proposed")
	cmd.Flags().Float64Var(&riskScore, "risk", 5, "risk score 0-10")
	cmd.Flags().Float64Var(&confidence, "confidence", 0, "model confidence 0-100")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "time to wait for a decision (config trade_ttl when zero)")
	_ = cmd.MarkFlagRequired("symbol")
	_ = cmd.MarkFlagRequired("qty")
	return cmd
}

func newTradesApproveCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "approve ID",
		Short: "Approve a pending trade",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withManager(cmd.Context(), func(m *approval.Manager) error {
				if err := m.Approve(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", args[0], stateLabel(domain.ApprovalStateApproved))
				return nil
			})
		},
	}
}

func newTradesRejectCmd(o *rootOptions) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "reject ID",
		Short: "Reject a pending trade",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withManager(cmd.Context(), func(m *approval.Manager) error {
				if err := m.Reject(cmd.Context(), args[0], reason); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", args[0], stateLabel(domain.ApprovalStateRejected))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "rejection reason")
	return cmd
}

func newTradesApproveAllCmd(o *rootOptions) *cobra.Command {
	var filter string

	cmd := &cobra.Command{
		Use:   "approve-all",
		Short: "Approve every pending trade matching the filter",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := domain.ParseFilter(filter)
			if err != nil {
				return err
			}
			return o.withManager(cmd.Context(), func(m *approval.Manager) error {
				outcomes, err := m.ApproveAll(cmd.Context(), f)
				renderOutcomes(cmd.OutOrStdout(), outcomes)
				return err
			})
		},
	}
	cmd.Flags().StringVarP(&filter, "filter", "f", "all", "all, highRisk or lowRisk")
	return cmd
}

func newTradesRejectAllCmd(o *rootOptions) *cobra.Command {
	var filter, reason string

	cmd := &cobra.Command{
		Use:   "reject-all",
		Short: "Reject every pending trade matching the filter",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := domain.ParseFilter(filter)
			if err != nil {
				return err
			}
			return o.withManager(cmd.Context(), func(m *approval.Manager) error {
				outcomes, err := m.RejectAll(cmd.Context(), f, reason)
				renderOutcomes(cmd.OutOrStdout(), outcomes)
				return err
			})
		},
	}
	cmd.Flags().StringVarP(&filter, "filter", "f", "all", "all, highRisk or lowRisk")
	cmd.Flags().StringVar(&reason, "reason", "", "rejection reason")
	return cmd
}

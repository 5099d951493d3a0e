package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"monoswap/internal/pricing"
)

func newPricesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prices [symbol...]",
		Short: "Print spot prices, all listed tokens by default",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			a, err := setup(ctx, cmd, needMarket)
			if err != nil {
				return err
			}
			defer a.Close()

			if len(args) == 0 {
				list, err := a.cfg.TokenList()
				if err != nil {
					return err
				}
				for _, t := range list {
					args = append(args, t.Symbol)
				}
			}
			quote, _ := cmd.Flags().GetString("quote")
			if quote == "" {
				quote = a.cfg.Pricing.DefaultQuote
			}

			poller := pricing.NewPoller(a.prices, args, quote, a.cfg.PollInterval, a.logger.Named("poller"))
			out := cmd.OutOrStdout()
			if watch, _ := cmd.Flags().GetBool("watch"); !watch {
				printSnapshot(out, poller.Poll(ctx), quote)
				return nil
			}

			err = poller.Run(ctx, func(s pricing.Snapshot) { printSnapshot(out, s, quote) })
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().String("quote", "", "quote currency")
	cmd.Flags().Bool("watch", false, "refresh until interrupted")
	cmd.Flags().Duration("poll-interval", pricing.DefaultPollInterval, "refresh interval with --watch")
	return cmd
}

func printSnapshot(out io.Writer, s pricing.Snapshot, quote string) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "%s\n", s.At.Format(time.RFC3339))
	for _, t := range s.Ticks {
		line := fmt.Sprintf("%s\t%s %s", t.Symbol, formatPrice(t.Price), quote)
		switch {
		case t.Stale:
			line += "\t(stale)"
		case t.Change != 0:
			line += fmt.Sprintf("\t%+.2f%%", t.Change)
		}
		fmt.Fprintln(w, line)
	}
	_ = w.Flush()
}

func formatPrice(p float64) string {
	switch {
	case p == 0:
		return "-"
	case p < 1:
		return fmt.Sprintf("%.6f", p)
	default:
		return fmt.Sprintf("%.2f", p)
	}
}

func newChartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chart <symbol>",
		Short: "Print price history candles",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			a, err := setup(ctx, cmd, needMarket)
			if err != nil {
				return err
			}
			defer a.Close()

			interval, _ := cmd.Flags().GetString("interval")
			quote, _ := cmd.Flags().GetString("quote")
			if quote == "" {
				quote = a.cfg.Pricing.DefaultQuote
			}
			candles, err := a.prices.History(ctx, args[0], quote, interval)
			if err != nil {
				return a.fail(err)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', tabwriter.AlignRight)
			fmt.Fprintln(w, "time\topen\thigh\tlow\tclose\t")
			for _, c := range candles {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t\n",
					time.Unix(c.Time, 0).UTC().Format("2006-01-02 15:04"),
					formatPrice(c.Open), formatPrice(c.High), formatPrice(c.Low), formatPrice(c.Close))
			}
			return w.Flush()
		},
	}
	cmd.Flags().String("interval", "1d", "candle interval ("+strings.Join(pricing.Intervals(), ", ")+")")
	cmd.Flags().String("quote", "", "quote currency")
	return cmd
}

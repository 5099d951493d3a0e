package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"monoswap/internal/model"
)

// eventHistory looks up the ledger events recorded for a transaction.
type eventHistory interface {
	EventsByHash(ctx context.Context, hash string) ([]model.LedgerEvent, error)
}

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent operations, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			a, err := setup(ctx, cmd, needLedger)
			if err != nil {
				return err
			}
			defer a.Close()

			records := a.ledger.List()
			if len(records) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no transactions")
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "time\ttype\tstatus\tdetail\thash")
			for _, r := range records {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					time.UnixMilli(r.Timestamp).Local().Format("2006-01-02 15:04:05"),
					r.Type, r.Status, legs(r), r.Hash)
			}
			return w.Flush()
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove every ledger record",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			a, err := setup(ctx, cmd, needLedger)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.ledger.Clear(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "history cleared")
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "events <hash>",
		Short: "Show the ledger events recorded for a transaction",
		Long:  "Reads the postgres event table, or the JSONL journal when --journal is set.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			a, err := setup(ctx, cmd, needLedger)
			if err != nil {
				return err
			}
			defer a.Close()

			if a.events == nil {
				return fmt.Errorf("no event history: use the postgres store or set --journal")
			}
			events, err := a.events.EventsByHash(ctx, args[0])
			if err != nil {
				return fmt.Errorf("read events: %w", err)
			}
			if len(events) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "no events for %s\n", args[0])
				return nil
			}
			return printEvents(cmd.OutOrStdout(), events)
		},
	})
	return cmd
}

func printEvents(out io.Writer, events []model.LedgerEvent) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "time\top\tkey\tstatus\tdetail")
	for _, ev := range events {
		status, detail := "", ""
		if ev.Record != nil {
			status, detail = string(ev.Record.Status), legs(*ev.Record)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			ev.At.Local().Format("2006-01-02 15:04:05"), ev.Op, ev.Key, status, detail)
	}
	return w.Flush()
}

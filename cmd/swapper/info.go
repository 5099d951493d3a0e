package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"monoswap/internal/tokens"
)

func newPairCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pair <token-a> <token-b>",
		Short: "Print the pair address of two tokens",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			a, err := setup(ctx, cmd, needChain)
			if err != nil {
				return err
			}
			defer a.Close()

			pair, err := a.lookup(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			addr, err := a.orch.GetPair(ctx, pair[0], pair[1])
			if err != nil {
				return a.fail(err)
			}
			if addr == (common.Address{}) {
				fmt.Fprintf(cmd.OutOrStdout(), "no %s/%s pair\n", pair[0].Symbol, pair[1].Symbol)
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), addr.Hex())
			return nil
		},
	}
}

func newReservesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reserves <token-a> <token-b>",
		Short: "Print pair reserves ordered as requested",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			a, err := setup(ctx, cmd, needChain)
			if err != nil {
				return err
			}
			defer a.Close()

			pair, err := a.lookup(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			r, err := a.orch.GetReserves(ctx, pair[0], pair[1])
			if err != nil {
				return a.fail(err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "pair %s\n", r.Pair.Hex())
			fmt.Fprintf(out, "%s %s\n", tokens.FormatUnits(r.ReserveA, pair[0].Decimals), pair[0].Symbol)
			fmt.Fprintf(out, "%s %s\n", tokens.FormatUnits(r.ReserveB, pair[1].Decimals), pair[1].Symbol)
			return nil
		},
	}
}

func newBalanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "balance [token...]",
		Short: "Print account balances, all listed tokens by default",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			a, err := setup(ctx, cmd, needChain)
			if err != nil {
				return err
			}
			defer a.Close()

			if len(args) == 0 {
				args = a.tokens.Symbols()
			}
			list, err := a.lookup(ctx, args...)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "account\t%s\n", a.wallet.Address().Hex())
			for _, t := range list {
				balance, err := a.orch.Balance(ctx, t)
				if err != nil {
					return a.fail(err)
				}
				fmt.Fprintf(w, "%s\t%s\n", t.Symbol, tokens.FormatUnits(balance, t.Decimals))
			}
			return w.Flush()
		},
	}
}

func newVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check the router and factory deployment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			a, err := setup(ctx, cmd, needChain)
			if err != nil {
				return err
			}
			defer a.Close()

			d, err := a.orch.Verify(ctx)
			if err != nil {
				return a.fail(err)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "router deployed\t%t\n", d.RouterDeployed)
			fmt.Fprintf(w, "factory deployed\t%t\n", d.FactoryDeployed)
			if d.RouterFactory != (common.Address{}) {
				fmt.Fprintf(w, "router factory\t%s\n", d.RouterFactory.Hex())
			}
			if d.RouterWETH != (common.Address{}) {
				fmt.Fprintf(w, "router WETH\t%s\n", d.RouterWETH.Hex())
			}
			if d.PairCount != nil {
				fmt.Fprintf(w, "pairs\t%s\n", d.PairCount)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			for _, p := range d.Problems {
				fmt.Fprintf(cmd.OutOrStdout(), "problem: %s\n", p)
			}
			if !d.OK() {
				return fmt.Errorf("deployment has %d problem(s)", len(d.Problems))
			}
			return nil
		},
	}
}

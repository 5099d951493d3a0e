package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"monoswap/internal/model"
	"monoswap/internal/orchestrator"
	"monoswap/internal/tokens"
)

func newQuoteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "quote <token-in> <token-out> <amount>",
		Short: "Quote the output of a direct-pair swap",
		Args:  cobra.ExactArgs(3),
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
			q, err := a.orch.Quote(ctx, pair[0], pair[1], args[2])
			if err != nil {
				return a.fail(err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s -> %s %s\n", args[2], pair[0].Symbol, q.AmountOut, pair[1].Symbol)
			if q.InValueUSD > 0 || q.OutValueUSD > 0 {
				fmt.Fprintf(out, "value: %.2f -> %.2f %s\n", q.InValueUSD, q.OutValueUSD, a.cfg.Pricing.DefaultQuote)
			}
			return nil
		},
	}
}

func newSwapCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "swap <token-in> <token-out> <amount>",
		Short: "Swap an exact input amount",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			a, err := setup(ctx, cmd, needChain)
			if err != nil {
				return err
			}
			defer a.Close()

			bps, err := tokens.PercentToBps(a.cfg.Slippage)
			if err != nil {
				return err
			}
			pair, err := a.lookup(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			sub, err := a.orch.Swap(ctx, orchestrator.SwapRequest{
				TokenIn:     pair[0],
				TokenOut:    pair[1],
				AmountIn:    args[2],
				SlippageBps: bps,
			})
			if err != nil {
				return a.fail(err)
			}
			return a.report(ctx, cmd, sub)
		},
	}
	addTradeFlags(cmd)
	return cmd
}

func newAddLiquidityCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add-liquidity <token-a> <token-b> <amount-a> <amount-b>",
		Short: "Deposit both sides of a pair",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			a, err := setup(ctx, cmd, needChain)
			if err != nil {
				return err
			}
			defer a.Close()

			bps, err := tokens.PercentToBps(a.cfg.Slippage)
			if err != nil {
				return err
			}
			pair, err := a.lookup(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			sub, err := a.orch.AddLiquidity(ctx, orchestrator.LiquidityRequest{
				TokenA:      pair[0],
				TokenB:      pair[1],
				AmountA:     args[2],
				AmountB:     args[3],
				SlippageBps: bps,
			})
			if err != nil {
				return a.fail(err)
			}
			return a.report(ctx, cmd, sub)
		},
	}
	addTradeFlags(cmd)
	return cmd
}

func newRemoveLiquidityCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove-liquidity <token-a> <token-b> <liquidity>",
		Short: "Burn LP tokens for both sides of a pair",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			a, err := setup(ctx, cmd, needChain)
			if err != nil {
				return err
			}
			defer a.Close()

			bps, err := tokens.PercentToBps(a.cfg.Slippage)
			if err != nil {
				return err
			}
			pair, err := a.lookup(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			sub, err := a.orch.RemoveLiquidity(ctx, orchestrator.RemoveRequest{
				TokenA:      pair[0],
				TokenB:      pair[1],
				Liquidity:   args[2],
				SlippageBps: bps,
			})
			if err != nil {
				return a.fail(err)
			}
			return a.report(ctx, cmd, sub)
		},
	}
	addTradeFlags(cmd)
	return cmd
}

func newCreatePairCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create-pair <token-a> <token-b>",
		Short: "Create the pair through the factory",
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
			sub, err := a.orch.CreatePair(ctx, pair[0], pair[1])
			if err != nil {
				return a.fail(err)
			}
			return a.report(ctx, cmd, sub)
		},
	}
	cmd.Flags().Bool("wait", true, "wait for confirmation")
	return cmd
}

// report prints the submission and, with --wait, its final ledger record.
// Without --wait the record stays pending.
func (a *app) report(ctx context.Context, cmd *cobra.Command, sub *orchestrator.Submission) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "submitted %s %s\n", sub.Type, sub.Hash.Hex())

	wait, _ := cmd.Flags().GetBool("wait")
	if !wait {
		a.logger.Info("not waiting for confirmation", zap.String("hash", sub.Hash.Hex()))
		return nil
	}

	receipt, err := sub.Wait(ctx)
	if err != nil {
		return a.fail(err)
	}
	fmt.Fprintf(out, "confirmed in block %s\n", receipt.BlockNumber)
	if record, ok := a.ledger.Get(sub.Hash.Hex()); ok {
		fmt.Fprintf(out, "%s: %s\n", record.Status, legs(record))
	}
	return nil
}

func legs(r model.Transaction) string {
	s := fmt.Sprintf("%s %s -> %s %s", r.From.Amount, r.From.Symbol, r.To.Amount, r.To.Symbol)
	if r.Executed != nil {
		s += fmt.Sprintf(" (executed %s %s)", r.Executed.Amount, r.Executed.Symbol)
	}
	return s
}

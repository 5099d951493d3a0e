package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "swapper",
		Short:        "Swap tokens and manage liquidity on a V2 AMM",
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "config file path")
	flags.String("rpc", "", "JSON-RPC URL")
	flags.String("private-key", "", "hex private key of the signing account")
	flags.String("keystore", "", "keystore JSON file of the signing account")
	flags.Bool("confirm", true, "ask before sending each transaction")
	flags.String("router", "", "router address")
	flags.String("factory", "", "factory address")
	flags.String("price-api-key", "", "market data API key")
	flags.String("store", "file", "ledger store (file, postgres, redis)")
	flags.String("data-dir", "./data", "directory of the file store")
	flags.String("pg-dsn", "", "Postgres DSN")
	flags.String("redis-addr", "localhost:6379", "Redis address")
	flags.String("nats-url", "", "NATS URL for ledger events")
	flags.String("journal", "", "JSONL file receiving ledger events")
	flags.String("metrics-addr", "", "serve Prometheus metrics on this address")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(
		newQuoteCmd(),
		newSwapCmd(),
		newAddLiquidityCmd(),
		newRemoveLiquidityCmd(),
		newCreatePairCmd(),
		newPairCmd(),
		newReservesCmd(),
		newBalanceCmd(),
		newVerifyCmd(),
		newPricesCmd(),
		newChartCmd(),
		newHistoryCmd(),
	)
	return root
}

func addTradeFlags(cmd *cobra.Command) {
	cmd.Flags().String("slippage", "0.5", "slippage tolerance in percent")
	cmd.Flags().Duration("deadline", 1200*time.Second, "router deadline window")
	cmd.Flags().Bool("wait", true, "wait for confirmation")
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}

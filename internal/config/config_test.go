package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
rpc: http://127.0.0.1:8545
router: "0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D"
factory: "0x5C69bEe701ef814a2B6a3EDD4B1652CB9cc5aA6f"
wrapped:
  address: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"
tokens:
  - symbol: USDC
    name: USD Coin
    address: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"
    decimals: 6
  - symbol: DAI
    address: "0x6B175474E89094C44Da98b954EedeAC495271d0F"
    decimals: 18
network:
  chain-id: 31337
  name: Localnet
pricing:
  ttl: 10s
  batch-size: 5
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadFromFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig), nil)
	require.NoError(t, err)

	assert.Equal(t, "http://127.0.0.1:8545", cfg.RPCURL)
	assert.Equal(t, uint64(31337), cfg.Network.ChainID)
	assert.Equal(t, "Localnet", cfg.Network.Name)
	assert.Equal(t, []string{"http://127.0.0.1:8545"}, cfg.Network.RPCURLs)
	assert.Equal(t, 10*time.Second, cfg.Pricing.TTL)
	assert.Equal(t, 5, cfg.Pricing.BatchSize)
	assert.Equal(t, 3, cfg.Pricing.MaxAttempts)
	assert.Equal(t, "USD", cfg.Pricing.DefaultQuote)
	assert.Equal(t, "0.5", cfg.Slippage)
	assert.Equal(t, 1200*time.Second, cfg.Deadline)
	assert.Equal(t, "file", cfg.Store)

	router, factory, err := cfg.Deployment()
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D"), router)
	assert.Equal(t, common.HexToAddress("0x5C69bEe701ef814a2B6a3EDD4B1652CB9cc5aA6f"), factory)

	wrapped, err := cfg.WrappedToken()
	require.NoError(t, err)
	assert.Equal(t, "WETH", wrapped.Symbol)
	assert.Equal(t, uint8(18), wrapped.Decimals)

	list, err := cfg.TokenList()
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.True(t, list[0].IsNative())
	assert.Equal(t, "ETH", list[0].Symbol)
	assert.Equal(t, "USDC", list[1].Symbol)
	assert.Equal(t, uint8(6), list[1].Decimals)
}

func TestLoadEnvAndFlags(t *testing.T) {
	t.Setenv("SWAPPER_PRICE_API_KEY", "secret")
	t.Setenv("SWAPPER_PRICING_MAX_ATTEMPTS", "7")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("slippage", "0.5", "")
	flags.String("log-level", "info", "")
	require.NoError(t, flags.Parse([]string{"--slippage", "1.5", "--log-level", "debug"}))

	cfg, err := Load(writeConfig(t, sampleConfig), flags)
	require.NoError(t, err)

	assert.Equal(t, "secret", cfg.PriceAPIKey)
	assert.Equal(t, 7, cfg.Pricing.MaxAttempts)
	assert.Equal(t, "1.5", cfg.Slippage)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadDefaultsToSepolia(t *testing.T) {
	cfg, err := Load(writeConfig(t, "rpc: https://rpc.sepolia.org\n"), nil)
	require.NoError(t, err)

	assert.Equal(t, uint64(11155111), cfg.Network.ChainID)
	assert.Equal(t, []string{"https://rpc.sepolia.org"}, cfg.Network.RPCURLs)

	_, _, err = cfg.Deployment()
	assert.Error(t, err)
	_, err = cfg.WrappedToken()
	assert.Error(t, err)
}

func TestLoadRejectsBadTokenAddress(t *testing.T) {
	cfg, err := Load(writeConfig(t, "tokens:\n  - symbol: BAD\n    address: nope\n"), nil)
	require.NoError(t, err)
	_, err = cfg.TokenList()
	assert.Error(t, err)
}

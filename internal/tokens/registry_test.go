package tokens

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"monoswap/internal/dex/dextest"
	"monoswap/internal/model"
	"monoswap/internal/swaperr"
)

var (
	wethAddr = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	usdcAddr = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	weth     = model.Token{Address: wethAddr, Symbol: "WETH", Name: "Wrapped Ether", Decimals: 18}
	eth      = model.Token{Symbol: "ETH", Name: "Ether", Decimals: 18}
	usdc     = model.Token{Address: usdcAddr, Symbol: "USDC", Name: "USD Coin", Decimals: 6}
)

func TestRegistryLookup(t *testing.T) {
	chain := dextest.NewChain(common.HexToAddress("0x01"), common.HexToAddress("0x02"), wethAddr)
	unknown := common.HexToAddress("0x00000000000000000000000000000000000000cc")
	chain.AddToken(unknown, "CAKE", "Cake", 9)

	r, err := NewRegistry([]model.Token{eth, usdc}, weth, chain, nil)
	require.NoError(t, err)
	ctx := context.Background()

	got, err := r.Lookup(ctx, "usdc")
	require.NoError(t, err)
	assert.Equal(t, usdc, got)

	got, err = r.Lookup(ctx, "WETH")
	require.NoError(t, err)
	assert.Equal(t, weth, got)

	got, err = r.Lookup(ctx, usdcAddr.Hex())
	require.NoError(t, err)
	assert.Equal(t, usdc, got)

	got, err = r.Lookup(ctx, unknown.Hex())
	require.NoError(t, err)
	assert.Equal(t, "CAKE", got.Symbol)
	assert.Equal(t, uint8(9), got.Decimals)

	calls := chain.Calls("decimals")
	_, err = r.Lookup(ctx, unknown.Hex())
	require.NoError(t, err)
	assert.Equal(t, calls, chain.Calls("decimals"), "metadata is cached")

	_, err = r.Lookup(ctx, "DOGE")
	assert.ErrorIs(t, err, swaperr.ErrInvalidTokenSelection)
	_, err = r.Lookup(ctx, "")
	assert.ErrorIs(t, err, swaperr.ErrInvalidTokenSelection)

	assert.Equal(t, []string{"ETH", "USDC", "WETH"}, r.Symbols())
}

func TestRegistryCanonical(t *testing.T) {
	r, err := NewRegistry([]model.Token{eth, usdc}, weth, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, wethAddr, r.Canonical(eth))
	assert.Equal(t, usdcAddr, r.Canonical(usdc))
	assert.True(t, r.IsNativeOrWrapped(eth))
	assert.True(t, r.IsNativeOrWrapped(weth))
	assert.False(t, r.IsNativeOrWrapped(usdc))
}

func TestRegistryRejectsBadConfig(t *testing.T) {
	_, err := NewRegistry(nil, eth, nil, nil)
	assert.Error(t, err)

	_, err = NewRegistry([]model.Token{usdc, usdc}, weth, nil, nil)
	assert.Error(t, err)
}

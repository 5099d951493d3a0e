package dex_test

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"monoswap/internal/dex"
	"monoswap/internal/dex/dextest"
)

var (
	router  = common.HexToAddress("0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D")
	factory = common.HexToAddress("0x5C69bEe701ef814a2B6a3EDD4B1652CB9cc5aA6f")
	weth    = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	usdc    = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	dai     = common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F")
	owner   = common.HexToAddress("0x00000000000000000000000000000000000000aa")
)

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

func newChain() *dextest.Chain {
	c := dextest.NewChain(router, factory, weth)
	c.AddToken(usdc, "USDC", "USD Coin", 6)
	c.AddToken(dai, "DAI", "Dai Stablecoin", 18)
	c.AddPool(weth, usdc, ether(100), big.NewInt(300_000_000_000), ether(1000))
	c.AddPool(weth, dai, ether(100), ether(300_000), ether(1000))
	return c
}

func TestReadCalls(t *testing.T) {
	chain := newChain()
	ctx := context.Background()

	gotWETH, err := dex.RouterWETH(ctx, chain, router)
	require.NoError(t, err)
	assert.Equal(t, weth, gotWETH)

	gotFactory, err := dex.RouterFactory(ctx, chain, router)
	require.NoError(t, err)
	assert.Equal(t, factory, gotFactory)

	pair, err := dex.GetPair(ctx, chain, factory, usdc, weth)
	require.NoError(t, err)
	assert.Equal(t, chain.Pair(weth, usdc), pair)

	missing, err := dex.GetPair(ctx, chain, factory, usdc, dai)
	require.NoError(t, err)
	assert.Equal(t, common.Address{}, missing)

	count, err := dex.AllPairsLength(ctx, chain, factory)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count.Int64())

	rUSDC, rWETH, err := dex.OrderedReserves(ctx, chain, pair, usdc)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(300_000_000_000), rUSDC)
	assert.Equal(t, ether(100), rWETH)

	supply, err := dex.TotalSupply(ctx, chain, pair)
	require.NoError(t, err)
	assert.Equal(t, ether(1000), supply)

	amounts, err := dex.GetAmountsOut(ctx, chain, router, ether(1), []common.Address{weth, usdc})
	require.NoError(t, err)
	require.Len(t, amounts, 2)
	assert.Equal(t, ether(1), amounts[0])
	assert.True(t, amounts[1].Sign() > 0)
}

func TestReadToken(t *testing.T) {
	chain := newChain()

	token, err := dex.ReadToken(context.Background(), chain, usdc, nil)
	require.NoError(t, err)
	assert.Equal(t, usdc, token.Address)
	assert.Equal(t, "USDC", token.Symbol)
	assert.Equal(t, "USD Coin", token.Name)
	assert.Equal(t, uint8(6), token.Decimals)

	_, err = dex.ReadToken(context.Background(), chain, common.HexToAddress("0xdead"), nil)
	assert.Error(t, err)
}

func TestDecodeSwapReceipt(t *testing.T) {
	chain := newChain()
	ctx := context.Background()
	chain.SetAllowance(usdc, owner, router, dex.MaxApproval)

	path := []common.Address{usdc, weth, dai}
	amounts, err := dex.GetAmountsOut(ctx, chain, router, big.NewInt(1_000_000_000), path)
	require.NoError(t, err)

	data, err := dex.PackSwapExactTokensForTokens(big.NewInt(1_000_000_000), big.NewInt(0), path, owner, big.NewInt(1<<40))
	require.NoError(t, err)
	to := router
	hash, err := chain.Execute(ctx, owner, &to, data, nil)
	require.NoError(t, err)
	receipt, err := chain.WaitMined(ctx, hash)
	require.NoError(t, err)
	require.Equal(t, types.ReceiptStatusSuccessful, receipt.Status)

	decoder, err := dex.NewReceiptDecoder()
	require.NoError(t, err)
	events, err := decoder.Decode(receipt.Logs)
	require.NoError(t, err)
	require.Len(t, events.Swaps, 2)

	last, ok := events.LastSwap()
	require.True(t, ok)
	assert.Equal(t, chain.Pair(weth, dai), last.Pair)
	assert.Equal(t, amounts[2], last.AmountOut())
	assert.Equal(t, owner, last.To)
}

func TestDecodeIgnoresUnknownTopics(t *testing.T) {
	decoder, err := dex.NewReceiptDecoder()
	require.NoError(t, err)

	transfer := common.HexToHash("0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef")
	assert.False(t, decoder.CanDecode(transfer))

	events, err := decoder.Decode([]*types.Log{{Topics: []common.Hash{transfer}}})
	require.NoError(t, err)
	_, ok := events.LastSwap()
	assert.False(t, ok)
}

func TestLiquidityReceipts(t *testing.T) {
	chain := newChain()
	ctx := context.Background()
	chain.SetAllowance(usdc, owner, router, dex.MaxApproval)
	chain.SetAllowance(dai, owner, router, dex.MaxApproval)
	decoder, err := dex.NewReceiptDecoder()
	require.NoError(t, err)
	to := router

	data, err := dex.PackAddLiquidity(usdc, dai, big.NewInt(1_000_000), ether(1), big.NewInt(0), big.NewInt(0), owner, big.NewInt(1<<40))
	require.NoError(t, err)
	hash, err := chain.Execute(ctx, owner, &to, data, nil)
	require.NoError(t, err)
	receipt, err := chain.WaitMined(ctx, hash)
	require.NoError(t, err)
	events, err := decoder.Decode(receipt.Logs)
	require.NoError(t, err)
	require.Len(t, events.Mints, 1)

	pair := chain.Pair(usdc, dai)
	require.NotEqual(t, common.Address{}, pair)
	lp, err := dex.BalanceOf(ctx, chain, pair, owner)
	require.NoError(t, err)
	require.True(t, lp.Sign() > 0)

	approve, err := dex.PackApprove(router, lp)
	require.NoError(t, err)
	_, err = chain.Execute(ctx, owner, &pair, approve, nil)
	require.NoError(t, err)
	allowance, err := dex.Allowance(ctx, chain, pair, owner, router)
	require.NoError(t, err)
	assert.Equal(t, lp, allowance)

	data, err = dex.PackRemoveLiquidity(usdc, dai, lp, big.NewInt(0), big.NewInt(0), owner, big.NewInt(1<<40))
	require.NoError(t, err)
	hash, err = chain.Execute(ctx, owner, &to, data, nil)
	require.NoError(t, err)
	receipt, err = chain.WaitMined(ctx, hash)
	require.NoError(t, err)
	events, err = decoder.Decode(receipt.Logs)
	require.NoError(t, err)
	require.Len(t, events.Burns, 1)
	assert.Equal(t, pair, events.Burns[0].Pair)
}

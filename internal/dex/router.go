package dex

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
)

// MaxApproval is the allowance granted by approvals: 2^256-1.
var MaxApproval = new(big.Int).Set(math.MaxBig256)

// RouterWETH returns the wrapped native token the router is bound to.
func RouterWETH(ctx context.Context, caller Caller, router common.Address) (common.Address, error) {
	parsed, err := RouterABI()
	if err != nil {
		return common.Address{}, fmt.Errorf("parse router abi: %w", err)
	}
	values, err := callMethod(ctx, caller, router, parsed, "WETH")
	if err != nil {
		return common.Address{}, err
	}
	return asAddress(values[0])
}

// RouterFactory returns the factory the router is bound to.
func RouterFactory(ctx context.Context, caller Caller, router common.Address) (common.Address, error) {
	parsed, err := RouterABI()
	if err != nil {
		return common.Address{}, fmt.Errorf("parse router abi: %w", err)
	}
	values, err := callMethod(ctx, caller, router, parsed, "factory")
	if err != nil {
		return common.Address{}, err
	}
	return asAddress(values[0])
}

// GetAmountsOut returns the router's per-hop output amounts for amountIn along path.
func GetAmountsOut(ctx context.Context, caller Caller, router common.Address, amountIn *big.Int, path []common.Address) ([]*big.Int, error) {
	parsed, err := RouterABI()
	if err != nil {
		return nil, fmt.Errorf("parse router abi: %w", err)
	}
	values, err := callMethod(ctx, caller, router, parsed, "getAmountsOut", amountIn, path)
	if err != nil {
		return nil, err
	}
	amounts, ok := values[0].([]*big.Int)
	if !ok {
		return nil, fmt.Errorf("getAmountsOut: unsupported result type %T", values[0])
	}
	if len(amounts) != len(path) {
		return nil, fmt.Errorf("getAmountsOut: expected %d amounts, got %d", len(path), len(amounts))
	}
	return amounts, nil
}

func packRouter(method string, args ...interface{}) ([]byte, error) {
	parsed, err := RouterABI()
	if err != nil {
		return nil, fmt.Errorf("parse router abi: %w", err)
	}
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	return data, nil
}

// PackSwapExactETHForTokens builds calldata for a native-input swap. The
// input amount travels as the transaction value.
func PackSwapExactETHForTokens(amountOutMin *big.Int, path []common.Address, to common.Address, deadline *big.Int) ([]byte, error) {
	return packRouter("swapExactETHForTokens", amountOutMin, path, to, deadline)
}

func PackSwapExactTokensForETH(amountIn, amountOutMin *big.Int, path []common.Address, to common.Address, deadline *big.Int) ([]byte, error) {
	return packRouter("swapExactTokensForETH", amountIn, amountOutMin, path, to, deadline)
}

func PackSwapExactTokensForTokens(amountIn, amountOutMin *big.Int, path []common.Address, to common.Address, deadline *big.Int) ([]byte, error) {
	return packRouter("swapExactTokensForTokens", amountIn, amountOutMin, path, to, deadline)
}

func PackAddLiquidity(tokenA, tokenB common.Address, amountA, amountB, minA, minB *big.Int, to common.Address, deadline *big.Int) ([]byte, error) {
	return packRouter("addLiquidity", tokenA, tokenB, amountA, amountB, minA, minB, to, deadline)
}

// PackAddLiquidityETH builds calldata for a token/native deposit. The native
// amount travels as the transaction value.
func PackAddLiquidityETH(token common.Address, amountToken, minToken, minNative *big.Int, to common.Address, deadline *big.Int) ([]byte, error) {
	return packRouter("addLiquidityETH", token, amountToken, minToken, minNative, to, deadline)
}

func PackRemoveLiquidity(tokenA, tokenB common.Address, liquidity, minA, minB *big.Int, to common.Address, deadline *big.Int) ([]byte, error) {
	return packRouter("removeLiquidity", tokenA, tokenB, liquidity, minA, minB, to, deadline)
}

func PackRemoveLiquidityETH(token common.Address, liquidity, minToken, minNative *big.Int, to common.Address, deadline *big.Int) ([]byte, error) {
	return packRouter("removeLiquidityETH", token, liquidity, minToken, minNative, to, deadline)
}

// PackCreatePair builds factory calldata creating the tokenA/tokenB pair.
func PackCreatePair(tokenA, tokenB common.Address) ([]byte, error) {
	parsed, err := FactoryABI()
	if err != nil {
		return nil, fmt.Errorf("parse factory abi: %w", err)
	}
	data, err := parsed.Pack("createPair", tokenA, tokenB)
	if err != nil {
		return nil, fmt.Errorf("pack createPair: %w", err)
	}
	return data, nil
}

// PackApprove builds ERC-20 approve calldata.
func PackApprove(spender common.Address, amount *big.Int) ([]byte, error) {
	parsed, err := ERC20ABI()
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}
	data, err := parsed.Pack("approve", spender, amount)
	if err != nil {
		return nil, fmt.Errorf("pack approve: %w", err)
	}
	return data, nil
}

package dex

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"monoswap/internal/model"
)

// GetPair returns the pair address for two tokens, or the zero address when
// the factory has no pool for them.
func GetPair(ctx context.Context, caller Caller, factory, tokenA, tokenB common.Address) (common.Address, error) {
	parsed, err := FactoryABI()
	if err != nil {
		return common.Address{}, fmt.Errorf("parse factory abi: %w", err)
	}
	values, err := callMethod(ctx, caller, factory, parsed, "getPair", tokenA, tokenB)
	if err != nil {
		return common.Address{}, err
	}
	return asAddress(values[0])
}

// AllPairsLength returns the number of pairs the factory has created.
func AllPairsLength(ctx context.Context, caller Caller, factory common.Address) (*big.Int, error) {
	parsed, err := FactoryABI()
	if err != nil {
		return nil, fmt.Errorf("parse factory abi: %w", err)
	}
	values, err := callMethod(ctx, caller, factory, parsed, "allPairsLength")
	if err != nil {
		return nil, err
	}
	return asBigInt(values[0])
}

// PairTokens returns token0 and token1 of a pair.
func PairTokens(ctx context.Context, caller Caller, pair common.Address) (common.Address, common.Address, error) {
	parsed, err := PairABI()
	if err != nil {
		return common.Address{}, common.Address{}, fmt.Errorf("parse pair abi: %w", err)
	}
	values, err := callMethod(ctx, caller, pair, parsed, "token0")
	if err != nil {
		return common.Address{}, common.Address{}, err
	}
	token0, err := asAddress(values[0])
	if err != nil {
		return common.Address{}, common.Address{}, fmt.Errorf("token0: %w", err)
	}
	values, err = callMethod(ctx, caller, pair, parsed, "token1")
	if err != nil {
		return common.Address{}, common.Address{}, err
	}
	token1, err := asAddress(values[0])
	if err != nil {
		return common.Address{}, common.Address{}, fmt.Errorf("token1: %w", err)
	}
	return token0, token1, nil
}

// GetReserves returns the raw pair reserves in token0/token1 order.
func GetReserves(ctx context.Context, caller Caller, pair common.Address) (model.Reserves, error) {
	parsed, err := PairABI()
	if err != nil {
		return model.Reserves{}, fmt.Errorf("parse pair abi: %w", err)
	}
	values, err := callMethod(ctx, caller, pair, parsed, "getReserves")
	if err != nil {
		return model.Reserves{}, err
	}
	if len(values) < 3 {
		return model.Reserves{}, fmt.Errorf("getReserves: expected 3 values, got %d", len(values))
	}
	reserve0, err := asBigInt(values[0])
	if err != nil {
		return model.Reserves{}, fmt.Errorf("reserve0: %w", err)
	}
	reserve1, err := asBigInt(values[1])
	if err != nil {
		return model.Reserves{}, fmt.Errorf("reserve1: %w", err)
	}
	ts, err := asBigInt(values[2])
	if err != nil {
		return model.Reserves{}, fmt.Errorf("blockTimestampLast: %w", err)
	}
	return model.Reserves{Reserve0: reserve0, Reserve1: reserve1, BlockTimestampLast: uint32(ts.Uint64())}, nil
}

// OrderedReserves returns the reserves of pair ordered as (tokenA, tokenB).
func OrderedReserves(ctx context.Context, caller Caller, pair, tokenA common.Address) (*big.Int, *big.Int, error) {
	token0, _, err := PairTokens(ctx, caller, pair)
	if err != nil {
		return nil, nil, err
	}
	reserves, err := GetReserves(ctx, caller, pair)
	if err != nil {
		return nil, nil, err
	}
	if token0 == tokenA {
		return reserves.Reserve0, reserves.Reserve1, nil
	}
	return reserves.Reserve1, reserves.Reserve0, nil
}

// TotalSupply returns the ERC-20 total supply of token, typically an LP token.
func TotalSupply(ctx context.Context, caller Caller, token common.Address) (*big.Int, error) {
	parsed, err := ERC20ABI()
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}
	values, err := callMethod(ctx, caller, token, parsed, "totalSupply")
	if err != nil {
		return nil, err
	}
	return asBigInt(values[0])
}

// BalanceOf returns the ERC-20 balance of owner.
func BalanceOf(ctx context.Context, caller Caller, token, owner common.Address) (*big.Int, error) {
	parsed, err := ERC20ABI()
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}
	values, err := callMethod(ctx, caller, token, parsed, "balanceOf", owner)
	if err != nil {
		return nil, err
	}
	return asBigInt(values[0])
}

// Allowance returns how much spender may transfer from owner.
func Allowance(ctx context.Context, caller Caller, token, owner, spender common.Address) (*big.Int, error) {
	parsed, err := ERC20ABI()
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}
	values, err := callMethod(ctx, caller, token, parsed, "allowance", owner, spender)
	if err != nil {
		return nil, err
	}
	return asBigInt(values[0])
}

package dex

import (
	"bytes"
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"monoswap/internal/model"
)

// ReadToken builds token reference data from ERC-20 calls. decimals must
// answer; symbol and name fall back to their bytes32 encodings and then to
// the address and an empty name.
func ReadToken(ctx context.Context, caller Caller, address common.Address, logger *zap.Logger) (model.Token, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	stringABI, err := ERC20ABI()
	if err != nil {
		return model.Token{}, fmt.Errorf("parse erc20 abi: %w", err)
	}
	bytes32ABI, err := erc20ABIBytes32Instance()
	if err != nil {
		return model.Token{}, fmt.Errorf("parse erc20 bytes32 abi: %w", err)
	}

	values, err := callMethod(ctx, caller, address, stringABI, "decimals")
	if err != nil {
		return model.Token{}, err
	}
	decimals, err := asUint8(values[0])
	if err != nil {
		return model.Token{}, err
	}

	t := model.Token{
		Address:  address,
		Symbol:   readText(ctx, caller, address, "symbol", stringABI, bytes32ABI, logger),
		Name:     readText(ctx, caller, address, "name", stringABI, bytes32ABI, logger),
		Decimals: decimals,
	}
	if t.Symbol == "" {
		t.Symbol = address.Hex()
	}
	return t, nil
}

func readText(ctx context.Context, caller Caller, address common.Address, method string, stringABI, bytes32ABI abi.ABI, logger *zap.Logger) string {
	if values, err := callMethod(ctx, caller, address, stringABI, method); err == nil {
		if s, ok := values[0].(string); ok {
			return s
		}
	}
	values, err := callMethod(ctx, caller, address, bytes32ABI, method)
	if err != nil {
		logger.Debug("token text call failed", zap.String("token", address.Hex()), zap.String("method", method), zap.Error(err))
		return ""
	}
	if v, ok := values[0].([32]byte); ok {
		return string(bytes.TrimRight(v[:], "\x00"))
	}
	return ""
}

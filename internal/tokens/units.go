package tokens

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseUnits converts a human-readable amount into base units.
// Amounts with more fractional digits than decimals are rejected.
func ParseUnits(amount string, decimals uint8) (*big.Int, error) {
	amount = strings.TrimSpace(amount)
	if amount == "" {
		return nil, fmt.Errorf("amount is empty")
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	if d.Sign() < 0 {
		return nil, fmt.Errorf("amount %q is negative", amount)
	}
	shifted := d.Shift(int32(decimals))
	if !shifted.Equal(shifted.Truncate(0)) {
		return nil, fmt.Errorf("amount %q has more than %d decimals", amount, decimals)
	}
	return shifted.BigInt(), nil
}

// FormatUnits renders base units as a human-readable decimal string.
func FormatUnits(value *big.Int, decimals uint8) string {
	if value == nil {
		return "0"
	}
	return decimal.NewFromBigInt(value, -int32(decimals)).String()
}

// PercentToBps converts a slippage percentage such as "0.5" to basis points,
// truncating below one basis point.
func PercentToBps(percent string) (uint32, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(percent))
	if err != nil {
		return 0, fmt.Errorf("parse slippage %q: %w", percent, err)
	}
	if d.Sign() < 0 {
		return 0, fmt.Errorf("slippage %q is negative", percent)
	}
	bps := d.Mul(decimal.NewFromInt(100)).Truncate(0)
	if bps.GreaterThanOrEqual(decimal.NewFromInt(10000)) {
		return 0, fmt.Errorf("slippage %q must be below 100%%", percent)
	}
	return uint32(bps.IntPart()), nil
}

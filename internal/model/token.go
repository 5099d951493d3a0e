package model

import "github.com/ethereum/go-ethereum/common"

// Token is immutable reference data for a tradable asset.
// The native unit uses the zero address.
type Token struct {
	Address  common.Address `json:"address"`
	Symbol   string         `json:"symbol"`
	Name     string         `json:"name"`
	Decimals uint8          `json:"decimals"`
}

// IsNative reports whether the token is the chain's native unit.
func (t Token) IsNative() bool {
	return t.Address == (common.Address{})
}

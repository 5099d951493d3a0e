package model

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Reserves is the raw getReserves result of a pair.
type Reserves struct {
	Reserve0           *big.Int
	Reserve1           *big.Int
	BlockTimestampLast uint32
}

// PairReserves are reserves ordered to match a requested token pair.
type PairReserves struct {
	Pair     common.Address
	ReserveA *big.Int
	ReserveB *big.Int
}

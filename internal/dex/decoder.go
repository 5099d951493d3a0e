package dex

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// SwapEvent is a decoded pair Swap log.
type SwapEvent struct {
	Pair       common.Address
	Sender     common.Address
	To         common.Address
	Amount0In  *big.Int
	Amount1In  *big.Int
	Amount0Out *big.Int
	Amount1Out *big.Int
}

// AmountOut returns the output side of the swap. A V2 swap only pays out on
// one side, so the sum is the delivered amount.
func (e SwapEvent) AmountOut() *big.Int {
	return new(big.Int).Add(e.Amount0Out, e.Amount1Out)
}

// LiquidityEvent is a decoded pair Mint or Burn log.
type LiquidityEvent struct {
	Pair    common.Address
	Amount0 *big.Int
	Amount1 *big.Int
}

// PairCreatedEvent is a decoded factory PairCreated log.
type PairCreatedEvent struct {
	Token0 common.Address
	Token1 common.Address
	Pair   common.Address
}

// ReceiptEvents groups the AMM events found in a transaction receipt.
type ReceiptEvents struct {
	Swaps        []SwapEvent
	Mints        []LiquidityEvent
	Burns        []LiquidityEvent
	PairsCreated []PairCreatedEvent
}

// LastSwap returns the final hop of a (possibly multi-hop) swap.
func (e ReceiptEvents) LastSwap() (SwapEvent, bool) {
	if len(e.Swaps) == 0 {
		return SwapEvent{}, false
	}
	return e.Swaps[len(e.Swaps)-1], true
}

// ReceiptDecoder decodes V2 pair and factory logs. Logs with other topics,
// such as ERC-20 transfers, are ignored.
type ReceiptDecoder struct {
	pairABI     abi.ABI
	factoryABI  abi.ABI
	topicToName map[common.Hash]string
}

// NewReceiptDecoder builds a receipt decoder.
func NewReceiptDecoder() (*ReceiptDecoder, error) {
	pairABI, err := PairABI()
	if err != nil {
		return nil, err
	}
	factoryABI, err := FactoryABI()
	if err != nil {
		return nil, err
	}
	return &ReceiptDecoder{
		pairABI:    pairABI,
		factoryABI: factoryABI,
		topicToName: map[common.Hash]string{
			pairABI.Events["Swap"].ID:           "Swap",
			pairABI.Events["Mint"].ID:           "Mint",
			pairABI.Events["Burn"].ID:           "Burn",
			factoryABI.Events["PairCreated"].ID: "PairCreated",
		},
	}, nil
}

// CanDecode checks if the topic0 is supported.
func (d *ReceiptDecoder) CanDecode(topic0 common.Hash) bool {
	_, ok := d.topicToName[topic0]
	return ok
}

// Decode walks the receipt logs in order.
func (d *ReceiptDecoder) Decode(logs []*types.Log) (ReceiptEvents, error) {
	var out ReceiptEvents
	for _, log := range logs {
		if log == nil || len(log.Topics) == 0 {
			continue
		}
		name, ok := d.topicToName[log.Topics[0]]
		if !ok {
			continue
		}
		switch name {
		case "Swap":
			ev, err := d.decodeSwap(log)
			if err != nil {
				return out, err
			}
			out.Swaps = append(out.Swaps, ev)
		case "Mint", "Burn":
			ev, err := d.decodeLiquidity(name, log)
			if err != nil {
				return out, err
			}
			if name == "Mint" {
				out.Mints = append(out.Mints, ev)
			} else {
				out.Burns = append(out.Burns, ev)
			}
		case "PairCreated":
			ev, err := d.decodePairCreated(log)
			if err != nil {
				return out, err
			}
			out.PairsCreated = append(out.PairsCreated, ev)
		}
	}
	return out, nil
}

func (d *ReceiptDecoder) decodeSwap(log *types.Log) (SwapEvent, error) {
	if len(log.Topics) < 3 {
		return SwapEvent{}, fmt.Errorf("swap: expected 3 topics, got %d", len(log.Topics))
	}
	values, err := d.pairABI.Events["Swap"].Inputs.NonIndexed().Unpack(log.Data)
	if err != nil {
		return SwapEvent{}, fmt.Errorf("unpack swap: %w", err)
	}
	amounts, err := bigInts(values, 4)
	if err != nil {
		return SwapEvent{}, fmt.Errorf("swap: %w", err)
	}
	return SwapEvent{
		Pair:       log.Address,
		Sender:     common.BytesToAddress(log.Topics[1].Bytes()),
		To:         common.BytesToAddress(log.Topics[2].Bytes()),
		Amount0In:  amounts[0],
		Amount1In:  amounts[1],
		Amount0Out: amounts[2],
		Amount1Out: amounts[3],
	}, nil
}

func (d *ReceiptDecoder) decodeLiquidity(name string, log *types.Log) (LiquidityEvent, error) {
	values, err := d.pairABI.Events[name].Inputs.NonIndexed().Unpack(log.Data)
	if err != nil {
		return LiquidityEvent{}, fmt.Errorf("unpack %s: %w", name, err)
	}
	amounts, err := bigInts(values, 2)
	if err != nil {
		return LiquidityEvent{}, fmt.Errorf("%s: %w", name, err)
	}
	return LiquidityEvent{Pair: log.Address, Amount0: amounts[0], Amount1: amounts[1]}, nil
}

func (d *ReceiptDecoder) decodePairCreated(log *types.Log) (PairCreatedEvent, error) {
	if len(log.Topics) < 3 {
		return PairCreatedEvent{}, fmt.Errorf("pair created: expected 3 topics, got %d", len(log.Topics))
	}
	values, err := d.factoryABI.Events["PairCreated"].Inputs.NonIndexed().Unpack(log.Data)
	if err != nil {
		return PairCreatedEvent{}, fmt.Errorf("unpack pair created: %w", err)
	}
	if len(values) < 1 {
		return PairCreatedEvent{}, fmt.Errorf("pair created: empty data")
	}
	pair, err := asAddress(values[0])
	if err != nil {
		return PairCreatedEvent{}, fmt.Errorf("pair created: %w", err)
	}
	return PairCreatedEvent{
		Token0: common.BytesToAddress(log.Topics[1].Bytes()),
		Token1: common.BytesToAddress(log.Topics[2].Bytes()),
		Pair:   pair,
	}, nil
}

func bigInts(values []interface{}, n int) ([]*big.Int, error) {
	if len(values) < n {
		return nil, fmt.Errorf("expected %d values, got %d", n, len(values))
	}
	out := make([]*big.Int, n)
	for i := 0; i < n; i++ {
		v, err := asBigInt(values[i])
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

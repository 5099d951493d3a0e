package dextest

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Execute runs a transaction from sender. Configured revert reasons fail the
// call the way gas estimation does; otherwise a receipt is stored for WaitMined.
func (c *Chain) Execute(ctx context.Context, from common.Address, to *common.Address, data []byte, value *big.Int) (common.Hash, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.executeLocked(from, to, data, value, c.nextHash)
}

// executeLocked applies a transaction and stores its receipt under the hash
// returned by txHash, which is only called once execution succeeded.
func (c *Chain) executeLocked(from common.Address, to *common.Address, data []byte, value *big.Int, txHash func() common.Hash) (common.Hash, error) {
	if to == nil || len(data) < 4 {
		return common.Hash{}, fmt.Errorf("execution reverted: contract creation not supported")
	}
	if value == nil {
		value = new(big.Int)
	}

	parsed, kind := c.abiFor(*to, data[:4])
	if kind == "" {
		return common.Hash{}, fmt.Errorf("execution reverted: no contract at %s", to.Hex())
	}
	method, err := parsed.MethodById(data[:4])
	if err != nil {
		return common.Hash{}, fmt.Errorf("execution reverted")
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return common.Hash{}, fmt.Errorf("unpack %s: %w", method.Name, err)
	}
	if reason, ok := c.reverts[method.Name]; ok {
		return common.Hash{}, fmt.Errorf("execution reverted: %s", reason)
	}

	var logs []*types.Log
	switch method.Name {
	case "approve":
		c.tokens[*to].setAllowance(from, args[0].(common.Address), args[1].(*big.Int))
	case "createPair":
		tokenA, tokenB := args[0].(common.Address), args[1].(common.Address)
		if c.pairLocked(tokenA, tokenB) != (common.Address{}) {
			return common.Hash{}, fmt.Errorf("execution reverted: UniswapV2: PAIR_EXISTS")
		}
		pair := c.createPairLocked(tokenA, tokenB)
		p := c.pools[pair]
		ev := c.factoryABI.Events["PairCreated"]
		payload, err := ev.Inputs.NonIndexed().Pack(pair, big.NewInt(int64(len(c.pairs))))
		if err != nil {
			return common.Hash{}, err
		}
		logs = append(logs, &types.Log{
			Address: c.Factory,
			Topics:  []common.Hash{ev.ID, common.BytesToHash(p.token0.Bytes()), common.BytesToHash(p.token1.Bytes())},
			Data:    payload,
		})
	case "swapExactETHForTokens":
		logs, err = c.swapLocked(from, value, args[0].(*big.Int), args[1].([]common.Address), args[2].(common.Address), false)
	case "swapExactTokensForETH", "swapExactTokensForTokens":
		logs, err = c.swapLocked(from, args[0].(*big.Int), args[1].(*big.Int), args[2].([]common.Address), args[3].(common.Address), true)
	case "addLiquidity":
		logs, err = c.addLiquidityLocked(from, args[0].(common.Address), args[1].(common.Address), args[2].(*big.Int), args[3].(*big.Int), true, true)
	case "addLiquidityETH":
		logs, err = c.addLiquidityLocked(from, args[0].(common.Address), c.WETH, args[1].(*big.Int), value, true, false)
	case "removeLiquidity":
		logs, err = c.removeLiquidityLocked(from, args[0].(common.Address), args[1].(common.Address), args[2].(*big.Int))
	case "removeLiquidityETH":
		logs, err = c.removeLiquidityLocked(from, args[0].(common.Address), c.WETH, args[1].(*big.Int))
	default:
		return common.Hash{}, fmt.Errorf("execution reverted: %s not supported", method.Name)
	}
	if err != nil {
		return common.Hash{}, err
	}

	hash := txHash()
	status := types.ReceiptStatusSuccessful
	if _, bad := c.minedBad[method.Name]; bad {
		status = types.ReceiptStatusFailed
		logs = nil
	}
	for i, log := range logs {
		log.TxHash = hash
		log.Index = uint(i)
	}
	c.receipts[hash] = &types.Receipt{
		Status:      status,
		TxHash:      hash,
		Logs:        logs,
		BlockNumber: big.NewInt(int64(c.nonce)),
	}
	c.sent = append(c.sent, Sent{Hash: hash, From: from, To: *to, Method: method.Name, Value: new(big.Int).Set(value)})
	return hash, nil
}

// pairLocked returns the pair for two tokens; the caller holds the lock.
func (c *Chain) pairLocked(tokenA, tokenB common.Address) common.Address {
	token0, token1 := sortTokens(tokenA, tokenB)
	return c.pairs[[2]common.Address{token0, token1}]
}

func (c *Chain) pullLocked(tokenAddr, from common.Address, amount *big.Int) error {
	t, ok := c.tokens[tokenAddr]
	if !ok {
		return fmt.Errorf("execution reverted: TransferHelper: TRANSFER_FROM_FAILED")
	}
	if t.allowance(from, c.Router).Cmp(amount) < 0 {
		return fmt.Errorf("execution reverted: TransferHelper: TRANSFER_FROM_FAILED")
	}
	return nil
}

func (c *Chain) swapLocked(from common.Address, amountIn, amountOutMin *big.Int, path []common.Address, to common.Address, pull bool) ([]*types.Log, error) {
	if pull {
		if err := c.pullLocked(path[0], from, amountIn); err != nil {
			return nil, err
		}
	}
	amounts, err := c.amountsOutLocked(amountIn, path)
	if err != nil {
		return nil, err
	}
	if amounts[len(amounts)-1].Cmp(amountOutMin) < 0 {
		return nil, fmt.Errorf("execution reverted: UniswapV2Router: INSUFFICIENT_OUTPUT_AMOUNT")
	}

	ev := c.pairABI.Events["Swap"]
	var logs []*types.Log
	for i := 0; i < len(path)-1; i++ {
		pair := c.pairLocked(path[i], path[i+1])
		p := c.pools[pair]
		in, out := amounts[i], amounts[i+1]
		zero := new(big.Int)
		var payload []byte
		if path[i] == p.token0 {
			p.reserve0 = new(big.Int).Add(p.reserve0, in)
			p.reserve1 = new(big.Int).Sub(p.reserve1, out)
			payload, err = ev.Inputs.NonIndexed().Pack(in, zero, zero, out)
		} else {
			p.reserve1 = new(big.Int).Add(p.reserve1, in)
			p.reserve0 = new(big.Int).Sub(p.reserve0, out)
			payload, err = ev.Inputs.NonIndexed().Pack(zero, in, out, zero)
		}
		if err != nil {
			return nil, err
		}
		logs = append(logs, &types.Log{
			Address: pair,
			Topics:  []common.Hash{ev.ID, common.BytesToHash(c.Router.Bytes()), common.BytesToHash(to.Bytes())},
			Data:    payload,
		})
	}
	if t, ok := c.tokens[path[len(path)-1]]; ok {
		t.balances[to] = new(big.Int).Add(t.balance(to), amounts[len(amounts)-1])
	}
	return logs, nil
}

func (c *Chain) addLiquidityLocked(from, tokenA, tokenB common.Address, amountA, amountB *big.Int, pullA, pullB bool) ([]*types.Log, error) {
	if pullA {
		if err := c.pullLocked(tokenA, from, amountA); err != nil {
			return nil, err
		}
	}
	if pullB {
		if err := c.pullLocked(tokenB, from, amountB); err != nil {
			return nil, err
		}
	}
	pair := c.createPairLocked(tokenA, tokenB)
	p := c.pools[pair]
	amount0, amount1 := amountA, amountB
	if p.token0 != tokenA {
		amount0, amount1 = amountB, amountA
	}
	p.reserve0 = new(big.Int).Add(p.reserve0, amount0)
	p.reserve1 = new(big.Int).Add(p.reserve1, amount1)

	liquidity := new(big.Int).Set(amount0)
	if amount1.Cmp(liquidity) < 0 {
		liquidity.Set(amount1)
	}
	lp := c.tokens[pair]
	lp.supply = new(big.Int).Add(lp.supply, liquidity)
	lp.balances[from] = new(big.Int).Add(lp.balance(from), liquidity)

	ev := c.pairABI.Events["Mint"]
	payload, err := ev.Inputs.NonIndexed().Pack(amount0, amount1)
	if err != nil {
		return nil, err
	}
	return []*types.Log{{
		Address: pair,
		Topics:  []common.Hash{ev.ID, common.BytesToHash(c.Router.Bytes())},
		Data:    payload,
	}}, nil
}

func (c *Chain) removeLiquidityLocked(from, tokenA, tokenB common.Address, liquidity *big.Int) ([]*types.Log, error) {
	pair := c.pairLocked(tokenA, tokenB)
	p, ok := c.pools[pair]
	if !ok {
		return nil, fmt.Errorf("execution reverted")
	}
	if err := c.pullLocked(pair, from, liquidity); err != nil {
		return nil, err
	}
	lp := c.tokens[pair]
	if lp.supply.Sign() == 0 {
		return nil, fmt.Errorf("execution reverted: UniswapV2: INSUFFICIENT_LIQUIDITY_BURNED")
	}
	amount0 := new(big.Int).Mul(p.reserve0, liquidity)
	amount0.Div(amount0, lp.supply)
	amount1 := new(big.Int).Mul(p.reserve1, liquidity)
	amount1.Div(amount1, lp.supply)
	p.reserve0 = new(big.Int).Sub(p.reserve0, amount0)
	p.reserve1 = new(big.Int).Sub(p.reserve1, amount1)
	lp.supply = new(big.Int).Sub(lp.supply, liquidity)

	ev := c.pairABI.Events["Burn"]
	payload, err := ev.Inputs.NonIndexed().Pack(amount0, amount1)
	if err != nil {
		return nil, err
	}
	return []*types.Log{{
		Address: pair,
		Topics:  []common.Hash{ev.ID, common.BytesToHash(c.Router.Bytes()), common.BytesToHash(from.Bytes())},
		Data:    payload,
	}}, nil
}

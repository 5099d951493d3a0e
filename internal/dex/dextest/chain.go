// Package dextest provides an in-memory V2 exchange that answers contract
// calls and executes router, factory and ERC-20 transactions using the real
// ABIs.
package dextest

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"monoswap/internal/dex"
)

type token struct {
	symbol     string
	name       string
	decimals   uint8
	supply     *big.Int
	balances   map[common.Address]*big.Int
	allowances map[common.Address]map[common.Address]*big.Int
}

type pool struct {
	token0   common.Address
	token1   common.Address
	reserve0 *big.Int
	reserve1 *big.Int
}

// Sent is a transaction executed by the chain.
type Sent struct {
	Hash   common.Hash
	From   common.Address
	To     common.Address
	Method string
	Value  *big.Int
}

// Chain is an in-memory exchange deployment.
type Chain struct {
	Router  common.Address
	Factory common.Address
	WETH    common.Address

	routerABI  abi.ABI
	factoryABI abi.ABI
	pairABI    abi.ABI
	erc20ABI   abi.ABI

	mu       sync.Mutex
	tokens   map[common.Address]*token
	pools    map[common.Address]*pool
	pairs    map[[2]common.Address]common.Address
	native   map[common.Address]*big.Int
	receipts map[common.Hash]*types.Receipt
	reverts  map[string]string
	minedBad map[string]string
	calls    map[string]int
	sent     []Sent
	hold     chan struct{}
	nonce    uint64
	chainID  uint64
	accounts map[common.Address]uint64
}

// DefaultChainID is the chain id reported to signing backends.
const DefaultChainID = 31337

// NewChain deploys an exchange with the given router, factory and wrapped
// native token addresses.
func NewChain(router, factory, weth common.Address) *Chain {
	routerABI, _ := dex.RouterABI()
	factoryABI, _ := dex.FactoryABI()
	pairABI, _ := dex.PairABI()
	erc20ABI, _ := dex.ERC20ABI()
	c := &Chain{
		Router:     router,
		Factory:    factory,
		WETH:       weth,
		routerABI:  routerABI,
		factoryABI: factoryABI,
		pairABI:    pairABI,
		erc20ABI:   erc20ABI,
		tokens:     make(map[common.Address]*token),
		pools:      make(map[common.Address]*pool),
		pairs:      make(map[[2]common.Address]common.Address),
		native:     make(map[common.Address]*big.Int),
		receipts:   make(map[common.Hash]*types.Receipt),
		reverts:    make(map[string]string),
		minedBad:   make(map[string]string),
		calls:      make(map[string]int),
		chainID:    DefaultChainID,
		accounts:   make(map[common.Address]uint64),
	}
	c.AddToken(weth, "WETH", "Wrapped Ether", 18)
	return c
}

// AddToken deploys an ERC-20 token.
func (c *Chain) AddToken(address common.Address, symbol, name string, decimals uint8) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens[address] = newToken(symbol, name, decimals)
}

func newToken(symbol, name string, decimals uint8) *token {
	return &token{
		symbol:     symbol,
		name:       name,
		decimals:   decimals,
		supply:     new(big.Int),
		balances:   make(map[common.Address]*big.Int),
		allowances: make(map[common.Address]map[common.Address]*big.Int),
	}
}

// AddPool creates a pair for tokenA/tokenB with the given reserves and LP supply.
func (c *Chain) AddPool(tokenA, tokenB common.Address, reserveA, reserveB, totalSupply *big.Int) common.Address {
	c.mu.Lock()
	defer c.mu.Unlock()
	pair := c.createPairLocked(tokenA, tokenB)
	p := c.pools[pair]
	if p.token0 == tokenA {
		p.reserve0, p.reserve1 = new(big.Int).Set(reserveA), new(big.Int).Set(reserveB)
	} else {
		p.reserve0, p.reserve1 = new(big.Int).Set(reserveB), new(big.Int).Set(reserveA)
	}
	c.tokens[pair].supply = new(big.Int).Set(totalSupply)
	return pair
}

func (c *Chain) createPairLocked(tokenA, tokenB common.Address) common.Address {
	token0, token1 := sortTokens(tokenA, tokenB)
	key := [2]common.Address{token0, token1}
	if pair, ok := c.pairs[key]; ok {
		return pair
	}
	pair := common.BytesToAddress(crypto.Keccak256(token0.Bytes(), token1.Bytes())[12:])
	c.pairs[key] = pair
	c.pools[pair] = &pool{token0: token0, token1: token1, reserve0: new(big.Int), reserve1: new(big.Int)}
	c.tokens[pair] = newToken("UNI-V2", "Uniswap V2", 18)
	return pair
}

func sortTokens(a, b common.Address) (common.Address, common.Address) {
	if bytes.Compare(a.Bytes(), b.Bytes()) < 0 {
		return a, b
	}
	return b, a
}

// SetBalance sets an ERC-20 balance.
func (c *Chain) SetBalance(tokenAddr, owner common.Address, amount *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens[tokenAddr].balances[owner] = new(big.Int).Set(amount)
}

// SetNativeBalance sets the native balance of owner.
func (c *Chain) SetNativeBalance(owner common.Address, amount *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.native[owner] = new(big.Int).Set(amount)
}

// SetAllowance sets an ERC-20 allowance.
func (c *Chain) SetAllowance(tokenAddr, owner, spender common.Address, amount *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens[tokenAddr].setAllowance(owner, spender, amount)
}

// Allowance returns an ERC-20 allowance.
func (c *Chain) Allowance(tokenAddr, owner, spender common.Address) *big.Int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tokens[tokenAddr].allowance(owner, spender)
}

// Pair returns the pair address for two tokens, or zero.
func (c *Chain) Pair(tokenA, tokenB common.Address) common.Address {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pairLocked(tokenA, tokenB)
}

// RevertWith makes transactions calling method fail before mining with the
// given revert reason, as gas estimation would.
func (c *Chain) RevertWith(method, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reverts[method] = reason
}

// RevertOnChain makes transactions calling method mine with a failed status.
func (c *Chain) RevertOnChain(method string) {
	c.RevertOnChainWith(method, "")
}

// RevertOnChainWith is RevertOnChain with a reason that read calls of method
// revert with, so a failed transaction can be replayed.
func (c *Chain) RevertOnChainWith(method, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.minedBad[method] = reason
}

// HoldReceipts blocks WaitMined until the returned release func is called.
func (c *Chain) HoldReceipts() (release func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	hold := make(chan struct{})
	c.hold = hold
	var once sync.Once
	return func() { once.Do(func() { close(hold) }) }
}

// Calls returns how many read calls hit method.
func (c *Chain) Calls(method string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[method]
}

// Sent returns the executed transactions in order.
func (c *Chain) Sent() []Sent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Sent, len(c.sent))
	copy(out, c.sent)
	return out
}

// SentMethods returns the method names of executed transactions in order.
func (c *Chain) SentMethods() []string {
	sent := c.Sent()
	out := make([]string, 0, len(sent))
	for _, s := range sent {
		out = append(out, s.Method)
	}
	return out
}

func (c *Chain) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if account == c.Router || account == c.Factory {
		return []byte{0x60, 0x80}, nil
	}
	if _, ok := c.tokens[account]; ok {
		return []byte{0x60, 0x80}, nil
	}
	return nil, nil
}

func (c *Chain) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.native[account]; ok {
		return new(big.Int).Set(v), nil
	}
	return new(big.Int), nil
}

// WaitMined returns the receipt of an executed transaction.
func (c *Chain) WaitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	c.mu.Lock()
	hold := c.hold
	c.mu.Unlock()
	if hold != nil {
		select {
		case <-hold:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	receipt, ok := c.receipts[hash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return receipt, nil
}

// CallContract answers eth_call for the deployed contracts.
func (c *Chain) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	if msg.To == nil || len(msg.Data) < 4 {
		return nil, fmt.Errorf("invalid call")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	to := *msg.To
	parsed, kind := c.abiFor(to, msg.Data[:4])
	if kind == "" {
		return nil, fmt.Errorf("no contract at %s", to.Hex())
	}
	method, err := parsed.MethodById(msg.Data[:4])
	if err != nil {
		return nil, fmt.Errorf("execution reverted")
	}
	args, err := method.Inputs.Unpack(msg.Data[4:])
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method.Name, err)
	}
	c.calls[method.Name]++
	if reason, ok := c.minedBad[method.Name]; ok {
		if reason == "" {
			return nil, fmt.Errorf("execution reverted")
		}
		return nil, fmt.Errorf("execution reverted: %s", reason)
	}

	var out []interface{}
	switch kind {
	case "router":
		switch method.Name {
		case "WETH":
			out = []interface{}{c.WETH}
		case "factory":
			out = []interface{}{c.Factory}
		case "getAmountsOut":
			amounts, err := c.amountsOutLocked(args[0].(*big.Int), args[1].([]common.Address))
			if err != nil {
				return nil, err
			}
			out = []interface{}{amounts}
		}
	case "factory":
		switch method.Name {
		case "getPair":
			token0, token1 := sortTokens(args[0].(common.Address), args[1].(common.Address))
			out = []interface{}{c.pairs[[2]common.Address{token0, token1}]}
		case "allPairsLength":
			out = []interface{}{big.NewInt(int64(len(c.pairs)))}
		case "feeTo":
			out = []interface{}{common.Address{}}
		}
	case "pair":
		p := c.pools[to]
		switch method.Name {
		case "token0":
			out = []interface{}{p.token0}
		case "token1":
			out = []interface{}{p.token1}
		case "getReserves":
			out = []interface{}{p.reserve0, p.reserve1, uint32(1700000000)}
		}
	case "erc20":
		t := c.tokens[to]
		switch method.Name {
		case "decimals":
			out = []interface{}{t.decimals}
		case "symbol":
			out = []interface{}{t.symbol}
		case "name":
			out = []interface{}{t.name}
		case "totalSupply":
			out = []interface{}{new(big.Int).Set(t.supply)}
		case "balanceOf":
			out = []interface{}{t.balance(args[0].(common.Address))}
		case "allowance":
			out = []interface{}{t.allowance(args[0].(common.Address), args[1].(common.Address))}
		}
	}
	if out == nil {
		return nil, fmt.Errorf("execution reverted: %s not callable", method.Name)
	}
	return method.Outputs.Pack(out...)
}

func (c *Chain) abiFor(to common.Address, selector []byte) (abi.ABI, string) {
	switch {
	case to == c.Router:
		return c.routerABI, "router"
	case to == c.Factory:
		return c.factoryABI, "factory"
	}
	if _, ok := c.pools[to]; ok {
		if _, err := c.pairABI.MethodById(selector); err == nil {
			return c.pairABI, "pair"
		}
	}
	if _, ok := c.tokens[to]; ok {
		return c.erc20ABI, "erc20"
	}
	return abi.ABI{}, ""
}

func (c *Chain) amountsOutLocked(amountIn *big.Int, path []common.Address) ([]*big.Int, error) {
	if len(path) < 2 {
		return nil, fmt.Errorf("execution reverted: UniswapV2Library: INVALID_PATH")
	}
	amounts := []*big.Int{new(big.Int).Set(amountIn)}
	for i := 0; i < len(path)-1; i++ {
		p, ok := c.poolFor(path[i], path[i+1])
		if !ok {
			return nil, fmt.Errorf("execution reverted")
		}
		reserveIn, reserveOut := p.ordered(path[i])
		if reserveIn.Sign() == 0 || reserveOut.Sign() == 0 {
			return nil, fmt.Errorf("execution reverted: UniswapV2Library: INSUFFICIENT_LIQUIDITY")
		}
		amounts = append(amounts, amountOut(amounts[i], reserveIn, reserveOut))
	}
	return amounts, nil
}

// amountOut applies the 0.3% V2 fee.
func amountOut(amountIn, reserveIn, reserveOut *big.Int) *big.Int {
	inWithFee := new(big.Int).Mul(amountIn, big.NewInt(997))
	num := new(big.Int).Mul(inWithFee, reserveOut)
	den := new(big.Int).Mul(reserveIn, big.NewInt(1000))
	den.Add(den, inWithFee)
	return num.Div(num, den)
}

func (c *Chain) poolFor(a, b common.Address) (*pool, bool) {
	token0, token1 := sortTokens(a, b)
	pair, ok := c.pairs[[2]common.Address{token0, token1}]
	if !ok {
		return nil, false
	}
	return c.pools[pair], true
}

func (p *pool) ordered(tokenIn common.Address) (*big.Int, *big.Int) {
	if tokenIn == p.token0 {
		return p.reserve0, p.reserve1
	}
	return p.reserve1, p.reserve0
}

func (t *token) balance(owner common.Address) *big.Int {
	if v, ok := t.balances[owner]; ok {
		return new(big.Int).Set(v)
	}
	return new(big.Int)
}

func (t *token) allowance(owner, spender common.Address) *big.Int {
	if m, ok := t.allowances[owner]; ok {
		if v, ok := m[spender]; ok {
			return new(big.Int).Set(v)
		}
	}
	return new(big.Int)
}

func (t *token) setAllowance(owner, spender common.Address, amount *big.Int) {
	m, ok := t.allowances[owner]
	if !ok {
		m = make(map[common.Address]*big.Int)
		t.allowances[owner] = m
	}
	m[spender] = new(big.Int).Set(amount)
}

func (c *Chain) nextHash() common.Hash {
	c.nonce++
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], c.nonce)
	return crypto.Keccak256Hash([]byte("dextest"), buf[:])
}

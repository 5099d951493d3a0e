package orchestrator

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"monoswap/internal/dex"
	"monoswap/internal/model"
	"monoswap/internal/swaperr"
	"monoswap/internal/tokens"
	"monoswap/internal/wallet"
)

// LPDecimals is the decimals of V2 pair liquidity tokens.
const LPDecimals = 18

// LiquidityRequest adds AmountA of TokenA and AmountB of TokenB.
type LiquidityRequest struct {
	TokenA      model.Token
	TokenB      model.Token
	AmountA     string
	AmountB     string
	SlippageBps uint32
}

// RemoveRequest burns Liquidity LP tokens of the TokenA/TokenB pair.
type RemoveRequest struct {
	TokenA      model.Token
	TokenB      model.Token
	Liquidity   string
	SlippageBps uint32
}

// AddLiquidity deposits both sides into the pair, creating it if needed.
func (o *Orchestrator) AddLiquidity(ctx context.Context, req LiquidityRequest) (*Submission, error) {
	const op = "orchestrator.AddLiquidity"
	account, err := o.guard.Ensure(ctx)
	if err != nil {
		return nil, err
	}

	ta, tb := req.TokenA, req.TokenB
	if ta.IsNative() && tb.IsNative() {
		return nil, swaperr.Errorf(swaperr.InvalidTokenSelection, op, "both sides are the native token")
	}
	if o.tokens.Canonical(ta) == o.tokens.Canonical(tb) {
		return nil, swaperr.Errorf(swaperr.InvalidTokenSelection, op, "%s and %s resolve to the same token", ta.Symbol, tb.Symbol)
	}
	amountA, err := parseAmount(op, req.AmountA, ta)
	if err != nil {
		return nil, err
	}
	amountB, err := parseAmount(op, req.AmountB, tb)
	if err != nil {
		return nil, err
	}
	minA, err := MinAmount(amountA, req.SlippageBps)
	if err != nil {
		return nil, err
	}
	minB, err := MinAmount(amountB, req.SlippageBps)
	if err != nil {
		return nil, err
	}

	router := o.cfg.Router
	label := "add liquidity " + ta.Symbol + "/" + tb.Symbol
	add := operation{
		name:   op,
		txType: model.TxAddLiquidity,
		from:   model.Leg{Symbol: ta.Symbol, Amount: req.AmountA},
		to:     model.Leg{Symbol: tb.Symbol, Amount: req.AmountB},
	}

	switch {
	case ta.IsNative():
		add.approvals = []approval{{token: tb.Address, symbol: tb.Symbol, amount: amountB}}
		add.build = func(deadline *big.Int) (wallet.TxRequest, error) {
			data, err := dex.PackAddLiquidityETH(tb.Address, amountB, minB, minA, account, deadline)
			return wallet.TxRequest{To: &router, Data: data, Value: amountA, Label: label}, err
		}
	case tb.IsNative():
		add.approvals = []approval{{token: ta.Address, symbol: ta.Symbol, amount: amountA}}
		add.build = func(deadline *big.Int) (wallet.TxRequest, error) {
			data, err := dex.PackAddLiquidityETH(ta.Address, amountA, minA, minB, account, deadline)
			return wallet.TxRequest{To: &router, Data: data, Value: amountB, Label: label}, err
		}
	default:
		add.approvals = []approval{
			{token: ta.Address, symbol: ta.Symbol, amount: amountA},
			{token: tb.Address, symbol: tb.Symbol, amount: amountB},
		}
		add.build = func(deadline *big.Int) (wallet.TxRequest, error) {
			data, err := dex.PackAddLiquidity(ta.Address, tb.Address, amountA, amountB, minA, minB, account, deadline)
			return wallet.TxRequest{To: &router, Data: data, Label: label}, err
		}
	}
	return o.submit(ctx, account, add)
}

// RemoveLiquidity burns LP tokens for the pair's underlying assets. The
// native side is paid out unwrapped.
func (o *Orchestrator) RemoveLiquidity(ctx context.Context, req RemoveRequest) (*Submission, error) {
	const op = "orchestrator.RemoveLiquidity"
	account, err := o.guard.Ensure(ctx)
	if err != nil {
		return nil, err
	}

	ta, tb := req.TokenA, req.TokenB
	a, b := o.tokens.Canonical(ta), o.tokens.Canonical(tb)
	if a == b {
		return nil, swaperr.Errorf(swaperr.InvalidTokenSelection, op, "%s and %s resolve to the same token", ta.Symbol, tb.Symbol)
	}
	lp := model.Token{Symbol: ta.Symbol + "-" + tb.Symbol + " LP", Decimals: LPDecimals}
	liquidity, err := parseAmount(op, req.Liquidity, lp)
	if err != nil {
		return nil, err
	}

	pair, err := o.pairFor(ctx, a, b)
	if err != nil {
		return nil, swaperr.Classify(op, err)
	}
	if pair == (common.Address{}) {
		return nil, swaperr.Errorf(swaperr.PoolNotFound, op, "no pool for %s/%s", ta.Symbol, tb.Symbol)
	}
	lp.Address = pair

	reserveA, reserveB, err := dex.OrderedReserves(ctx, o.chain, pair, a)
	if err != nil {
		return nil, swaperr.Classify(op, err)
	}
	supply, err := dex.TotalSupply(ctx, o.chain, pair)
	if err != nil {
		return nil, swaperr.Classify(op, err)
	}
	if supply.Sign() == 0 {
		return nil, swaperr.Errorf(swaperr.InsufficientLiquidity, op, "pool %s has no liquidity", pair.Hex())
	}

	shareA := share(reserveA, liquidity, supply)
	shareB := share(reserveB, liquidity, supply)
	minA, err := MinAmount(shareA, req.SlippageBps)
	if err != nil {
		return nil, err
	}
	minB, err := MinAmount(shareB, req.SlippageBps)
	if err != nil {
		return nil, err
	}

	router := o.cfg.Router
	label := "remove liquidity " + ta.Symbol + "/" + tb.Symbol
	rm := operation{
		name:      op,
		txType:    model.TxRemoveLiquidity,
		from:      model.Leg{Symbol: lp.Symbol, Amount: req.Liquidity},
		to:        model.Leg{Symbol: ta.Symbol + "/" + tb.Symbol, Amount: tokens.FormatUnits(shareA, ta.Decimals) + "/" + tokens.FormatUnits(shareB, tb.Decimals)},
		approvals: []approval{{token: pair, symbol: lp.Symbol, amount: liquidity}},
	}

	switch {
	case ta.IsNative():
		rm.build = func(deadline *big.Int) (wallet.TxRequest, error) {
			data, err := dex.PackRemoveLiquidityETH(tb.Address, liquidity, minB, minA, account, deadline)
			return wallet.TxRequest{To: &router, Data: data, Label: label}, err
		}
	case tb.IsNative():
		rm.build = func(deadline *big.Int) (wallet.TxRequest, error) {
			data, err := dex.PackRemoveLiquidityETH(ta.Address, liquidity, minA, minB, account, deadline)
			return wallet.TxRequest{To: &router, Data: data, Label: label}, err
		}
	default:
		rm.build = func(deadline *big.Int) (wallet.TxRequest, error) {
			data, err := dex.PackRemoveLiquidity(a, b, liquidity, minA, minB, account, deadline)
			return wallet.TxRequest{To: &router, Data: data, Label: label}, err
		}
	}
	return o.submit(ctx, account, rm)
}

// share is reserve * liquidity / supply.
func share(reserve, liquidity, supply *big.Int) *big.Int {
	out := new(big.Int).Mul(reserve, liquidity)
	return out.Quo(out, supply)
}

// CreatePair deploys the pair for two tokens through the factory.
func (o *Orchestrator) CreatePair(ctx context.Context, tokenA, tokenB model.Token) (*Submission, error) {
	const op = "orchestrator.CreatePair"
	account, err := o.guard.Ensure(ctx)
	if err != nil {
		return nil, err
	}

	a, b := o.tokens.Canonical(tokenA), o.tokens.Canonical(tokenB)
	if a == b {
		return nil, swaperr.Errorf(swaperr.InvalidTokenSelection, op, "%s and %s resolve to the same token", tokenA.Symbol, tokenB.Symbol)
	}
	existing, err := o.pairFor(ctx, a, b)
	if err != nil {
		return nil, swaperr.Classify(op, err)
	}
	if existing != (common.Address{}) {
		return nil, swaperr.Errorf(swaperr.InvalidTokenSelection, op, "pair %s/%s already exists at %s", tokenA.Symbol, tokenB.Symbol, existing.Hex())
	}

	factory := o.cfg.Factory
	create := operation{
		name:   op,
		txType: model.TxCreatePair,
		from:   model.Leg{Symbol: tokenA.Symbol},
		to:     model.Leg{Symbol: tokenB.Symbol},
		build: func(*big.Int) (wallet.TxRequest, error) {
			data, err := dex.PackCreatePair(a, b)
			return wallet.TxRequest{To: &factory, Data: data, Label: "create pair " + tokenA.Symbol + "/" + tokenB.Symbol}, err
		},
	}
	return o.submit(ctx, account, create)
}

package orchestrator

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"monoswap/internal/dex"
	"monoswap/internal/model"
	"monoswap/internal/swaperr"
	"monoswap/internal/tokens"
	"monoswap/internal/wallet"
)

// MaxBps is the basis-point denominator.
const MaxBps = 10000

// Quote is the expected output of a direct-pair swap.
type Quote struct {
	AmountIn      *big.Int
	AmountOut     string
	AmountOutBase *big.Int
	Path          []common.Address
	InValueUSD    float64
	OutValueUSD   float64
}

// SwapRequest is a user swap intent with human-readable amounts.
type SwapRequest struct {
	TokenIn     model.Token
	TokenOut    model.Token
	AmountIn    string
	SlippageBps uint32
}

// BuildPath routes through wrapped unless either side already is it.
// in and out are canonical addresses.
func BuildPath(in, out, wrapped common.Address) []common.Address {
	if in == wrapped || out == wrapped {
		return []common.Address{in, out}
	}
	return []common.Address{in, wrapped, out}
}

// MinAmount applies a slippage tolerance: amount * (10000 - bps) / 10000.
func MinAmount(amount *big.Int, bps uint32) (*big.Int, error) {
	if bps >= MaxBps {
		return nil, swaperr.Errorf(swaperr.InvalidAmount, "slippage", "slippage %d bps must be below %d", bps, MaxBps)
	}
	out := new(big.Int).Mul(amount, big.NewInt(int64(MaxBps-bps)))
	return out.Quo(out, big.NewInt(MaxBps)), nil
}

func parseAmount(op, amount string, t model.Token) (*big.Int, error) {
	v, err := tokens.ParseUnits(amount, t.Decimals)
	if err != nil {
		return nil, swaperr.New(swaperr.InvalidAmount, op, err)
	}
	if v.Sign() == 0 {
		return nil, swaperr.Errorf(swaperr.InvalidAmount, op, "%s amount must be greater than zero", t.Symbol)
	}
	return v, nil
}

// Quote prices amountIn of tokenIn against the direct pair with tokenOut.
func (o *Orchestrator) Quote(ctx context.Context, tokenIn, tokenOut model.Token, amountIn string) (Quote, error) {
	const op = "orchestrator.Quote"
	if _, err := o.guard.Ensure(ctx); err != nil {
		return Quote{}, err
	}

	a, b := o.tokens.Canonical(tokenIn), o.tokens.Canonical(tokenOut)
	if a == b {
		return Quote{}, swaperr.Errorf(swaperr.InvalidTokenSelection, op, "%s and %s resolve to the same token", tokenIn.Symbol, tokenOut.Symbol)
	}
	in, err := parseAmount(op, amountIn, tokenIn)
	if err != nil {
		return Quote{}, err
	}

	pair, err := o.pairFor(ctx, a, b)
	if err != nil {
		return Quote{}, swaperr.Classify(op, err)
	}
	if pair == (common.Address{}) {
		return Quote{}, swaperr.Errorf(swaperr.PoolNotFound, op, "no pool for %s/%s", tokenIn.Symbol, tokenOut.Symbol)
	}
	reserves, err := dex.GetReserves(ctx, o.chain, pair)
	if err != nil {
		return Quote{}, swaperr.Classify(op, err)
	}
	if reserves.Reserve0.Sign() == 0 || reserves.Reserve1.Sign() == 0 {
		return Quote{}, swaperr.Errorf(swaperr.InsufficientLiquidity, op, "pool %s has no reserves", pair.Hex())
	}

	path := []common.Address{a, b}
	amounts, err := dex.GetAmountsOut(ctx, o.chain, o.cfg.Router, in, path)
	if err != nil {
		return Quote{}, swaperr.Classify(op, err)
	}
	out := amounts[len(amounts)-1]

	q := Quote{
		AmountIn:      in,
		AmountOut:     tokens.FormatUnits(out, tokenOut.Decimals),
		AmountOutBase: out,
		Path:          path,
	}
	if o.prices != nil {
		prices := o.prices.GetPrices(ctx, []string{tokenIn.Symbol, tokenOut.Symbol}, o.cfg.QuoteCurrency)
		q.InValueUSD = value(prices, tokenIn, in)
		q.OutValueUSD = value(prices, tokenOut, out)
	}
	return q, nil
}

func value(prices map[string]float64, t model.Token, amount *big.Int) float64 {
	price := prices[t.Symbol]
	if price == 0 {
		return 0
	}
	return decimal.NewFromBigInt(amount, -int32(t.Decimals)).Mul(decimal.NewFromFloat(price)).InexactFloat64()
}

// Swap submits a swap and returns once the transaction hash is recorded.
func (o *Orchestrator) Swap(ctx context.Context, req SwapRequest) (*Submission, error) {
	const op = "orchestrator.Swap"
	account, err := o.guard.Ensure(ctx)
	if err != nil {
		return nil, err
	}

	in, out := req.TokenIn, req.TokenOut
	a, b := o.tokens.Canonical(in), o.tokens.Canonical(out)
	if a == b {
		return nil, swaperr.Errorf(swaperr.InvalidTokenSelection, op, "%s and %s resolve to the same token", in.Symbol, out.Symbol)
	}
	amountIn, err := parseAmount(op, req.AmountIn, in)
	if err != nil {
		return nil, err
	}

	path := BuildPath(a, b, o.tokens.Wrapped().Address)
	amounts, err := dex.GetAmountsOut(ctx, o.chain, o.cfg.Router, amountIn, path)
	if err != nil {
		return nil, swaperr.Classify(op, err)
	}
	expected := amounts[len(amounts)-1]
	minOut, err := MinAmount(expected, req.SlippageBps)
	if err != nil {
		return nil, err
	}

	router := o.cfg.Router
	sw := operation{
		name:   op,
		txType: model.TxSwap,
		from:   model.Leg{Symbol: in.Symbol, Amount: tokens.FormatUnits(amountIn, in.Decimals)},
		to:     model.Leg{Symbol: out.Symbol, Amount: tokens.FormatUnits(expected, out.Decimals)},
		output: &out,
	}
	label := "swap " + in.Symbol + " for " + out.Symbol

	switch {
	case in.IsNative():
		sw.build = func(deadline *big.Int) (wallet.TxRequest, error) {
			data, err := dex.PackSwapExactETHForTokens(minOut, path, account, deadline)
			return wallet.TxRequest{To: &router, Data: data, Value: amountIn, Label: label}, err
		}
	case out.IsNative():
		sw.approvals = []approval{{token: in.Address, symbol: in.Symbol, amount: amountIn}}
		sw.build = func(deadline *big.Int) (wallet.TxRequest, error) {
			data, err := dex.PackSwapExactTokensForETH(amountIn, minOut, path, account, deadline)
			return wallet.TxRequest{To: &router, Data: data, Label: label}, err
		}
	default:
		sw.approvals = []approval{{token: in.Address, symbol: in.Symbol, amount: amountIn}}
		sw.build = func(deadline *big.Int) (wallet.TxRequest, error) {
			data, err := dex.PackSwapExactTokensForTokens(amountIn, minOut, path, account, deadline)
			return wallet.TxRequest{To: &router, Data: data, Label: label}, err
		}
	}
	return o.submit(ctx, account, sw)
}

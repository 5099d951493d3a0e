package orchestrator

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"monoswap/internal/dex"
	"monoswap/internal/model"
	"monoswap/internal/swaperr"
)

// GetPair returns the pair address of two tokens, or the zero address.
func (o *Orchestrator) GetPair(ctx context.Context, tokenA, tokenB model.Token) (common.Address, error) {
	const op = "orchestrator.GetPair"
	if _, err := o.guard.Ensure(ctx); err != nil {
		return common.Address{}, err
	}
	a, b := o.tokens.Canonical(tokenA), o.tokens.Canonical(tokenB)
	if a == b {
		return common.Address{}, swaperr.Errorf(swaperr.InvalidTokenSelection, op, "%s and %s resolve to the same token", tokenA.Symbol, tokenB.Symbol)
	}
	pair, err := o.pairFor(ctx, a, b)
	if err != nil {
		return common.Address{}, swaperr.Classify(op, err)
	}
	return pair, nil
}

// GetReserves returns the pair reserves ordered as tokenA, tokenB.
func (o *Orchestrator) GetReserves(ctx context.Context, tokenA, tokenB model.Token) (model.PairReserves, error) {
	const op = "orchestrator.GetReserves"
	pair, err := o.GetPair(ctx, tokenA, tokenB)
	if err != nil {
		return model.PairReserves{}, err
	}
	if pair == (common.Address{}) {
		return model.PairReserves{}, swaperr.Errorf(swaperr.PoolNotFound, op, "no pool for %s/%s", tokenA.Symbol, tokenB.Symbol)
	}
	reserveA, reserveB, err := dex.OrderedReserves(ctx, o.chain, pair, o.tokens.Canonical(tokenA))
	if err != nil {
		return model.PairReserves{}, swaperr.Classify(op, err)
	}
	return model.PairReserves{Pair: pair, ReserveA: reserveA, ReserveB: reserveB}, nil
}

// Balance returns the connected account's balance of t in base units.
func (o *Orchestrator) Balance(ctx context.Context, t model.Token) (*big.Int, error) {
	const op = "orchestrator.Balance"
	account, err := o.guard.Ensure(ctx)
	if err != nil {
		return nil, err
	}
	var balance *big.Int
	if t.IsNative() {
		balance, err = o.chain.BalanceAt(ctx, account, nil)
	} else {
		balance, err = dex.BalanceOf(ctx, o.chain, t.Address, account)
	}
	if err != nil {
		return nil, swaperr.Classify(op, err)
	}
	return balance, nil
}

// Deployment is the result of checking the configured contracts.
type Deployment struct {
	RouterDeployed  bool
	FactoryDeployed bool
	RouterFactory   common.Address
	RouterWETH      common.Address
	PairCount       *big.Int
	Problems        []string
}

// OK reports whether no problems were found.
func (d Deployment) OK() bool {
	return len(d.Problems) == 0
}

// Verify checks that the router and factory are deployed and wired to each
// other and to the configured wrapped native token.
func (o *Orchestrator) Verify(ctx context.Context) (Deployment, error) {
	const op = "orchestrator.Verify"
	if _, err := o.guard.Ensure(ctx); err != nil {
		return Deployment{}, err
	}

	var d Deployment
	code, err := o.chain.CodeAt(ctx, o.cfg.Router, nil)
	if err != nil {
		return Deployment{}, swaperr.Classify(op, err)
	}
	d.RouterDeployed = len(code) > 0
	code, err = o.chain.CodeAt(ctx, o.cfg.Factory, nil)
	if err != nil {
		return Deployment{}, swaperr.Classify(op, err)
	}
	d.FactoryDeployed = len(code) > 0

	if !d.RouterDeployed {
		d.Problems = append(d.Problems, fmt.Sprintf("no contract code at router %s", o.cfg.Router.Hex()))
	} else {
		if d.RouterFactory, err = dex.RouterFactory(ctx, o.chain, o.cfg.Router); err != nil {
			d.Problems = append(d.Problems, fmt.Sprintf("router factory(): %v", err))
		} else if d.RouterFactory != o.cfg.Factory {
			d.Problems = append(d.Problems, fmt.Sprintf("router is bound to factory %s, configured %s", d.RouterFactory.Hex(), o.cfg.Factory.Hex()))
		}
		wrapped := o.tokens.Wrapped().Address
		if d.RouterWETH, err = dex.RouterWETH(ctx, o.chain, o.cfg.Router); err != nil {
			d.Problems = append(d.Problems, fmt.Sprintf("router WETH(): %v", err))
		} else if d.RouterWETH != wrapped {
			d.Problems = append(d.Problems, fmt.Sprintf("router wraps %s, configured %s", d.RouterWETH.Hex(), wrapped.Hex()))
		}
	}

	if !d.FactoryDeployed {
		d.Problems = append(d.Problems, fmt.Sprintf("no contract code at factory %s", o.cfg.Factory.Hex()))
	} else if d.PairCount, err = dex.AllPairsLength(ctx, o.chain, o.cfg.Factory); err != nil {
		d.Problems = append(d.Problems, fmt.Sprintf("factory allPairsLength(): %v", err))
	}
	return d, nil
}

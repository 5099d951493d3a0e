// Package orchestrator turns swap and liquidity intents into sequenced,
// slippage-bounded router calls and tracks them in the transaction ledger.
package orchestrator

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
	"go.uber.org/zap"

	"monoswap/internal/dex"
	"monoswap/internal/metrics"
	"monoswap/internal/model"
	"monoswap/internal/tokens"
	"monoswap/internal/wallet"
)

// DefaultDeadline is the router deadline window added at submission time.
const DefaultDeadline = 1200 * time.Second

// Chain is the read side of the execution network.
type Chain interface {
	dex.Caller
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	WaitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

// Guard checks the wallet connection before any operation.
type Guard interface {
	Ensure(ctx context.Context) (common.Address, error)
}

// Ledger records submitted operations.
type Ledger interface {
	Append(ctx context.Context, record model.Transaction) error
	Update(ctx context.Context, hash string, patch model.TransactionPatch) (bool, error)
}

// Prices values quoted amounts. A zero price means unknown.
type Prices interface {
	GetPrices(ctx context.Context, symbols []string, quote string) map[string]float64
}

// Config holds the deployment the orchestrator talks to.
type Config struct {
	Router        common.Address
	Factory       common.Address
	Deadline      time.Duration
	QuoteCurrency string
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

func WithPrices(p Prices) Option {
	return func(o *Orchestrator) { o.prices = p }
}

func WithLogger(logger *zap.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

type pairKey [2]common.Address

// Orchestrator runs swap and liquidity operations for the guarded account.
type Orchestrator struct {
	cfg      Config
	chain    Chain
	provider wallet.Provider
	guard    Guard
	tokens   *tokens.Registry
	ledger   Ledger
	prices   Prices
	decoder  *dex.ReceiptDecoder
	logger   *zap.Logger
	metrics  *metrics.Metrics
	now      func() time.Time

	// inflight is held from the sentinel append until the hash rewrite, so
	// the ledger carries at most one "pending" sentinel.
	inflight sync.Mutex

	pairMu sync.RWMutex
	pairs  map[pairKey]common.Address

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	sub    event.Subscription
	once   sync.Once
}

// New creates an orchestrator. Call Start to track network changes and Close
// to stop outstanding confirmation waits.
func New(cfg Config, chain Chain, provider wallet.Provider, guard Guard, registry *tokens.Registry, ledger Ledger, opts ...Option) (*Orchestrator, error) {
	if cfg.Router == (common.Address{}) || cfg.Factory == (common.Address{}) {
		return nil, fmt.Errorf("router and factory addresses are required")
	}
	if cfg.Deadline <= 0 {
		cfg.Deadline = DefaultDeadline
	}
	if cfg.QuoteCurrency == "" {
		cfg.QuoteCurrency = "USD"
	}
	decoder, err := dex.NewReceiptDecoder()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		cfg:      cfg,
		chain:    chain,
		provider: provider,
		guard:    guard,
		tokens:   registry,
		ledger:   ledger,
		decoder:  decoder,
		logger:   zap.NewNop(),
		now:      time.Now,
		pairs:    make(map[pairKey]common.Address),
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Start subscribes to network changes; the pair cache is dropped on each.
func (o *Orchestrator) Start() {
	chains := make(chan wallet.ChainChanged, 4)
	o.sub = o.provider.SubscribeChain(chains)

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		for {
			select {
			case ev := <-chains:
				o.logger.Info("network changed, dropping pair cache", zap.Uint64("chain_id", ev.ChainID))
				o.resetPairs()
			case err := <-o.sub.Err():
				if err != nil {
					o.logger.Warn("network subscription failed", zap.Error(err))
				}
				return
			case <-o.ctx.Done():
				return
			}
		}
	}()
}

// Close cancels confirmation waits and waits for their goroutines.
func (o *Orchestrator) Close() {
	o.once.Do(func() {
		if o.sub != nil {
			o.sub.Unsubscribe()
		}
		o.cancel()
		o.wg.Wait()
	})
}

func (o *Orchestrator) resetPairs() {
	o.pairMu.Lock()
	o.pairs = make(map[pairKey]common.Address)
	o.pairMu.Unlock()
}

func (o *Orchestrator) deadline() *big.Int {
	return big.NewInt(o.now().Add(o.cfg.Deadline).Unix())
}

func sortedKey(a, b common.Address) pairKey {
	if bytes.Compare(a.Bytes(), b.Bytes()) > 0 {
		a, b = b, a
	}
	return pairKey{a, b}
}

// pairFor resolves the pair of two canonical addresses. Only existing pairs
// are cached.
func (o *Orchestrator) pairFor(ctx context.Context, a, b common.Address) (common.Address, error) {
	key := sortedKey(a, b)
	o.pairMu.RLock()
	pair, ok := o.pairs[key]
	o.pairMu.RUnlock()
	if ok {
		return pair, nil
	}

	pair, err := dex.GetPair(ctx, o.chain, o.cfg.Factory, a, b)
	if err != nil {
		return common.Address{}, err
	}
	if pair != (common.Address{}) {
		o.pairMu.Lock()
		o.pairs[key] = pair
		o.pairMu.Unlock()
	}
	return pair, nil
}

package guard

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
	"go.uber.org/zap"

	"monoswap/internal/metrics"
	"monoswap/internal/swaperr"
	"monoswap/internal/wallet"
)

const op = "guard.Ensure"

// Guard verifies that a wallet account is connected on the supported network
// before any orchestration proceeds.
type Guard struct {
	provider wallet.Provider
	network  wallet.NetworkParams
	logger   *zap.Logger
	metrics  *metrics.Metrics

	mu       sync.Mutex
	verified bool
	account  common.Address

	subs event.SubscriptionScope
	quit chan struct{}
	wg   sync.WaitGroup
}

// Option configures a Guard.
type Option func(*Guard)

func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Guard) { g.metrics = m }
}

// New creates a guard for the single supported network.
func New(provider wallet.Provider, network wallet.NetworkParams, logger *zap.Logger, opts ...Option) *Guard {
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &Guard{
		provider: provider,
		network:  network,
		logger:   logger,
		quit:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Network returns the supported network.
func (g *Guard) Network() wallet.NetworkParams {
	return g.network
}

// Start subscribes to account and network changes. Each change drops the
// cached verification.
func (g *Guard) Start() {
	accounts := make(chan wallet.AccountsChanged, 4)
	chains := make(chan wallet.ChainChanged, 4)
	accSub := g.subs.Track(g.provider.SubscribeAccounts(accounts))
	chainSub := g.subs.Track(g.provider.SubscribeChain(chains))

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		for {
			select {
			case ev := <-accounts:
				g.logger.Info("accounts changed", zap.Int("accounts", len(ev.Accounts)))
				g.invalidate()
			case ev := <-chains:
				g.logger.Info("network changed", zap.Uint64("chain_id", ev.ChainID))
				g.invalidate()
			case err := <-accSub.Err():
				if err != nil {
					g.logger.Warn("account subscription failed", zap.Error(err))
				}
				return
			case err := <-chainSub.Err():
				if err != nil {
					g.logger.Warn("network subscription failed", zap.Error(err))
				}
				return
			case <-g.quit:
				return
			}
		}
	}()
}

// Close unsubscribes from the provider.
func (g *Guard) Close() {
	select {
	case <-g.quit:
		return
	default:
		close(g.quit)
	}
	g.subs.Close()
	g.wg.Wait()
}

func (g *Guard) invalidate() {
	g.mu.Lock()
	g.verified = false
	g.mu.Unlock()
}

// Ensure returns the connected account once it is on the supported network,
// switching (and if needed adding) the network first.
func (g *Guard) Ensure(ctx context.Context) (common.Address, error) {
	g.mu.Lock()
	if g.verified {
		account := g.account
		g.mu.Unlock()
		g.metrics.RecordGuardCheck("cached")
		return account, nil
	}
	g.mu.Unlock()

	account, err := g.verify(ctx)
	if err != nil {
		g.metrics.RecordGuardCheck(swaperr.KindOf(err).String())
		return common.Address{}, err
	}
	g.metrics.RecordGuardCheck("verified")
	return account, nil
}

func (g *Guard) verify(ctx context.Context) (common.Address, error) {
	accounts, err := g.provider.Accounts(ctx)
	if err != nil {
		return common.Address{}, swaperr.Classify(op, err)
	}
	if len(accounts) == 0 {
		return common.Address{}, swaperr.New(swaperr.NotConnected, op, nil)
	}
	account := accounts[0]

	chainID, err := g.provider.ChainID(ctx)
	if err != nil {
		return common.Address{}, swaperr.Classify(op, err)
	}
	if chainID != g.network.ChainID {
		g.logger.Info("requesting network switch",
			zap.Uint64("current", chainID),
			zap.Uint64("required", g.network.ChainID),
		)
		if err := g.switchNetwork(ctx); err != nil {
			return common.Address{}, err
		}
		chainID, err = g.provider.ChainID(ctx)
		if err != nil {
			return common.Address{}, swaperr.Classify(op, err)
		}
		if chainID != g.network.ChainID {
			return common.Address{}, swaperr.Errorf(swaperr.WrongNetwork, op, "connected to chain %d, need %d", chainID, g.network.ChainID)
		}
	}

	g.mu.Lock()
	g.verified = true
	g.account = account
	g.mu.Unlock()
	return account, nil
}

func (g *Guard) switchNetwork(ctx context.Context) error {
	err := g.provider.SwitchChain(ctx, g.network.ChainID)
	if err == nil {
		return nil
	}
	code, ok := swaperr.ProviderCode(err)
	if !ok || code != swaperr.CodeUnrecognizedChain {
		return g.classifySwitch(err)
	}

	g.logger.Info("network unknown to wallet, adding", zap.String("name", g.network.Name))
	if err := g.provider.AddChain(ctx, g.network); err != nil {
		return g.classifySwitch(fmt.Errorf("add chain: %w", err))
	}
	if err := g.provider.SwitchChain(ctx, g.network.ChainID); err != nil {
		return g.classifySwitch(err)
	}
	return nil
}

// classifySwitch keeps rejection and pending codes; anything else is a
// network mismatch the user must resolve.
func (g *Guard) classifySwitch(err error) error {
	classified := swaperr.Classify(op, err)
	switch swaperr.KindOf(classified) {
	case swaperr.UserRejected, swaperr.RequestAlreadyPending:
		return classified
	}
	return swaperr.New(swaperr.WrongNetwork, op, err)
}

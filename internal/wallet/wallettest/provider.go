// Package wallettest provides a scriptable wallet.Provider for tests.
package wallettest

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"

	"monoswap/internal/swaperr"
	"monoswap/internal/wallet"
)

// Executor runs a submitted transaction and returns its hash.
type Executor interface {
	Execute(ctx context.Context, from common.Address, to *common.Address, data []byte, value *big.Int) (common.Hash, error)
}

// Provider is an in-memory wallet. Transactions are forwarded to an Executor.
type Provider struct {
	exec Executor

	mu        sync.Mutex
	account   common.Address
	connected bool
	chainID   uint64
	known     map[uint64]bool
	reject    func(req wallet.TxRequest) bool
	switchErr error
	requests  []wallet.TxRequest
	switches  []uint64
	added     []wallet.NetworkParams

	accountsFeed event.Feed
	chainFeed    event.Feed
}

var _ wallet.Provider = (*Provider)(nil)

// New returns a connected provider on chainID, which it knows.
func New(account common.Address, chainID uint64, exec Executor) *Provider {
	return &Provider{
		exec:      exec,
		account:   account,
		connected: true,
		chainID:   chainID,
		known:     map[uint64]bool{chainID: true},
	}
}

// Know marks chainID as a network the provider can switch to.
func (p *Provider) Know(chainID uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.known[chainID] = true
}

// Reject makes the user reject requests matching fn.
func (p *Provider) Reject(fn func(req wallet.TxRequest) bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reject = fn
}

// FailSwitch makes SwitchChain return err.
func (p *Provider) FailSwitch(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.switchErr = err
}

// SetConnected toggles the exposed account and notifies subscribers.
func (p *Provider) SetConnected(connected bool) {
	p.mu.Lock()
	p.connected = connected
	var accounts []common.Address
	if connected {
		accounts = []common.Address{p.account}
	}
	p.mu.Unlock()
	p.accountsFeed.Send(wallet.AccountsChanged{Accounts: accounts})
}

// SetChain changes the active network without a switch request, as a user
// changing networks in the wallet would.
func (p *Provider) SetChain(chainID uint64) {
	p.mu.Lock()
	p.chainID = chainID
	p.known[chainID] = true
	p.mu.Unlock()
	p.chainFeed.Send(wallet.ChainChanged{ChainID: chainID})
}

// Requests returns all transaction requests, including rejected ones.
func (p *Provider) Requests() []wallet.TxRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]wallet.TxRequest, len(p.requests))
	copy(out, p.requests)
	return out
}

// Switches returns the chain ids passed to SwitchChain.
func (p *Provider) Switches() []uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]uint64(nil), p.switches...)
}

// Added returns the networks passed to AddChain.
func (p *Provider) Added() []wallet.NetworkParams {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]wallet.NetworkParams(nil), p.added...)
}

func (p *Provider) Accounts(ctx context.Context) ([]common.Address, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.connected {
		return nil, nil
	}
	return []common.Address{p.account}, nil
}

func (p *Provider) ChainID(ctx context.Context) (uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.chainID, nil
}

func (p *Provider) SendTransaction(ctx context.Context, req wallet.TxRequest) (common.Hash, error) {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	reject := p.reject
	account := p.account
	p.mu.Unlock()

	if reject != nil && reject(req) {
		return common.Hash{}, &wallet.ProviderError{Code: swaperr.CodeUserRejected, Message: "user rejected the request"}
	}
	if p.exec == nil {
		return common.Hash{}, fmt.Errorf("no executor")
	}
	return p.exec.Execute(ctx, account, req.To, req.Data, req.Value)
}

func (p *Provider) SwitchChain(ctx context.Context, chainID uint64) error {
	p.mu.Lock()
	p.switches = append(p.switches, chainID)
	if p.switchErr != nil {
		err := p.switchErr
		p.mu.Unlock()
		return err
	}
	if !p.known[chainID] {
		p.mu.Unlock()
		return &wallet.ProviderError{Code: swaperr.CodeUnrecognizedChain, Message: "unrecognized chain"}
	}
	changed := p.chainID != chainID
	p.chainID = chainID
	p.mu.Unlock()
	if changed {
		p.chainFeed.Send(wallet.ChainChanged{ChainID: chainID})
	}
	return nil
}

func (p *Provider) AddChain(ctx context.Context, params wallet.NetworkParams) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.added = append(p.added, params)
	p.known[params.ChainID] = true
	return nil
}

func (p *Provider) SubscribeAccounts(ch chan<- wallet.AccountsChanged) event.Subscription {
	return p.accountsFeed.Subscribe(ch)
}

func (p *Provider) SubscribeChain(ch chan<- wallet.ChainChanged) event.Subscription {
	return p.chainFeed.Subscribe(ch)
}

package wallet

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/event"
	"go.uber.org/zap"

	"monoswap/internal/chain"
)

// Backend is the RPC surface KeyProvider needs to sign and broadcast.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// Dialer opens a Backend for an RPC URL.
type Dialer func(ctx context.Context, rpcURL string) (Backend, error)

// PromptFunc asks the user to approve message. Returning false rejects it.
type PromptFunc func(ctx context.Context, message string) (bool, error)

// gasMarginPercent is added on top of node gas estimates.
const gasMarginPercent = 20

// KeyProvider is a Provider backed by a local secp256k1 key.
type KeyProvider struct {
	key     *ecdsa.PrivateKey
	address common.Address
	dial    Dialer
	prompt  PromptFunc
	logger  *zap.Logger

	mu        sync.Mutex
	networks  map[uint64]NetworkParams
	active    uint64
	backends  map[uint64]Backend
	nonces    map[uint64]uint64
	connected bool

	// sendMu queues this process's own transactions from prompt to broadcast.
	sendMu    sync.Mutex
	prompting atomic.Bool

	accountsFeed event.Feed
	chainFeed    event.Feed
}

// Option configures a KeyProvider.
type Option func(*KeyProvider)

// WithPrompt sets the confirmation prompt. Without one every request is approved.
func WithPrompt(prompt PromptFunc) Option {
	return func(p *KeyProvider) { p.prompt = prompt }
}

// WithDialer overrides how backends are dialed.
func WithDialer(dial Dialer) Option {
	return func(p *KeyProvider) { p.dial = dial }
}

// WithLogger sets the provider logger.
func WithLogger(logger *zap.Logger) Option {
	return func(p *KeyProvider) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithNetworks registers additional networks the provider already knows.
func WithNetworks(networks ...NetworkParams) Option {
	return func(p *KeyProvider) {
		for _, n := range networks {
			p.networks[n.ChainID] = n
		}
	}
}

// NewKeyProvider creates a provider for key, starting on the active network.
func NewKeyProvider(key *ecdsa.PrivateKey, active NetworkParams, opts ...Option) (*KeyProvider, error) {
	if key == nil {
		return nil, fmt.Errorf("private key is nil")
	}
	if active.ChainID == 0 {
		return nil, fmt.Errorf("active network chain id is required")
	}
	p := &KeyProvider{
		key:       key,
		address:   crypto.PubkeyToAddress(key.PublicKey),
		dial:      dialChain,
		logger:    zap.NewNop(),
		networks:  map[uint64]NetworkParams{active.ChainID: active},
		active:    active.ChainID,
		backends:  make(map[uint64]Backend),
		nonces:    make(map[uint64]uint64),
		connected: true,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func dialChain(ctx context.Context, rpcURL string) (Backend, error) {
	client, err := chain.NewClient(ctx, rpcURL)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// KeyFromHex parses a hex private key with or without 0x prefix.
func KeyFromHex(hexKey string) (*ecdsa.PrivateKey, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return key, nil
}

// KeyFromKeystore decrypts a go-ethereum keystore JSON file.
func KeyFromKeystore(keyJSON []byte, password string) (*ecdsa.PrivateKey, error) {
	k, err := keystore.DecryptKey(keyJSON, password)
	if err != nil {
		return nil, fmt.Errorf("decrypt keystore: %w", err)
	}
	return k.PrivateKey, nil
}

// Address returns the signing account.
func (p *KeyProvider) Address() common.Address {
	return p.address
}

func (p *KeyProvider) Accounts(ctx context.Context) ([]common.Address, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.connected {
		return nil, nil
	}
	return []common.Address{p.address}, nil
}

func (p *KeyProvider) ChainID(ctx context.Context) (uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active, nil
}

// Disconnect stops exposing the account and notifies subscribers.
func (p *KeyProvider) Disconnect() {
	p.mu.Lock()
	p.connected = false
	p.mu.Unlock()
	p.accountsFeed.Send(AccountsChanged{})
}

// Connect exposes the account again and notifies subscribers.
func (p *KeyProvider) Connect() {
	p.mu.Lock()
	p.connected = true
	p.mu.Unlock()
	p.accountsFeed.Send(AccountsChanged{Accounts: []common.Address{p.address}})
}

func (p *KeyProvider) SubscribeAccounts(ch chan<- AccountsChanged) event.Subscription {
	return p.accountsFeed.Subscribe(ch)
}

func (p *KeyProvider) SubscribeChain(ch chan<- ChainChanged) event.Subscription {
	return p.chainFeed.Subscribe(ch)
}

// SwitchChain activates a known network. Unknown networks fail with code 4902.
func (p *KeyProvider) SwitchChain(ctx context.Context, chainID uint64) error {
	p.mu.Lock()
	network, known := p.networks[chainID]
	current := p.active
	p.mu.Unlock()
	if !known {
		return errUnrecognizedChain(chainID)
	}
	if current == chainID {
		return nil
	}

	if err := p.confirm(ctx, fmt.Sprintf("Switch network to %s (chain %d)?", network.Name, chainID), "network switch"); err != nil {
		return err
	}

	p.mu.Lock()
	p.active = chainID
	p.mu.Unlock()
	p.logger.Info("network switched", zap.Uint64("chain_id", chainID), zap.String("name", network.Name))
	p.chainFeed.Send(ChainChanged{ChainID: chainID})
	return nil
}

// AddChain registers a network after user confirmation.
func (p *KeyProvider) AddChain(ctx context.Context, params NetworkParams) error {
	if params.ChainID == 0 {
		return fmt.Errorf("add chain: chain id is required")
	}
	if len(params.RPCURLs) == 0 {
		return fmt.Errorf("add chain: at least one rpc url is required")
	}
	if err := p.confirm(ctx, fmt.Sprintf("Add network %s (chain %d, rpc %s)?", params.Name, params.ChainID, params.RPCURLs[0]), "add network"); err != nil {
		return err
	}
	p.mu.Lock()
	p.networks[params.ChainID] = params
	p.mu.Unlock()
	p.logger.Info("network added", zap.Uint64("chain_id", params.ChainID), zap.String("name", params.Name))
	return nil
}

// SendTransaction estimates, signs and broadcasts req on the active network.
// Concurrent calls are served one at a time; a prompt opened by SwitchChain
// or AddChain still fails a send with code -32002.
func (p *KeyProvider) SendTransaction(ctx context.Context, req TxRequest) (common.Hash, error) {
	p.mu.Lock()
	connected := p.connected
	p.mu.Unlock()
	if !connected {
		return common.Hash{}, errRejected("transaction (wallet disconnected)")
	}

	p.sendMu.Lock()
	defer p.sendMu.Unlock()

	label := req.Label
	if label == "" {
		label = "transaction"
	}
	if err := p.confirm(ctx, fmt.Sprintf("Sign %s?", label), label); err != nil {
		return common.Hash{}, err
	}

	backend, chainID, err := p.backend(ctx)
	if err != nil {
		return common.Hash{}, err
	}

	value := req.Value
	if value == nil {
		value = new(big.Int)
	}

	nonce, err := p.nextNonce(ctx, backend, chainID.Uint64())
	if err != nil {
		return common.Hash{}, err
	}

	gas, err := backend.EstimateGas(ctx, ethereum.CallMsg{From: p.address, To: req.To, Value: value, Data: req.Data})
	if err != nil {
		return common.Hash{}, fmt.Errorf("estimate gas: %w", err)
	}
	gas += gas * gasMarginPercent / 100

	var tx *types.Transaction
	header, err := backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return common.Hash{}, fmt.Errorf("latest header: %w", err)
	}
	if header.BaseFee != nil {
		tip, err := backend.SuggestGasTipCap(ctx)
		if err != nil {
			return common.Hash{}, fmt.Errorf("gas tip cap: %w", err)
		}
		feeCap := new(big.Int).Mul(header.BaseFee, big.NewInt(2))
		feeCap.Add(feeCap, tip)
		tx = types.NewTx(&types.DynamicFeeTx{
			ChainID:   chainID,
			Nonce:     nonce,
			GasTipCap: tip,
			GasFeeCap: feeCap,
			Gas:       gas,
			To:        req.To,
			Value:     value,
			Data:      req.Data,
		})
	} else {
		gasPrice, err := backend.SuggestGasPrice(ctx)
		if err != nil {
			return common.Hash{}, fmt.Errorf("gas price: %w", err)
		}
		tx = types.NewTx(&types.LegacyTx{
			Nonce:    nonce,
			GasPrice: gasPrice,
			Gas:      gas,
			To:       req.To,
			Value:    value,
			Data:     req.Data,
		})
	}

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), p.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("sign: %w", err)
	}
	if err := backend.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("send transaction: %w", err)
	}
	p.mu.Lock()
	p.nonces[chainID.Uint64()] = nonce + 1
	p.mu.Unlock()
	p.logger.Debug("transaction sent",
		zap.String("label", label),
		zap.String("hash", signed.Hash().Hex()),
		zap.Uint64("nonce", nonce),
		zap.Uint64("gas", gas),
	)
	return signed.Hash(), nil
}

// nextNonce is the node's pending nonce, raised past transactions this
// provider already broadcast in case the node has not indexed them yet.
func (p *KeyProvider) nextNonce(ctx context.Context, backend Backend, chainID uint64) (uint64, error) {
	nonce, err := backend.PendingNonceAt(ctx, p.address)
	if err != nil {
		return 0, fmt.Errorf("nonce: %w", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if next, ok := p.nonces[chainID]; ok && next > nonce {
		nonce = next
	}
	return nonce, nil
}

func (p *KeyProvider) confirm(ctx context.Context, message, what string) error {
	if p.prompt == nil {
		return nil
	}
	if !p.prompting.CompareAndSwap(false, true) {
		return errPending()
	}
	defer p.prompting.Store(false)

	ok, err := p.prompt(ctx, message)
	if err != nil {
		return fmt.Errorf("prompt: %w", err)
	}
	if !ok {
		return errRejected(what)
	}
	return nil
}

func (p *KeyProvider) backend(ctx context.Context) (Backend, *big.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	chainID := new(big.Int).SetUint64(p.active)
	if b, ok := p.backends[p.active]; ok {
		return b, chainID, nil
	}
	network := p.networks[p.active]
	var errs []error
	for _, url := range network.RPCURLs {
		b, err := p.dial(ctx, url)
		if err != nil {
			errs = append(errs, fmt.Errorf("dial %s: %w", url, err))
			continue
		}
		p.backends[p.active] = b
		return b, chainID, nil
	}
	if len(errs) == 0 {
		return nil, nil, fmt.Errorf("network %d has no rpc urls", p.active)
	}
	return nil, nil, errors.Join(errs...)
}

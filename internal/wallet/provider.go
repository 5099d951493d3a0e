package wallet

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"

	"monoswap/internal/swaperr"
)

// TxRequest is a transaction the provider signs and submits for the active
// account. Label is shown in confirmation prompts.
type TxRequest struct {
	To    *common.Address
	Data  []byte
	Value *big.Int
	Label string
}

type NativeCurrency struct {
	Name     string `mapstructure:"name" json:"name"`
	Symbol   string `mapstructure:"symbol" json:"symbol"`
	Decimals uint8  `mapstructure:"decimals" json:"decimals"`
}

// NetworkParams are the canonical parameters used when asking a provider to
// add a network it does not know.
type NetworkParams struct {
	ChainID        uint64         `mapstructure:"chain-id" json:"chainId"`
	Name           string         `mapstructure:"name" json:"chainName"`
	NativeCurrency NativeCurrency `mapstructure:"native-currency" json:"nativeCurrency"`
	RPCURLs        []string       `mapstructure:"rpc-urls" json:"rpcUrls"`
	ExplorerURLs   []string       `mapstructure:"explorer-urls" json:"blockExplorerUrls"`
}

// AccountsChanged is sent when the set of exposed accounts changes. An empty
// list means the wallet disconnected.
type AccountsChanged struct {
	Accounts []common.Address
}

// ChainChanged is sent when the active network changes.
type ChainChanged struct {
	ChainID uint64
}

// Provider is the wallet/signing provider used by the guard and orchestrator.
type Provider interface {
	Accounts(ctx context.Context) ([]common.Address, error)
	ChainID(ctx context.Context) (uint64, error)
	SendTransaction(ctx context.Context, req TxRequest) (common.Hash, error)
	SwitchChain(ctx context.Context, chainID uint64) error
	AddChain(ctx context.Context, params NetworkParams) error
	SubscribeAccounts(ch chan<- AccountsChanged) event.Subscription
	SubscribeChain(ch chan<- ChainChanged) event.Subscription
}

// ProviderError is a provider-level failure carrying an EIP-1193 style code.
type ProviderError struct {
	Code    int
	Message string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider error %d: %s", e.Code, e.Message)
}

// ProviderCode exposes the code to swaperr.Classify.
func (e *ProviderError) ProviderCode() int {
	return e.Code
}

func errRejected(what string) error {
	return &ProviderError{Code: swaperr.CodeUserRejected, Message: what + " rejected by user"}
}

func errPending() error {
	return &ProviderError{Code: swaperr.CodeRequestPending, Message: "a request is already pending"}
}

func errUnrecognizedChain(chainID uint64) error {
	return &ProviderError{Code: swaperr.CodeUnrecognizedChain, Message: fmt.Sprintf("unrecognized chain id %d", chainID)}
}

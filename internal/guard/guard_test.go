package guard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"monoswap/internal/swaperr"
	"monoswap/internal/wallet"
	"monoswap/internal/wallet/wallettest"
)

var (
	account = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	sepolia = wallet.NetworkParams{
		ChainID:        11155111,
		Name:           "Sepolia",
		NativeCurrency: wallet.NativeCurrency{Name: "Sepolia Ether", Symbol: "ETH", Decimals: 18},
		RPCURLs:        []string{"https://rpc.sepolia.org"},
		ExplorerURLs:   []string{"https://sepolia.etherscan.io"},
	}
)

func TestEnsureOnSupportedNetwork(t *testing.T) {
	provider := wallettest.New(account, sepolia.ChainID, nil)
	g := New(provider, sepolia, nil)

	got, err := g.Ensure(context.Background())
	require.NoError(t, err)
	assert.Equal(t, account, got)
	assert.Empty(t, provider.Switches())
}

func TestEnsureNotConnected(t *testing.T) {
	provider := wallettest.New(account, sepolia.ChainID, nil)
	provider.SetConnected(false)
	g := New(provider, sepolia, nil)

	_, err := g.Ensure(context.Background())
	assert.ErrorIs(t, err, swaperr.ErrNotConnected)
}

func TestEnsureSwitchesKnownNetwork(t *testing.T) {
	provider := wallettest.New(account, 1, nil)
	provider.Know(sepolia.ChainID)
	g := New(provider, sepolia, nil)

	_, err := g.Ensure(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []uint64{sepolia.ChainID}, provider.Switches())
	assert.Empty(t, provider.Added())
}

func TestEnsureAddsUnknownNetwork(t *testing.T) {
	provider := wallettest.New(account, 1, nil)
	g := New(provider, sepolia, nil)

	_, err := g.Ensure(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []uint64{sepolia.ChainID, sepolia.ChainID}, provider.Switches())
	require.Len(t, provider.Added(), 1)
	assert.Equal(t, sepolia, provider.Added()[0])

	id, err := provider.ChainID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, sepolia.ChainID, id)
}

func TestEnsureSwitchRejected(t *testing.T) {
	provider := wallettest.New(account, 1, nil)
	provider.FailSwitch(&wallet.ProviderError{Code: swaperr.CodeUserRejected, Message: "rejected"})
	g := New(provider, sepolia, nil)

	_, err := g.Ensure(context.Background())
	assert.ErrorIs(t, err, swaperr.ErrUserRejected)
}

func TestEnsureSwitchPending(t *testing.T) {
	provider := wallettest.New(account, 1, nil)
	provider.FailSwitch(&wallet.ProviderError{Code: swaperr.CodeRequestPending, Message: "pending"})
	g := New(provider, sepolia, nil)

	_, err := g.Ensure(context.Background())
	assert.ErrorIs(t, err, swaperr.ErrRequestAlreadyPending)
}

func TestEnsureSwitchFailureIsWrongNetwork(t *testing.T) {
	provider := wallettest.New(account, 1, nil)
	provider.FailSwitch(errors.New("boom"))
	g := New(provider, sepolia, nil)

	_, err := g.Ensure(context.Background())
	assert.ErrorIs(t, err, swaperr.ErrWrongNetwork)
	assert.Equal(t, "please switch network", swaperr.Message(err))
}

func TestChainChangeInvalidatesVerification(t *testing.T) {
	provider := wallettest.New(account, sepolia.ChainID, nil)
	g := New(provider, sepolia, nil)
	g.Start()
	defer g.Close()

	_, err := g.Ensure(context.Background())
	require.NoError(t, err)

	provider.SetChain(1)
	require.Eventually(t, func() bool {
		g.mu.Lock()
		defer g.mu.Unlock()
		return !g.verified
	}, time.Second, 10*time.Millisecond)

	_, err = g.Ensure(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []uint64{sepolia.ChainID}, provider.Switches())
}

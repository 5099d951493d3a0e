package wallet

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"monoswap/internal/swaperr"
)

type fakeBackend struct {
	baseFee  *big.Int
	gas      uint64
	gasErr   error
	sent     []*types.Transaction
	estimate []ethereum.CallMsg
}

func (b *fakeBackend) ChainID(ctx context.Context) (*big.Int, error) { return big.NewInt(11155111), nil }
func (b *fakeBackend) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return 7, nil
}
func (b *fakeBackend) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(3_000_000_000), nil
}
func (b *fakeBackend) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}
func (b *fakeBackend) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	return &types.Header{Number: big.NewInt(100), BaseFee: b.baseFee}, nil
}
func (b *fakeBackend) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	b.estimate = append(b.estimate, msg)
	return b.gas, b.gasErr
}
func (b *fakeBackend) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	b.sent = append(b.sent, tx)
	return nil
}

var sepolia = NetworkParams{
	ChainID:        11155111,
	Name:           "Sepolia",
	NativeCurrency: NativeCurrency{Name: "Sepolia Ether", Symbol: "ETH", Decimals: 18},
	RPCURLs:        []string{"https://rpc.sepolia.org"},
	ExplorerURLs:   []string{"https://sepolia.etherscan.io"},
}

func newTestProvider(t *testing.T, backend *fakeBackend, opts ...Option) *KeyProvider {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	dial := WithDialer(func(ctx context.Context, rpcURL string) (Backend, error) { return backend, nil })
	p, err := NewKeyProvider(key, sepolia, append([]Option{dial}, opts...)...)
	require.NoError(t, err)
	return p
}

func TestKeyFromHex(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	hexKey := "0x" + common.Bytes2Hex(crypto.FromECDSA(key))

	parsed, err := KeyFromHex(hexKey)
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), crypto.PubkeyToAddress(parsed.PublicKey))

	_, err = KeyFromHex("not-a-key")
	require.Error(t, err)
}

func TestSendTransactionDynamicFee(t *testing.T) {
	backend := &fakeBackend{baseFee: big.NewInt(10_000_000_000), gas: 100_000}
	p := newTestProvider(t, backend)

	to := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	hash, err := p.SendTransaction(context.Background(), TxRequest{To: &to, Data: []byte{1, 2, 3, 4}, Value: big.NewInt(5), Label: "swap"})
	require.NoError(t, err)
	require.Len(t, backend.sent, 1)

	tx := backend.sent[0]
	assert.Equal(t, hash, tx.Hash())
	assert.Equal(t, uint8(types.DynamicFeeTxType), tx.Type())
	assert.Equal(t, uint64(120_000), tx.Gas())
	assert.Equal(t, uint64(7), tx.Nonce())
	assert.Equal(t, big.NewInt(21_000_000_000), tx.GasFeeCap())
	assert.Equal(t, big.NewInt(5), tx.Value())

	sender, err := types.Sender(types.LatestSignerForChainID(big.NewInt(11155111)), tx)
	require.NoError(t, err)
	assert.Equal(t, p.Address(), sender)
	assert.Equal(t, p.Address(), backend.estimate[0].From)
}

func TestSendTransactionLegacyWithoutBaseFee(t *testing.T) {
	backend := &fakeBackend{gas: 50_000}
	p := newTestProvider(t, backend)

	to := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	_, err := p.SendTransaction(context.Background(), TxRequest{To: &to})
	require.NoError(t, err)
	require.Len(t, backend.sent, 1)
	assert.Equal(t, uint8(types.LegacyTxType), backend.sent[0].Type())
	assert.Equal(t, big.NewInt(3_000_000_000), backend.sent[0].GasPrice())
}

func TestSendTransactionSurfacesRevertReason(t *testing.T) {
	backend := &fakeBackend{gasErr: errors.New("execution reverted: UniswapV2Router: INSUFFICIENT_B_AMOUNT")}
	p := newTestProvider(t, backend)

	to := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	_, err := p.SendTransaction(context.Background(), TxRequest{To: &to})
	require.Error(t, err)
	assert.Equal(t, swaperr.InsufficientPairedAmount, swaperr.KindOf(swaperr.Classify("add", err)))
	assert.Empty(t, backend.sent)
}

func TestPromptRejection(t *testing.T) {
	backend := &fakeBackend{gas: 21_000}
	p := newTestProvider(t, backend, WithPrompt(func(ctx context.Context, message string) (bool, error) {
		return false, nil
	}))

	to := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	_, err := p.SendTransaction(context.Background(), TxRequest{To: &to, Label: "approve"})
	code, ok := swaperr.ProviderCode(err)
	require.True(t, ok)
	assert.Equal(t, swaperr.CodeUserRejected, code)
	assert.Empty(t, backend.sent)
}

func TestPromptAlreadyOpen(t *testing.T) {
	backend := &fakeBackend{gas: 21_000}
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	p := newTestProvider(t, backend, WithPrompt(func(ctx context.Context, message string) (bool, error) {
		once.Do(func() { close(entered) })
		<-release
		return true, nil
	}))

	to := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	done := make(chan error, 1)
	go func() {
		_, err := p.SendTransaction(context.Background(), TxRequest{To: &to})
		done <- err
	}()
	<-entered

	localnet := NetworkParams{ChainID: 31337, Name: "Localnet", RPCURLs: []string{"http://127.0.0.1:8545"}}
	err := p.AddChain(context.Background(), localnet)
	code, ok := swaperr.ProviderCode(err)
	require.True(t, ok)
	assert.Equal(t, swaperr.CodeRequestPending, code)

	close(release)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("first request did not finish")
	}
}

func TestConcurrentSendsQueueWithDistinctNonces(t *testing.T) {
	backend := &fakeBackend{gas: 21_000}
	var prompts atomic.Int32
	p := newTestProvider(t, backend, WithPrompt(func(ctx context.Context, message string) (bool, error) {
		prompts.Add(1)
		time.Sleep(20 * time.Millisecond)
		return true, nil
	}))

	to := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	const n = 3
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			_, err := p.SendTransaction(context.Background(), TxRequest{To: &to, Label: "approve"})
			errs <- err
		}()
	}
	for i := 0; i < n; i++ {
		select {
		case err := <-errs:
			require.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("send did not finish")
		}
	}

	assert.Equal(t, int32(n), prompts.Load())
	require.Len(t, backend.sent, n)
	nonces := make([]uint64, 0, n)
	for _, tx := range backend.sent {
		nonces = append(nonces, tx.Nonce())
	}
	assert.Equal(t, []uint64{7, 8, 9}, nonces)
}

func TestSwitchUnknownChainThenAdd(t *testing.T) {
	p := newTestProvider(t, &fakeBackend{})
	ctx := context.Background()

	ch := make(chan ChainChanged, 1)
	sub := p.SubscribeChain(ch)
	defer sub.Unsubscribe()

	err := p.SwitchChain(ctx, 10143)
	code, ok := swaperr.ProviderCode(err)
	require.True(t, ok)
	assert.Equal(t, swaperr.CodeUnrecognizedChain, code)

	require.NoError(t, p.AddChain(ctx, NetworkParams{ChainID: 10143, Name: "Monad Testnet", RPCURLs: []string{"https://testnet-rpc.monad.xyz"}}))
	require.NoError(t, p.SwitchChain(ctx, 10143))

	id, err := p.ChainID(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(10143), id)
	select {
	case ev := <-ch:
		assert.Equal(t, uint64(10143), ev.ChainID)
	case <-time.After(time.Second):
		t.Fatal("no chain change notification")
	}
}

func TestDisconnectHidesAccount(t *testing.T) {
	p := newTestProvider(t, &fakeBackend{})
	ch := make(chan AccountsChanged, 1)
	sub := p.SubscribeAccounts(ch)
	defer sub.Unsubscribe()

	p.Disconnect()
	accounts, err := p.Accounts(context.Background())
	require.NoError(t, err)
	assert.Empty(t, accounts)
	assert.Empty(t, (<-ch).Accounts)
}

package dextest

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// The methods below let a signing wallet use the chain as its RPC backend.
// Signed transactions are executed on receipt and must carry the sender's
// next nonce.

const estimatedGas = 200_000

func (c *Chain) ChainID(ctx context.Context) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return new(big.Int).SetUint64(c.chainID), nil
}

func (c *Chain) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accounts[account], nil
}

func (c *Chain) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (c *Chain) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

// HeaderByNumber reports a header without base fee, so wallets price
// transactions as legacy.
func (c *Chain) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return &types.Header{Number: new(big.Int).SetUint64(c.nonce)}, nil
}

// EstimateGas fails with the configured revert reason of the called method.
func (c *Chain) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	if msg.To == nil || len(msg.Data) < 4 {
		return 0, fmt.Errorf("execution reverted")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	parsed, kind := c.abiFor(*msg.To, msg.Data[:4])
	if kind == "" {
		return 0, fmt.Errorf("execution reverted: no contract at %s", msg.To.Hex())
	}
	method, err := parsed.MethodById(msg.Data[:4])
	if err != nil {
		return 0, fmt.Errorf("execution reverted")
	}
	if reason, ok := c.reverts[method.Name]; ok {
		return 0, fmt.Errorf("execution reverted: %s", reason)
	}
	return estimatedGas, nil
}

// SendTransaction recovers the sender, checks its nonce and executes tx.
func (c *Chain) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	from, err := types.Sender(types.LatestSignerForChainID(tx.ChainId()), tx)
	if err != nil {
		return fmt.Errorf("invalid sender: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if tx.ChainId().Uint64() != c.chainID {
		return fmt.Errorf("invalid chain id %s", tx.ChainId())
	}
	want := c.accounts[from]
	switch {
	case tx.Nonce() < want:
		return fmt.Errorf("nonce too low: next nonce %d, tx nonce %d", want, tx.Nonce())
	case tx.Nonce() > want:
		return fmt.Errorf("nonce too high: next nonce %d, tx nonce %d", want, tx.Nonce())
	}

	_, err = c.executeLocked(from, tx.To(), tx.Data(), tx.Value(), func() common.Hash {
		c.nonce++
		return tx.Hash()
	})
	if err != nil {
		return err
	}
	c.accounts[from] = want + 1
	return nil
}

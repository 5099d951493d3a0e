package tokens

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"monoswap/internal/dex"
	"monoswap/internal/model"
	"monoswap/internal/swaperr"
)

// Registry resolves user token selections to token reference data.
type Registry struct {
	wrapped model.Token
	caller  dex.Caller
	logger  *zap.Logger

	mu       sync.RWMutex
	bySymbol map[string]model.Token
	resolved map[common.Address]model.Token
}

// NewRegistry builds a registry from configured tokens and the wrapped native token.
// caller may be nil, in which case unknown addresses cannot be resolved.
func NewRegistry(list []model.Token, wrapped model.Token, caller dex.Caller, logger *zap.Logger) (*Registry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if wrapped.IsNative() {
		return nil, fmt.Errorf("wrapped native token address is required")
	}
	r := &Registry{
		wrapped:  wrapped,
		caller:   caller,
		logger:   logger,
		bySymbol: make(map[string]model.Token, len(list)+1),
		resolved: make(map[common.Address]model.Token),
	}
	for _, t := range list {
		if err := r.add(t); err != nil {
			return nil, err
		}
	}
	if _, ok := r.bySymbol[strings.ToUpper(wrapped.Symbol)]; !ok {
		if err := r.add(wrapped); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) add(t model.Token) error {
	key := strings.ToUpper(strings.TrimSpace(t.Symbol))
	if key == "" {
		return fmt.Errorf("token %s has no symbol", t.Address.Hex())
	}
	if _, ok := r.bySymbol[key]; ok {
		return fmt.Errorf("duplicate token symbol %s", key)
	}
	r.bySymbol[key] = t
	return nil
}

// Wrapped returns the wrapped native token.
func (r *Registry) Wrapped() model.Token {
	return r.wrapped
}

// Canonical returns the on-chain address used in paths and pair lookups.
func (r *Registry) Canonical(t model.Token) common.Address {
	if t.IsNative() {
		return r.wrapped.Address
	}
	return t.Address
}

// IsNativeOrWrapped reports whether t is the native unit or its wrapped token.
func (r *Registry) IsNativeOrWrapped(t model.Token) bool {
	return t.IsNative() || t.Address == r.wrapped.Address
}

// Symbols lists the configured symbols in sorted order.
func (r *Registry) Symbols() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.bySymbol))
	for _, t := range r.bySymbol {
		out = append(out, t.Symbol)
	}
	sort.Strings(out)
	return out
}

// Lookup resolves a symbol or a token address. Unknown addresses are
// resolved through ERC-20 metadata calls and remembered.
func (r *Registry) Lookup(ctx context.Context, selection string) (model.Token, error) {
	selection = strings.TrimSpace(selection)
	if selection == "" {
		return model.Token{}, swaperr.Errorf(swaperr.InvalidTokenSelection, "lookup token", "empty token selection")
	}

	if !common.IsHexAddress(selection) {
		r.mu.RLock()
		t, ok := r.bySymbol[strings.ToUpper(selection)]
		r.mu.RUnlock()
		if !ok {
			return model.Token{}, swaperr.Errorf(swaperr.InvalidTokenSelection, "lookup token", "unknown token %s", selection)
		}
		return t, nil
	}

	address := common.HexToAddress(selection)
	r.mu.RLock()
	for _, t := range r.bySymbol {
		if t.Address == address {
			r.mu.RUnlock()
			return t, nil
		}
	}
	t, ok := r.resolved[address]
	r.mu.RUnlock()
	if ok {
		return t, nil
	}

	if r.caller == nil {
		return model.Token{}, swaperr.Errorf(swaperr.InvalidTokenSelection, "lookup token", "unknown token %s", address.Hex())
	}
	t, err := dex.ReadToken(ctx, r.caller, address, r.logger)
	if err != nil {
		return model.Token{}, swaperr.New(swaperr.InvalidTokenSelection, "lookup token", err)
	}
	r.mu.Lock()
	r.resolved[address] = t
	r.mu.Unlock()
	r.logger.Debug("token resolved", zap.String("token", address.Hex()), zap.String("symbol", t.Symbol), zap.Uint8("decimals", t.Decimals))
	return t, nil
}

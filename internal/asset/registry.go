package asset

import (
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Registry is an index of Tokens by symbol and by contract address.
// It is populated once at startup from configuration and read-only afterwards.
type Registry struct {
	mu       sync.RWMutex
	bySymbol map[string]*Token
	byAddr   map[common.Address]*Token
	labels   map[common.Address]string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		bySymbol: make(map[string]*Token),
		byAddr:   make(map[common.Address]*Token),
		labels:   make(map[common.Address]string),
	}
}

// Register adds a token and all its variants to the indexes.
// Panics on duplicate symbols or addresses; duplicates are config bugs.
func (r *Registry) Register(t *Token) {
	if t == nil {
		panic("asset: cannot register nil token")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := strings.ToUpper(t.symbol)
	if _, exists := r.bySymbol[key]; exists {
		panic(fmt.Sprintf("asset: %s already registered", t.symbol))
	}
	r.bySymbol[key] = t

	for _, v := range t.variants {
		if _, exists := r.byAddr[v.Address]; exists {
			panic(fmt.Sprintf("asset: address %s already registered", v.Address.Hex()))
		}
		r.byAddr[v.Address] = t
		label := v.Label
		if label == "" {
			label = t.symbol
		}
		r.labels[v.Address] = label
	}
}

// BySymbol looks a token up by canonical symbol, case-insensitively.
func (r *Registry) BySymbol(symbol string) (*Token, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.bySymbol[strings.ToUpper(symbol)]
	return t, ok
}

// MustBySymbol looks a token up by symbol and panics when absent.
func (r *Registry) MustBySymbol(symbol string) *Token {
	t, ok := r.BySymbol(symbol)
	if !ok {
		panic(fmt.Sprintf("asset: %s not in registry", symbol))
	}
	return t
}

// ByAddress looks a token up by any of its variant addresses.
func (r *Registry) ByAddress(addr common.Address) (*Token, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byAddr[addr]
	return t, ok
}

// LabelFor returns the variant-disambiguating display label for an address
// ("USDC" vs "USDC.e"), or the short hex form for unregistered addresses.
func (r *Registry) LabelFor(addr common.Address) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if label, ok := r.labels[addr]; ok {
		return label
	}
	return addr.Hex()[:10]
}

// SiblingOf returns the alternate variant address for a multi-variant asset,
// or false when the address is unknown or the asset has a single form.
func (r *Registry) SiblingOf(addr common.Address) (common.Address, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byAddr[addr]
	if !ok || len(t.variants) < 2 {
		return common.Address{}, false
	}
	for _, v := range t.variants {
		if v.Address != addr {
			return v.Address, true
		}
	}
	return common.Address{}, false
}

// IsStablePair reports whether both addresses belong to configured stable
// assets.
func (r *Registry) IsStablePair(a, b common.Address) bool {
	ta, okA := r.ByAddress(a)
	tb, okB := r.ByAddress(b)
	return okA && okB && ta.IsStable() && tb.IsStable()
}

// All returns every registered token.
func (r *Registry) All() []*Token {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Token, 0, len(r.bySymbol))
	for _, t := range r.bySymbol {
		out = append(out, t)
	}
	return out
}

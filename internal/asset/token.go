// Package asset holds static token metadata: canonical symbols, decimal
// precision and the set of on-chain contract addresses each logical asset is
// known under. One economic asset can exist as several non-fungible contracts
// (a natively issued stablecoin next to its bridged wrapper); the registry
// tracks every variant and its display label.
package asset

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/dvega/spreadscan/internal/numeric"
)

// Variant is one concrete on-chain representation of a token.
type Variant struct {
	Address common.Address
	Label   string // display label distinguishing variants, e.g. "USDC.e"
}

// Token is the immutable metadata for one canonical asset.
type Token struct {
	symbol   string
	decimals uint8
	stable   bool
	variants []Variant
}

// NewToken creates a Token. The first variant is the primary (canonical)
// on-chain representation; any further variants are secondary.
func NewToken(symbol string, decimals uint8, stable bool, variants ...Variant) *Token {
	if symbol == "" {
		panic("asset: empty symbol")
	}
	if decimals > 30 {
		panic("asset: suspicious decimals (>30)")
	}
	if len(variants) == 0 {
		panic("asset: token without an address: " + symbol)
	}
	vs := make([]Variant, len(variants))
	copy(vs, variants)
	return &Token{symbol: symbol, decimals: decimals, stable: stable, variants: vs}
}

// Symbol returns the canonical ticker symbol (e.g. "USDC").
func (t *Token) Symbol() string { return t.symbol }

// Decimals returns the token's decimal precision.
func (t *Token) Decimals() uint8 { return t.decimals }

// IsStable reports whether the token is configured as a stable asset.
// Stable-to-stable pairs request stable pool variants from venues that
// differentiate; this is static configuration, not a live price check.
func (t *Token) IsStable() bool { return t.stable }

// Primary returns the canonical contract address.
func (t *Token) Primary() common.Address { return t.variants[0].Address }

// Secondary returns the alternate contract address and true when the token
// has more than one on-chain representation.
func (t *Token) Secondary() (common.Address, bool) {
	if len(t.variants) < 2 {
		return common.Address{}, false
	}
	return t.variants[1].Address, true
}

// Variants returns a copy of all known representations.
func (t *Token) Variants() []Variant {
	out := make([]Variant, len(t.variants))
	copy(out, t.variants)
	return out
}

// HasAddress reports whether addr is any registered variant of this token.
// common.Address is byte-normalized, so mixed-case checksummed input compares
// equal once parsed.
func (t *Token) HasAddress(addr common.Address) bool {
	for _, v := range t.variants {
		if v.Address == addr {
			return true
		}
	}
	return false
}

// OneUnit returns 10^decimals, the raw size of one whole token.
func (t *Token) OneUnit() *big.Int {
	return numeric.Pow10(t.decimals)
}

// String returns the canonical symbol.
func (t *Token) String() string { return t.symbol }

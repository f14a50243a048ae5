package domain

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/dvega/spreadscan/internal/asset"
)

// ResolutionPolicy controls how a venue reconciles multi-variant assets.
type ResolutionPolicy string

const (
	// PolicyDisabled passes addresses through untouched.
	PolicyDisabled ResolutionPolicy = "disabled"
	// PolicyPreferPrimary forces the canonical variant whenever the asset
	// appears. If the venue has no pool for it, the quote fails; substitution
	// on failure is the adapter's retry logic, not the resolver's.
	PolicyPreferPrimary ResolutionPolicy = "prefer-primary"
	// PolicyPreferSecondary forces the alternate variant, symmetrically.
	PolicyPreferSecondary ResolutionPolicy = "prefer-secondary"
	// PolicyAutomatic performs no substitution here; only the adapter knows
	// which variant its pools carry, so trial-and-fallback is delegated to it.
	PolicyAutomatic ResolutionPolicy = "automatic"
)

// ParsePolicy converts a configuration string into a ResolutionPolicy.
func ParsePolicy(s string) (ResolutionPolicy, error) {
	switch ResolutionPolicy(s) {
	case PolicyDisabled, PolicyPreferPrimary, PolicyPreferSecondary, PolicyAutomatic:
		return ResolutionPolicy(s), nil
	case "":
		return PolicyDisabled, nil
	default:
		return "", fmt.Errorf("unknown resolution policy %q", s)
	}
}

// ResolvedPair is the outcome of token-identity resolution for one request.
type ResolvedPair struct {
	TokenIn       common.Address
	TokenOut      common.Address
	InProvenance  Provenance
	OutProvenance Provenance
}

// Resolver maps between canonical assets and their on-chain variants.
// It is a pure lookup over the static registry: no hidden state, no network
// calls, so it composes safely with adapter retry logic.
type Resolver struct {
	registry *asset.Registry
}

// NewResolver creates a Resolver over the given registry.
func NewResolver(registry *asset.Registry) *Resolver {
	return &Resolver{registry: registry}
}

// Resolve applies the policy to both sides of a pair. Under PolicyDisabled
// and PolicyAutomatic the addresses come back unchanged.
func (r *Resolver) Resolve(tokenIn, tokenOut common.Address, policy ResolutionPolicy) ResolvedPair {
	in, inProv := r.resolveSide(tokenIn, policy)
	out, outProv := r.resolveSide(tokenOut, policy)
	return ResolvedPair{
		TokenIn:       in,
		TokenOut:      out,
		InProvenance:  inProv,
		OutProvenance: outProv,
	}
}

func (r *Resolver) resolveSide(addr common.Address, policy ResolutionPolicy) (common.Address, Provenance) {
	switch policy {
	case PolicyPreferPrimary:
		tok, ok := r.registry.ByAddress(addr)
		if !ok {
			return addr, ProvenanceAsGiven
		}
		if primary := tok.Primary(); primary != addr {
			return primary, ProvenancePrimary
		}
		return addr, ProvenanceAsGiven
	case PolicyPreferSecondary:
		tok, ok := r.registry.ByAddress(addr)
		if !ok {
			return addr, ProvenanceAsGiven
		}
		if secondary, has := tok.Secondary(); has && secondary != addr {
			return secondary, ProvenanceSecondary
		}
		return addr, ProvenanceAsGiven
	default:
		return addr, ProvenanceAsGiven
	}
}

// PrimaryOf returns the primary variant address of the named asset.
func (r *Resolver) PrimaryOf(symbol string) (common.Address, bool) {
	tok, ok := r.registry.BySymbol(symbol)
	if !ok {
		return common.Address{}, false
	}
	return tok.Primary(), true
}

// Sibling returns the alternate variant address for a multi-variant asset.
// The second return is false when the address has no registered sibling.
func (r *Resolver) Sibling(addr common.Address) (common.Address, bool) {
	return r.registry.SiblingOf(addr)
}

// IsAsset reports whether addr is any registered variant of the named
// canonical asset.
func (r *Resolver) IsAsset(addr common.Address, symbol string) bool {
	tok, ok := r.registry.BySymbol(symbol)
	return ok && tok.HasAddress(addr)
}

// SymbolFor returns the variant-disambiguating label for an address.
func (r *Resolver) SymbolFor(addr common.Address) string {
	return r.registry.LabelFor(addr)
}

// ProvenanceFor classifies which variant of its asset addr is.
func (r *Resolver) ProvenanceFor(addr common.Address) Provenance {
	tok, ok := r.registry.ByAddress(addr)
	if !ok {
		return ProvenanceAsGiven
	}
	if tok.Primary() == addr {
		return ProvenancePrimary
	}
	return ProvenanceSecondary
}

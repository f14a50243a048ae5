package domain

import (
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/dvega/spreadscan/internal/asset"
)

func testResolver() *Resolver {
	return NewResolver(asset.DefaultRegistry())
}

func TestResolvePreferPrimary(t *testing.T) {
	r := testResolver()

	tests := []struct {
		name     string
		in, out  common.Address
		wantIn   common.Address
		wantOut  common.Address
		inProv   Provenance
		outProv  Provenance
	}{
		{
			name:    "secondary_in_becomes_primary",
			in:      asset.AddrUSDCBridged,
			out:     asset.AddrWETH,
			wantIn:  asset.AddrUSDCNative,
			wantOut: asset.AddrWETH,
			inProv:  ProvenancePrimary,
			outProv: ProvenanceAsGiven,
		},
		{
			name:    "secondary_out_becomes_primary",
			in:      asset.AddrWETH,
			out:     asset.AddrUSDCBridged,
			wantIn:  asset.AddrWETH,
			wantOut: asset.AddrUSDCNative,
			inProv:  ProvenanceAsGiven,
			outProv: ProvenancePrimary,
		},
		{
			name:    "primary_stays_as_given",
			in:      asset.AddrUSDCNative,
			out:     asset.AddrWETH,
			wantIn:  asset.AddrUSDCNative,
			wantOut: asset.AddrWETH,
			inProv:  ProvenanceAsGiven,
			outProv: ProvenanceAsGiven,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.Resolve(tt.in, tt.out, PolicyPreferPrimary)
			if got.TokenIn != tt.wantIn || got.TokenOut != tt.wantOut {
				t.Errorf("Resolve = (%s, %s), want (%s, %s)",
					got.TokenIn.Hex(), got.TokenOut.Hex(), tt.wantIn.Hex(), tt.wantOut.Hex())
			}
			if got.InProvenance != tt.inProv || got.OutProvenance != tt.outProv {
				t.Errorf("provenance = (%s, %s), want (%s, %s)",
					got.InProvenance, got.OutProvenance, tt.inProv, tt.outProv)
			}
		})
	}
}

func TestResolvePreferSecondary(t *testing.T) {
	r := testResolver()

	got := r.Resolve(asset.AddrUSDCNative, asset.AddrWETH, PolicyPreferSecondary)
	if got.TokenIn != asset.AddrUSDCBridged {
		t.Errorf("TokenIn = %s, want bridged USDC", got.TokenIn.Hex())
	}
	if got.InProvenance != ProvenanceSecondary {
		t.Errorf("InProvenance = %s, want %s", got.InProvenance, ProvenanceSecondary)
	}

	// WETH has no secondary form; it must pass through.
	if got.TokenOut != asset.AddrWETH || got.OutProvenance != ProvenanceAsGiven {
		t.Errorf("single-variant token was substituted: %s/%s", got.TokenOut.Hex(), got.OutProvenance)
	}
}

func TestResolveDisabledAndAutomaticPassThrough(t *testing.T) {
	r := testResolver()

	for _, policy := range []ResolutionPolicy{PolicyDisabled, PolicyAutomatic} {
		got := r.Resolve(asset.AddrUSDCBridged, asset.AddrUSDCNative, policy)
		if got.TokenIn != asset.AddrUSDCBridged || got.TokenOut != asset.AddrUSDCNative {
			t.Errorf("policy %s substituted addresses: (%s, %s)", policy, got.TokenIn.Hex(), got.TokenOut.Hex())
		}
		if got.InProvenance != ProvenanceAsGiven || got.OutProvenance != ProvenanceAsGiven {
			t.Errorf("policy %s set provenance (%s, %s)", policy, got.InProvenance, got.OutProvenance)
		}
	}
}

func TestResolveCaseInsensitive(t *testing.T) {
	r := testResolver()

	// Simulate mixed-case checksummed input arriving as a lowercased string.
	lower := common.HexToAddress(strings.ToLower(asset.AddrUSDCBridged.Hex()))
	got := r.Resolve(lower, asset.AddrWETH, PolicyPreferPrimary)
	if got.TokenIn != asset.AddrUSDCNative {
		t.Errorf("lowercased secondary not resolved to primary: %s", got.TokenIn.Hex())
	}
}

func TestSibling(t *testing.T) {
	r := testResolver()

	sib, ok := r.Sibling(asset.AddrUSDCNative)
	if !ok || sib != asset.AddrUSDCBridged {
		t.Errorf("Sibling(native USDC) = %s, %v", sib.Hex(), ok)
	}
	if _, ok := r.Sibling(asset.AddrARB); ok {
		t.Error("Sibling(ARB) reported a sibling")
	}
}

func TestIsAssetAndSymbolFor(t *testing.T) {
	r := testResolver()

	if !r.IsAsset(asset.AddrUSDCBridged, "USDC") {
		t.Error("bridged USDC not recognized as USDC")
	}
	if !r.IsAsset(asset.AddrUSDCNative, "usdc") {
		t.Error("symbol match should be case-insensitive")
	}
	if r.IsAsset(asset.AddrWETH, "USDC") {
		t.Error("WETH recognized as USDC")
	}

	if got := r.SymbolFor(asset.AddrUSDCBridged); got != "USDC.e" {
		t.Errorf("SymbolFor(bridged) = %q, want USDC.e", got)
	}
	if got := r.SymbolFor(asset.AddrUSDCNative); got != "USDC" {
		t.Errorf("SymbolFor(native) = %q, want USDC", got)
	}
}

func TestParsePolicy(t *testing.T) {
	for _, ok := range []string{"disabled", "prefer-primary", "prefer-secondary", "automatic", ""} {
		if _, err := ParsePolicy(ok); err != nil {
			t.Errorf("ParsePolicy(%q) unexpected error: %v", ok, err)
		}
	}
	if _, err := ParsePolicy("most-liquid"); err == nil {
		t.Error("ParsePolicy accepted an unknown policy")
	}
}

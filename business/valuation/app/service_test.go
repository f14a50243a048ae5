package app

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	pricingapp "github.com/dvega/spreadscan/business/pricing/app"
	"github.com/dvega/spreadscan/business/pricing/domain"
	"github.com/dvega/spreadscan/internal/apperror"
	"github.com/dvega/spreadscan/internal/asset"
	"github.com/dvega/spreadscan/internal/logger"
)

// fakeVenue answers quotes with a fixed output per input token.
type fakeVenue struct {
	name    string
	calls   int
	outputs map[common.Address]*big.Int
}

func (f *fakeVenue) Name() string { return f.name }

func (f *fakeVenue) Quote(_ context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int) domain.Quote {
	f.calls++
	out, ok := f.outputs[tokenIn]
	if !ok {
		return domain.FailedQuote(f.name, tokenIn, tokenOut, amountIn,
			apperror.CodePoolNotFound, "no pool")
	}
	return domain.NewQuote(f.name, tokenIn, tokenOut, amountIn, out, domain.RouteMeta{})
}

func newTestService(t *testing.T, cfg Config, venues ...*fakeVenue) *Service {
	t.Helper()
	sources := make([]pricingapp.LiquiditySource, len(venues))
	for i, v := range venues {
		sources[i] = v
	}
	s, err := NewService(cfg, asset.DefaultRegistry(), sources, logger.NewNop())
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return s
}

func TestAnchorVariantsAreOneDollar(t *testing.T) {
	venue := &fakeVenue{name: "x"}
	s := newTestService(t, Config{}, venue)

	for _, addr := range []common.Address{asset.AddrUSDCNative, asset.AddrUSDCBridged} {
		price, err := s.PriceUSD(context.Background(), addr)
		if err != nil {
			t.Fatalf("PriceUSD(%s): %v", addr.Hex(), err)
		}
		if price.String() != "1" {
			t.Errorf("price = %s, want 1", price)
		}
	}
	if venue.calls != 0 {
		t.Errorf("anchor pricing hit a venue %d times", venue.calls)
	}
}

func TestPriceQuotedAndCached(t *testing.T) {
	venue := &fakeVenue{
		name: "x",
		outputs: map[common.Address]*big.Int{
			// 1 WETH reference quote pays 3000 USDC.
			asset.AddrWETH: big.NewInt(3_000_000_000),
		},
	}
	s := newTestService(t, Config{}, venue)

	price, err := s.PriceUSD(context.Background(), asset.AddrWETH)
	if err != nil {
		t.Fatalf("PriceUSD: %v", err)
	}
	if price.String() != "3000" {
		t.Errorf("price = %s, want 3000", price)
	}

	if _, err := s.PriceUSD(context.Background(), asset.AddrWETH); err != nil {
		t.Fatalf("cached PriceUSD: %v", err)
	}
	if venue.calls != 1 {
		t.Errorf("venue called %d times, want 1 (second lookup cached)", venue.calls)
	}
}

func TestFallbackVenueServesPrice(t *testing.T) {
	broken := &fakeVenue{name: "primary"}
	working := &fakeVenue{
		name: "fallback",
		outputs: map[common.Address]*big.Int{
			asset.AddrARB: big.NewInt(800_000), // 1 ARB -> 0.80 USDC
		},
	}
	s := newTestService(t, Config{}, broken, working)

	price, err := s.PriceUSD(context.Background(), asset.AddrARB)
	if err != nil {
		t.Fatalf("PriceUSD: %v", err)
	}
	if price.String() != "0.8" {
		t.Errorf("price = %s, want 0.8", price)
	}
	if broken.calls != 1 {
		t.Errorf("primary venue called %d times, want 1", broken.calls)
	}
}

func TestValueUSDZeroWhenUnpriced(t *testing.T) {
	s := newTestService(t, Config{}, &fakeVenue{name: "x"})

	value := s.ValueUSD(context.Background(), asset.AddrARB, big.NewInt(1e18))
	if !value.IsZero() {
		t.Errorf("value = %s, want 0", value)
	}
}

func TestValueUSDScalesByDecimals(t *testing.T) {
	venue := &fakeVenue{
		name: "x",
		outputs: map[common.Address]*big.Int{
			asset.AddrWETH: big.NewInt(3_000_000_000),
		},
	}
	s := newTestService(t, Config{}, venue)

	// 0.5 WETH at $3000.
	half := new(big.Int).Div(big.NewInt(1e18), big.NewInt(2))
	value := s.ValueUSD(context.Background(), asset.AddrWETH, half)
	if value.String() != "1500" {
		t.Errorf("value = %s, want 1500", value)
	}
}

func TestClearCacheForcesRequote(t *testing.T) {
	venue := &fakeVenue{
		name: "x",
		outputs: map[common.Address]*big.Int{
			asset.AddrWETH: big.NewInt(3_000_000_000),
		},
	}
	s := newTestService(t, Config{}, venue)

	if _, err := s.PriceUSD(context.Background(), asset.AddrWETH); err != nil {
		t.Fatalf("PriceUSD: %v", err)
	}
	s.ClearCache()
	if _, err := s.PriceUSD(context.Background(), asset.AddrWETH); err != nil {
		t.Fatalf("PriceUSD after clear: %v", err)
	}
	if venue.calls != 2 {
		t.Errorf("venue called %d times, want 2 after cache clear", venue.calls)
	}
}

func TestReferenceSizeNormalized(t *testing.T) {
	tenth := new(big.Int).Div(big.NewInt(1e18), big.NewInt(10))
	venue := &fakeVenue{
		name: "x",
		outputs: map[common.Address]*big.Int{
			// 0.1 WETH reference quote pays 300 USDC: still $3000/WETH.
			asset.AddrWETH: big.NewInt(300_000_000),
		},
	}
	s := newTestService(t, Config{
		ReferenceSizes: map[common.Address]*big.Int{asset.AddrWETH: tenth},
	}, venue)

	price, err := s.PriceUSD(context.Background(), asset.AddrWETH)
	if err != nil {
		t.Fatalf("PriceUSD: %v", err)
	}
	if price.String() != "3000" {
		t.Errorf("price = %s, want 3000", price)
	}
}

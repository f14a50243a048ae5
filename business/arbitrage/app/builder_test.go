package app

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	blockchaindomain "github.com/dvega/spreadscan/business/blockchain/domain"
	pricingapp "github.com/dvega/spreadscan/business/pricing/app"
	pricingdomain "github.com/dvega/spreadscan/business/pricing/domain"
	valuationapp "github.com/dvega/spreadscan/business/valuation/app"
	"github.com/dvega/spreadscan/internal/apperror"
	"github.com/dvega/spreadscan/internal/asset"
	"github.com/dvega/spreadscan/internal/config"
	"github.com/dvega/spreadscan/internal/logger"
)

// priceVenue backs the valuation service in tests: a fixed USDC output per
// whole unit of each token.
type priceVenue struct {
	outputs map[common.Address]*big.Int
}

func (p *priceVenue) Name() string { return "pricer" }

func (p *priceVenue) Quote(_ context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int) pricingdomain.Quote {
	out, ok := p.outputs[tokenIn]
	if !ok {
		return pricingdomain.FailedQuote("pricer", tokenIn, tokenOut, amountIn,
			apperror.CodePoolNotFound, "no pool")
	}
	return pricingdomain.NewQuote("pricer", tokenIn, tokenOut, amountIn, out, pricingdomain.RouteMeta{})
}

// fakeFees returns a fixed gas price, or an error when wei is nil.
type fakeFees struct {
	wei *big.Int
}

func (f *fakeFees) GasPrice(context.Context) (*blockchaindomain.GasPrice, error) {
	if f.wei == nil {
		return nil, errors.New("fee source down")
	}
	return blockchaindomain.NewGasPrice(f.wei), nil
}

// fakeQuoter answers FetchBest from a routing table keyed by "in>out".
type fakeQuoter struct {
	quotes map[string]*pricingdomain.Quote
}

func (f *fakeQuoter) FetchBest(_ context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int) *pricingdomain.Quote {
	key := strings.ToLower(tokenIn.Hex() + ">" + tokenOut.Hex())
	q, ok := f.quotes[key]
	if !ok {
		return nil
	}
	out := pricingdomain.NewQuote(q.Source, tokenIn, tokenOut, amountIn, q.AmountOut, q.Route)
	return &out
}

func (f *fakeQuoter) answer(tokenIn, tokenOut common.Address, venue string, amountOut *big.Int) {
	key := strings.ToLower(tokenIn.Hex() + ">" + tokenOut.Hex())
	q := pricingdomain.NewQuote(venue, tokenIn, tokenOut, big.NewInt(1), amountOut, pricingdomain.RouteMeta{})
	f.quotes[key] = &q
}

func testGasConfig() config.GasConfig {
	return config.GasConfig{
		FlashloanUnits: 280_000,
		CLSwapUnits:    190_000,
		V2SwapUnits:    130_000,
	}
}

func newTestBuilder(t *testing.T, quoter BestQuoter, fees *fakeFees, cfg BuilderConfig) *Builder {
	t.Helper()
	registry := asset.DefaultRegistry()

	// WETH trades at $2000; ARB is deliberately unpriced.
	venue := &priceVenue{outputs: map[common.Address]*big.Int{
		asset.AddrWETH: big.NewInt(2_000_000_000),
	}}
	valuation, err := valuationapp.NewService(valuationapp.Config{},
		registry, []pricingapp.LiquiditySource{venue}, logger.NewNop())
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	sizes := map[string]*big.Int{"WETH": big.NewInt(1e18)}

	b, err := NewBuilder(quoter, valuation, fees, registry, sizes, cfg, logger.NewNop())
	if err != nil {
		t.Fatalf("NewBuilder: %v", err)
	}
	return b
}

func defaultConfig() BuilderConfig {
	return BuilderConfig{
		MaxSlippageBps: 50,
		MinProfitUSD:   decimal.NewFromInt(3),
		Gas:            testGasConfig(),
	}
}

func wethToken(t *testing.T) (*asset.Token, *asset.Token) {
	t.Helper()
	r := asset.DefaultRegistry()
	weth := r.MustBySymbol("WETH")
	usdc := r.MustBySymbol("USDC")
	return weth, usdc
}

func legQuotes(forwardOut, returnOut *big.Int) (pricingdomain.Quote, pricingdomain.Quote) {
	fwd := pricingdomain.NewQuote("uniswapv3", asset.AddrWETH, asset.AddrUSDCNative,
		big.NewInt(1e18), forwardOut, pricingdomain.RouteMeta{})
	ret := pricingdomain.NewQuote("camelot", asset.AddrUSDCNative, asset.AddrWETH,
		forwardOut, returnOut, pricingdomain.RouteMeta{})
	return fwd, ret
}

func TestBuildBreakEvenIsNotRecognized(t *testing.T) {
	b := newTestBuilder(t, nil, &fakeFees{wei: big.NewInt(1e8)}, defaultConfig())
	weth, usdc := wethToken(t)

	// Forward gains 10%, return gives back exactly the input.
	fwd, ret := legQuotes(big.NewInt(2_200_000_000), big.NewInt(1e18))
	opp := b.Build(context.Background(), weth, usdc, big.NewInt(1e18), fwd, ret)

	if opp.GrossSpreadBps != 0 {
		t.Errorf("gross spread = %d bps, want exactly 0", opp.GrossSpreadBps)
	}
	if opp.Recognized {
		t.Error("break-even round trip recognized; the bar is strictly positive")
	}
	if opp.Executable {
		t.Error("break-even round trip executable")
	}
}

func TestBuildLossStaysSigned(t *testing.T) {
	b := newTestBuilder(t, nil, &fakeFees{wei: big.NewInt(1e8)}, defaultConfig())
	weth, usdc := wethToken(t)

	// Return leg comes back 5% short.
	fwd, ret := legQuotes(big.NewInt(2_000_000_000), big.NewInt(95e16))
	opp := b.Build(context.Background(), weth, usdc, big.NewInt(1e18), fwd, ret)

	if opp.GrossSpreadBps != -500 {
		t.Errorf("gross spread = %d bps, want -500", opp.GrossSpreadBps)
	}
	if opp.Recognized {
		t.Error("lossy round trip recognized")
	}
	if !opp.NetProfitUSD.IsZero() {
		t.Errorf("net profit = %s, want 0", opp.NetProfitUSD)
	}
}

func TestBuildProfitableAndExecutable(t *testing.T) {
	// 0.1 gwei gas on an L2: cents of cost against $40 of profit.
	b := newTestBuilder(t, nil, &fakeFees{wei: big.NewInt(1e8)}, defaultConfig())
	weth, usdc := wethToken(t)

	fwd, ret := legQuotes(big.NewInt(2_000_000_000), big.NewInt(102e16))
	opp := b.Build(context.Background(), weth, usdc, big.NewInt(1e18), fwd, ret)

	if !opp.Recognized {
		t.Fatal("positive round trip not recognized")
	}
	if opp.GrossSpreadBps != 200 {
		t.Errorf("gross spread = %d bps, want 200", opp.GrossSpreadBps)
	}
	if opp.SlipSpreadBps <= 0 {
		t.Errorf("slip spread = %d bps, want positive", opp.SlipSpreadBps)
	}
	if !opp.Executable {
		t.Errorf("not executable: net=%s gas=%v", opp.NetProfitUSD, opp.GasCost)
	}
	if opp.GasCost == nil || opp.GasCost.GasUnits != 280_000+190_000+130_000 {
		t.Errorf("gas units = %+v, want flashloan + CL leg + CP leg", opp.GasCost)
	}
}

func TestBuildGasSwampsProfit(t *testing.T) {
	// An absurd gas price pushes cost far past the gross profit.
	b := newTestBuilder(t, nil, &fakeFees{wei: big.NewInt(1e14)}, defaultConfig())
	weth, usdc := wethToken(t)

	fwd, ret := legQuotes(big.NewInt(2_000_000_000), big.NewInt(102e16))
	opp := b.Build(context.Background(), weth, usdc, big.NewInt(1e18), fwd, ret)

	if !opp.Recognized {
		t.Fatal("positive round trip not recognized")
	}
	if opp.Executable {
		t.Error("executable despite gas exceeding gross profit")
	}
	if !opp.NetProfitUSD.IsZero() {
		t.Errorf("net profit = %s, want floored to 0", opp.NetProfitUSD)
	}
}

func TestBuildUnknownUSDValueBlocksExecution(t *testing.T) {
	cfg := defaultConfig()
	cfg.MinProfitUSD = decimal.Zero

	// Fee source down: no gas cost, so the net-profit bar alone cannot be
	// what blocks execution.
	b := newTestBuilder(t, nil, &fakeFees{}, cfg)
	registry := asset.DefaultRegistry()
	arb := registry.MustBySymbol("ARB")
	usdt := registry.MustBySymbol("USDT")

	fwd := pricingdomain.NewQuote("ramses", asset.AddrARB, asset.AddrUSDT,
		big.NewInt(1e18), big.NewInt(800_000), pricingdomain.RouteMeta{})
	ret := pricingdomain.NewQuote("camelot", asset.AddrUSDT, asset.AddrARB,
		big.NewInt(800_000), big.NewInt(102e16), pricingdomain.RouteMeta{})

	opp := b.Build(context.Background(), arb, usdt, big.NewInt(1e18), fwd, ret)

	if !opp.Recognized {
		t.Fatal("positive round trip not recognized")
	}
	if !opp.ValueInUSD.IsZero() || !opp.ValueOutUSD.IsZero() {
		t.Fatalf("expected unpriced legs, got in=%s out=%s", opp.ValueInUSD, opp.ValueOutUSD)
	}
	if opp.Executable {
		t.Error("executable with both USD legs unknown")
	}
}

func TestBuildFailedLegYieldsUnrecognized(t *testing.T) {
	b := newTestBuilder(t, nil, &fakeFees{wei: big.NewInt(1e8)}, defaultConfig())
	weth, usdc := wethToken(t)

	fwd := pricingdomain.NewQuote("uniswapv3", asset.AddrWETH, asset.AddrUSDCNative,
		big.NewInt(1e18), big.NewInt(2_000_000_000), pricingdomain.RouteMeta{})
	ret := pricingdomain.FailedQuote("camelot", asset.AddrUSDCNative, asset.AddrWETH,
		big.NewInt(2_000_000_000), apperror.CodePoolNotFound, "no pool")

	opp := b.Build(context.Background(), weth, usdc, big.NewInt(1e18), fwd, ret)

	if opp.Recognized || opp.Executable {
		t.Error("opportunity built from a failed leg classified as actionable")
	}
	if opp.GrossSpreadBps != 0 {
		t.Errorf("gross spread = %d, want 0 for failed leg", opp.GrossSpreadBps)
	}
}

func TestScanFeedsForwardOutputIntoReturnLeg(t *testing.T) {
	quoter := &fakeQuoter{quotes: make(map[string]*pricingdomain.Quote)}
	quoter.answer(asset.AddrWETH, asset.AddrUSDCNative, "uniswapv3", big.NewInt(2_000_000_000))
	quoter.answer(asset.AddrUSDCNative, asset.AddrWETH, "camelot", big.NewInt(101e16))

	b := newTestBuilder(t, quoter, &fakeFees{wei: big.NewInt(1e8)}, defaultConfig())

	opps := b.Scan(context.Background(), []Pair{{Base: "WETH", Quote: "USDC"}}, nil, -10_000)

	if len(opps) != 1 {
		t.Fatalf("got %d opportunities, want 1", len(opps))
	}
	opp := opps[0]
	if opp.Return.AmountIn.Cmp(opp.Forward.AmountOut) != 0 {
		t.Errorf("return leg input %s != forward leg output %s",
			opp.Return.AmountIn, opp.Forward.AmountOut)
	}
	if opp.GrossSpreadBps != 100 {
		t.Errorf("gross spread = %d bps, want 100", opp.GrossSpreadBps)
	}
}

func TestScanNegativeFilterKeepsLossyPairs(t *testing.T) {
	quoter := &fakeQuoter{quotes: make(map[string]*pricingdomain.Quote)}
	quoter.answer(asset.AddrWETH, asset.AddrUSDCNative, "uniswapv3", big.NewInt(2_000_000_000))
	quoter.answer(asset.AddrUSDCNative, asset.AddrWETH, "camelot", big.NewInt(95e16))

	b := newTestBuilder(t, quoter, &fakeFees{wei: big.NewInt(1e8)}, defaultConfig())
	pairs := []Pair{{Base: "WETH", Quote: "USDC"}}

	if opps := b.Scan(context.Background(), pairs, nil, -600); len(opps) != 1 {
		t.Errorf("filter -600 dropped a -500 bps pair")
	}
	if opps := b.Scan(context.Background(), pairs, nil, -100); len(opps) != 0 {
		t.Errorf("filter -100 kept a -500 bps pair, got %d", len(opps))
	}
}

func TestScanSkipsPairWithoutQuotes(t *testing.T) {
	quoter := &fakeQuoter{quotes: make(map[string]*pricingdomain.Quote)}

	b := newTestBuilder(t, quoter, &fakeFees{wei: big.NewInt(1e8)}, defaultConfig())

	opps := b.Scan(context.Background(), []Pair{{Base: "WETH", Quote: "USDC"}}, nil, -10_000)
	if len(opps) != 0 {
		t.Errorf("got %d opportunities from a quoteless market", len(opps))
	}
}

func TestScanBorrowsFallbackTradeSize(t *testing.T) {
	quoter := &fakeQuoter{quotes: make(map[string]*pricingdomain.Quote)}
	quoter.answer(asset.AddrARB, asset.AddrUSDCNative, "ramses", big.NewInt(800_000))
	quoter.answer(asset.AddrUSDCNative, asset.AddrARB, "camelot", big.NewInt(101e16))

	// Only WETH has a default size; the ARB pair must borrow it.
	b := newTestBuilder(t, quoter, &fakeFees{wei: big.NewInt(1e8)}, defaultConfig())

	opps := b.Scan(context.Background(), []Pair{{Base: "ARB", Quote: "USDC"}}, nil, -10_000)
	if len(opps) != 1 {
		t.Fatalf("got %d opportunities, want 1 via fallback size", len(opps))
	}
	if opps[0].AmountIn.Cmp(big.NewInt(1e18)) != 0 {
		t.Errorf("amount in = %s, want the borrowed 1e18 default", opps[0].AmountIn)
	}
}

func TestParsePair(t *testing.T) {
	tests := []struct {
		in      string
		want    Pair
		wantErr bool
	}{
		{"WETH/USDC", Pair{"WETH", "USDC"}, false},
		{"arb/usdt", Pair{"ARB", "USDT"}, false},
		{"WETH", Pair{}, true},
		{"/USDC", Pair{}, true},
		{"WETH/", Pair{}, true},
		{"A/B/C", Pair{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePair(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParsePair(%q) accepted", tt.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParsePair(%q): %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParsePair(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
